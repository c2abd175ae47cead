package domain

import (
	"math"
	"strings"
	"time"
)

// Moment identifies a physical quantity measured per gate.
type Moment uint8

const (
	Reflectivity Moment = iota
	Velocity
	SpectrumWidth
	DifferentialReflectivity
	CorrelationCoefficient
	DifferentialPhase

	// MomentCount is the number of defined moments. Moment values are dense
	// in [0, MomentCount) so they can index fixed-size arrays.
	MomentCount
)

var momentCodes = [MomentCount]string{"REF", "VEL", "SW", "ZDR", "RHO", "PHI"}

var momentUnits = [MomentCount]string{"dBZ", "m/s", "m/s", "dB", "", "deg"}

// String returns the three-letter Archive II code for the moment.
func (m Moment) String() string {
	if m >= MomentCount {
		return "UNKNOWN"
	}
	return momentCodes[m]
}

// Unit returns the physical unit of decoded gate values.
func (m Moment) Unit() string {
	if m >= MomentCount {
		return ""
	}
	return momentUnits[m]
}

// ParseMoment resolves an Archive II data block name ("REF", "SW ", "RHO", ...)
// to a Moment. Trailing spaces are ignored and matching is case-insensitive.
func ParseMoment(code string) (Moment, bool) {
	code = strings.ToUpper(strings.TrimRight(code, " \x00"))
	for i, c := range momentCodes {
		if c == code {
			return Moment(i), true
		}
	}
	return 0, false
}

// AllMoments lists every moment in canonical order.
func AllMoments() []Moment {
	out := make([]Moment, MomentCount)
	for i := range out {
		out[i] = Moment(i)
	}
	return out
}

// MomentSet is a bit set of moments.
type MomentSet uint8

// Add returns the set with m included.
func (s MomentSet) Add(m Moment) MomentSet { return s | 1<<m }

// Has reports whether m is in the set.
func (s MomentSet) Has(m Moment) bool { return m < MomentCount && s&(1<<m) != 0 }

// Union returns the moments present in either set.
func (s MomentSet) Union(o MomentSet) MomentSet { return s | o }

// List returns the moments in the set in canonical order.
func (s MomentSet) List() []Moment {
	var out []Moment
	for m := Moment(0); m < MomentCount; m++ {
		if s.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// String renders the set as a comma-separated list of moment codes.
func (s MomentSet) String() string {
	codes := make([]string, 0, MomentCount)
	for _, m := range s.List() {
		codes = append(codes, m.String())
	}
	return strings.Join(codes, ",")
}

// GateKind distinguishes measured gate values from the reserved encodings.
type GateKind uint8

const (
	// GateValue carries a measured value in the moment's physical unit.
	GateValue GateKind = iota
	// GateBelowThreshold marks a gate whose signal fell below the
	// processing threshold (raw code 0).
	GateBelowThreshold
	// GateRangeFolded marks an ambiguous return beyond the unambiguous
	// range (raw code 1).
	GateRangeFolded
	// GateNoData marks padding where a radial carried fewer gates than the
	// sweep, or no data for the moment at all.
	GateNoData
)

func (k GateKind) String() string {
	switch k {
	case GateValue:
		return "value"
	case GateBelowThreshold:
		return "below_threshold"
	case GateRangeFolded:
		return "range_folded"
	case GateNoData:
		return "no_data"
	default:
		return "unknown"
	}
}

// Gate is one range-bin sample. Value is meaningful only when Kind is GateValue.
type Gate struct {
	Kind  GateKind
	Value float32
}

// ValueGate builds a measured gate.
func ValueGate(v float32) Gate { return Gate{Kind: GateValue, Value: v} }

// IsValue reports whether the gate carries a measured value.
func (g Gate) IsValue() bool { return g.Kind == GateValue }

// MomentData holds the gates of one moment along one radial. Ranges are in
// meters from the radar to the center of the gate.
type MomentData struct {
	FirstGateRange float64
	GateSpacing    float64
	Gates          []Gate
}

// RangeOf returns the range in meters of gate i.
func (d *MomentData) RangeOf(i int) float64 {
	return d.FirstGateRange + float64(i)*d.GateSpacing
}

// GateIndex returns the index of the gate nearest rangeM, or false when the
// range falls outside the radial.
func (d *MomentData) GateIndex(rangeM float64) (int, bool) {
	if d == nil || len(d.Gates) == 0 || d.GateSpacing <= 0 {
		return 0, false
	}
	i := int(math.Round((rangeM - d.FirstGateRange) / d.GateSpacing))
	if i < 0 || i >= len(d.Gates) {
		return 0, false
	}
	return i, true
}

// Radial is one azimuthal beam. Azimuth and Elevation are in degrees.
type Radial struct {
	Azimuth   float64
	Elevation float64
	Time      time.Time
	Moments   [MomentCount]*MomentData
}

// Data returns the gates for m, or nil when the radial did not carry m.
func (r *Radial) Data(m Moment) *MomentData {
	if m >= MomentCount {
		return nil
	}
	return r.Moments[m]
}

// MomentSet returns the moments present on the radial.
func (r *Radial) MomentSet() MomentSet {
	var s MomentSet
	for m, d := range r.Moments {
		if d != nil {
			s = s.Add(Moment(m))
		}
	}
	return s
}

// Sweep is all radials collected at one nominal elevation angle.
type Sweep struct {
	// Number is the elevation cut number reported by the radar, 1-based.
	Number    int
	Elevation float64
	Radials   []Radial
	Moments   MomentSet
}

// NearestRadial returns the index of the radial whose azimuth is closest to
// az, treating azimuth as wrapping at 360. It returns -1 for an empty sweep.
func (s *Sweep) NearestRadial(az float64) int {
	best, bestDiff := -1, math.Inf(1)
	for i := range s.Radials {
		d := AngleDiff(s.Radials[i].Azimuth, az)
		if d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

// MaxGates returns the largest gate count of m across the sweep's radials.
func (s *Sweep) MaxGates(m Moment) int {
	n := 0
	for i := range s.Radials {
		if d := s.Radials[i].Data(m); d != nil && len(d.Gates) > n {
			n = len(d.Gates)
		}
	}
	return n
}

// SkippedMessage records a message the decoder did not understand.
type SkippedMessage struct {
	Type   uint8
	Index  int
	Offset int64
}

// VolumeScan is one complete cycle of elevation sweeps for a station.
type VolumeScan struct {
	Station string
	Start   time.Time
	VCP     int
	Sweeps  []Sweep
	// Unsupported lists messages skipped because their type was unknown.
	Unsupported []SkippedMessage
}

// Moments returns the union of the moments present across all sweeps.
func (v *VolumeScan) Moments() MomentSet {
	var s MomentSet
	for i := range v.Sweeps {
		s = s.Union(v.Sweeps[i].Moments)
	}
	return s
}

// RadialCount returns the number of radials across all sweeps.
func (v *VolumeScan) RadialCount() int {
	n := 0
	for i := range v.Sweeps {
		n += len(v.Sweeps[i].Radials)
	}
	return n
}

// LowestSweep returns the index of the lowest-elevation sweep carrying m,
// or -1 when no sweep has it.
func (v *VolumeScan) LowestSweep(m Moment) int {
	best := -1
	for i := range v.Sweeps {
		if !v.Sweeps[i].Moments.Has(m) {
			continue
		}
		if best < 0 || v.Sweeps[i].Elevation < v.Sweeps[best].Elevation {
			best = i
		}
	}
	return best
}

// NormalizeAzimuth maps any angle in degrees onto [0, 360).
func NormalizeAzimuth(az float64) float64 {
	az = math.Mod(az, 360)
	if az < 0 {
		az += 360
	}
	if az >= 360 {
		az = 0
	}
	return az
}

// AngleDiff returns the absolute angular distance between a and b in degrees,
// in [0, 180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeAzimuth(a) - NormalizeAzimuth(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
