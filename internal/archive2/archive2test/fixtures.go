package archive2test

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Format selects the radial message type of a fixture.
type Format int

const (
	Generic Format = iota // type 31
	Legacy                // type 1
)

// Container selects how a fixture's frames are stored.
type Container int

const (
	// LDM compresses frames into bzip2 records.
	LDM Container = iota
	// Raw stores frames directly after the volume header.
	Raw
	// GzipRaw is Raw wrapped in gzip.
	GzipRaw
)

// MomentLayout is the encoding of a generic moment in fixtures.
type MomentLayout struct {
	FirstGate int16
	Spacing   uint16
	WordBits  uint8
	Scale     float32
	Offset    float32
}

// MomentOrder is the order moments are written and indexed in fixtures.
var MomentOrder = []string{"REF", "VEL", "SW", "ZDR", "RHO", "PHI"}

// GenericLayouts mirrors typical build 18 scale and offset values.
var GenericLayouts = map[string]MomentLayout{
	"REF": {2125, 250, 8, 2, 66},
	"VEL": {2125, 250, 8, 2, 129},
	"SW":  {2125, 250, 8, 2, 129},
	"ZDR": {2125, 250, 8, 16, 128},
	"RHO": {2125, 250, 8, 300, -60.5},
	"PHI": {2125, 250, 16, 2.8361, 2},
}

// SweepSpec describes one elevation of a fixture.
type SweepSpec struct {
	Elevation       float64
	ElevationNumber int
	Radials         int
	// AzimuthSpacing is 0.5 or 1.0 degrees; legacy sweeps always use 1.0.
	AzimuthSpacing float64
	// Gates per generic moment code.
	Gates map[string]int
	// FoldFrom marks VEL and SW gates at or beyond this index range folded;
	// zero disables folding.
	FoldFrom int
	// Wobble is the amplitude in degrees of a sinusoidal elevation jitter.
	Wobble float64

	// Legacy layout.
	RefGates, DopGates   int
	RefFirst, RefSpacing int16
	DopFirst, DopSpacing int16
	VelocityResolution   uint16
}

// Site is the position written to VOL blocks.
type Site struct {
	Latitude, Longitude float32
	Height              int16
}

// Fixture describes one canonical volume scan.
type Fixture struct {
	File      string
	Format    Format
	Container Container
	Station   string
	Site      Site
	Seed      uint32
	VCP       uint16
	Start     time.Time
	Sweeps    []SweepSpec
	// MetaUnknown adds frames of these types to the metadata record.
	MetaUnknown []uint8
	// Inject inserts a fixed frame of the mapped type after the n-th radial.
	Inject map[int]uint8
	// Unsupported is the number of frames with unknown types.
	Unsupported int
	// Equivalent names a fixture with identical decoded content.
	Equivalent string
}

var metadataFrameTypes = []uint8{15, 13, 18, 3, 5, 2}

// Mix is a 32-bit FNV-1a style hash over words; fixture gate values derive
// from it so they are reproducible without storing them.
func Mix(words ...uint32) uint32 {
	x := uint32(2166136261)
	for _, w := range words {
		x ^= w
		x *= 16777619
	}
	return x
}

// RawGate returns the raw code written for a gate.
func (f *Fixture) RawGate(sweep, radial int, moment string, gate int) uint16 {
	mi := uint32(momentIndex(moment))
	if f.Format == Legacy {
		h := Mix(f.Seed, uint32(sweep), uint32(radial/4), mi, uint32(gate/4))
		return uint16(h>>8) & 0xff
	}
	s := f.Sweeps[sweep]
	if s.FoldFrom > 0 && (moment == "VEL" || moment == "SW") && gate >= s.FoldFrom {
		return 1
	}
	h := Mix(f.Seed, uint32(sweep), uint32(radial), mi, uint32(gate))
	if GenericLayouts[moment].WordBits == 16 {
		return uint16(h >> 8)
	}
	return uint16(h>>8) & 0xff
}

func momentIndex(code string) int {
	for i, m := range MomentOrder {
		if m == code {
			return i
		}
	}
	return -1
}

// Moments lists the moment codes present in sweep i in canonical order.
func (f *Fixture) Moments(i int) []string {
	if f.Format == Legacy {
		return []string{"REF", "VEL", "SW"}
	}
	var out []string
	for _, m := range MomentOrder {
		if _, ok := f.Sweeps[i].Gates[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// GateCount returns the number of gates of moment in sweep i.
func (f *Fixture) GateCount(i int, moment string) int {
	s := f.Sweeps[i]
	if f.Format == Legacy {
		if moment == "REF" {
			return s.RefGates
		}
		return s.DopGates
	}
	return s.Gates[moment]
}

// RadialElevation returns the elevation angle written for a radial.
func (f *Fixture) RadialElevation(sweep, radial int) float64 {
	s := f.Sweeps[sweep]
	if f.Format == Legacy {
		return float64(CodedAngle(s.Elevation)) * 180.0 / 32768.0
	}
	e := s.Elevation
	if s.Wobble != 0 {
		e += s.Wobble * math.Sin(float64(radial)*0.7)
	}
	return float64(float32(e))
}

// RadialAzimuth returns the azimuth written for a radial.
func (f *Fixture) RadialAzimuth(sweep, radial int) float64 {
	if f.Format == Legacy {
		return float64(CodedAngle(float64(radial)+0.5)) * 180.0 / 32768.0
	}
	sp := f.Sweeps[sweep].AzimuthSpacing
	return float64(float32(float64(radial)*sp + sp/2))
}

func radialStatus(sweep, radial, sweeps, radials int) uint8 {
	switch {
	case radial == 0 && sweep == 0:
		return 3
	case radial == 0:
		return 0
	case radial == radials-1 && sweep == sweeps-1:
		return 4
	case radial == radials-1:
		return 2
	}
	return 1
}

// Frames returns the metadata frames and the radial frames of the fixture.
func (f *Fixture) Frames() (meta, radials [][]byte) {
	var seq uint16
	for _, typ := range append(append([]uint8{}, metadataFrameTypes...), f.MetaUnknown...) {
		seq++
		meta = append(meta, FixedFrame(typ, seq, f.Start, nil))
	}
	count := 0
	for si, s := range f.Sweeps {
		for ri := 0; ri < s.Radials; ri++ {
			seq++
			t := f.Start.Add(time.Duration(si)*30*time.Second + time.Duration(ri)*50*time.Millisecond)
			status := radialStatus(si, ri, len(f.Sweeps), s.Radials)
			if f.Format == Legacy {
				radials = append(radials, f.legacyRadial(si, ri, t, status).Frame(seq))
			} else {
				radials = append(radials, f.genericRadial(si, ri, t, status).Frame(seq))
			}
			count++
			if typ, ok := f.Inject[count]; ok {
				seq++
				radials = append(radials, FixedFrame(typ, seq, t, nil))
			}
		}
	}
	return meta, radials
}

func (f *Fixture) genericRadial(si, ri int, t time.Time, status uint8) Radial31 {
	s := f.Sweeps[si]
	r := Radial31{
		Station:         f.Station,
		Time:            t,
		AzimuthNumber:   uint16(ri + 1),
		Azimuth:         float32(f.RadialAzimuth(si, ri)),
		AzimuthSpacing:  s.AzimuthSpacing,
		Status:          status,
		ElevationNumber: uint8(s.ElevationNumber),
		Elevation:       float32(f.RadialElevation(si, ri)),
		VCP:             f.VCP,
		Latitude:        f.Site.Latitude,
		Longitude:       f.Site.Longitude,
		Height:          f.Site.Height,
	}
	for _, m := range f.Moments(si) {
		l := GenericLayouts[m]
		raw := make([]uint16, s.Gates[m])
		for g := range raw {
			raw[g] = f.RawGate(si, ri, m, g)
		}
		r.Moments = append(r.Moments, MomentBlock{
			Name: m, FirstGate: l.FirstGate, Spacing: l.Spacing, WordBits: l.WordBits,
			Scale: l.Scale, Offset: l.Offset, Raw: raw,
		})
	}
	return r
}

func (f *Fixture) legacyRadial(si, ri int, t time.Time, status uint8) Radial1 {
	s := f.Sweeps[si]
	gates := func(m string, n int) []byte {
		out := make([]byte, n)
		for g := range out {
			out[g] = byte(f.RawGate(si, ri, m, g))
		}
		return out
	}
	return Radial1{
		Time:            t,
		AzimuthNumber:   uint16(ri + 1),
		Azimuth:         float64(ri) + 0.5,
		Status:          uint16(status),
		Elevation:       s.Elevation,
		ElevationNumber: uint16(s.ElevationNumber),
		VCP:             f.VCP,
		Resolution:      s.VelocityResolution,
		RefFirst:        s.RefFirst,
		RefSpacing:      s.RefSpacing,
		DopFirst:        s.DopFirst,
		DopSpacing:      s.DopSpacing,
		Ref:             gates("REF", s.RefGates),
		Vel:             gates("VEL", s.DopGates),
		Width:           gates("SW", s.DopGates),
	}
}

// radialsPerRecord matches the 120-radial records written by the RDA.
const radialsPerRecord = 120

// Build encodes the fixture in its container.
func (f *Fixture) Build() ([]byte, error) {
	version := "AR2V0006"
	if f.Format == Legacy {
		version = "AR2V0001"
	}
	meta, radials := f.Frames()
	out := VolumeHeader(version, f.Station, f.Start)

	switch f.Container {
	case LDM:
		records := [][]byte{bytes.Join(meta, nil)}
		for i := 0; i < len(radials); i += radialsPerRecord {
			records = append(records, bytes.Join(radials[i:min(i+radialsPerRecord, len(radials))], nil))
		}
		body, err := Records(records)
		if err != nil {
			return nil, fmt.Errorf("compress records: %w", err)
		}
		return append(out, body...), nil
	case Raw, GzipRaw:
		out = append(out, bytes.Join(meta, nil)...)
		out = append(out, bytes.Join(radials, nil)...)
		if f.Container == Raw {
			return out, nil
		}
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(out); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown container %d", f.Container)
}
