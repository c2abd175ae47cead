package domain

import "time"

// SweepSummary describes one sweep of a decoded scan.
type SweepSummary struct {
	Number    int      `json:"number"`
	Elevation float64  `json:"elevation_deg"`
	Radials   int      `json:"radials"`
	Moments   []string `json:"moments"`
}

// Extent is a geographic bounding box in degrees.
type Extent struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// ScanSummary is published once per processed volume scan.
type ScanSummary struct {
	Station     string         `json:"station"`
	ScanTime    time.Time      `json:"scan_time"`
	Variant     string         `json:"variant,omitempty"`
	VCP         int            `json:"vcp"`
	SizeBytes   int            `json:"size_bytes"`
	Sweeps      []SweepSummary `json:"sweeps"`
	Unsupported int            `json:"unsupported_messages"`

	// Partial is set when decoding stopped early and the summary covers
	// only the sweeps recovered before the failure.
	Partial      bool                 `json:"partial"`
	DecodeError  string               `json:"decode_error,omitempty"`
	Reflectivity *ReflectivitySummary `json:"reflectivity,omitempty"`
	ProcessedAt  time.Time            `json:"processed_at"`
}

// ReflectivitySummary covers the lowest reflectivity sweep.
type ReflectivitySummary struct {
	Elevation float64 `json:"elevation_deg"`
	// MaxDBZ is the strongest measured gate.
	MaxDBZ float64 `json:"max_dbz"`
	// MeanDBZ averages measured gates.
	MeanDBZ float64 `json:"mean_dbz"`
	// Coverage is the fraction of gates at or above the echo threshold.
	Coverage float64 `json:"coverage"`
	Extent   Extent  `json:"extent"`
}

// Summarize builds the sweep list of a ScanSummary from a decoded volume.
func Summarize(v *VolumeScan) []SweepSummary {
	out := make([]SweepSummary, 0, len(v.Sweeps))
	for i := range v.Sweeps {
		s := &v.Sweeps[i]
		codes := make([]string, 0, MomentCount)
		for _, m := range s.Moments.List() {
			codes = append(codes, m.String())
		}
		out = append(out, SweepSummary{
			Number:    s.Number,
			Elevation: s.Elevation,
			Radials:   len(s.Radials),
			Moments:   codes,
		})
	}
	return out
}

// Now returns the current time from the package clock.
func Now() time.Time {
	return clock.Now().UTC()
}
