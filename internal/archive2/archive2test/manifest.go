package archive2test

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// Manifest lists the expected decode results of the canonical fixtures.
type Manifest struct {
	Fixtures []FixtureManifest `json:"fixtures"`
}

// FixtureManifest is the expected decode result of one fixture file.
type FixtureManifest struct {
	File        string          `json:"file"`
	Station     string          `json:"station"`
	Start       time.Time       `json:"start"`
	VCP         int             `json:"vcp"`
	Gzip        bool            `json:"gzip"`
	Compressed  bool            `json:"compressed"`
	Unsupported int             `json:"unsupported"`
	Sweeps      []SweepManifest `json:"sweeps"`
	Golden      []GoldenGate    `json:"golden"`
	Equivalent  string          `json:"equivalent,omitempty"`
}

// SweepManifest is the expected shape of one decoded sweep.
type SweepManifest struct {
	Elevation float64  `json:"elevation"`
	Radials   int      `json:"radials"`
	Moments   []string `json:"moments"`
}

// GoldenGate is a decoded value at a fixed position.
type GoldenGate struct {
	Sweep   int      `json:"sweep"`
	Azimuth float64  `json:"azimuth"`
	Range   float64  `json:"range"`
	Moment  string   `json:"moment"`
	Kind    string   `json:"kind"`
	Value   *float64 `json:"value,omitempty"`
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Manifest computes the expected decode results of the fixture.
func (f *Fixture) Manifest() FixtureManifest {
	out := FixtureManifest{
		File:        f.File,
		Station:     f.Station,
		Start:       f.Start,
		VCP:         int(f.VCP),
		Gzip:        f.Container == GzipRaw,
		Compressed:  f.Container == LDM,
		Unsupported: f.Unsupported,
		Equivalent:  f.Equivalent,
	}
	for si, s := range f.Sweeps {
		sum := 0.0
		for ri := 0; ri < s.Radials; ri++ {
			sum += f.RadialElevation(si, ri)
		}
		out.Sweeps = append(out.Sweeps, SweepManifest{
			Elevation: math.Round(sum/float64(s.Radials)*1e4) / 1e4,
			Radials:   s.Radials,
			Moments:   f.Moments(si),
		})
	}
	for _, p := range f.goldenPicks() {
		out.Golden = append(out.Golden, f.golden(p))
	}
	return out
}

type pick struct {
	sweep, radial int
	moment        string
	gate          int
}

// goldenPicks spreads six positions across sweeps and moments, then adds
// the first below-threshold and range-folded gates found, if any.
func (f *Fixture) goldenPicks() []pick {
	var picks []pick
	for k := 0; k < 6; k++ {
		si := k % len(f.Sweeps)
		names := f.Moments(si)
		picks = append(picks, pick{
			sweep:  si,
			radial: (k*97 + 13) % f.Sweeps[si].Radials,
			moment: names[k%len(names)],
			gate:   k*7 + 3,
		})
	}
	for _, want := range []uint16{0, 1} {
		if p, ok := f.findRaw(want); ok {
			picks = append(picks, p)
		}
	}
	return picks
}

func (f *Fixture) findRaw(want uint16) (pick, bool) {
	for si, s := range f.Sweeps {
		for ri := 0; ri < s.Radials; ri += 7 {
			for _, m := range f.Moments(si) {
				for g := 0; g < f.GateCount(si, m); g++ {
					if f.RawGate(si, ri, m, g) == want {
						return pick{si, ri, m, g}, true
					}
				}
			}
		}
	}
	return pick{}, false
}

func (f *Fixture) golden(p pick) GoldenGate {
	s := f.Sweeps[p.sweep]
	g := p.gate % f.GateCount(p.sweep, p.moment)
	raw := f.RawGate(p.sweep, p.radial, p.moment, g)

	var first, spacing float64
	var scale, offset float32
	if f.Format == Legacy {
		switch p.moment {
		case "REF":
			first, spacing, scale, offset = float64(s.RefFirst), float64(s.RefSpacing), 2, 66
		case "VEL":
			first, spacing, scale, offset = float64(s.DopFirst), float64(s.DopSpacing), 2, 129
			if s.VelocityResolution == 4 {
				scale = 1
			}
		default:
			first, spacing, scale, offset = float64(s.DopFirst), float64(s.DopSpacing), 2, 129
		}
	} else {
		l := GenericLayouts[p.moment]
		first, spacing, scale, offset = float64(l.FirstGate), float64(l.Spacing), l.Scale, l.Offset
	}

	out := GoldenGate{
		Sweep:   p.sweep,
		Azimuth: f.RadialAzimuth(p.sweep, p.radial),
		Range:   first + float64(g)*spacing,
		Moment:  p.moment,
	}
	switch raw {
	case 0:
		out.Kind = "below_threshold"
	case 1:
		out.Kind = "range_folded"
	default:
		out.Kind = "value"
		v := float64((float32(raw) - offset) / scale)
		out.Value = &v
	}
	return out
}
