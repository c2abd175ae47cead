// Package colormap maps gate values to colors by breakpoint interpolation.
//
// A ColorTable is immutable once loaded and safe to share across goroutines.
// Values between two breakpoints blend their colors linearly. Values outside
// the table take the fixed below-minimum or above-maximum colors, and each
// gate sentinel has a reserved color that interpolation cannot produce.
package colormap

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/geo"
)

// Breakpoint pins a color to a value.
type Breakpoint struct {
	Value float32
	Color color.RGBA
}

// ColorTable is the color scale of one moment.
type ColorTable struct {
	Moment      domain.Moment
	Breakpoints []Breakpoint

	BelowMin       color.RGBA
	AboveMax       color.RGBA
	BelowThreshold color.RGBA
	RangeFolded    color.RGBA
	NoData         color.RGBA
}

// Validate checks that breakpoints ascend strictly and that no sentinel color
// can be produced by interpolating between adjacent breakpoints.
func (t *ColorTable) Validate() error {
	if len(t.Breakpoints) == 0 {
		return errors.New("color table has no breakpoints")
	}
	for i, bp := range t.Breakpoints {
		if math.IsNaN(float64(bp.Value)) || math.IsInf(float64(bp.Value), 0) {
			return fmt.Errorf("breakpoint %d: value must be finite", i)
		}
		if i > 0 && bp.Value <= t.Breakpoints[i-1].Value {
			return fmt.Errorf("breakpoint %d: value %g does not ascend", i, bp.Value)
		}
	}

	sentinels := []struct {
		name string
		c    color.RGBA
	}{
		{"below_threshold", t.BelowThreshold},
		{"range_folded", t.RangeFolded},
		{"no_data", t.NoData},
	}
	for i, s := range sentinels {
		for _, o := range sentinels[:i] {
			if s.c == o.c {
				return fmt.Errorf("%s color duplicates %s", s.name, o.name)
			}
		}
		if t.reachable(s.c) {
			return fmt.Errorf("%s color %s is reachable by interpolation", s.name, Hex(s.c))
		}
	}
	return nil
}

// reachable reports whether some value inside the table maps to c.
func (t *ColorTable) reachable(c color.RGBA) bool {
	if len(t.Breakpoints) == 1 {
		return t.Breakpoints[0].Color == c
	}
	for i := 1; i < len(t.Breakpoints); i++ {
		if segmentReaches(t.Breakpoints[i-1].Color, t.Breakpoints[i].Color, c) {
			return true
		}
	}
	return false
}

// segmentReaches intersects, channel by channel, the interpolation parameter
// ranges that round to c.
func segmentReaches(a, b, c color.RGBA) bool {
	lo, hi := 0.0, 1.0
	ch := [][3]uint8{{a.R, b.R, c.R}, {a.G, b.G, c.G}, {a.B, b.B, c.B}, {a.A, b.A, c.A}}
	for _, v := range ch {
		c0, c1, want := float64(v[0]), float64(v[1]), float64(v[2])
		d := c1 - c0
		if d == 0 {
			if c0 != want {
				return false
			}
			continue
		}
		t0, t1 := (want-0.5-c0)/d, (want+0.5-c0)/d
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		lo, hi = math.Max(lo, t0), math.Min(hi, t1)
		if lo > hi {
			return false
		}
	}
	return true
}

// Min returns the lowest breakpoint value.
func (t *ColorTable) Min() float32 { return t.Breakpoints[0].Value }

// Max returns the highest breakpoint value.
func (t *ColorTable) Max() float32 { return t.Breakpoints[len(t.Breakpoints)-1].Value }

// Color maps a measured value. NaN maps to the no-data color.
func (t *ColorTable) Color(v float32) color.RGBA {
	bps := t.Breakpoints
	switch {
	case math.IsNaN(float64(v)):
		return t.NoData
	case v < bps[0].Value:
		return t.BelowMin
	case v > bps[len(bps)-1].Value:
		return t.AboveMax
	}
	i := sort.Search(len(bps), func(i int) bool { return bps[i].Value >= v })
	if bps[i].Value == v {
		return bps[i].Color
	}
	lo, hi := bps[i-1], bps[i]
	return lerp(lo.Color, hi.Color, float64(v-lo.Value)/float64(hi.Value-lo.Value))
}

// GateColor maps a decoded gate, routing sentinels to their reserved colors.
func (t *ColorTable) GateColor(g domain.Gate) color.RGBA {
	switch g.Kind {
	case domain.GateValue:
		return t.Color(g.Value)
	case domain.GateBelowThreshold:
		return t.BelowThreshold
	case domain.GateRangeFolded:
		return t.RangeFolded
	default:
		return t.NoData
	}
}

func lerp(a, b color.RGBA, f float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

// Colorize returns one color per projected gate, in the projection's
// row-major order.
func Colorize(p *geo.ProjectedSweep, t *ColorTable) []color.RGBA {
	out := make([]color.RGBA, len(p.Points))
	for i := range p.Points {
		out[i] = t.GateColor(p.Points[i].Gate)
	}
	return out
}

// Pixels flattens colors into a packed RGBA byte buffer.
func Pixels(colors []color.RGBA) []byte {
	buf := make([]byte, 0, 4*len(colors))
	for _, c := range colors {
		buf = append(buf, c.R, c.G, c.B, c.A)
	}
	return buf
}
