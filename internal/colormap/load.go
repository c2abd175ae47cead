package colormap

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

//go:embed tables.json
var defaultTablesJSON []byte

type tableJSON struct {
	Breakpoints []struct {
		Value float32 `json:"value"`
		Color string  `json:"color"`
	} `json:"breakpoints"`
	BelowMin       string `json:"below_min"`
	AboveMax       string `json:"above_max"`
	BelowThreshold string `json:"below_threshold"`
	RangeFolded    string `json:"range_folded"`
	NoData         string `json:"no_data"`
}

// Set holds one table per moment.
type Set [domain.MomentCount]*ColorTable

// For returns the table for m, or nil.
func (s *Set) For(m domain.Moment) *ColorTable {
	if m >= domain.MomentCount {
		return nil
	}
	return s[m]
}

// Parse decodes a JSON document keyed by moment code ("REF", "VEL", ...)
// and validates every table.
func Parse(data []byte) (*Set, error) {
	var raw map[string]tableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse color tables: %w", err)
	}
	var set Set
	for code, tj := range raw {
		m, ok := domain.ParseMoment(code)
		if !ok {
			return nil, fmt.Errorf("color table %q: unknown moment", code)
		}
		t, err := tj.table(m)
		if err != nil {
			return nil, fmt.Errorf("color table %s: %w", code, err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("color table %s: %w", code, err)
		}
		set[m] = t
	}
	return &set, nil
}

func (tj *tableJSON) table(m domain.Moment) (*ColorTable, error) {
	t := &ColorTable{Moment: m}
	for i, bp := range tj.Breakpoints {
		c, err := ParseHex(bp.Color)
		if err != nil {
			return nil, fmt.Errorf("breakpoint %d: %w", i, err)
		}
		t.Breakpoints = append(t.Breakpoints, Breakpoint{Value: bp.Value, Color: c})
	}
	fixed := []struct {
		name string
		src  string
		dst  *color.RGBA
	}{
		{"below_min", tj.BelowMin, &t.BelowMin},
		{"above_max", tj.AboveMax, &t.AboveMax},
		{"below_threshold", tj.BelowThreshold, &t.BelowThreshold},
		{"range_folded", tj.RangeFolded, &t.RangeFolded},
		{"no_data", tj.NoData, &t.NoData},
	}
	for _, f := range fixed {
		c, err := ParseHex(f.src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = c
	}
	return t, nil
}

// ParseHex reads "#RRGGBB" or "#RRGGBBAA". Six-digit colors are opaque.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Hex formats a color as "#RRGGBBAA".
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

var defaults = sync.OnceValues(func() (*Set, error) {
	return Parse(defaultTablesJSON)
})

// Defaults returns the built-in tables for all six moments.
func Defaults() (*Set, error) {
	return defaults()
}

// Default returns the built-in table for m.
func Default(m domain.Moment) (*ColorTable, error) {
	set, err := defaults()
	if err != nil {
		return nil, err
	}
	t := set.For(m)
	if t == nil {
		return nil, fmt.Errorf("no default color table for %s", m)
	}
	return t, nil
}
