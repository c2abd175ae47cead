// Command inspect decodes a local Archive II volume scan, prints its sweep
// structure, and runs integrity checks over the decoded, projected, and
// colorized data.
//
// Usage:
//
//	go run ./cmd/inspect -file KTLX20240315_120021_V06 [-station KTLX] [-moment REF]
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/storm-radar-service/internal/archive2"
	"github.com/couchcryptid/storm-radar-service/internal/colormap"
	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/geo"
	"github.com/couchcryptid/storm-radar-service/internal/station"
)

// clusterTolerance is the widest elevation spread accepted within a sweep.
const clusterTolerance = 0.25

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	file := flag.String("file", "", "path to an Archive II file, optionally gzip-wrapped")
	stationID := flag.String("station", "", "radar site for projection (default: from the volume header)")
	momentCode := flag.String("moment", "REF", "moment to project and colorize")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}
	if code := run(*file, *stationID, *momentCode); code != 0 {
		os.Exit(code)
	}
}

func run(path, stationID, momentCode string) int {
	moment, ok := domain.ParseMoment(momentCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: unknown moment %q\n", momentCode)
		return 1
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read: %v\n", err)
		return 1
	}
	data, err := archive2.Inflate(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fmt.Println("=== Archive II Inspection ===")
	fmt.Println()

	decode := &phase{name: "Decode"}
	vol, err := archive2.Decode(data)
	if err != nil {
		decode.errorf("%v", err)
		var de *archive2.DecodeError
		if errors.As(err, &de) && de.Kind == archive2.KindTruncated {
			decode.errorf("partial scan: %d sweeps recovered", sweepCount(vol))
		}
	}
	if vol == nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	printVolume(path, len(raw), len(data), vol)

	phases := []*phase{
		decode,
		validateSweeps(vol),
	}
	if stationID == "" {
		stationID = vol.Station
	}
	if site, ok := station.Lookup(stationID); ok {
		phases = append(phases, validateProjection(site, vol, moment)...)
	} else {
		p := &phase{name: "Projection"}
		p.errorf("unknown radar site %q", stationID)
		phases = append(phases, p)
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		fmt.Println("\nInspection FAILED.")
		return 1
	}
	fmt.Println("\nAll checks passed.")
	return 0
}

func sweepCount(v *domain.VolumeScan) int {
	if v == nil {
		return 0
	}
	return len(v.Sweeps)
}

func printVolume(path string, rawSize, size int, v *domain.VolumeScan) {
	fmt.Printf("File:     %s (%d bytes, %d inflated)\n", path, rawSize, size)
	fmt.Printf("Station:  %s\n", v.Station)
	fmt.Printf("Start:    %s\n", v.Start.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("VCP:      %d\n", v.VCP)
	fmt.Printf("Radials:  %d\n", v.RadialCount())
	if n := len(v.Unsupported); n > 0 {
		fmt.Printf("Skipped:  %d unsupported messages\n", n)
	}
	fmt.Println()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SWEEP\tCUT\tELEV\tRADIALS\tMOMENTS")
	for i := range v.Sweeps {
		s := &v.Sweeps[i]
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%d\t%s\n", i, s.Number, s.Elevation, len(s.Radials), s.Moments)
	}
	_ = tw.Flush()
}

func validateSweeps(v *domain.VolumeScan) *phase {
	p := &phase{name: "Sweep structure"}
	if len(v.Sweeps) == 0 {
		p.errorf("no sweeps decoded")
	}
	for i := range v.Sweeps {
		s := &v.Sweeps[i]
		if len(s.Radials) == 0 {
			p.errorf("sweep %d: no radials", i)
		}
		if s.Moments == 0 {
			p.errorf("sweep %d: no moments", i)
		}
		for j := range s.Radials {
			r := &s.Radials[j]
			if r.Azimuth < 0 || r.Azimuth >= 360 {
				p.errorf("sweep %d radial %d: azimuth %.3f outside [0, 360)", i, j, r.Azimuth)
			}
			if math.Abs(r.Elevation-s.Elevation) > clusterTolerance {
				p.errorf("sweep %d radial %d: elevation %.3f strays from %.3f", i, j, r.Elevation, s.Elevation)
			}
			for m, d := range r.Moments {
				if d != nil && d.GateSpacing <= 0 {
					p.errorf("sweep %d radial %d: %s gate spacing %.1f", i, j, domain.Moment(m), d.GateSpacing)
				}
			}
		}
	}
	return p
}

func validateProjection(site domain.RadarSite, v *domain.VolumeScan, m domain.Moment) []*phase {
	proj := &phase{name: "Projection (" + m.String() + ")"}
	colors := &phase{name: "Color mapping (" + m.String() + ")"}

	i := v.LowestSweep(m)
	if i < 0 {
		proj.errorf("no sweep carries %s", m)
		return []*phase{proj}
	}
	p := geo.ProjectSweep(site, &v.Sweeps[i], m)

	heights := make([]float64, 0, len(p.Points))
	for r := 0; r < p.Radials; r++ {
		prev := math.Inf(-1)
		for g := 0; g < p.Gates; g++ {
			pt := p.At(r, g)
			if pt.Lat < -90 || pt.Lat > 90 || pt.Lon < -180 || pt.Lon >= 180 {
				proj.errorf("radial %d gate %d: position %.5f,%.5f out of range", r, g, pt.Lat, pt.Lon)
			}
			if pt.Height < prev {
				proj.errorf("radial %d gate %d: beam height decreases", r, g)
			}
			prev = pt.Height
			heights = append(heights, pt.Height)
		}
	}

	fmt.Println()
	fmt.Printf("%s sweep %d at %.2f deg: %d radials x %d gates\n", m, i, v.Sweeps[i].Elevation, p.Radials, p.Gates)
	if len(heights) > 0 {
		fmt.Printf("Beam height: mean %.0f m, max %.0f m\n", stat.Mean(heights, nil), floats.Max(heights))
	}
	table, err := colormap.Default(m)
	if err != nil {
		colors.errorf("load color table: %v", err)
		return []*phase{proj, colors}
	}
	if ext, ok := p.Extent(table.Min()); ok {
		fmt.Printf("Extent:      %.4f,%.4f to %.4f,%.4f\n", ext.MinLat, ext.MinLon, ext.MaxLat, ext.MaxLon)
	}

	if err := table.Validate(); err != nil {
		colors.errorf("color table: %v", err)
	}
	counts := map[domain.GateKind]int{}
	for k, c := range colormap.Colorize(&p, table) {
		g := p.Points[k].Gate
		counts[g.Kind]++
		var want color.RGBA
		switch g.Kind {
		case domain.GateBelowThreshold:
			want = table.BelowThreshold
		case domain.GateRangeFolded:
			want = table.RangeFolded
		case domain.GateNoData:
			want = table.NoData
		default:
			if math.IsNaN(float64(g.Value)) {
				continue
			}
			if c == table.BelowThreshold || c == table.RangeFolded || c == table.NoData {
				colors.errorf("gate %d: value %.2f mapped to a sentinel color", k, g.Value)
			}
			continue
		}
		if c != want {
			colors.errorf("gate %d: %s gate colored %s", k, g.Kind, colormap.Hex(c))
		}
	}
	fmt.Printf("Gates:       %d value, %d below threshold, %d range folded, %d no data\n",
		counts[domain.GateValue], counts[domain.GateBelowThreshold], counts[domain.GateRangeFolded], counts[domain.GateNoData])
	return []*phase{proj, colors}
}
