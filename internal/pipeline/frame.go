package pipeline

import (
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/storm-radar-service/internal/colormap"
	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/geo"
)

// EchoThreshold is the reflectivity in dBZ counted as precipitation.
const EchoThreshold = 20

// Frame is the processed form of one scan: its summary plus the projected
// and colorized lowest reflectivity sweep.
type Frame struct {
	Summary domain.ScanSummary
	// Reflectivity is nil when the scan carried no reflectivity.
	Reflectivity *geo.ProjectedSweep
	// Colors holds one color per projected gate, row-major like the sweep.
	Colors []color.RGBA
}

func buildFrame(site domain.RadarSite, meta domain.ScanMeta, size int, vol *domain.VolumeScan, decodeErr error, table *colormap.ColorTable) *Frame {
	station := vol.Station
	if station == "" {
		station = meta.Station
	}
	f := &Frame{Summary: domain.ScanSummary{
		Station:     station,
		ScanTime:    meta.Time,
		Variant:     meta.Variant,
		VCP:         vol.VCP,
		SizeBytes:   size,
		Sweeps:      domain.Summarize(vol),
		Unsupported: len(vol.Unsupported),
		ProcessedAt: domain.Now(),
	}}
	if decodeErr != nil {
		f.Summary.Partial = true
		f.Summary.DecodeError = decodeErr.Error()
	}

	i := vol.LowestSweep(domain.Reflectivity)
	if i < 0 {
		return f
	}
	proj := geo.ProjectSweep(site, &vol.Sweeps[i], domain.Reflectivity)
	f.Reflectivity = &proj
	f.Colors = colormap.Colorize(&proj, table)
	f.Summary.Reflectivity = summarizeReflectivity(vol.Sweeps[i].Elevation, &proj)
	return f
}

func summarizeReflectivity(elevation float64, p *geo.ProjectedSweep) *domain.ReflectivitySummary {
	out := &domain.ReflectivitySummary{Elevation: elevation}
	vals, ok := p.Values()
	measured := make([]float64, 0, len(vals))
	echoes := 0
	for i, v := range vals {
		if !ok[i] {
			continue
		}
		measured = append(measured, float64(v))
		if v >= EchoThreshold {
			echoes++
		}
	}
	if len(measured) == 0 {
		return out
	}
	out.MaxDBZ = floats.Max(measured)
	out.MeanDBZ = stat.Mean(measured, nil)
	out.Coverage = float64(echoes) / float64(len(vals))
	if ext, found := p.Extent(EchoThreshold); found {
		out.Extent = ext
	}
	return out
}
