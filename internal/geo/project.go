package geo

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// ProjectedGate is one gate placed on the earth.
type ProjectedGate struct {
	Lat    float64
	Lon    float64
	Height float64
	Gate   domain.Gate
}

// ProjectedSweep holds one moment of one sweep in geographic space.
//
// Points is row-major: the gate g of radial r is Points[r*Gates+g]. Radials
// keep the sweep's arrival order. Radials shorter than the longest one, and
// radials that did not carry the moment, are padded with GateNoData gates
// positioned along the radial at the sweep's reference gate geometry.
type ProjectedSweep struct {
	Moment  domain.Moment
	Radials int
	Gates   int
	Points  []ProjectedGate
}

// At returns the gate g of radial r.
func (p *ProjectedSweep) At(r, g int) *ProjectedGate {
	return &p.Points[r*p.Gates+g]
}

// ProjectSweep places every gate of moment m in the sweep. Callers check the
// sweep's moment set first; a missing moment yields an empty projection.
func ProjectSweep(site domain.RadarSite, sweep *domain.Sweep, m domain.Moment) ProjectedSweep {
	out := ProjectedSweep{Moment: m, Radials: len(sweep.Radials), Gates: sweep.MaxGates(m)}
	if out.Gates == 0 {
		out.Radials = 0
		return out
	}
	first, spacing := referenceGeometry(sweep, m, out.Gates)

	out.Points = make([]ProjectedGate, out.Radials*out.Gates)
	for ri := range sweep.Radials {
		rad := &sweep.Radials[ri]
		data := rad.Data(m)
		sinE, cosE := math.Sincos(rad.Elevation * deg)
		sinA, cosA := math.Sincos(domain.NormalizeAzimuth(rad.Azimuth) * deg)

		row := out.Points[ri*out.Gates : (ri+1)*out.Gates]
		for gi := range row {
			rangeM := first + float64(gi)*spacing
			gate := domain.Gate{Kind: domain.GateNoData}
			if data != nil && gi < len(data.Gates) {
				rangeM = data.RangeOf(gi)
				gate = data.Gates[gi]
			}
			lat, lon := destination(site.Latitude, site.Longitude, sinA, cosA, groundRange(rangeM, sinE, cosE))
			row[gi] = ProjectedGate{
				Lat:    lat,
				Lon:    lon,
				Height: beamHeight(rangeM, sinE) + site.Elevation,
				Gate:   gate,
			}
		}
	}
	return out
}

// referenceGeometry picks the gate layout of the first radial that reaches
// the full gate count.
func referenceGeometry(sweep *domain.Sweep, m domain.Moment, gates int) (first, spacing float64) {
	for i := range sweep.Radials {
		if d := sweep.Radials[i].Data(m); d != nil && len(d.Gates) == gates {
			return d.FirstGateRange, d.GateSpacing
		}
	}
	return 0, 0
}

// Values returns the measured values of the projection in row-major order
// and whether each gate carries one.
func (p *ProjectedSweep) Values() ([]float32, []bool) {
	vals := make([]float32, len(p.Points))
	ok := make([]bool, len(p.Points))
	for i := range p.Points {
		if p.Points[i].Gate.IsValue() {
			vals[i], ok[i] = p.Points[i].Gate.Value, true
		}
	}
	return vals, ok
}

// Extent returns the bounding box of gates whose value is at least threshold. The
// boolean is false when no gate qualifies.
func (p *ProjectedSweep) Extent(threshold float32) (domain.Extent, bool) {
	var lats, lons []float64
	for i := range p.Points {
		g := &p.Points[i]
		if g.Gate.IsValue() && g.Gate.Value >= threshold {
			lats = append(lats, g.Lat)
			lons = append(lons, g.Lon)
		}
	}
	if len(lats) == 0 {
		return domain.Extent{}, false
	}
	return domain.Extent{
		MinLat: floats.Min(lats),
		MinLon: floats.Min(lons),
		MaxLat: floats.Max(lats),
		MaxLon: floats.Max(lons),
	}, true
}
