package archive2

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// ElevationTolerance is the largest departure, in degrees, of a radial's
// elevation from its sweep's running mean before a new sweep is started.
// It absorbs antenna wobble while staying below the 0.4 degree minimum
// spacing between VCP tilts.
const ElevationTolerance = 0.25

// sweepBuilder clusters radials into sweeps in arrival order.
type sweepBuilder struct {
	sweeps     []domain.Sweep
	current    *domain.Sweep
	elevations []float64
	sum        float64
}

func (b *sweepBuilder) add(r *radialRecord) {
	if b.needsNewSweep(r) {
		b.flush()
		b.current = &domain.Sweep{Number: r.elevationNumber}
	}
	b.current.Radials = append(b.current.Radials, r.toRadial())
	for m, d := range r.moments {
		if d != nil {
			b.current.Moments = b.current.Moments.Add(domain.Moment(m))
		}
	}
	b.elevations = append(b.elevations, r.elevation)
	b.sum += r.elevation
}

func (b *sweepBuilder) needsNewSweep(r *radialRecord) bool {
	if b.current == nil {
		return true
	}
	if len(b.current.Radials) == 0 {
		return false
	}
	if r.startsElevation() || r.elevationNumber != b.current.Number {
		return true
	}
	mean := b.sum / float64(len(b.elevations))
	return math.Abs(r.elevation-mean) > ElevationTolerance
}

func (b *sweepBuilder) flush() {
	if b.current == nil || len(b.current.Radials) == 0 {
		return
	}
	b.current.Elevation = stat.Mean(b.elevations, nil)
	b.sweeps = append(b.sweeps, *b.current)
	b.current = nil
	b.elevations = b.elevations[:0]
	b.sum = 0
}

// finish flushes the open sweep and returns all sweeps.
func (b *sweepBuilder) finish() []domain.Sweep {
	b.flush()
	return b.sweeps
}
