package archive2

import (
	"time"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// Radial status codes shared by message types 1 and 31.
const (
	statusStartElevation     = 0
	statusIntermediate       = 1
	statusEndElevation       = 2
	statusStartVolume        = 3
	statusEndVolume          = 4
	statusStartLastElevation = 5
)

// radialRecord is the format-independent form of one radial message. Both
// message parsers produce it; the sweep builder consumes it.
type radialRecord struct {
	station         string
	vcp             int
	azimuth         float64
	elevation       float64
	elevationNumber int
	status          uint8
	time            time.Time
	moments         [domain.MomentCount]*domain.MomentData
}

func (r *radialRecord) startsElevation() bool {
	switch r.status {
	case statusStartElevation, statusStartVolume, statusStartLastElevation:
		return true
	}
	return false
}

func (r *radialRecord) endsVolume() bool {
	return r.status == statusEndVolume
}

func (r *radialRecord) toRadial() domain.Radial {
	return domain.Radial{
		Azimuth:   domain.NormalizeAzimuth(r.azimuth),
		Elevation: r.elevation,
		Time:      r.time,
		Moments:   r.moments,
	}
}

// decodeGates unpacks raw gate words with value = (raw - offset) / scale.
// Codes 0 and 1 are the below-threshold and range-folded sentinels.
func decodeGates(raw []byte, n, wordBits int, scale, offset float32) []domain.Gate {
	gates := make([]domain.Gate, n)
	for i := range gates {
		var v uint16
		if wordBits == 16 {
			v = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
		} else {
			v = uint16(raw[i])
		}
		switch v {
		case 0:
			gates[i] = domain.Gate{Kind: domain.GateBelowThreshold}
		case 1:
			gates[i] = domain.Gate{Kind: domain.GateRangeFolded}
		default:
			gates[i] = domain.ValueGate((float32(v) - offset) / scale)
		}
	}
	return gates
}
