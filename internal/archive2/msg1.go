package archive2

import (
	"encoding/binary"
	"fmt"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// Legacy moments use fixed linear encodings. Velocity resolution code 2 is
// 0.5 m/s per count, code 4 is 1 m/s per count.
var (
	legacyReflectivity  = linear{scale: 2, offset: 66}
	legacyVelocityHalf  = linear{scale: 2, offset: 129}
	legacyVelocityWhole = linear{scale: 1, offset: 129}
	legacySpectrumWidth = linear{scale: 2, offset: 129}
)

type linear struct {
	scale, offset float32
}

const msg1FieldsSize = 46

// codedAngle converts a legacy binary angle to degrees.
func codedAngle(v uint16) float64 {
	return float64(v) * 180.0 / 32768.0
}

// parseMsg1 decodes a legacy digital radar data message. msg starts at the
// 16-byte message header; data pointers are relative to that header.
func parseMsg1(msg []byte) (radialRecord, error) {
	body := msg[messageHeaderSize:]
	if len(body) < msg1FieldsSize {
		return radialRecord{}, fmt.Errorf("radial header needs %d bytes, have %d", msg1FieldsSize, len(body))
	}
	be := binary.BigEndian
	r := radialRecord{
		time:            julianTime(be.Uint16(body[4:6]), be.Uint32(body[0:4])),
		azimuth:         codedAngle(be.Uint16(body[8:10])),
		status:          uint8(be.Uint16(body[12:14])),
		elevation:       codedAngle(be.Uint16(body[14:16])),
		elevationNumber: int(be.Uint16(body[16:18])),
		vcp:             int(be.Uint16(body[44:46])),
	}

	refFirst := float64(int16(be.Uint16(body[18:20])))
	dopFirst := float64(int16(be.Uint16(body[20:22])))
	refSpacing := float64(int16(be.Uint16(body[22:24])))
	dopSpacing := float64(int16(be.Uint16(body[24:26])))
	refGates := int(be.Uint16(body[26:28]))
	dopGates := int(be.Uint16(body[28:30]))

	velocity := legacyVelocityHalf
	if be.Uint16(body[42:44]) == 4 {
		velocity = legacyVelocityWhole
	}

	fields := []struct {
		moment  domain.Moment
		ptr     int
		gates   int
		first   float64
		spacing float64
		enc     linear
	}{
		{domain.Reflectivity, int(be.Uint16(body[36:38])), refGates, refFirst, refSpacing, legacyReflectivity},
		{domain.Velocity, int(be.Uint16(body[38:40])), dopGates, dopFirst, dopSpacing, velocity},
		{domain.SpectrumWidth, int(be.Uint16(body[40:42])), dopGates, dopFirst, dopSpacing, legacySpectrumWidth},
	}
	for _, f := range fields {
		if f.ptr == 0 || f.gates == 0 {
			continue
		}
		if f.ptr+f.gates > len(msg) {
			return radialRecord{}, fmt.Errorf("%s: %d gates at %d overrun %d-byte message", f.moment, f.gates, f.ptr, len(msg))
		}
		r.moments[f.moment] = &domain.MomentData{
			FirstGateRange: f.first,
			GateSpacing:    f.spacing,
			Gates:          decodeGates(msg[f.ptr:f.ptr+f.gates], f.gates, 8, f.enc.scale, f.enc.offset),
		}
	}
	return r, nil
}
