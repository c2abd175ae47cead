package archive2

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

const (
	msg31HeaderSize    = 32
	momentBlockHeader  = 28
	volumeBlockSize    = 44
	volumeBlockVCPOffs = 40
)

// parseMsg31 decodes a generic-format digital radar data message. msg starts
// at the 16-byte message header.
func parseMsg31(msg []byte) (radialRecord, error) {
	body := msg[messageHeaderSize:]
	if len(body) < msg31HeaderSize {
		return radialRecord{}, fmt.Errorf("radial header needs %d bytes, have %d", msg31HeaderSize, len(body))
	}
	be := binary.BigEndian
	r := radialRecord{
		station:         strings.TrimRight(string(body[0:4]), " \x00"),
		time:            julianTime(be.Uint16(body[8:10]), be.Uint32(body[4:8])),
		azimuth:         float64(math.Float32frombits(be.Uint32(body[12:16]))),
		status:          body[21],
		elevationNumber: int(body[22]),
		elevation:       float64(math.Float32frombits(be.Uint32(body[24:28]))),
	}

	count := int(be.Uint16(body[30:32]))
	if msg31HeaderSize+4*count > len(body) {
		return radialRecord{}, fmt.Errorf("%d block pointers overrun %d-byte body", count, len(body))
	}
	for i := 0; i < count; i++ {
		ptr := int(be.Uint32(body[msg31HeaderSize+4*i:]))
		if ptr == 0 {
			continue
		}
		if ptr+4 > len(body) {
			return radialRecord{}, fmt.Errorf("block %d pointer %d outside %d-byte body", i, ptr, len(body))
		}
		kind, name := body[ptr], string(body[ptr+1:ptr+4])
		switch {
		case kind == 'R' && name == "VOL":
			if ptr+volumeBlockSize > len(body) {
				return radialRecord{}, fmt.Errorf("volume block at %d overruns body", ptr)
			}
			r.vcp = int(be.Uint16(body[ptr+volumeBlockVCPOffs:]))
		case kind == 'D':
			m, ok := domain.ParseMoment(name)
			if !ok {
				continue // CFP and future moments
			}
			data, err := parseMomentBlock(body[ptr:])
			if err != nil {
				return radialRecord{}, fmt.Errorf("%s block: %w", m, err)
			}
			if data != nil {
				r.moments[m] = data
			}
		}
	}
	return r, nil
}

// parseMomentBlock decodes a generic data moment block. It returns nil data
// for blocks that declare no gates or a zero scale.
func parseMomentBlock(b []byte) (*domain.MomentData, error) {
	if len(b) < momentBlockHeader {
		return nil, fmt.Errorf("header needs %d bytes, have %d", momentBlockHeader, len(b))
	}
	be := binary.BigEndian
	gates := int(be.Uint16(b[8:10]))
	first := int16(be.Uint16(b[10:12]))
	spacing := be.Uint16(b[12:14])
	wordBits := int(b[19])
	scale := math.Float32frombits(be.Uint32(b[20:24]))
	offset := math.Float32frombits(be.Uint32(b[24:28]))

	if wordBits != 8 && wordBits != 16 {
		return nil, fmt.Errorf("unsupported word size %d", wordBits)
	}
	need := momentBlockHeader + gates*wordBits/8
	if need > len(b) {
		return nil, fmt.Errorf("%d gates overrun block (%d of %d bytes)", gates, need, len(b))
	}
	if gates == 0 || scale == 0 {
		return nil, nil
	}
	return &domain.MomentData{
		FirstGateRange: float64(first),
		GateSpacing:    float64(spacing),
		Gates:          decodeGates(b[momentBlockHeader:need], gates, wordBits, scale, offset),
	}, nil
}
