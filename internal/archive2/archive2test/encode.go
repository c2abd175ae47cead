// Package archive2test builds Archive II byte streams for tests and fixture
// generation.
package archive2test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/dsnet/compress/bzip2"
)

const (
	ctmSize        = 12
	headerSize     = 16
	fixedFrameSize = 2432
	// fixedMessageHalfwords is the size field of every fixed-frame message.
	fixedMessageHalfwords = 1208
	fixedBodySize         = 2400
)

// JulianDate converts t to a NEXRAD modified Julian date and milliseconds
// past midnight.
func JulianDate(t time.Time) (uint16, uint32) {
	t = t.UTC()
	days := t.Unix() / 86400
	ms := (t.Unix()%86400)*1000 + int64(t.Nanosecond()/1e6)
	return uint16(days + 1), uint32(ms)
}

// CodedAngle encodes degrees as a legacy binary angle.
func CodedAngle(deg float64) uint16 {
	return uint16(math.Round(deg * 32768.0 / 180.0))
}

// VolumeHeader encodes the 24-byte volume header.
func VolumeHeader(version, station string, t time.Time) []byte {
	date, ms := JulianDate(t)
	b := make([]byte, 0, 24)
	b = append(b, fmt.Sprintf("%-8.8s.001", version)...)
	b = binary.BigEndian.AppendUint32(b, uint32(date))
	b = binary.BigEndian.AppendUint32(b, ms)
	return append(b, fmt.Sprintf("%-4.4s", station)...)
}

func messageHeader(halfwords uint16, typ uint8, seq uint16, t time.Time) []byte {
	date, ms := JulianDate(t)
	b := make([]byte, 0, ctmSize+headerSize)
	b = append(b, make([]byte, ctmSize)...)
	b = binary.BigEndian.AppendUint16(b, halfwords)
	b = append(b, 8, typ)
	b = binary.BigEndian.AppendUint16(b, seq)
	b = binary.BigEndian.AppendUint16(b, date)
	b = binary.BigEndian.AppendUint32(b, ms)
	b = binary.BigEndian.AppendUint16(b, 1)
	return binary.BigEndian.AppendUint16(b, 1)
}

// FixedFrame encodes a 2432-byte frame of the given type. body is zero
// padded; it must not exceed 2400 bytes.
func FixedFrame(typ uint8, seq uint16, t time.Time, body []byte) []byte {
	b := messageHeader(fixedMessageHalfwords, typ, seq, t)
	b = append(b, body...)
	return append(b, make([]byte, fixedFrameSize-len(b))...)
}

// MomentBlock is one generic data moment of a type 31 radial.
type MomentBlock struct {
	Name      string
	FirstGate int16
	Spacing   uint16
	WordBits  uint8
	Scale     float32
	Offset    float32
	Raw       []uint16
}

// Radial31 describes one type 31 radial.
type Radial31 struct {
	Station         string
	Time            time.Time
	AzimuthNumber   uint16
	Azimuth         float32
	AzimuthSpacing  float64
	Status          uint8
	ElevationNumber uint8
	Elevation       float32
	VCP             uint16
	Latitude        float32
	Longitude       float32
	Height          int16
	Moments         []MomentBlock
}

func appendF32(b []byte, f float32) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(f))
}

// Frame encodes the radial as a complete type 31 frame.
func (r Radial31) Frame(seq uint16) []byte {
	be := binary.BigEndian

	vol := []byte("RVOL")
	vol = be.AppendUint16(vol, 44)
	vol = append(vol, 2, 0)
	vol = appendF32(vol, r.Latitude)
	vol = appendF32(vol, r.Longitude)
	vol = be.AppendUint16(vol, uint16(r.Height))
	vol = be.AppendUint16(vol, 20)
	for _, f := range []float32{-33, 700, 700, 0, 60} {
		vol = appendF32(vol, f)
	}
	vol = be.AppendUint16(vol, r.VCP)
	vol = be.AppendUint16(vol, 0)

	elv := []byte("RELV")
	elv = be.AppendUint16(elv, 12)
	elv = be.AppendUint16(elv, uint16(0xfff6)) // -10
	elv = appendF32(elv, -33)

	rad := []byte("RRAD")
	rad = be.AppendUint16(rad, 28)
	rad = be.AppendUint16(rad, 4660)
	rad = appendF32(rad, -80)
	rad = appendF32(rad, -80)
	rad = be.AppendUint16(rad, 2800)
	rad = be.AppendUint16(rad, 0)
	rad = appendF32(rad, -33)
	rad = appendF32(rad, -33)

	blocks := [][]byte{vol, elv, rad}
	for _, m := range r.Moments {
		blk := append([]byte{'D'}, fmt.Sprintf("%-3.3s", m.Name)...)
		blk = be.AppendUint32(blk, 0)
		blk = be.AppendUint16(blk, uint16(len(m.Raw)))
		blk = be.AppendUint16(blk, uint16(m.FirstGate))
		blk = be.AppendUint16(blk, m.Spacing)
		blk = be.AppendUint16(blk, 0)
		blk = be.AppendUint16(blk, 16)
		blk = append(blk, 0, m.WordBits)
		blk = appendF32(blk, m.Scale)
		blk = appendF32(blk, m.Offset)
		for _, v := range m.Raw {
			if m.WordBits == 16 {
				blk = be.AppendUint16(blk, v)
			} else {
				blk = append(blk, byte(v))
			}
		}
		if len(blk)%2 == 1 {
			blk = append(blk, 0)
		}
		blocks = append(blocks, blk)
	}

	headerLen := 32 + 4*len(blocks)
	bodyLen := headerLen
	for _, blk := range blocks {
		bodyLen += len(blk)
	}

	spacingCode := uint8(2)
	if r.AzimuthSpacing == 0.5 {
		spacingCode = 1
	}
	date, ms := JulianDate(r.Time)
	body := make([]byte, 0, bodyLen)
	body = append(body, fmt.Sprintf("%-4.4s", r.Station)...)
	body = be.AppendUint32(body, ms)
	body = be.AppendUint16(body, date)
	body = be.AppendUint16(body, r.AzimuthNumber)
	body = appendF32(body, r.Azimuth)
	body = append(body, 0, 0)
	body = be.AppendUint16(body, uint16(bodyLen))
	body = append(body, spacingCode, r.Status, r.ElevationNumber, 0)
	body = appendF32(body, r.Elevation)
	body = append(body, 0, 0)
	body = be.AppendUint16(body, uint16(len(blocks)))
	ptr := headerLen
	for _, blk := range blocks {
		body = be.AppendUint32(body, uint32(ptr))
		ptr += len(blk)
	}
	for _, blk := range blocks {
		body = append(body, blk...)
	}

	frame := messageHeader(uint16((headerSize+len(body))/2), 31, seq, r.Time)
	return append(frame, body...)
}

// Radial1 describes one legacy type 1 radial.
type Radial1 struct {
	Time            time.Time
	AzimuthNumber   uint16
	Azimuth         float64
	Status          uint16
	Elevation       float64
	ElevationNumber uint16
	VCP             uint16
	// Resolution is the velocity resolution code: 2 for 0.5 m/s, 4 for 1 m/s.
	Resolution uint16
	RefFirst   int16
	RefSpacing int16
	DopFirst   int16
	DopSpacing int16
	Ref        []byte
	Vel        []byte
	Width      []byte
}

// Frame encodes the radial as a 2432-byte type 1 frame.
func (r Radial1) Frame(seq uint16) []byte {
	be := binary.BigEndian
	date, ms := JulianDate(r.Time)

	ptr := uint16(100)
	var refPtr, velPtr, swPtr uint16
	if len(r.Ref) > 0 {
		refPtr = ptr
		ptr += uint16(len(r.Ref))
	}
	if len(r.Vel) > 0 {
		velPtr = ptr
		ptr += uint16(len(r.Vel))
		swPtr = ptr
	}

	body := make([]byte, 0, fixedBodySize)
	body = be.AppendUint32(body, ms)
	body = be.AppendUint16(body, date)
	body = be.AppendUint16(body, 1170)
	body = be.AppendUint16(body, CodedAngle(r.Azimuth))
	body = be.AppendUint16(body, r.AzimuthNumber)
	body = be.AppendUint16(body, r.Status)
	body = be.AppendUint16(body, CodedAngle(r.Elevation))
	body = be.AppendUint16(body, r.ElevationNumber)
	for _, v := range []int16{r.RefFirst, r.DopFirst, r.RefSpacing, r.DopSpacing} {
		body = be.AppendUint16(body, uint16(v))
	}
	body = be.AppendUint16(body, uint16(len(r.Ref)))
	body = be.AppendUint16(body, uint16(len(r.Vel)))
	body = be.AppendUint16(body, 1)
	body = appendF32(body, -33)
	body = be.AppendUint16(body, refPtr)
	body = be.AppendUint16(body, velPtr)
	body = be.AppendUint16(body, swPtr)
	body = be.AppendUint16(body, r.Resolution)
	body = be.AppendUint16(body, r.VCP)
	body = append(body, make([]byte, 84-len(body))...)
	body = append(body, r.Ref...)
	body = append(body, r.Vel...)
	if len(r.Vel) > 0 {
		body = append(body, r.Width...)
	}
	return FixedFrame(1, seq, r.Time, body)
}

// Records wraps each group of frames in a bzip2-compressed LDM record and
// prefixes the control words. The last record's control word is negative.
func Records(records [][]byte) ([]byte, error) {
	var out bytes.Buffer
	for i, rec := range records {
		var buf bytes.Buffer
		zw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(rec); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		n := int32(buf.Len())
		if i == len(records)-1 {
			n = -n
		}
		_ = binary.Write(&out, binary.BigEndian, n)
		out.Write(buf.Bytes())
	}
	return out.Bytes(), nil
}
