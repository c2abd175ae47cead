// Package archive2 decodes NEXRAD Archive II volume scans.
//
// An Archive II file is a 24-byte volume header followed by LDM records. Each
// record is a 4-byte big-endian control word holding the record length
// (negative on the last record) and a bzip2 stream. Older files skip the
// record framing and carry message frames directly after the header. Inside,
// every message is a 12-byte CTM prefix, a 16-byte message header, and a
// body. Type 31 messages are variable length; every other type occupies a
// fixed 2432-byte frame.
//
// Decode is a pure function of its input and is safe for concurrent use.
package archive2

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// maxRecordSize bounds the inflated size of a single LDM record.
const maxRecordSize = 64 << 20

var bzipMagic = []byte("BZh")

// Decode parses a complete Archive II volume scan. Any outer gzip wrapper
// must already be removed (see Inflate).
//
// On a truncated or corrupt stream Decode returns a *DecodeError together
// with a partial VolumeScan holding every radial parsed before the failure.
// The scan is nil only when the volume header itself is unusable.
func Decode(data []byte) (*domain.VolumeScan, error) {
	if len(data) < volumeHeaderSize {
		return nil, &DecodeError{Kind: KindTruncated, Record: -1, Message: -1, Offset: int64(len(data)),
			Err: errors.New("volume header incomplete")}
	}
	hdr, ok := parseVolumeHeader(data[:volumeHeaderSize])
	if !ok {
		return nil, &DecodeError{Kind: KindMalformed, Record: -1, Message: -1,
			Err: fmt.Errorf("unrecognized volume header %q", data[:8])}
	}

	d := &decoder{
		scan: &domain.VolumeScan{Station: hdr.Station, Start: hdr.Start},
	}
	payload := data[volumeHeaderSize:]
	var err error
	if isRecordFramed(payload) {
		err = d.decodeRecords(payload)
	} else {
		err = d.decodeStream(payload, -1)
	}
	if err == nil && !d.endOfVolume {
		err = d.truncated(-1, errors.New("stream ended before end of volume"))
	}
	return d.result(), err
}

// isRecordFramed reports whether the payload starts with a control word
// followed by a bzip2 stream.
func isRecordFramed(p []byte) bool {
	return len(p) >= 4+len(bzipMagic) && bytes.Equal(p[4:4+len(bzipMagic)], bzipMagic)
}

type decoder struct {
	scan   *domain.VolumeScan
	sweeps sweepBuilder
	carry  []byte
	// skip is frame padding still owed by a message that ended at a record
	// boundary.
	skip int

	// messages counts complete messages; streamOffset is the byte position
	// in the decompressed message stream.
	messages     int
	streamOffset int64
	endOfVolume  bool
}

func (d *decoder) result() *domain.VolumeScan {
	d.scan.Sweeps = d.sweeps.finish()
	return d.scan
}

func (d *decoder) truncated(record int, err error) *DecodeError {
	return &DecodeError{Kind: KindTruncated, Record: record, Message: d.messages - 1,
		Offset: d.streamOffset, Err: err}
}

// decodeRecords walks the LDM records, inflating each before parsing the
// message frames it holds. A frame split across records is reassembled.
func (d *decoder) decodeRecords(p []byte) error {
	pos := 0
	for record := 0; pos < len(p); record++ {
		if len(p)-pos < 4 {
			return d.truncated(record, errors.New("control word incomplete"))
		}
		ctl := int32(binary.BigEndian.Uint32(p[pos:]))
		last := ctl < 0
		size := int(ctl)
		if last {
			size = -size
		}
		start := pos + 4
		if size > len(p)-start {
			de := d.truncated(record, fmt.Errorf("record declares %d bytes, %d remain", size, len(p)-start))
			de.Offset = int64(volumeHeaderSize + pos)
			return de
		}
		block := p[start : start+size]
		pos = start + size

		if bytes.HasPrefix(block, bzipMagic) {
			inflated, err := inflateRecord(block)
			if err != nil {
				return &DecodeError{Kind: KindCorruptCompression, Record: record, Message: d.messages - 1,
					Offset: int64(volumeHeaderSize + start), Err: err}
			}
			block = inflated
		}
		if err := d.decodeStream(block, record); err != nil {
			return err
		}
		if last {
			break
		}
	}
	if len(d.carry) > 0 {
		return d.truncated(-1, fmt.Errorf("%d trailing bytes do not form a message", len(d.carry)))
	}
	return nil
}

func inflateRecord(block []byte) ([]byte, error) {
	r := io.LimitReader(bzip2.NewReader(bytes.NewReader(block)), maxRecordSize+1)
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(out) > maxRecordSize {
		return nil, fmt.Errorf("record inflates beyond %d bytes", maxRecordSize)
	}
	return out, nil
}

// decodeStream parses message frames from buf, prefixed by any partial frame
// left over from the previous record. record is -1 for unframed input.
func (d *decoder) decodeStream(buf []byte, record int) error {
	if d.skip > 0 {
		n := min(d.skip, len(buf))
		d.skip -= n
		d.streamOffset += int64(n)
		buf = buf[n:]
	}
	if len(d.carry) > 0 {
		buf = append(d.carry, buf...)
		d.carry = nil
	}
	for len(buf) > 0 {
		if len(buf) < ctmSize+messageHeaderSize {
			d.carry = append([]byte(nil), buf...)
			break
		}
		h := parseMessageHeader(buf[ctmSize:])
		if h.Type == msgPadding && h.Size == 0 {
			buf = d.consumeFrame(buf, fixedFrameSize)
			continue
		}

		msgLen := int(h.Size) * 2
		if msgLen < messageHeaderSize {
			return &DecodeError{Kind: KindMalformed, Record: record, Message: d.messages - 1,
				Offset: d.streamOffset, Err: fmt.Errorf("message size %d halfwords", h.Size)}
		}
		need := ctmSize + msgLen
		frame := need
		if h.Type != msgGenericRadarData {
			if need > fixedFrameSize {
				return &DecodeError{Kind: KindMalformed, Record: record, Message: d.messages - 1,
					Offset: d.streamOffset, Err: fmt.Errorf("type %d message of %d bytes exceeds frame", h.Type, msgLen)}
			}
			frame = fixedFrameSize
		}
		if len(buf) < need {
			d.carry = append([]byte(nil), buf...)
			break
		}

		if err := d.dispatch(h, buf[ctmSize:need]); err != nil {
			return &DecodeError{Kind: KindMalformed, Record: record, Message: d.messages - 1,
				Offset: d.streamOffset, Err: fmt.Errorf("message %d type %d: %w", d.messages, h.Type, err)}
		}
		d.messages++
		buf = d.consumeFrame(buf, frame)
	}
	if record < 0 && len(d.carry) > 0 {
		return d.truncated(record, fmt.Errorf("message at offset %d incomplete", d.streamOffset))
	}
	return nil
}

// consumeFrame drops a frame of the given length from buf. Padding past the
// end of buf is skipped at the start of the next record.
func (d *decoder) consumeFrame(buf []byte, frame int) []byte {
	n := min(frame, len(buf))
	d.skip = frame - n
	d.streamOffset += int64(n)
	return buf[n:]
}

// dispatch routes one complete message, starting at its message header, to
// the parser for its type.
func (d *decoder) dispatch(h messageHeader, msg []byte) error {
	var (
		r   radialRecord
		err error
	)
	switch {
	case h.Type == msgGenericRadarData:
		r, err = parseMsg31(msg)
	case h.Type == msgDigitalRadarData:
		r, err = parseMsg1(msg)
	case metadataTypes[h.Type]:
		return nil
	default:
		d.scan.Unsupported = append(d.scan.Unsupported, domain.SkippedMessage{
			Type: h.Type, Index: d.messages, Offset: d.streamOffset,
		})
		return nil
	}
	if err != nil {
		return err
	}
	d.accept(&r)
	return nil
}

func (d *decoder) accept(r *radialRecord) {
	if d.scan.Station == "" {
		d.scan.Station = r.station
	}
	if d.scan.VCP == 0 && r.vcp != 0 {
		d.scan.VCP = r.vcp
	}
	if d.scan.Start.IsZero() {
		d.scan.Start = r.time
	}
	d.sweeps.add(r)
	if r.endsVolume() {
		d.endOfVolume = true
	}
}
