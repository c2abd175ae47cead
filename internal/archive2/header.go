package archive2

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
)

const (
	volumeHeaderSize  = 24
	ctmSize           = 12
	messageHeaderSize = 16
	// fixedFrameSize is the on-disk size of every message other than type 31.
	fixedFrameSize = 2432
)

// Message types.
const (
	msgPadding          = 0
	msgDigitalRadarData = 1
	msgGenericRadarData = 31
)

// metadataTypes are recognized message types that carry no radial data.
var metadataTypes = map[uint8]bool{
	2:  true, // RDA status
	3:  true, // performance/maintenance
	5:  true, // volume coverage pattern
	7:  true, // VCP (alternate)
	13: true, // clutter filter bypass map
	15: true, // clutter filter map
	18: true, // RDA adaptation data
	32: true, // RDA status (build 18+)
	33: true, // RDA log data
}

// VolumeHeader is the 24-byte record that opens every Archive II file.
type VolumeHeader struct {
	// Version is the tape file name, e.g. "AR2V0006".
	Version string
	Station string
	Start   time.Time
}

func parseVolumeHeader(b []byte) (VolumeHeader, bool) {
	if !bytes.HasPrefix(b, []byte("AR2V")) && !bytes.HasPrefix(b, []byte("ARCHIVE2")) {
		return VolumeHeader{}, false
	}
	date := binary.BigEndian.Uint32(b[12:16])
	ms := binary.BigEndian.Uint32(b[16:20])
	h := VolumeHeader{
		Version: strings.TrimRight(string(b[0:8]), ". \x00"),
		Station: strings.TrimRight(string(b[20:24]), " \x00"),
	}
	if date > 0 {
		h.Start = julianTime(date, ms)
	}
	return h, true
}

// messageHeader is the 16-byte header that follows each 12-byte CTM prefix.
type messageHeader struct {
	// Size is the message length in halfwords, counted from the start of
	// this header.
	Size    uint16
	Channel uint8
	Type    uint8
	Seq     uint16
	Date    uint16
	Millis  uint32
}

func parseMessageHeader(b []byte) messageHeader {
	return messageHeader{
		Size:    binary.BigEndian.Uint16(b[0:2]),
		Channel: b[2],
		Type:    b[3],
		Seq:     binary.BigEndian.Uint16(b[4:6]),
		Date:    binary.BigEndian.Uint16(b[6:8]),
		Millis:  binary.BigEndian.Uint32(b[8:12]),
	}
}

// julianTime converts a NEXRAD modified Julian date (day 1 is 1970-01-01)
// and milliseconds past midnight to UTC.
func julianTime[D uint16 | uint32](date D, ms uint32) time.Time {
	return time.Unix(0, 0).UTC().
		AddDate(0, 0, int(date)-1).
		Add(time.Duration(ms) * time.Millisecond)
}
