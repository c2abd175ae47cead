package archive2

import (
	"errors"
	"fmt"
)

// ErrorKind classifies decode failures.
type ErrorKind uint8

const (
	// KindTruncated means the input ended before the data its headers
	// declared, or before the end-of-volume radial.
	KindTruncated ErrorKind = iota
	// KindCorruptCompression means a compressed record could not be inflated.
	KindCorruptCompression
	// KindUnsupportedMessage is informational: a message with an unknown
	// type tag was skipped. It is recorded on the scan, never returned.
	KindUnsupportedMessage
	// KindMalformed means a complete message contained internally
	// inconsistent offsets or sizes.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindCorruptCompression:
		return "corrupt compression"
	case KindUnsupportedMessage:
		return "unsupported message type"
	case KindMalformed:
		return "malformed message"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a *DecodeError of the same kind.
var (
	ErrTruncated          = errors.New("archive2: truncated")
	ErrCorruptCompression = errors.New("archive2: corrupt compression")
	ErrMalformed          = errors.New("archive2: malformed message")
)

// DecodeError reports where decoding stopped.
//
// Record is the zero-based LDM record index, or -1 when the input is not
// record-framed. Message is the index of the last complete message, -1 if no
// message was parsed. Offset is a byte offset: into the input for record and
// header failures, into the decompressed message stream otherwise.
type DecodeError struct {
	Kind    ErrorKind
	Record  int
	Message int
	Offset  int64
	Err     error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("archive2: %s at offset %d (last complete message %d", e.Kind, e.Offset, e.Message)
	if e.Record >= 0 {
		msg += fmt.Sprintf(", record %d", e.Record)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrTruncated:
		return e.Kind == KindTruncated
	case ErrCorruptCompression:
		return e.Kind == KindCorruptCompression
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}
