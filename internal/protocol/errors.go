package protocol

import (
	"errors"
	"fmt"
)

// FrameErrorKind is the category of envelope validation failure
type FrameErrorKind int

const (
	// ErrBadMagic indicates the bytes do not start with 0x55AA55AA
	ErrBadMagic FrameErrorKind = iota
	// ErrChecksumMismatch indicates checksum != type ^ 0xFFFFFFFF
	ErrChecksumMismatch
	// ErrLengthOverflow indicates a declared payload larger than MaxPayloadSize
	ErrLengthOverflow
	// ErrTruncated indicates a valid prefix; more bytes are needed
	ErrTruncated
)

// String returns a human-readable name for the error kind
func (k FrameErrorKind) String() string {
	switch k {
	case ErrBadMagic:
		return "BadMagic"
	case ErrChecksumMismatch:
		return "ChecksumMismatch"
	case ErrLengthOverflow:
		return "LengthOverflow"
	case ErrTruncated:
		return "Truncated"
	default:
		return fmt.Sprintf("FrameErrorKind(%d)", k)
	}
}

// FrameError describes why a byte sequence is not (yet) a frame.
type FrameError struct {
	Kind   FrameErrorKind
	Detail string
	Need   int // bytes still missing, for ErrTruncated
}

// Error implements the error interface
func (e *FrameError) Error() string {
	if e.Kind == ErrTruncated {
		return fmt.Sprintf("%s: need %d more bytes", e.Kind, e.Need)
	}
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// IsTruncated reports whether err only signals that more input is needed.
func IsTruncated(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.Kind == ErrTruncated
}

// IsFrameError reports whether err is an envelope validation failure other
// than truncation.
func IsFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.Kind != ErrTruncated
}

// PayloadError is returned when a well-formed envelope carries a payload that
// does not match any known layout for its (type, direction, length).
type PayloadError struct {
	Type      MessageType
	Direction Direction
	Length    int
	Err       error
}

// Error implements the error interface
func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bad %s payload for %s (%d bytes): %v", e.Direction, e.Type, e.Length, e.Err)
	}
	return fmt.Sprintf("bad %s payload for %s (%d bytes)", e.Direction, e.Type, e.Length)
}

// Unwrap returns the underlying error for error chain inspection
func (e *PayloadError) Unwrap() error {
	return e.Err
}
