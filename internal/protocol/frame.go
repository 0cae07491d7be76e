package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
)

// Envelope constants
const (
	Magic          uint32 = 0x55AA55AA
	HeaderSize            = 16
	MaxPayloadSize        = 1 << 20 // 1,048,576 bytes
)

// magicBytes is Magic as it appears on the wire (little-endian).
var magicBytes = []byte{0xAA, 0x55, 0xAA, 0x55}

// header is the 16-byte envelope preceding every payload.
type header struct {
	Magic    uint32 `struc:"uint32,little"`
	Length   uint32 `struc:"uint32,little"`
	Type     uint32 `struc:"uint32,little"`
	Checksum uint32 `struc:"uint32,little"`
}

// Frame is one wire message: a type code and its payload.
// Frames are treated as immutable once built.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// Checksum returns the envelope checksum for a type code.
func Checksum(t MessageType) uint32 {
	return uint32(t) ^ 0xFFFFFFFF
}

// Encode serialises the frame including its envelope.
func (f Frame) Encode() ([]byte, error) {
	return Encode(f.Type, f.Payload)
}

// String returns a debug representation of the frame
func (f Frame) String() string {
	return fmt.Sprintf("Frame{type=%s, len=%d}", f.Type, len(f.Payload))
}

// Encode builds the envelope for t and appends payload. The emitted header is
// always well-formed; oversized payloads are rejected rather than truncated.
func Encode(t MessageType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind:   ErrLengthOverflow,
			Detail: fmt.Sprintf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize),
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(payload)))
	h := &header{
		Magic:    Magic,
		Length:   uint32(len(payload)),
		Type:     uint32(t),
		Checksum: Checksum(t),
	}
	if err := struc.Pack(buf, h); err != nil {
		return nil, fmt.Errorf("failed to pack header: %w", err)
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decode parses one frame from the start of buf. It returns the frame and the
// number of bytes consumed. A *FrameError of kind ErrTruncated means buf holds
// a valid prefix and the caller must supply more bytes; any other FrameError
// means the bytes at the start of buf are not a frame.
func Decode(buf []byte) (Frame, int, error) {
	// Check the magic on whatever prefix we have so garbage is rejected
	// without waiting for a full header.
	prefix := len(buf)
	if prefix > len(magicBytes) {
		prefix = len(magicBytes)
	}
	if !bytes.Equal(buf[:prefix], magicBytes[:prefix]) {
		return Frame{}, 0, &FrameError{
			Kind:   ErrBadMagic,
			Detail: fmt.Sprintf("bad magic prefix % x", buf[:prefix]),
		}
	}

	if len(buf) < HeaderSize {
		return Frame{}, 0, &FrameError{Kind: ErrTruncated, Need: HeaderSize - len(buf)}
	}

	var h header
	if err := struc.Unpack(bytes.NewReader(buf[:HeaderSize]), &h); err != nil {
		return Frame{}, 0, fmt.Errorf("failed to unpack header: %w", err)
	}

	if h.Checksum != Checksum(MessageType(h.Type)) {
		return Frame{}, 0, &FrameError{
			Kind:   ErrChecksumMismatch,
			Detail: fmt.Sprintf("type 0x%x checksum 0x%08x (expected 0x%08x)", h.Type, h.Checksum, Checksum(MessageType(h.Type))),
		}
	}

	if h.Length > MaxPayloadSize {
		return Frame{}, 0, &FrameError{
			Kind:   ErrLengthOverflow,
			Detail: fmt.Sprintf("declared length %d exceeds %d", h.Length, MaxPayloadSize),
		}
	}

	total := HeaderSize + int(h.Length)
	if len(buf) < total {
		return Frame{}, 0, &FrameError{Kind: ErrTruncated, Need: total - len(buf)}
	}

	payload := make([]byte, h.Length)
	copy(payload, buf[HeaderSize:total])

	return Frame{Type: MessageType(h.Type), Payload: payload}, total, nil
}

// IndexMagic returns the offset of the next possible envelope start in buf at
// or after from, or -1. A trailing partial magic sequence counts as a
// candidate so that a split read is not skipped over.
func IndexMagic(buf []byte, from int) int {
	for i := from; i < len(buf); i++ {
		n := len(buf) - i
		if n > len(magicBytes) {
			n = len(magicBytes)
		}
		if bytes.Equal(buf[i:i+n], magicBytes[:n]) {
			return i
		}
	}
	return -1
}

// PeekLength returns the declared payload length of a complete header.
func PeekLength(hdr []byte) (int, bool) {
	if len(hdr) < HeaderSize {
		return 0, false
	}
	return int(binary.LittleEndian.Uint32(hdr[4:8])), true
}
