// Package protocol implements the adapter's framed binary protocol.
//
// Every message is a 16-byte little-endian envelope followed by a payload:
//   - Magic: 0x55AA55AA
//   - Payload length: at most 1,048,576 bytes
//   - Type code
//   - Checksum: type XOR 0xFFFFFFFF
//
// # Dual-purpose types
//
// Several type codes mean different things depending on who sent them and how
// long the payload is. An empty 0x0C sent by the host asks for a keyframe; a
// non-empty 0x0C from the adapter is a pairing PIN. An inbound audio frame of
// exactly 13 bytes carries a command byte, 16 bytes a volume ramp, anything
// else raw PCM. Parse therefore dispatches on (type, direction, length):
//
//	frame, n, err := protocol.Decode(buf)
//	if protocol.IsTruncated(err) {
//	    // wait for more bytes
//	}
//	msg, err := protocol.Parse(frame, protocol.Inbound)
//
// # Classification
//
// Classify tags each inbound message Control, StatusNotification or
// SessionAffecting. Only Unplugged and a phase value of zero are
// SessionAffecting; connectivity notices such as "wifi disconnected" are
// StatusNotification and never end a session.
//
// # Construction
//
// Build* functions return ready-to-write frames for every host request:
//
//	f := protocol.BuildTouch(protocol.TouchDown, 0.5, 0.25)
//	data, err := f.Encode()
package protocol
