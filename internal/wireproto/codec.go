package wireproto

import (
	"encoding/binary"
	"fmt"
)

// Frame header: a 2-byte big-endian MessageType tag followed by a 4-byte
// big-endian payload length. Grounded in the teacher's vsock framing
// (internal/firecracker's VsockMessage send/receive pair), adapted from a
// JSON payload with a 4-byte length prefix to a typed protobuf payload with
// an explicit type tag, so a reader never has to sniff the payload to know
// how to parse it.
const headerSize = 2 + 4

// MaxFrameSize bounds a single frame's payload so a corrupt or hostile
// length field can't make the decoder buffer unbounded memory.
const MaxFrameSize = 16 << 20

// EncodeFrame serializes msg as a complete frame: header plus payload.
func EncodeFrame(msg Message) ([]byte, error) {
	payload, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("wireproto: frame payload too large (%d bytes)", len(payload))
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(msg.Type()))
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// Decoder accumulates bytes arriving from the transport in arbitrary
// chunks and yields complete messages as they become available. It holds
// no reference to the transport itself — the caller owns reads and writes
// entirely; the Decoder only ever appends to and trims its own buffer.
// This mirrors the VM's requirement to not perform I/O itself (§4.1): the
// same push/pull shape works whether bytes arrive over a vsock stream, a
// pipe, or a test harness feeding a byte slice straight from memory.
//
// Not safe for concurrent use; a Decoder belongs to exactly one invocation.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder ready to accept bytes via PushBytes.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// PushBytes appends newly received transport bytes to the decode buffer.
func (d *Decoder) PushBytes(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next returns the next complete message in the buffer, if any. ok is
// false when fewer bytes than a full frame are currently buffered — this
// is not an error, the caller should PushBytes more and try again. err is
// non-nil only for a malformed frame (oversized length or undecodable
// payload), which is always a fatal protocol violation.
func (d *Decoder) Next() (msg Message, ok bool, err error) {
	if len(d.buf) < headerSize {
		return nil, false, nil
	}
	tag := MessageType(binary.BigEndian.Uint16(d.buf[0:2]))
	length := binary.BigEndian.Uint32(d.buf[2:6])
	if length > MaxFrameSize {
		return nil, false, fmt.Errorf("wireproto: frame length %d exceeds max %d", length, MaxFrameSize)
	}
	total := headerSize + int(length)
	if len(d.buf) < total {
		return nil, false, nil
	}
	payload := d.buf[headerSize:total]
	msg, err = Decode(tag, payload)
	if err != nil {
		return nil, false, fmt.Errorf("wireproto: decoding frame type %s: %w", tag, err)
	}
	remaining := len(d.buf) - total
	if remaining > 0 {
		copy(d.buf, d.buf[total:])
	}
	d.buf = d.buf[:remaining]
	return msg, true, nil
}

// Pending reports how many bytes are currently buffered and not yet
// resolved into a complete message. Useful for diagnostics and tests.
func (d *Decoder) Pending() int {
	return len(d.buf)
}
