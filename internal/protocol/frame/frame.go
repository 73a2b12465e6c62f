package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Size is the fixed wire size of every request and response frame.
	Size = 4096
	// HeaderLen covers kind (1), reserved (3) and length (4).
	HeaderLen = 8
	// PayloadCapacity is the number of payload bytes a frame can carry.
	PayloadCapacity = Size - HeaderLen

	kindOffset   = 0
	lengthOffset = 4
)

// ByteOrder is the wire order of the length field. It is part of the wire
// contract: both endpoints must agree regardless of host order.
var ByteOrder = binary.LittleEndian

var (
	ErrShortFrame      = errors.New("frame: short frame")
	ErrMalformedFrame  = errors.New("frame: malformed frame")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrWouldOverflow   = errors.New("frame: append would overflow payload")
)

// Frame is one complete wire message. Kind is the command code on requests
// and the status code on responses.
type Frame struct {
	Kind   byte
	Length uint32
	Data   [PayloadCapacity]byte
}

// Encode builds the 4096-byte wire form of kind and payload.
func Encode(kind byte, payload []byte) ([]byte, error) {
	if len(payload) > PayloadCapacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), PayloadCapacity)
	}
	buf := make([]byte, Size)
	buf[kindOffset] = kind
	ByteOrder.PutUint32(buf[lengthOffset:HeaderLen], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

// Decode parses a 4096-byte wire frame. The embedded length is validated
// before any payload byte is trusted.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := f.UnmarshalBinary(raw); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// UnmarshalBinary decodes raw into f in place. Reserved bytes are ignored.
func (f *Frame) UnmarshalBinary(raw []byte) error {
	if len(raw) != Size {
		return fmt.Errorf("%w: got %d bytes want %d", ErrShortFrame, len(raw), Size)
	}
	n := ByteOrder.Uint32(raw[lengthOffset:HeaderLen])
	if n > PayloadCapacity {
		return fmt.Errorf("%w: length %d exceeds capacity %d", ErrMalformedFrame, n, PayloadCapacity)
	}
	f.Kind = raw[kindOffset]
	f.Length = n
	copy(f.Data[:], raw[HeaderLen:])
	return nil
}

// MarshalBinary returns the 4096-byte wire form of f. Padding past Length is
// zeroed so stale bytes from a previous payload never leak onto the wire.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if f.Length > PayloadCapacity {
		return nil, fmt.Errorf("%w: length %d", ErrPayloadTooLarge, f.Length)
	}
	return Encode(f.Kind, f.Data[:f.Length])
}

// ReadFrame reads exactly one frame from r into f.
func ReadFrame(r io.Reader, f *Frame) error {
	var raw [Size]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrShortFrame, err)
		}
		return err
	}
	return f.UnmarshalBinary(raw[:])
}

// WriteFrame writes exactly one frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	raw, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	return nil
}

// Reset clears the payload and sets the kind byte.
func (f *Frame) Reset(kind byte) {
	f.Kind = kind
	f.Length = 0
}

// Payload returns the meaningful payload bytes. The slice aliases f.
func (f *Frame) Payload() []byte {
	return f.Data[:f.Length]
}

// Remaining reports how many bytes can still be appended.
func (f *Frame) Remaining() int {
	return PayloadCapacity - int(f.Length)
}

// SetPayload replaces the payload.
func (f *Frame) SetPayload(p []byte) error {
	if len(p) > PayloadCapacity {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(p), PayloadCapacity)
	}
	f.Length = uint32(copy(f.Data[:], p))
	return nil
}

// Append adds p to the payload, or returns ErrWouldOverflow and leaves the
// frame unchanged.
func (f *Frame) Append(p []byte) error {
	if len(p) > f.Remaining() {
		return fmt.Errorf("%w: need %d have %d", ErrWouldOverflow, len(p), f.Remaining())
	}
	copy(f.Data[f.Length:], p)
	f.Length += uint32(len(p))
	return nil
}

func (f *Frame) AppendString(s string) error {
	if len(s) > f.Remaining() {
		return fmt.Errorf("%w: need %d have %d", ErrWouldOverflow, len(s), f.Remaining())
	}
	copy(f.Data[f.Length:], s)
	f.Length += uint32(len(s))
	return nil
}

func (f *Frame) Appendf(format string, args ...any) error {
	return f.AppendString(fmt.Sprintf(format, args...))
}

// SetText replaces the payload with s, truncated to capacity. Used for
// human-readable error responses where a clipped message beats no message.
func (f *Frame) SetText(s string) {
	if len(s) > PayloadCapacity {
		s = s[:PayloadCapacity]
	}
	f.Length = uint32(copy(f.Data[:], s))
}
