package stream

import (
	"fmt"

	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
)

// FrameReader is the receiving side of a stream.
type FrameReader interface {
	ReadFrame(f *frame.Frame) error
}

// Collect reads frames until the first terminal status, passing every
// payload (terminal ok included) to fn. A terminal error frame is returned
// as ErrRemoteError carrying the remote text.
func Collect(r FrameReader, fn func(payload []byte) error) error {
	var f frame.Frame
	for {
		if err := r.ReadFrame(&f); err != nil {
			return err
		}
		status := protocol.Status(f.Kind)
		switch status {
		case protocol.StatusMoreData, protocol.StatusOK:
			if fn != nil {
				if err := fn(f.Payload()); err != nil {
					return err
				}
			}
			if status == protocol.StatusOK {
				return nil
			}
		case protocol.StatusError:
			return fmt.Errorf("%w: %s", ErrRemoteError, f.Payload())
		default:
			return protocol.ProtocolError("collect", fmt.Errorf("%w: status 0x%02x", protocol.ErrUnexpectedFrame, f.Kind))
		}
	}
}
