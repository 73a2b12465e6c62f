package session

import (
	"fmt"
	"io"
	"time"

	"github.com/schilltyler/capstone-0/internal/protocol"
)

// ClientHandshake performs the agent side of the handshake: write the token,
// read the reply, and accept only when its first byte is the accepted marker.
// The deadline is cleared again on success.
func ClientHandshake(conn Conn, cfg Config) error {
	cfg = cfg.WithDefaults()
	_ = conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))

	if err := writeFull(conn, cfg.Token[:]); err != nil {
		return protocol.TransportError("handshake write token", err)
	}
	var reply [1]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return protocol.TransportError("handshake read reply", err)
	}
	if reply[0] != cfg.AcceptedMarker {
		return protocol.HandshakeError("handshake", fmt.Errorf("%w: marker=0x%02x", protocol.ErrHandshakeRejected, reply[0]))
	}

	_ = conn.SetDeadline(time.Time{})
	return nil
}

// AcceptHandshake performs the controller side: read the token, check it
// with cfg.Validator (default: cfg.Token), answer with the accepted or
// rejected marker.
func AcceptHandshake(conn Conn, cfg Config) error {
	cfg = cfg.WithDefaults()
	_ = conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))

	var token [TokenLen]byte
	if _, err := io.ReadFull(conn, token[:]); err != nil {
		return protocol.TransportError("handshake read token", err)
	}
	if err := cfg.validator().Validate(token[:]); err != nil {
		_ = writeFull(conn, []byte{RejectedMarker})
		return protocol.HandshakeError("handshake", fmt.Errorf("%w: token=%x: %v", protocol.ErrHandshakeRejected, token[:], err))
	}
	if err := writeFull(conn, []byte{cfg.AcceptedMarker}); err != nil {
		return protocol.TransportError("handshake write marker", err)
	}

	_ = conn.SetDeadline(time.Time{})
	return nil
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
