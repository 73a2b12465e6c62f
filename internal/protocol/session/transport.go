package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
)

// Conn is the subset of net.Conn the handshake needs.
type Conn interface {
	io.Reader
	io.Writer
	SetDeadline(t time.Time) error
}

// Direction labels a frame for FrameHook.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// FrameHook observes every frame that crosses the transport.
type FrameHook func(dir Direction, kind byte, length uint32)

// Transport moves whole frames over one connection. It is not safe for
// concurrent use; a session owns exactly one.
type Transport struct {
	conn net.Conn
	r    *bufio.Reader
	raw  syscall.RawConn
	cfg  Config
	hook FrameHook
}

// NewTransport wraps an already authenticated connection.
func NewTransport(conn net.Conn, cfg Config) *Transport {
	t := &Transport{
		conn: conn,
		r:    bufio.NewReaderSize(conn, 2*frame.Size),
		cfg:  cfg.WithDefaults(),
	}
	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			t.raw = raw
		}
	}
	return t
}

// Dial connects to address and performs the client handshake. A rejected
// handshake closes the connection before any frame is read.
func Dial(ctx context.Context, address string, cfg Config) (*Transport, error) {
	cfg = cfg.WithDefaults()
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, protocol.TransportError("dial", err)
	}
	if err := ClientHandshake(conn, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewTransport(conn, cfg), nil
}

// Accept performs the controller side of the handshake on conn.
func Accept(conn net.Conn, cfg Config) (*Transport, error) {
	if err := AcceptHandshake(conn, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewTransport(conn, cfg), nil
}

// SetFrameHook installs fn for every subsequent frame.
func (t *Transport) SetFrameHook(fn FrameHook) {
	t.hook = fn
}

func (t *Transport) Config() Config {
	return t.cfg
}

func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

// ReadFrame blocks until one whole frame has been read into f. A length
// field over capacity is a protocol error; the stream remains aligned since
// the full frame was consumed. Everything else is a transport error.
func (t *Transport) ReadFrame(f *frame.Frame) error {
	if t.cfg.IdleTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.IdleTimeout))
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
	if err := frame.ReadFrame(t.r, f); err != nil {
		if errors.Is(err, frame.ErrMalformedFrame) {
			return protocol.ProtocolError("read frame", err)
		}
		return protocol.TransportError("read frame", err)
	}
	if t.hook != nil {
		t.hook(DirectionIn, f.Kind, f.Length)
	}
	return nil
}

// WriteFrame writes exactly one frame.
func (t *Transport) WriteFrame(f *frame.Frame) error {
	if t.cfg.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if err := frame.WriteFrame(t.conn, f); err != nil {
		if errors.Is(err, frame.ErrPayloadTooLarge) {
			return protocol.HandlerError("write frame", err)
		}
		return protocol.TransportError("write frame", err)
	}
	if t.hook != nil {
		t.hook(DirectionOut, f.Kind, f.Length)
	}
	return nil
}

// Pending reports, without blocking, whether the peer has sent anything
// that has not been read yet.
func (t *Transport) Pending() (bool, error) {
	if t.r.Buffered() > 0 {
		return true, nil
	}
	if t.raw != nil {
		ready, ok, err := pollReadable(t.raw)
		if ok {
			if err != nil {
				return false, protocol.TransportError("poll", err)
			}
			return ready, nil
		}
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.CancelPollWait))
	_, err := t.r.Peek(1)
	_ = t.conn.SetReadDeadline(time.Time{})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false, nil
	}
	return false, protocol.TransportError("peek", err)
}

// PeekKind blocks until a whole frame is buffered and returns its kind
// without consuming it. Callers use it after Pending reported true.
func (t *Transport) PeekKind() (byte, error) {
	raw, err := t.r.Peek(frame.Size)
	if err != nil {
		return 0, protocol.TransportError("peek frame", err)
	}
	return raw[0], nil
}

// Discard drops the next buffered frame.
func (t *Transport) Discard() error {
	if _, err := t.r.Discard(frame.Size); err != nil {
		return protocol.TransportError("discard frame", err)
	}
	if t.hook != nil {
		t.hook(DirectionIn, byte(protocol.CmdCancel), 0)
	}
	return nil
}
