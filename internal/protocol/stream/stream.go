// Package stream implements the chunked transfer convention: zero or more
// more-data frames followed by exactly one terminal ok or error frame.
package stream

import (
	"errors"
	"fmt"

	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
)

var (
	ErrStreamClosed = errors.New("stream: closed")
	ErrRemoteError  = errors.New("stream: remote error")
	ErrAckPending   = errors.New("stream: ack with buffered output")
)

// Transport is the frame-level connection a Writer drives.
type Transport interface {
	ReadFrame(f *frame.Frame) error
	WriteFrame(f *frame.Frame) error
	Pending() (bool, error)
	PeekKind() (byte, error)
	Discard() error
}

// Writer produces one chunked response. It buffers into the session
// response frame and emits it as more-data whenever it fills up.
type Writer struct {
	t    Transport
	req  *frame.Frame
	resp *frame.Frame

	chunks     int
	written    int64
	terminated bool
	err        error
}

// NewWriter starts a stream on t using the session's request and response
// frames.
func NewWriter(t Transport, req, resp *frame.Frame) *Writer {
	resp.Reset(byte(protocol.StatusMoreData))
	return &Writer{t: t, req: req, resp: resp}
}

// Write buffers p. Every full frame is sent as more-data immediately, so a
// source of exactly k*4088 bytes ends with an empty terminal frame.
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.usable(); err != nil {
		return 0, err
	}
	n := 0
	for len(p) > 0 {
		c := copy(w.resp.Data[w.resp.Length:], p)
		w.resp.Length += uint32(c)
		p = p[c:]
		n += c
		if w.resp.Remaining() == 0 {
			if err := w.emit(protocol.StatusMoreData); err != nil {
				return n, err
			}
		}
	}
	w.written += int64(n)
	return n, nil
}

func (w *Writer) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Printf formats into the stream.
func (w *Writer) Printf(format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

// Flush sends buffered bytes as a partial more-data frame. Only live
// streams flush; bulk transfers let Write fill whole chunks.
func (w *Writer) Flush() error {
	if err := w.usable(); err != nil {
		return err
	}
	if w.resp.Length == 0 {
		return nil
	}
	return w.emit(protocol.StatusMoreData)
}

// Close sends the terminal ok frame with whatever is buffered.
func (w *Writer) Close() error {
	if err := w.usable(); err != nil {
		return err
	}
	err := w.emit(protocol.StatusOK)
	w.terminated = true
	return err
}

// CloseWith appends text and then closes the stream.
func (w *Writer) CloseWith(text string) error {
	if _, err := w.WriteString(text); err != nil {
		return err
	}
	return w.Close()
}

// Abort discards buffered output and sends a terminal error frame carrying
// the reason for cause.
func (w *Writer) Abort(cause error) error {
	if err := w.usable(); err != nil {
		return err
	}
	w.resp.SetText(protocol.Reason(cause))
	err := w.emit(protocol.StatusError)
	w.terminated = true
	return err
}

// Ack sends a non-terminal exchange frame, such as the readiness reply and
// per-chunk acknowledgements of an inbound transfer.
func (w *Writer) Ack(status protocol.Status, payload []byte) error {
	if err := w.usable(); err != nil {
		return err
	}
	if w.resp.Length > 0 {
		return ErrAckPending
	}
	if err := w.resp.SetPayload(payload); err != nil {
		return err
	}
	return w.emit(status)
}

// Recv reads the next request frame of an inbound exchange.
func (w *Writer) Recv() (*frame.Frame, error) {
	if err := w.usable(); err != nil {
		return nil, err
	}
	if err := w.t.ReadFrame(w.req); err != nil {
		if protocol.IsFatal(err) {
			w.err = err
		}
		return nil, err
	}
	return w.req, nil
}

// Checkpoint is called between units of work. It returns ErrCancelled
// after consuming a pending cancel frame, ErrInterrupted when a different
// command is waiting (that frame stays unread), and nil otherwise.
func (w *Writer) Checkpoint() error {
	if err := w.usable(); err != nil {
		return err
	}
	pending, err := w.t.Pending()
	if err != nil {
		w.err = err
		return err
	}
	if !pending {
		return nil
	}
	kind, err := w.t.PeekKind()
	if err != nil {
		w.err = err
		return err
	}
	if protocol.Command(kind) != protocol.CmdCancel {
		return fmt.Errorf("%w: %s waiting", protocol.ErrInterrupted, protocol.Command(kind))
	}
	if err := w.t.Discard(); err != nil {
		w.err = err
		return err
	}
	return protocol.ErrCancelled
}

// Finish guarantees a terminal frame once a handler returns: Close on nil,
// Abort on a non-fatal error. Fatal errors are returned unchanged.
func (w *Writer) Finish(handlerErr error) error {
	if w.err != nil {
		return w.err
	}
	if handlerErr != nil && protocol.IsFatal(handlerErr) {
		return handlerErr
	}
	if w.terminated {
		return nil
	}
	if handlerErr == nil {
		return w.Close()
	}
	return w.Abort(handlerErr)
}

// Err returns the transport error that broke the stream, if any.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) Terminated() bool {
	return w.terminated
}

// Chunks reports how many frames have been sent.
func (w *Writer) Chunks() int {
	return w.chunks
}

// Written reports payload bytes accepted by Write.
func (w *Writer) Written() int64 {
	return w.written
}

func (w *Writer) usable() error {
	if w.err != nil {
		return w.err
	}
	if w.terminated {
		return ErrStreamClosed
	}
	return nil
}

func (w *Writer) emit(status protocol.Status) error {
	w.resp.Kind = byte(status)
	if err := w.t.WriteFrame(w.resp); err != nil {
		w.err = err
		return err
	}
	w.chunks++
	w.resp.Reset(byte(protocol.StatusMoreData))
	return nil
}
