package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
	"github.com/schilltyler/capstone-0/internal/testutil/testlog"
)

type fakeTransport struct {
	in        []frame.Frame
	out       []frame.Frame
	failWrite error
}

func (f *fakeTransport) queue(cmd protocol.Command, payload []byte) {
	var fr frame.Frame
	fr.Reset(byte(cmd))
	_ = fr.SetPayload(payload)
	f.in = append(f.in, fr)
}

func (f *fakeTransport) ReadFrame(dst *frame.Frame) error {
	if len(f.in) == 0 {
		return protocol.TransportError("read frame", io.EOF)
	}
	*dst = f.in[0]
	f.in = f.in[1:]
	return nil
}

func (f *fakeTransport) WriteFrame(src *frame.Frame) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	f.out = append(f.out, *src)
	return nil
}

func (f *fakeTransport) Pending() (bool, error) { return len(f.in) > 0, nil }

func (f *fakeTransport) PeekKind() (byte, error) {
	if len(f.in) == 0 {
		return 0, protocol.TransportError("peek", io.EOF)
	}
	return f.in[0].Kind, nil
}

func (f *fakeTransport) Discard() error {
	f.in = f.in[1:]
	return nil
}

// ReadFrame on the recorded output lets Collect consume what a Writer sent.
type replay struct{ frames []frame.Frame }

func (r *replay) ReadFrame(dst *frame.Frame) error {
	if len(r.frames) == 0 {
		return protocol.TransportError("read frame", io.EOF)
	}
	*dst = r.frames[0]
	r.frames = r.frames[1:]
	return nil
}

func newWriter() (*Writer, *fakeTransport) {
	ft := &fakeTransport{}
	var req, resp frame.Frame
	return NewWriter(ft, &req, &resp), ft
}

func assertChunks(t *testing.T, got []frame.Frame, kinds []protocol.Status, lengths []uint32) {
	t.Helper()
	if len(got) != len(kinds) {
		t.Fatalf("expected %d frames, got %d", len(kinds), len(got))
	}
	for i := range got {
		if protocol.Status(got[i].Kind) != kinds[i] || got[i].Length != lengths[i] {
			t.Fatalf("frame %d: got %s/%d want %s/%d", i, protocol.Status(got[i].Kind), got[i].Length, kinds[i], lengths[i])
		}
	}
}

func TestWriterExactMultipleEndsWithEmptyOK(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	src := bytes.Repeat([]byte{0x5A}, 2*frame.PayloadCapacity)
	if _, err := io.Copy(w, bytes.NewReader(src)); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	assertChunks(t, ft.out,
		[]protocol.Status{protocol.StatusMoreData, protocol.StatusMoreData, protocol.StatusOK},
		[]uint32{frame.PayloadCapacity, frame.PayloadCapacity, 0})
}

func TestWriterEmptySource(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	if err := w.Finish(nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
	assertChunks(t, ft.out, []protocol.Status{protocol.StatusOK}, []uint32{0})
}

func TestWriterPartialTail(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	src := make([]byte, frame.PayloadCapacity+2)
	for i := range src {
		src[i] = byte(i)
	}
	for off := 0; off < len(src); off += 1000 {
		end := min(off+1000, len(src))
		if _, err := w.Write(src[off:end]); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	assertChunks(t, ft.out,
		[]protocol.Status{protocol.StatusMoreData, protocol.StatusOK},
		[]uint32{frame.PayloadCapacity, 2})

	var got bytes.Buffer
	if err := Collect(&replay{frames: ft.out}, func(p []byte) error {
		got.Write(p)
		return nil
	}); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !bytes.Equal(got.Bytes(), src) {
		t.Fatalf("collected bytes differ")
	}
}

func TestFinishAbortsAfterMidStreamFailure(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	if _, err := w.Write(make([]byte, 3*frame.PayloadCapacity+10)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Finish(errors.New("read: input/output error")); err != nil {
		t.Fatalf("finish: %v", err)
	}
	assertChunks(t, ft.out,
		[]protocol.Status{protocol.StatusMoreData, protocol.StatusMoreData, protocol.StatusMoreData, protocol.StatusError},
		[]uint32{frame.PayloadCapacity, frame.PayloadCapacity, frame.PayloadCapacity, uint32(len("read: input/output error"))})

	err := Collect(&replay{frames: ft.out}, nil)
	if !errors.Is(err, ErrRemoteError) {
		t.Fatalf("expected ErrRemoteError, got %v", err)
	}
}

func TestWriteAfterTerminalFails(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	_ = w.Close()
	if _, err := w.Write([]byte("x")); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if err := w.Finish(errors.New("late")); err != nil {
		t.Fatalf("finish after close: %v", err)
	}
	if len(ft.out) != 1 {
		t.Fatalf("finish sent an extra frame: %d", len(ft.out))
	}
}

func TestCheckpointConsumesCancel(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	if err := w.Checkpoint(); err != nil {
		t.Fatalf("idle checkpoint: %v", err)
	}
	ft.queue(protocol.CmdCancel, nil)
	err := w.Checkpoint()
	if !errors.Is(err, protocol.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if len(ft.in) != 0 {
		t.Fatalf("cancel frame not consumed")
	}
	if err := w.Finish(err); err != nil {
		t.Fatalf("finish: %v", err)
	}
	last := ft.out[len(ft.out)-1]
	if protocol.Status(last.Kind) != protocol.StatusError || string(last.Payload()) != "cancelled" {
		t.Fatalf("unexpected terminal %s %q", protocol.Status(last.Kind), last.Payload())
	}
}

func TestCheckpointLeavesOtherCommandQueued(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	ft.queue(protocol.CmdPrintWorkingDir, nil)
	err := w.Checkpoint()
	if !errors.Is(err, protocol.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if len(ft.in) != 1 {
		t.Fatalf("interrupting frame was consumed")
	}
}

func TestAckRequiresEmptyBuffer(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	if err := w.Ack(protocol.StatusOK, []byte("ready")); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if w.Terminated() {
		t.Fatalf("ack terminated the stream")
	}
	_, _ = w.WriteString("x")
	if err := w.Ack(protocol.StatusMoreData, nil); !errors.Is(err, ErrAckPending) {
		t.Fatalf("expected ErrAckPending, got %v", err)
	}
	if len(ft.out) != 1 || string(ft.out[0].Payload()) != "ready" {
		t.Fatalf("unexpected acks %v", len(ft.out))
	}
}

func TestTransportFailureIsSticky(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	ft.failWrite = protocol.TransportError("write frame", io.ErrClosedPipe)
	if _, err := w.Write(make([]byte, frame.PayloadCapacity)); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected write failure, got %v", err)
	}
	if err := w.Finish(nil); !protocol.IsFatal(err) {
		t.Fatalf("expected fatal finish, got %v", err)
	}
}

func TestFlushSendsPartialChunk(t *testing.T) {
	testlog.Start(t)
	w, ft := newWriter()
	_, _ = w.WriteString("line\n")
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
	_ = w.Abort(protocol.ErrCancelled)
	assertChunks(t, ft.out,
		[]protocol.Status{protocol.StatusMoreData, protocol.StatusError},
		[]uint32{5, uint32(len("cancelled"))})
}
