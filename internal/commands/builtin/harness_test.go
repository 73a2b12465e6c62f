package builtin

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

// fakeTransport records outbound frames and serves scripted inbound ones.
// Safe for a handler goroutine and a test goroutine.
type fakeTransport struct {
	mu  sync.Mutex
	in  []frame.Frame
	out []frame.Frame
}

func (f *fakeTransport) queue(cmd protocol.Command, payload []byte) {
	var fr frame.Frame
	fr.Reset(byte(cmd))
	_ = fr.SetPayload(payload)
	f.mu.Lock()
	f.in = append(f.in, fr)
	f.mu.Unlock()
}

func (f *fakeTransport) ReadFrame(dst *frame.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.in) == 0 {
		return protocol.TransportError("read frame", io.EOF)
	}
	*dst = f.in[0]
	f.in = f.in[1:]
	return nil
}

func (f *fakeTransport) WriteFrame(src *frame.Frame) error {
	f.mu.Lock()
	f.out = append(f.out, *src)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Pending() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.in) > 0, nil
}

func (f *fakeTransport) PeekKind() (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in[0].Kind, nil
}

func (f *fakeTransport) Discard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = f.in[1:]
	return nil
}

func (f *fakeTransport) frames() []frame.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame.Frame(nil), f.out...)
}

type harness struct {
	t   *testing.T
	reg *commands.Registry
	ft  *fakeTransport
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	reg := commands.NewRegistry()
	if err := Register(reg, opts); err != nil {
		t.Fatalf("register: %v", err)
	}
	return &harness{t: t, reg: reg, ft: &fakeTransport{}}
}

func (hs *harness) handler(cmd protocol.Command) *commands.Handler {
	hs.t.Helper()
	h, ok := hs.reg.Lookup(byte(cmd))
	if !ok {
		hs.t.Fatalf("no handler for %s", cmd)
	}
	return h
}

// single runs a single-response handler the way the dispatcher does.
func (hs *harness) single(cmd protocol.Command, payload []byte) (protocol.Status, string) {
	hs.t.Helper()
	var resp frame.Frame
	resp.Reset(byte(protocol.StatusOK))
	err := hs.handler(cmd).Single(context.Background(), commands.Request{Command: cmd, Payload: payload}, &resp)
	if err != nil {
		resp.Reset(byte(protocol.StatusError))
		resp.SetText(protocol.Reason(err))
	}
	return protocol.Status(resp.Kind), string(resp.Payload())
}

// stream runs a streaming handler and finishes the stream.
func (hs *harness) stream(cmd protocol.Command, payload []byte) ([]frame.Frame, error) {
	hs.t.Helper()
	var req, resp frame.Frame
	w := stream.NewWriter(hs.ft, &req, &resp)
	err := hs.handler(cmd).Stream(context.Background(), commands.Request{Command: cmd, Payload: payload}, w)
	if ferr := w.Finish(err); ferr != nil {
		hs.t.Fatalf("finish: %v", ferr)
	}
	if !w.Terminated() {
		hs.t.Fatalf("stream not terminated")
	}
	return hs.ft.frames(), err
}

func joined(frames []frame.Frame) []byte {
	var b bytes.Buffer
	for i := range frames {
		b.Write(frames[i].Payload())
	}
	return b.Bytes()
}

func terminal(t *testing.T, frames []frame.Frame) (protocol.Status, string) {
	t.Helper()
	if len(frames) == 0 {
		t.Fatalf("no frames sent")
	}
	last := frames[len(frames)-1]
	for i := range frames[:len(frames)-1] {
		if protocol.Status(frames[i].Kind).Terminal() && protocol.Status(frames[i].Kind) != protocol.StatusOK {
			t.Fatalf("terminal frame %d before end", i)
		}
	}
	return protocol.Status(last.Kind), string(last.Payload())
}
