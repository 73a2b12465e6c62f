package commands

import (
	"context"

	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

// Kind selects how the dispatcher drives a handler.
type Kind uint8

const (
	KindSingle Kind = iota + 1
	KindStream
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindStream:
		return "stream"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Request is one decoded request frame. Payload aliases the session request
// frame and is only valid until the next frame is read.
type Request struct {
	Command protocol.Command
	Payload []byte
}

// Path returns the payload up to the first NUL.
func (r Request) Path() string {
	return protocol.PathArg(r.Payload)
}

// Args splits the payload into NUL separated arguments.
func (r Request) Args() []string {
	return protocol.SplitArgs(r.Payload)
}

// ArgsN returns exactly n positional arguments; absent ones are empty.
func (r Request) ArgsN(n int) []string {
	return protocol.PositionalArgs(r.Payload, n)
}

// Fields accepts NUL or whitespace separated arguments.
func (r Request) Fields() []string {
	return protocol.FieldArgs(r.Payload)
}

// SingleFunc writes its result into resp. A returned error replaces resp
// with an error frame.
type SingleFunc func(ctx context.Context, req Request, resp *frame.Frame) error

// StreamFunc writes a chunked response through w.
type StreamFunc func(ctx context.Context, req Request, w *stream.Writer) error

// Handler is one registry entry.
type Handler struct {
	Command protocol.Command
	Kind    Kind
	Usage   string
	Single  SingleFunc
	Stream  StreamFunc
}

// Info is the listing form of a Handler.
type Info struct {
	Command protocol.Command
	Name    string
	Kind    Kind
	Usage   string
}
