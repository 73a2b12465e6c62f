package commands

import (
	"errors"
	"fmt"

	"github.com/schilltyler/capstone-0/internal/protocol"
)

var (
	ErrHandlerExists  = errors.New("commands: handler already registered")
	ErrInvalidHandler = errors.New("commands: invalid handler")
)

// Registry stores handlers by command code.
type Registry struct {
	table [256]*Handler
}

// NewRegistry creates a registry holding only the control commands.
func NewRegistry() *Registry {
	r := &Registry{}
	r.table[protocol.CmdCancel] = &Handler{Command: protocol.CmdCancel, Kind: KindControl, Usage: "cancel"}
	r.table[protocol.CmdExit] = &Handler{Command: protocol.CmdExit, Kind: KindControl, Usage: "exit"}
	return r
}

// Register adds h. The code must be enumerated, not yet taken, and the
// function matching h.Kind must be set.
func (r *Registry) Register(h Handler) error {
	if !h.Command.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidHandler, h.Command)
	}
	switch h.Kind {
	case KindSingle:
		if h.Single == nil {
			return fmt.Errorf("%w: %s has no single func", ErrInvalidHandler, h.Command)
		}
	case KindStream:
		if h.Stream == nil {
			return fmt.Errorf("%w: %s has no stream func", ErrInvalidHandler, h.Command)
		}
	default:
		return fmt.Errorf("%w: %s kind %s", ErrInvalidHandler, h.Command, h.Kind)
	}
	if r.table[h.Command] != nil {
		return fmt.Errorf("%w: %s", ErrHandlerExists, h.Command)
	}
	r.table[h.Command] = &h
	return nil
}

func (r *Registry) RegisterSingle(cmd protocol.Command, usage string, fn SingleFunc) error {
	return r.Register(Handler{Command: cmd, Kind: KindSingle, Usage: usage, Single: fn})
}

func (r *Registry) RegisterStream(cmd protocol.Command, usage string, fn StreamFunc) error {
	return r.Register(Handler{Command: cmd, Kind: KindStream, Usage: usage, Stream: fn})
}

// Lookup returns the handler for a raw kind byte.
func (r *Registry) Lookup(kind byte) (*Handler, bool) {
	h := r.table[kind]
	return h, h != nil
}

// List returns registered handlers in code order.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.table))
	for _, h := range r.table {
		if h == nil {
			continue
		}
		out = append(out, Info{Command: h.Command, Name: h.Command.String(), Kind: h.Kind, Usage: h.Usage})
	}
	return out
}
