package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/observability"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

// State is the session lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Transport is what a Session needs from its connection.
type Transport interface {
	stream.Transport
	Close() error
}

type SessionOptions struct {
	ID string
	// Strict answers unknown and malformed requests with one error frame.
	Strict bool
}

// Session dispatches frames from one authenticated connection.
type Session struct {
	id     string
	t      Transport
	reg    *commands.Registry
	strict bool
	logger zerolog.Logger

	req  frame.Frame
	resp frame.Frame

	state    atomic.Int32
	commands atomic.Uint64
	started  time.Time
}

// NewSession wraps an authenticated transport. The session starts ready.
func NewSession(t Transport, reg *commands.Registry, opts SessionOptions) *Session {
	s := &Session{
		id:      opts.ID,
		t:       t,
		reg:     reg,
		strict:  opts.Strict,
		logger:  log.Logger.With().Str("session_id", opts.ID).Logger(),
		started: time.Now(),
	}
	s.state.Store(int32(StateReady))
	return s
}

func (s *Session) ID() string { return s.id }

// State is safe to call from any goroutine.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Commands reports how many registered commands were dispatched.
func (s *Session) Commands() uint64 {
	return s.commands.Load()
}

func (s *Session) StartedAt() time.Time { return s.started }

// Serve runs the dispatch loop. It returns nil after the exit command, the
// context error when ctx ends, and the fatal error otherwise. The transport
// is closed on return.
func (s *Session) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.t.Close() })
	defer stop()
	defer func() {
		s.state.Store(int32(StateTerminated))
		_ = s.t.Close()
	}()

	for {
		if err := s.t.ReadFrame(&s.req); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if protocol.ClassOf(err) == protocol.ClassProtocol {
				if err := s.unhandled("malformed", err); err != nil {
					return err
				}
				continue
			}
			s.logger.Warn().Err(err).Msg("agent.Session.Serve transport failed")
			return err
		}

		done, err := s.dispatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("agent.Session.Serve fatal")
			return err
		}
		if done {
			s.logger.Info().Uint64("commands", s.Commands()).Msg("agent.Session.Serve exit requested")
			return nil
		}
	}
}

// dispatch handles the frame in s.req. done is true after the exit command;
// a non-nil error is always fatal.
func (s *Session) dispatch(ctx context.Context) (done bool, err error) {
	kind := s.req.Kind
	h, ok := s.reg.Lookup(kind)
	if !ok {
		return false, s.unhandled(protocol.Command(kind).String(), protocol.ProtocolError("dispatch", fmt.Errorf("%w: 0x%02x", protocol.ErrUnknownCommand, kind)))
	}

	s.commands.Add(1)
	cmd := protocol.Command(kind)
	req := commands.Request{Command: cmd, Payload: s.req.Payload()}
	start := time.Now()
	var herr error

	switch h.Kind {
	case commands.KindControl:
		if cmd == protocol.CmdExit {
			observability.RecordCommand(cmd.String(), "ok", time.Since(start))
			return true, nil
		}
		// cancel with nothing running has no response
		s.logger.Debug().Msg("agent.Session.dispatch cancel outside stream ignored")
		observability.RecordCommand(cmd.String(), "ignored", time.Since(start))
		return false, nil

	case commands.KindSingle:
		s.resp.Reset(byte(protocol.StatusOK))
		herr = h.Single(ctx, req, &s.resp)
		if herr != nil {
			if protocol.IsFatal(herr) {
				return false, herr
			}
			s.resp.Reset(byte(protocol.StatusError))
			s.resp.SetText(protocol.Reason(herr))
		}
		if err := s.t.WriteFrame(&s.resp); err != nil {
			return false, err
		}

	case commands.KindStream:
		w := stream.NewWriter(s.t, &s.req, &s.resp)
		herr = h.Stream(ctx, req, w)
		if err := w.Finish(herr); err != nil {
			return false, err
		}
	}

	outcome := outcomeOf(herr)
	observability.RecordCommand(cmd.String(), outcome, time.Since(start))
	event := s.logger.Debug()
	if outcome == "error" {
		event = s.logger.Info().Err(herr)
	}
	event.Str("command", cmd.String()).Str("outcome", outcome).Dur("duration", time.Since(start)).Msg("agent.Session.dispatch")
	return false, nil
}

// unhandled drops a frame the registry cannot serve, or answers it with an
// error frame in strict mode. Only a failed write is returned.
func (s *Session) unhandled(label string, cause error) error {
	observability.RecordCommand(label, "dropped", 0)
	if !s.strict {
		s.logger.Debug().Err(cause).Str("frame", label).Msg("agent.Session.unhandled dropped")
		return nil
	}
	s.resp.Reset(byte(protocol.StatusError))
	s.resp.SetText(protocol.Reason(cause))
	return s.t.WriteFrame(&s.resp)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrCancelled):
		return "cancelled"
	case errors.Is(err, protocol.ErrInterrupted):
		return "interrupted"
	default:
		return "error"
	}
}
