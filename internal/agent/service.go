package agent

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/commands/builtin"
	"github.com/schilltyler/capstone-0/internal/observability"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/session"
)

var (
	ErrControllerAddressRequired = errors.New("agent: controller address required")
)

type ServiceConfig struct {
	Address  string
	Session  session.Config
	Handlers builtin.Options
	// Reconnect dials again with backoff after a transport failure. Without
	// it the service makes a single attempt.
	Reconnect bool
	// MaxConnectAttempts bounds consecutive failed attempts; zero is
	// unbounded.
	MaxConnectAttempts int
	Admin              observability.AdminConfig
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Session:  session.DefaultConfig(),
		Handlers: builtin.DefaultOptions(),
	}
}

// Service keeps the agent connected to its controller.
type Service struct {
	cfg ServiceConfig
	reg *commands.Registry
	rng *rand.Rand

	state    atomic.Int32
	attempts atomic.Int64

	mu      sync.Mutex
	current *Session
	lastErr error
}

// NewService builds a service with the built-in handler set.
func NewService(cfg ServiceConfig) (*Service, error) {
	reg := commands.NewRegistry()
	if err := builtin.Register(reg, cfg.Handlers); err != nil {
		return nil, err
	}
	return NewServiceWithRegistry(cfg, reg)
}

// NewServiceWithRegistry builds a service that dispatches to reg.
func NewServiceWithRegistry(cfg ServiceConfig, reg *commands.Registry) (*Service, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrControllerAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	s := &Service{
		cfg: cfg,
		reg: reg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.state.Store(int32(StateConnecting))
	return s, nil
}

func (s *Service) Registry() *commands.Registry { return s.reg }

// Run connects and serves until the controller sends exit (nil), ctx ends
// (nil), or a failure cannot be retried.
func (s *Service) Run(ctx context.Context) error {
	observability.RegisterMetrics()
	if strings.TrimSpace(s.cfg.Admin.ListenAddr) != "" {
		go func() {
			if err := observability.ServeAdmin(ctx, s, s.cfg.Admin); err != nil {
				log.Warn().Err(err).Msg("agent.Service admin server stopped")
			}
		}()
	}

	attempt := 0
	for {
		attempt++
		established, err := s.runOnce(ctx)
		s.setLastErr(err)
		switch {
		case err == nil:
			observability.RecordSession("exit")
			return nil
		case ctx.Err() != nil:
			observability.RecordSession("shutdown")
			return nil
		}
		observability.RecordSession(protocol.ClassOf(err).String())
		log.Warn().Err(err).Int("attempt", attempt).Str("addr", s.cfg.Address).Msg("agent.Service session ended")

		if established {
			attempt = 1
		}
		if !s.shouldRetry(attempt, err) {
			return err
		}
		if err := s.sleepBackoff(ctx, attempt); err != nil {
			return nil
		}
	}
}

// runOnce performs one dial, handshake and serve cycle. established is true
// when the handshake completed.
func (s *Service) runOnce(ctx context.Context) (established bool, err error) {
	s.attempts.Add(1)
	s.state.Store(int32(StateConnecting))
	d := net.Dialer{Timeout: s.cfg.Session.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return false, protocol.TransportError("dial", err)
	}

	s.state.Store(int32(StateAuthenticating))
	if err := session.ClientHandshake(conn, s.cfg.Session); err != nil {
		_ = conn.Close()
		return false, err
	}

	t := session.NewTransport(conn, s.cfg.Session)
	t.SetFrameHook(recordFrame)
	sess := NewSession(t, s.reg, SessionOptions{
		ID:     uuid.NewString(),
		Strict: s.cfg.Session.StrictUnknownCommands,
	})
	s.setCurrent(sess)
	s.state.Store(int32(StateReady))
	log.Info().Str("session_id", sess.ID()).Str("addr", s.cfg.Address).Msg("agent.Service session ready")

	err = sess.Serve(ctx)
	s.state.Store(int32(StateTerminated))
	return true, err
}

func (s *Service) shouldRetry(attempt int, err error) bool {
	if !s.cfg.Reconnect {
		return false
	}
	// a wrong token is not fixed by dialing again
	if errors.Is(err, protocol.ErrHandshakeRejected) {
		return false
	}
	if s.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < s.cfg.MaxConnectAttempts
}

func (s *Service) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.ReconnectDelay(s.cfg.Session.Backoff, attempt, s.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) setCurrent(sess *Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

func (s *Service) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// State reports the lifecycle position of the current connection attempt.
func (s *Service) State() State {
	return State(s.state.Load())
}

// SessionStatus implements observability.StatusProvider.
func (s *Service) SessionStatus() observability.SessionStatus {
	s.mu.Lock()
	cur, lastErr := s.current, s.lastErr
	s.mu.Unlock()

	st := observability.SessionStatus{
		State:      s.State().String(),
		Controller: s.cfg.Address,
		Attempts:   int(s.attempts.Load()),
	}
	if cur != nil {
		st.SessionID = cur.ID()
		st.ConnectedAt = cur.StartedAt().UTC()
		st.Commands = cur.Commands()
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}

func recordFrame(dir session.Direction, kind byte, _ uint32) {
	label := protocol.Status(kind).String()
	if dir == session.DirectionIn {
		label = protocol.Command(kind).String()
	}
	observability.RecordFrame(string(dir), label)
}
