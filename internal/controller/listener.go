package controller

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/schilltyler/capstone-0/internal/protocol/session"
)

// Listener accepts agent connections and runs the accepting handshake.
type Listener struct {
	ln  net.Listener
	cfg session.Config
}

// Listen binds address. Use "127.0.0.1:0" in tests.
func Listen(address string, cfg session.Config) (*Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, cfg: cfg.WithDefaults()}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

// Accept waits for the next agent that passes the handshake. Agents with a
// wrong token are answered with the reject marker, logged, and skipped.
func (l *Listener) Accept(ctx context.Context) (*Client, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		t, err := session.Accept(conn, l.cfg)
		if err != nil {
			log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("controller.Listener rejected agent")
			continue
		}
		log.Info().Str("remote", t.RemoteAddr().String()).Msg("controller.Listener agent connected")
		return NewClient(t), nil
	}
}
