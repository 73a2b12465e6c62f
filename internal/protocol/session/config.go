package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/schilltyler/capstone-0/internal/auth"
)

var (
	ErrInvalidToken = errors.New("session: invalid auth token")
)

const (
	// DefaultAcceptedMarker is the first byte of a successful handshake reply.
	DefaultAcceptedMarker byte = 0x01
	// RejectedMarker is what a controller answers to a wrong token.
	RejectedMarker byte = 0x00
	// TokenLen is the fixed size of the handshake token.
	TokenLen = 4
)

// DefaultToken is the static handshake token.
var DefaultToken = [TokenLen]byte{0xDE, 0xAD, 0xBE, 0xEF}

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines handshake, transport, and session behavior.
type Config struct {
	Token          [TokenLen]byte
	AcceptedMarker byte

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	// IdleTimeout bounds a blocking frame read. Zero waits forever.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	// CancelPollWait is the read deadline used by Pending on connections
	// that do not expose a file descriptor.
	CancelPollWait time.Duration

	// Validator checks tokens on the accepting side. Nil accepts only Token.
	Validator auth.Validator

	// StrictUnknownCommands answers unknown or malformed requests with an
	// error frame instead of dropping them.
	StrictUnknownCommands bool

	Backoff BackoffConfig
}

// DefaultConfig returns wire-compatible defaults: no idle timeout and silent
// drop of unknown commands.
func DefaultConfig() Config {
	return Config{
		Token:            DefaultToken,
		AcceptedMarker:   DefaultAcceptedMarker,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		IdleTimeout:      0,
		WriteTimeout:     15 * time.Second,
		CancelPollWait:   time.Millisecond,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued durations from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Token == ([TokenLen]byte{}) {
		c.Token = d.Token
	}
	if c.AcceptedMarker == RejectedMarker {
		c.AcceptedMarker = d.AcceptedMarker
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	if c.CancelPollWait <= 0 {
		c.CancelPollWait = d.CancelPollWait
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = d.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = d.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = d.Backoff.MaxDelay
	}
	return c
}

func (c Config) validator() auth.Validator {
	if c.Validator != nil {
		return c.Validator
	}
	return auth.StaticToken{Token: c.Token[:]}
}

// ParseToken decodes a hex handshake token such as "deadbeef".
func ParseToken(raw string) ([TokenLen]byte, error) {
	var out [TokenLen]byte
	raw = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(b) != TokenLen {
		return out, fmt.Errorf("%w: want %d bytes got %d", ErrInvalidToken, TokenLen, len(b))
	}
	copy(out[:], b)
	return out, nil
}
