package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/schilltyler/capstone-0/internal/agent"
	"github.com/schilltyler/capstone-0/internal/protocol/session"
)

type fileConfig struct {
	ControllerAddress     string   `toml:"controller_address"`
	AuthToken             string   `toml:"auth_token"`
	AcceptedMarker        int      `toml:"accepted_marker"`
	StrictUnknownCommands bool     `toml:"strict_unknown_commands"`
	ConnectTimeout        string   `toml:"connect_timeout"`
	HandshakeTimeout      string   `toml:"handshake_timeout"`
	IdleTimeout           string   `toml:"idle_timeout"`
	WriteTimeout          string   `toml:"write_timeout"`
	CancelPollWait        string   `toml:"cancel_poll_wait"`
	TailInterval          string   `toml:"tail_interval"`
	AllowExec             bool     `toml:"allow_exec"`
	Reconnect             bool     `toml:"reconnect"`
	MaxConnectAttempts    int      `toml:"max_connect_attempts"`
	BackoffInitial        string   `toml:"backoff_initial"`
	BackoffMax            string   `toml:"backoff_max"`
	AdminListenAddr       string   `toml:"admin_listen_addr"`
	AdminCORSOrigins      []string `toml:"admin_cors_origins"`
}

func loadServiceConfig(path string) (agent.ServiceConfig, error) {
	cfg := agent.DefaultServiceConfig()
	cfg.Address = defaultAddress

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return agent.ServiceConfig{}, fmt.Errorf("load agent config: %w", err)
	}

	if meta.IsDefined("controller_address") {
		if addr := strings.TrimSpace(raw.ControllerAddress); addr != "" {
			cfg.Address = addr
		}
	}
	if meta.IsDefined("auth_token") {
		token, err := session.ParseToken(raw.AuthToken)
		if err != nil {
			return agent.ServiceConfig{}, fmt.Errorf("parse auth_token: %w", err)
		}
		cfg.Session.Token = token
	}
	if meta.IsDefined("accepted_marker") {
		if raw.AcceptedMarker <= 0 || raw.AcceptedMarker > 0xFF {
			return agent.ServiceConfig{}, fmt.Errorf("accepted_marker out of range: %d", raw.AcceptedMarker)
		}
		cfg.Session.AcceptedMarker = byte(raw.AcceptedMarker)
	}
	if meta.IsDefined("strict_unknown_commands") {
		cfg.Session.StrictUnknownCommands = raw.StrictUnknownCommands
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.Session.IdleTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"cancel_poll_wait", raw.CancelPollWait, &cfg.Session.CancelPollWait},
		{"tail_interval", raw.TailInterval, &cfg.Handlers.TailInterval},
		{"backoff_initial", raw.BackoffInitial, &cfg.Session.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return agent.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("allow_exec") {
		cfg.Handlers.AllowExec = raw.AllowExec
	}
	if meta.IsDefined("reconnect") {
		cfg.Reconnect = raw.Reconnect
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.Admin.ListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("admin_cors_origins") {
		cfg.Admin.CORSOrigins = normalizeOrigins(raw.AdminCORSOrigins)
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if v := strings.TrimSpace(o); v != "" {
			out = append(out, v)
		}
	}
	return out
}
