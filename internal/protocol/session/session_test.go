package session

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/schilltyler/capstone-0/internal/auth"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
	"github.com/schilltyler/capstone-0/internal/testutil/testlog"
)

func TestReconnectDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := ReconnectDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := ReconnectDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := ReconnectDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := ReconnectDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestReconnectDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig().Backoff
	rng := rand.New(rand.NewSource(7))
	for attempt := 1; attempt <= 4; attempt++ {
		cfg.Jitter = false
		base := ReconnectDelay(cfg, attempt, nil)
		cfg.Jitter = true
		got := ReconnectDelay(cfg, attempt, rng)
		if got < base/2 || got > base+base/2 {
			t.Fatalf("attempt%d jitter out of range: base=%v got=%v", attempt, base, got)
		}
	}
}

func TestReconnectDelayJitterNeverExceedsMax(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: time.Second,
		Multiplier:   3.0,
		MaxDelay:     4 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		if got := ReconnectDelay(cfg, 40, rng); got > cfg.MaxDelay {
			t.Fatalf("delay %v above max %v", got, cfg.MaxDelay)
		}
	}
	if got := ReconnectDelay(cfg, 0, rng); got != 0 {
		t.Fatalf("attempt0 got=%v", got)
	}
}

func TestParseToken(t *testing.T) {
	testlog.Start(t)
	tok, err := ParseToken("0xDEADBEEF")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tok != DefaultToken {
		t.Fatalf("unexpected token %x", tok)
	}
	for _, bad := range []string{"", "dead", "deadbeef00", "zzzzzzzz"} {
		if _, err := ParseToken(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%q: expected ErrInvalidToken, got %v", bad, err)
		}
	}
}

func TestHandshakeAccepted(t *testing.T) {
	testlog.Start(t)
	agentSide, ctrlSide := net.Pipe()
	defer agentSide.Close()
	defer ctrlSide.Close()

	cfg := DefaultConfig()
	done := make(chan error, 1)
	go func() { done <- AcceptHandshake(ctrlSide, cfg) }()

	if err := ClientHandshake(agentSide, cfg); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("accept handshake: %v", err)
	}
}

func TestHandshakeRejectedMarker(t *testing.T) {
	testlog.Start(t)
	agentSide, ctrlSide := net.Pipe()
	defer agentSide.Close()
	defer ctrlSide.Close()

	go func() {
		var token [TokenLen]byte
		_, _ = ctrlSide.Read(token[:])
		_, _ = ctrlSide.Write([]byte{0x00})
	}()

	err := ClientHandshake(agentSide, DefaultConfig())
	if !errors.Is(err, protocol.ErrHandshakeRejected) {
		t.Fatalf("expected ErrHandshakeRejected, got %v", err)
	}
	if protocol.ClassOf(err) != protocol.ClassHandshake || !protocol.IsFatal(err) {
		t.Fatalf("expected fatal handshake class, got %v", protocol.ClassOf(err))
	}
}

func TestAcceptHandshakeWrongToken(t *testing.T) {
	testlog.Start(t)
	agentSide, ctrlSide := net.Pipe()
	defer agentSide.Close()
	defer ctrlSide.Close()

	done := make(chan error, 1)
	go func() { done <- AcceptHandshake(ctrlSide, DefaultConfig()) }()

	cfg := DefaultConfig()
	cfg.Token = [TokenLen]byte{1, 2, 3, 4}
	if err := ClientHandshake(agentSide, cfg); !errors.Is(err, protocol.ErrHandshakeRejected) {
		t.Fatalf("client: expected ErrHandshakeRejected, got %v", err)
	}
	if err := <-done; !errors.Is(err, protocol.ErrHandshakeRejected) {
		t.Fatalf("server: expected ErrHandshakeRejected, got %v", err)
	}
}

func TestAcceptHandshakeCustomValidator(t *testing.T) {
	testlog.Start(t)
	rotated := [TokenLen]byte{0xCA, 0xFE, 0xBA, 0xBE}
	ctrlCfg := DefaultConfig()
	ctrlCfg.Validator = auth.AnyToken{
		{Token: DefaultToken[:]},
		{Token: rotated[:]},
	}

	for _, token := range [][TokenLen]byte{DefaultToken, rotated} {
		agentSide, ctrlSide := net.Pipe()
		done := make(chan error, 1)
		go func() { done <- AcceptHandshake(ctrlSide, ctrlCfg) }()

		cfg := DefaultConfig()
		cfg.Token = token
		if err := ClientHandshake(agentSide, cfg); err != nil {
			t.Fatalf("token %x: client handshake: %v", token, err)
		}
		if err := <-done; err != nil {
			t.Fatalf("token %x: accept handshake: %v", token, err)
		}
		_ = agentSide.Close()
		_ = ctrlSide.Close()
	}
}

func TestHandshakePeerClosed(t *testing.T) {
	testlog.Start(t)
	agentSide, ctrlSide := net.Pipe()
	defer agentSide.Close()
	go func() {
		var token [TokenLen]byte
		_, _ = ctrlSide.Read(token[:])
		_ = ctrlSide.Close()
	}()
	err := ClientHandshake(agentSide, DefaultConfig())
	if protocol.ClassOf(err) != protocol.ClassTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestDialAndAcceptOverLoopback(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := DefaultConfig()
	srv := make(chan *Transport, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			srv <- nil
			return
		}
		tr, err := Accept(conn, cfg)
		if err != nil {
			srv <- nil
			return
		}
		srv <- tr
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	agent, err := Dial(ctx, ln.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer agent.Close()
	ctrl := <-srv
	if ctrl == nil {
		t.Fatalf("accept failed")
	}
	defer ctrl.Close()

	pending, err := agent.Pending()
	if err != nil || pending {
		t.Fatalf("expected nothing pending, got pending=%v err=%v", pending, err)
	}

	var out frame.Frame
	out.Reset(byte(protocol.CmdPrintWorkingDir))
	if err := ctrl.WriteFrame(&out); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		pending, err = agent.Pending()
		if err != nil {
			t.Fatalf("pending: %v", err)
		}
		if pending || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !pending {
		t.Fatalf("expected pending frame after write")
	}
	kind, err := agent.PeekKind()
	if err != nil || kind != byte(protocol.CmdPrintWorkingDir) {
		t.Fatalf("peek kind=%#x err=%v", kind, err)
	}
	var in frame.Frame
	if err := agent.ReadFrame(&in); err != nil {
		t.Fatalf("read: %v", err)
	}
	if in.Kind != byte(protocol.CmdPrintWorkingDir) {
		t.Fatalf("peek consumed the frame: kind=%#x", in.Kind)
	}
}

func TestPendingOverPipeUsesDeadline(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	tr := NewTransport(a, DefaultConfig())

	pending, err := tr.Pending()
	if err != nil || pending {
		t.Fatalf("expected idle pipe, got pending=%v err=%v", pending, err)
	}

	raw, _ := frame.Encode(byte(protocol.CmdCancel), nil)
	go func() { _, _ = b.Write(raw) }()

	deadline := time.Now().Add(2 * time.Second)
	for !pending && time.Now().Before(deadline) {
		pending, err = tr.Pending()
		if err != nil {
			t.Fatalf("pending: %v", err)
		}
	}
	if !pending {
		t.Fatalf("expected pending cancel frame")
	}
	kind, err := tr.PeekKind()
	if err != nil || kind != byte(protocol.CmdCancel) {
		t.Fatalf("peek kind=%#x err=%v", kind, err)
	}
	if err := tr.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if pending, _ := tr.Pending(); pending {
		t.Fatalf("discard left data buffered")
	}
}

func TestReadFrameClassifiesErrors(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	defer a.Close()
	tr := NewTransport(a, DefaultConfig())

	bad := make([]byte, frame.Size)
	bad[0] = byte(protocol.CmdDownload)
	frame.ByteOrder.PutUint32(bad[4:8], frame.PayloadCapacity+1)
	go func() {
		_, _ = b.Write(bad)
		_ = b.Close()
	}()

	var f frame.Frame
	err := tr.ReadFrame(&f)
	if !errors.Is(err, frame.ErrMalformedFrame) || protocol.ClassOf(err) != protocol.ClassProtocol {
		t.Fatalf("expected protocol malformed error, got %v", err)
	}
	err = tr.ReadFrame(&f)
	if !errors.Is(err, frame.ErrShortFrame) || !protocol.IsFatal(err) {
		t.Fatalf("expected fatal short frame, got %v", err)
	}
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	testlog.Start(t)
	cfg := Config{}.WithDefaults()
	d := DefaultConfig()
	if cfg.Token != d.Token || cfg.ConnectTimeout != d.ConnectTimeout || cfg.CancelPollWait != d.CancelPollWait {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.IdleTimeout != 0 {
		t.Fatalf("idle timeout must stay disabled, got %v", cfg.IdleTimeout)
	}
}
