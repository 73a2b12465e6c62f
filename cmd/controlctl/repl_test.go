package main

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/shlex"

	"github.com/schilltyler/capstone-0/internal/agent"
	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/commands/builtin"
	"github.com/schilltyler/capstone-0/internal/controller"
	"github.com/schilltyler/capstone-0/internal/protocol/session"
	"github.com/schilltyler/capstone-0/internal/testutil/testlog"
)

// pipeREPL wires a REPL to an in-process agent session over net.Pipe.
func pipeREPL(t *testing.T) (*repl, *bytes.Buffer, chan error) {
	t.Helper()
	agentEnd, ctrlEnd := net.Pipe()
	cfg := session.DefaultConfig()

	reg := commands.NewRegistry()
	if err := builtin.Register(reg, builtin.DefaultOptions()); err != nil {
		t.Fatalf("register: %v", err)
	}
	s := agent.NewSession(session.NewTransport(agentEnd, cfg), reg, agent.SessionOptions{ID: "repl-test"})
	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	c := controller.NewClient(session.NewTransport(ctrlEnd, cfg))
	t.Cleanup(func() { _ = c.Close() })

	var out bytes.Buffer
	r := &repl{
		client:       c,
		out:          &out,
		downloadsDir: filepath.Join(t.TempDir(), "downloads"),
		now:          func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) },
	}
	return r, &out, done
}

func TestCommandLineTokens(t *testing.T) {
	cases := map[string][]string{
		`stats /etc/hosts`:               {"stats", "/etc/hosts"},
		`  sed  /tmp/a  "a b"  'c d' `:   {"sed", "/tmp/a", "a b", "c d"},
		`upload my\ file /tmp/x`:         {"upload", "my file", "/tmp/x"},
		`sed /tmp/a - ""`:                {"sed", "/tmp/a", "-", ""},
		`touch f '2024-01-01T00:00:00Z'`: {"touch", "f", "2024-01-01T00:00:00Z"},
	}
	for line, want := range cases {
		got, err := shlex.Split(line)
		if err != nil {
			t.Fatalf("%q: %v", line, err)
		}
		if strings.Join(got, "|") != strings.Join(want, "|") || len(got) != len(want) {
			t.Fatalf("%q: got %q want %q", line, got, want)
		}
	}
}

func TestExecuteReportsUnterminatedQuote(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	r := &repl{out: &out}
	done, err := r.execute(`sed "open`)
	if done || err != nil {
		t.Fatalf("execute: done=%v err=%v", done, err)
	}
	if !strings.HasPrefix(out.String(), "parse: ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestDownloadName(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	cases := map[string]string{
		"/var/log/syslog":   "syslog_20240506_070809",
		"/etc/app.conf":     "app_20240506_070809.conf",
		"../../etc/passwd":  "passwd_20240506_070809",
		"/":                 "downloaded_file_20240506_070809",
		`C:\temp\notes.txt`: "notes_20240506_070809.txt",
	}
	for remote, want := range cases {
		if got := downloadName(remote, at); got != want {
			t.Fatalf("%q: got %q want %q", remote, got, want)
		}
	}
}

func TestExecuteAgainstAgent(t *testing.T) {
	testlog.Start(t)
	r, out, done := pipeREPL(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(src, []byte("hello world\nfoo bar baz\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if done, err := r.execute("wc " + src); done || err != nil {
		t.Fatalf("wc: done=%v err=%v", done, err)
	}
	if !strings.Contains(out.String(), "Lines: 2") {
		t.Fatalf("unexpected wc output %q", out.String())
	}

	out.Reset()
	if _, err := r.execute("download " + src); err != nil {
		t.Fatalf("download: %v", err)
	}
	saved := filepath.Join(r.downloadsDir, "words_20240506_070809.txt")
	data, err := os.ReadFile(saved)
	if err != nil || string(data) != "hello world\nfoo bar baz\n" {
		t.Fatalf("saved download %q err=%v", data, err)
	}

	out.Reset()
	remote := filepath.Join(dir, "copy.txt")
	if _, err := r.execute("upload " + src + " " + remote); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out.String(), "received 24 bytes") {
		t.Fatalf("unexpected upload output %q", out.String())
	}
	if data, _ := os.ReadFile(remote); string(data) != "hello world\nfoo bar baz\n" {
		t.Fatalf("uploaded content %q", data)
	}

	out.Reset()
	if _, err := r.execute("stats " + filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("stats missing: %v", err)
	}
	if !strings.HasPrefix(out.String(), "error: ") {
		t.Fatalf("expected remote error line, got %q", out.String())
	}

	out.Reset()
	if _, err := r.execute("frobnicate"); err != nil {
		t.Fatalf("unknown: %v", err)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("unexpected output %q", out.String())
	}

	finished, err := r.execute("exit")
	if !finished || err != nil {
		t.Fatalf("exit: done=%v err=%v", finished, err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("agent session: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("agent session did not end after exit")
	}
}

func TestSessionRunsRCThenOnConnect(t *testing.T) {
	testlog.Start(t)
	r, out, done := pipeREPL(t)

	rc := filepath.Join(t.TempDir(), "agent.rc")
	if err := os.WriteFile(rc, []byte("# comment\n\npwd\n"), 0o644); err != nil {
		t.Fatalf("write rc: %v", err)
	}
	input := bufio.NewScanner(strings.NewReader(""))
	if err := r.session(input, rc, "exit"); err != nil {
		t.Fatalf("session: %v", err)
	}
	if !strings.Contains(out.String(), "[rc:3] pwd") {
		t.Fatalf("rc line not echoed: %q", out.String())
	}
	if err := <-done; err != nil {
		t.Fatalf("agent session: %v", err)
	}
}

func TestSessionEndsOnClosedInput(t *testing.T) {
	testlog.Start(t)
	r, _, _ := pipeREPL(t)
	input := bufio.NewScanner(strings.NewReader("pwd\n"))
	if err := r.session(input, "", ""); err != errInputClosed {
		t.Fatalf("expected errInputClosed, got %v", err)
	}
}
