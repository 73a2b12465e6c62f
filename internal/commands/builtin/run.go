package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
	"github.com/schilltyler/capstone-0/internal/tools"
)

var ErrExecDisabled = errors.New("builtin: run-loaded-code disabled")

// outputBuffer collects process output written from exec's copy goroutines.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() == 0 {
		return nil
	}
	out := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()
	return out
}

type runResult struct {
	code int32
	err  error
}

// runLoadedCode runs a program and streams its combined output live. The
// stream writer stays on this goroutine; the process writes into a buffer
// that is drained every TailInterval.
func (h *handlers) runLoadedCode(ctx context.Context, req commands.Request, w *stream.Writer) error {
	if !h.opts.AllowExec {
		return ErrExecDisabled
	}
	args := req.Args()
	if err := protocol.RequireArgs(args, 1, "run <path> [args...]"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &outputBuffer{}
	done := make(chan runResult, 1)
	go func() {
		code, err := h.opts.Runner.Run(runCtx, args[0], args[1:], out)
		done <- runResult{code: code, err: err}
	}()

	log.Debug().Str("path", args[0]).Int("argc", len(args)-1).Msg("builtin.runLoadedCode started")

	for {
		select {
		case res := <-done:
			if p := out.drain(); len(p) > 0 {
				if _, err := w.Write(p); err != nil {
					return err
				}
			}
			if res.err == nil {
				return nil
			}
			if err := w.Flush(); err != nil {
				return err
			}
			// A program that never started keeps the launch error text.
			if res.code > 0 && res.code != tools.ExitNotFound && res.code != tools.ExitNotExecutable {
				return fmt.Errorf("exit status %d", res.code)
			}
			return res.err
		case <-ctx.Done():
			cancel()
			<-done
			return ctx.Err()
		case <-time.After(h.opts.TailInterval):
		}

		if p := out.drain(); len(p) > 0 {
			if _, err := w.Write(p); err != nil {
				return h.stop(cancel, done, err)
			}
			if err := w.Flush(); err != nil {
				return h.stop(cancel, done, err)
			}
		}
		if err := w.Checkpoint(); err != nil {
			return h.stop(cancel, done, err)
		}
	}
}

// stop kills the process and waits for the runner to return.
func (h *handlers) stop(cancel context.CancelFunc, done <-chan runResult, cause error) error {
	cancel()
	<-done
	return cause
}
