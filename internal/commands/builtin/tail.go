package builtin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

// waiter blocks until the followed file changes or the timeout passes.
type waiter interface {
	Wait(timeout time.Duration)
	Close() error
}

type sleepWaiter struct{}

func (sleepWaiter) Wait(timeout time.Duration) { time.Sleep(timeout) }

func (sleepWaiter) Close() error { return nil }

// tailFollow starts at the current end of file and streams appended bytes
// as they arrive. It only ends through cancel, interruption or an error.
func (h *handlers) tailFollow(ctx context.Context, req commands.Request, w *stream.Writer) error {
	path := req.Path()
	if path == "" {
		return fmt.Errorf("%w: usage: tailf <path>", protocol.ErrInvalidArgs)
	}
	f, err := h.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	var wt waiter = sleepWaiter{}
	if iw, err := newFileWatcher(path); err == nil {
		wt = iw
	} else {
		log.Debug().Err(err).Str("path", path).Msg("builtin.tailFollow inotify unavailable, polling")
	}
	defer wt.Close()

	buf := make([]byte, readUnit)
	for {
		for {
			n, rerr := f.Read(buf)
			if n > 0 {
				offset += int64(n)
				if _, err := w.Write(buf[:n]); err != nil {
					return err
				}
			}
			if rerr != nil && rerr != io.EOF {
				return rerr
			}
			if rerr == io.EOF || n == 0 {
				break
			}
			if err := w.Checkpoint(); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Checkpoint(); err != nil {
			return err
		}

		wt.Wait(h.opts.TailInterval)

		if st, err := h.fs.Stat(path); err == nil && st.Size < offset {
			if offset, err = f.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
	}
}
