package builtin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"

	"github.com/rs/zerolog/log"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

// streamEdit replaces every non-overlapping occurrence of search, writing
// to a temp file that replaces the original with its permissions kept.
func (h *handlers) streamEdit(ctx context.Context, req commands.Request, w *stream.Writer) error {
	args := req.ArgsN(3)
	if args[0] == "" || args[1] == "" {
		return fmt.Errorf("%w: usage: sed <path> <search> <replace>", protocol.ErrInvalidArgs)
	}
	path := args[0]
	search, replace := []byte(args[1]), []byte(args[2])

	st, err := h.fs.Stat(path)
	if err != nil {
		return err
	}
	src, err := h.fs.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := h.fs.CreateTemp(path)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tmp.Close()
		if err := h.fs.Remove(tmp.Name()); err != nil {
			log.Warn().Err(err).Str("path", tmp.Name()).Msg("builtin.streamEdit remove temp failed")
		}
	}()

	out := bufio.NewWriterSize(tmp, scanUnit)
	count, err := replaceStream(ctx, w, src, out, search, replace)
	if err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return err
	}
	if err := tmp.Chmod(iofs.FileMode(st.Mode & 0o777)); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := h.fs.Rename(tmp.Name(), path); err != nil {
		return err
	}
	committed = true
	return w.Printf("replacements: %d\n", count)
}

// replaceStream holds back len(search)-1 bytes after each read so matches
// spanning a read boundary are replaced.
func replaceStream(ctx context.Context, w *stream.Writer, src io.Reader, dst io.Writer, search, replace []byte) (int, error) {
	unit := make([]byte, scanUnit)
	held := make([]byte, 0, scanUnit+len(search))
	pending := held
	count := 0
	for {
		n, rerr := src.Read(unit)
		pending = append(pending, unit[:n]...)
		for {
			i := bytes.Index(pending, search)
			if i < 0 {
				break
			}
			if _, err := dst.Write(pending[:i]); err != nil {
				return count, err
			}
			if _, err := dst.Write(replace); err != nil {
				return count, err
			}
			count++
			pending = pending[i+len(search):]
		}

		if errors.Is(rerr, io.EOF) {
			_, err := dst.Write(pending)
			return count, err
		}
		if rerr != nil {
			return count, rerr
		}

		keep := min(len(search)-1, len(pending))
		if _, err := dst.Write(pending[:len(pending)-keep]); err != nil {
			return count, err
		}
		pending = append(held[:0], pending[len(pending)-keep:]...)

		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := w.Checkpoint(); err != nil {
			return count, err
		}
	}
}
