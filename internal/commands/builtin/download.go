package builtin

import (
	"context"
	"fmt"
	"io"
	iofs "io/fs"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

func (h *handlers) download(ctx context.Context, req commands.Request, w *stream.Writer) error {
	path := req.Path()
	if path == "" {
		return fmt.Errorf("%w: usage: download <path>", protocol.ErrInvalidArgs)
	}
	f, err := h.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return copyUnits(ctx, w, f)
}

func (h *handlers) readProcMaps(ctx context.Context, req commands.Request, w *stream.Writer) error {
	f, err := h.fs.Open(h.opts.ProcMapsPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return copyUnits(ctx, w, f)
}

// copyUnits streams r in read units with a checkpoint after each one.
func copyUnits(ctx context.Context, w *stream.Writer, r io.Reader) error {
	buf := make([]byte, readUnit)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Checkpoint(); err != nil {
			return err
		}
	}
}

func (h *handlers) listDirectory(ctx context.Context, req commands.Request, w *stream.Writer) error {
	path := req.Path()
	if path == "" {
		path = "."
	}
	d, err := h.fs.OpenDir(path)
	if err != nil {
		return err
	}
	defer d.Close()

	for {
		entries, err := d.ReadDir(dirBatch)
		for _, e := range entries {
			if perr := w.Printf("%s %s\n", entryTag(e.Type()), e.Name()); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Checkpoint(); err != nil {
			return err
		}
	}
}

func entryTag(t iofs.FileMode) string {
	switch {
	case t.IsRegular():
		return "[F]"
	case t.IsDir():
		return "[D]"
	case t&iofs.ModeSymlink != 0:
		return "[S]"
	default:
		return "[?]"
	}
}
