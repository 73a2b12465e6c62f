package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

const readyText = "ready"

// upload writes into a sibling temp file and renames it over the target
// once the controller sends the empty completion frame.
func (h *handlers) upload(ctx context.Context, req commands.Request, w *stream.Writer) error {
	path := req.Path()
	if path == "" {
		return fmt.Errorf("%w: usage: upload <path>", protocol.ErrInvalidArgs)
	}
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
			log.Warn().Err(err).Str("path", tmp.Name()).Msg("builtin.upload remove temp failed")
		}
	}()

	n, err := receive(ctx, w, req.Command, tmp)
	if err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
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
	return w.CloseWith(fmt.Sprintf("received %d bytes", n))
}

func (h *handlers) appendFile(ctx context.Context, req commands.Request, w *stream.Writer) error {
	path := req.Path()
	if path == "" {
		return fmt.Errorf("%w: usage: append <path>", protocol.ErrInvalidArgs)
	}
	f, err := h.fs.OpenAppend(path)
	if err != nil {
		return err
	}
	n, err := receive(ctx, w, req.Command, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return w.CloseWith(fmt.Sprintf("received %d bytes", n))
}

// receive runs the inbound exchange: ready ack, then data frames of the same
// command each acked with an empty more-data frame, until an empty payload.
func receive(ctx context.Context, w *stream.Writer, cmd protocol.Command, dst io.Writer) (int64, error) {
	if err := w.Ack(protocol.StatusOK, []byte(readyText)); err != nil {
		return 0, err
	}
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		f, err := w.Recv()
		if err != nil {
			return total, err
		}
		switch protocol.Command(f.Kind) {
		case cmd:
		case protocol.CmdCancel:
			return total, protocol.ErrCancelled
		default:
			return total, protocol.ProtocolError("receive", fmt.Errorf("%w: %s during %s", protocol.ErrUnexpectedFrame, protocol.Command(f.Kind), cmd))
		}
		if f.Length == 0 {
			return total, nil
		}
		n, err := dst.Write(f.Payload())
		total += int64(n)
		if err != nil {
			return total, err
		}
		if err := w.Ack(protocol.StatusMoreData, nil); err != nil {
			return total, err
		}
	}
}
