package builtin

import (
	"context"
	"fmt"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
)

func (h *handlers) getStats(ctx context.Context, req commands.Request, resp *frame.Frame) error {
	path := req.Path()
	if path == "" {
		return fmt.Errorf("%w: usage: stats <path>", protocol.ErrInvalidArgs)
	}
	st, err := h.fs.Stat(path)
	if err != nil {
		return err
	}
	return resp.Appendf("Size: %d\nMode: %d\nUID: %d\nGID: %d\nAtime: %d\nMtime: %d\n",
		st.Size, st.Mode, st.UID, st.GID, st.Atime.Unix(), st.Mtime.Unix())
}

func (h *handlers) printWorkingDir(ctx context.Context, req commands.Request, resp *frame.Frame) error {
	wd, err := h.fs.Getwd()
	if err != nil {
		return err
	}
	return resp.AppendString(wd)
}
