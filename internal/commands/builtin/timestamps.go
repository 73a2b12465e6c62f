package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
)

const touchUsage = "touch <path> <atime> <mtime> | <path> --at <t> --mt <t> | <path> --copy-from <ref>"

// setTimestamps accepts three forms: positional times, --at/--mt flags
// (either may be omitted to keep the current value) and --copy-from.
func (h *handlers) setTimestamps(ctx context.Context, req commands.Request, resp *frame.Frame) error {
	args := req.Fields()
	if err := protocol.RequireArgs(args, 2, touchUsage); err != nil {
		return err
	}
	path := args[0]

	var atime, mtime time.Time
	switch {
	case args[1] == "--copy-from":
		if err := protocol.RequireArgs(args, 3, touchUsage); err != nil {
			return err
		}
		ref, err := h.fs.Stat(args[2])
		if err != nil {
			return err
		}
		atime, mtime = ref.Atime, ref.Mtime
	case strings.HasPrefix(args[1], "--"):
		cur, err := h.fs.Stat(path)
		if err != nil {
			return err
		}
		atime, mtime = cur.Atime, cur.Mtime
		for i := 1; i < len(args); i += 2 {
			if i+1 >= len(args) {
				return fmt.Errorf("%w: %s needs a value", protocol.ErrInvalidArgs, args[i])
			}
			t, err := parseTimestamp(args[i+1])
			if err != nil {
				return err
			}
			switch args[i] {
			case "--at":
				atime = t
			case "--mt":
				mtime = t
			default:
				return fmt.Errorf("%w: unknown flag %s", protocol.ErrInvalidArgs, args[i])
			}
		}
	default:
		if err := protocol.RequireArgs(args, 3, touchUsage); err != nil {
			return err
		}
		var err error
		if atime, err = parseTimestamp(args[1]); err != nil {
			return err
		}
		if mtime, err = parseTimestamp(args[2]); err != nil {
			return err
		}
	}

	if err := h.fs.Chtimes(path, atime, mtime); err != nil {
		return err
	}
	return resp.Appendf("atime=%d mtime=%d", atime.Unix(), mtime.Unix())
}

// parseTimestamp reads Unix seconds or RFC 3339.
func parseTimestamp(raw string) (time.Time, error) {
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", protocol.ErrInvalidArgs, raw)
	}
	return t, nil
}
