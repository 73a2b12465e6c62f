package builtin

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

// searchPattern reports every offset of a hex pattern, overlapping matches
// included. Windows carry len(pattern)-1 bytes so a match straddling two
// reads is found once.
func (h *handlers) searchPattern(ctx context.Context, req commands.Request, w *stream.Writer) error {
	args := req.Args()
	if err := protocol.RequireArgs(args, 2, "bgrep <path> <hexpattern>"); err != nil {
		return err
	}
	pattern, err := hex.DecodeString(strings.TrimSpace(args[1]))
	if err != nil {
		return fmt.Errorf("%w: pattern: %v", protocol.ErrInvalidArgs, err)
	}
	if len(pattern) == 0 || len(pattern) > maxPattern {
		return fmt.Errorf("%w: pattern must be 1..%d bytes", protocol.ErrInvalidArgs, maxPattern)
	}

	f, err := h.fs.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	overlap := len(pattern) - 1
	buf := make([]byte, overlap+scanUnit)
	var base int64
	carry := 0
	matches := 0
	for {
		n, rerr := io.ReadFull(f, buf[carry:])
		total := carry + n
		window := buf[:total]
		for i := 0; ; {
			j := bytes.Index(window[i:], pattern)
			if j < 0 {
				break
			}
			off := base + int64(i+j)
			if err := w.Printf("Found at offset: %d (0x%x)\n", off, off); err != nil {
				return err
			}
			matches++
			i += j + 1
		}

		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return rerr
		}

		carry = min(overlap, total)
		copy(buf, window[total-carry:])
		base += int64(total - carry)

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Checkpoint(); err != nil {
			return err
		}
	}
	return w.Printf("matches: %d\n", matches)
}
