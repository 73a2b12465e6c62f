package builtin

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
)

type wcCounts struct {
	lines, words, bytes int64
	inWord              bool
}

func (c *wcCounts) add(p []byte) {
	c.bytes += int64(len(p))
	for _, b := range p {
		switch b {
		case '\n':
			c.lines++
			c.inWord = false
		case ' ', '\t', '\v', '\f', '\r':
			c.inWord = false
		default:
			if !c.inWord {
				c.words++
				c.inWord = true
			}
		}
	}
}

func (h *handlers) wordCount(ctx context.Context, req commands.Request, resp *frame.Frame) error {
	args := req.Args()
	if len(args) == 1 && strings.HasPrefix(args[0], "-") {
		args = strings.Fields(args[0])
	}
	mode := ""
	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		mode, args = args[0], args[1:]
	}
	if err := protocol.RequireArgs(args, 1, "wc [-l|-w|-c] <path>"); err != nil {
		return err
	}
	switch mode {
	case "", "-l", "-w", "-c":
	default:
		return fmt.Errorf("%w: unknown flag %s", protocol.ErrInvalidArgs, mode)
	}

	f, err := h.fs.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var c wcCounts
	buf := make([]byte, scanUnit)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := f.Read(buf)
		c.add(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	switch mode {
	case "-l":
		return resp.Appendf("Lines: %d", c.lines)
	case "-w":
		return resp.Appendf("Words: %d", c.words)
	case "-c":
		return resp.Appendf("Bytes: %d", c.bytes)
	}
	return resp.Appendf("Lines: %d\nWords: %d\nBytes: %d", c.lines, c.words, c.bytes)
}
