package builtin

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
)

const djb2Seed uint64 = 5381

// djb2 continues h over p: h = h*33 + b with 64-bit wraparound.
func djb2(h uint64, p []byte) uint64 {
	for _, b := range p {
		h = h*33 + uint64(b)
	}
	return h
}

type fdFile interface {
	Fd() uintptr
}

func (h *handlers) contentHash(ctx context.Context, req commands.Request, resp *frame.Frame) error {
	args := req.Args()
	if err := protocol.RequireArgs(args, 1, "hash <path> [djb2|blake3]"); err != nil {
		return err
	}
	algo := "djb2"
	if len(args) > 1 && args[1] != "" {
		algo = args[1]
	}

	f, err := h.fs.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	switch algo {
	case "djb2":
		sum, err := h.djb2File(ctx, f, args[0])
		if err != nil {
			return err
		}
		return resp.AppendString(strconv.FormatUint(sum, 16))
	case "blake3":
		hasher := blake3.New()
		if _, err := io.Copy(hasher, f); err != nil {
			return err
		}
		return resp.AppendString(hex.EncodeToString(hasher.Sum(nil)))
	default:
		return fmt.Errorf("%w: unknown algorithm %q", protocol.ErrInvalidArgs, algo)
	}
}

// djb2File hashes over a read-only mapping when f exposes a descriptor and
// reports a size. Files that report size 0, such as procfs entries, and
// files mmap refuses are read in buffered units.
func (h *handlers) djb2File(ctx context.Context, f File, path string) (uint64, error) {
	if fd, ok := f.(fdFile); ok {
		st, err := h.fs.Stat(path)
		if err != nil {
			return 0, err
		}
		if st.Size > 0 {
			data, err := unix.Mmap(int(fd.Fd()), 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
			if err == nil {
				defer unix.Munmap(data)
				return djb2(djb2Seed, data), nil
			}
		}
	}

	sum := djb2Seed
	buf := make([]byte, scanUnit)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := f.Read(buf)
		sum = djb2(sum, buf[:n])
		if err == io.EOF {
			return sum, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
