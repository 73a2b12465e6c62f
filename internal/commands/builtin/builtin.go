// Package builtin provides the agent's command handlers. Handlers reach the
// operating system only through FS and tools.CommandRunner.
//
// The package targets Linux: stat, utimensat, mmap and inotify come from
// golang.org/x/sys/unix.
package builtin

import (
	"time"

	"github.com/schilltyler/capstone-0/internal/commands"
	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
	"github.com/schilltyler/capstone-0/internal/tools"
)

const (
	// readUnit is the bulk read size; one unit fills one chunk.
	readUnit = frame.PayloadCapacity
	// scanUnit is the search window for pattern scans.
	scanUnit = 64 << 10
	// dirBatch is how many entries list-directory reads between checkpoints.
	dirBatch = 64
	// maxPattern bounds search-binary-pattern needles.
	maxPattern = 256

	DefaultTailInterval = 100 * time.Millisecond
	DefaultProcMapsPath = "/proc/self/maps"
)

// Options configures the handler set.
type Options struct {
	FS           FS
	Runner       tools.CommandRunner
	AllowExec    bool
	TailInterval time.Duration
	ProcMapsPath string
}

func DefaultOptions() Options {
	return Options{
		FS:           OSFS{},
		Runner:       tools.ExecRunner{},
		TailInterval: DefaultTailInterval,
		ProcMapsPath: DefaultProcMapsPath,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FS == nil {
		o.FS = d.FS
	}
	if o.Runner == nil {
		o.Runner = d.Runner
	}
	if o.TailInterval <= 0 {
		o.TailInterval = d.TailInterval
	}
	if o.ProcMapsPath == "" {
		o.ProcMapsPath = d.ProcMapsPath
	}
	return o
}

type handlers struct {
	opts Options
	fs   FS
}

// Register installs every built-in handler into r.
func Register(r *commands.Registry, opts Options) error {
	opts = opts.withDefaults()
	h := &handlers{opts: opts, fs: opts.FS}

	singles := []struct {
		cmd   protocol.Command
		usage string
		fn    commands.SingleFunc
	}{
		{protocol.CmdGetStats, "stats <path>", h.getStats},
		{protocol.CmdPrintWorkingDir, "pwd", h.printWorkingDir},
		{protocol.CmdSetTimestamps, "touch <path> <atime> <mtime> | <path> --at <t> --mt <t> | <path> --copy-from <ref>", h.setTimestamps},
		{protocol.CmdWordCount, "wc [-l|-w|-c] <path>", h.wordCount},
		{protocol.CmdContentHash, "hash <path> [djb2|blake3]", h.contentHash},
	}
	for _, s := range singles {
		if err := r.RegisterSingle(s.cmd, s.usage, s.fn); err != nil {
			return err
		}
	}

	streams := []struct {
		cmd   protocol.Command
		usage string
		fn    commands.StreamFunc
	}{
		{protocol.CmdListDirectory, "ls <path>", h.listDirectory},
		{protocol.CmdDownload, "download <path>", h.download},
		{protocol.CmdSearchPattern, "bgrep <path> <hexpattern>", h.searchPattern},
		{protocol.CmdTailFollow, "tailf <path>", h.tailFollow},
		{protocol.CmdUpload, "upload <path>", h.upload},
		{protocol.CmdAppend, "append <path>", h.appendFile},
		{protocol.CmdStreamEdit, "sed <path> <search> <replace>", h.streamEdit},
		{protocol.CmdRunLoadedCode, "run <path> [args...]", h.runLoadedCode},
		{protocol.CmdReadProcMaps, "maps", h.readProcMaps},
	}
	for _, s := range streams {
		if err := r.RegisterStream(s.cmd, s.usage, s.fn); err != nil {
			return err
		}
	}
	return nil
}
