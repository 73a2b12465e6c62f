package protocol

import "fmt"

// Command is the kind byte of a request frame.
type Command uint8

const (
	CmdGetStats        Command = 0x01
	CmdListDirectory   Command = 0x02
	CmdPrintWorkingDir Command = 0x03
	CmdDownload        Command = 0x04
	CmdSearchPattern   Command = 0x05
	CmdTailFollow      Command = 0x06
	CmdCancel          Command = 0x07
	CmdExit            Command = 0x08
	CmdUpload          Command = 0x09
	CmdAppend          Command = 0x0A
	CmdSetTimestamps   Command = 0x0B
	CmdWordCount       Command = 0x0C
	CmdContentHash     Command = 0x0D
	CmdStreamEdit      Command = 0x0E
	CmdRunLoadedCode   Command = 0x0F
	CmdReadProcMaps    Command = 0x10

	MinCommand = CmdGetStats
	MaxCommand = CmdReadProcMaps
)

var commandNames = map[Command]string{
	CmdGetStats:        "get-stats",
	CmdListDirectory:   "list-directory",
	CmdPrintWorkingDir: "print-working-dir",
	CmdDownload:        "download",
	CmdSearchPattern:   "search-binary-pattern",
	CmdTailFollow:      "tail-follow",
	CmdCancel:          "cancel",
	CmdExit:            "exit",
	CmdUpload:          "upload",
	CmdAppend:          "append",
	CmdSetTimestamps:   "set-timestamps",
	CmdWordCount:       "word-count",
	CmdContentHash:     "content-hash",
	CmdStreamEdit:      "stream-edit",
	CmdRunLoadedCode:   "run-loaded-code",
	CmdReadProcMaps:    "read-process-maps",
}

// Valid reports whether c is one of the enumerated command codes.
func (c Command) Valid() bool {
	return c >= MinCommand && c <= MaxCommand
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(0x%02x)", uint8(c))
}

// Commands returns every enumerated command in code order.
func Commands() []Command {
	out := make([]Command, 0, int(MaxCommand-MinCommand)+1)
	for c := MinCommand; c <= MaxCommand; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCommand resolves a command by its wire name.
func ParseCommand(name string) (Command, bool) {
	for c, n := range commandNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Status is the kind byte of a response frame.
type Status uint8

const (
	StatusOK       Status = 0x00
	StatusError    Status = 0x01
	StatusMoreData Status = 0x02
)

// Terminal reports whether s ends a chunked stream.
func (s Status) Terminal() bool {
	return s != StatusMoreData
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusMoreData:
		return "more-data"
	default:
		return fmt.Sprintf("status(0x%02x)", uint8(s))
	}
}
