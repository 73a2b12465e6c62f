package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// PathArg returns the payload up to the first NUL byte.
func PathArg(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		return string(payload[:i])
	}
	return string(payload)
}

// SplitArgs splits a payload of consecutive NUL-terminated strings. A
// missing terminator on the last string is accepted, and trailing NUL
// padding does not produce empty arguments.
func SplitArgs(payload []byte) []string {
	payload = bytes.TrimRight(payload, "\x00")
	if len(payload) == 0 {
		return []string{}
	}
	parts := bytes.Split(payload, []byte{0})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

// PositionalArgs splits payload into exactly n NUL separated fields.
// Missing fields are empty, so "a\x00b\x00" yields an empty third field
// instead of losing it. NUL padding after the last field is dropped.
func PositionalArgs(payload []byte, n int) []string {
	out := make([]string, n)
	if n <= 0 {
		return out
	}
	parts := bytes.SplitN(payload, []byte{0}, n)
	parts[len(parts)-1] = bytes.TrimRight(parts[len(parts)-1], "\x00")
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

// FieldArgs accepts either a NUL separated vector or a single whitespace
// separated string, as older controllers send "path atime mtime".
func FieldArgs(payload []byte) []string {
	args := SplitArgs(payload)
	if len(args) == 1 {
		return strings.Fields(args[0])
	}
	return args
}

// JoinArgs is the inverse of SplitArgs.
func JoinArgs(args ...string) []byte {
	var buf bytes.Buffer
	for i, a := range args {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(a)
	}
	return buf.Bytes()
}

// RequireArgs checks that args has at least n entries and none of the first
// n is empty.
func RequireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("%w: usage: %s", ErrInvalidArgs, usage)
	}
	for i := 0; i < n; i++ {
		if args[i] == "" {
			return fmt.Errorf("%w: usage: %s", ErrInvalidArgs, usage)
		}
	}
	return nil
}
