//go:build !linux

package session

import "syscall"

func pollReadable(raw syscall.RawConn) (bool, bool, error) {
	return false, false, nil
}
