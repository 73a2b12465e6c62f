//go:build linux

package session

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// pollReadable checks the socket with a zero-timeout poll(2).
func pollReadable(raw syscall.RawConn) (ready bool, ok bool, err error) {
	var perr error
	cerr := raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			_, perr = unix.Poll(fds, 0)
			if perr != unix.EINTR {
				break
			}
		}
		ready = fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
	})
	if cerr != nil {
		return false, false, nil
	}
	return ready, true, perr
}
