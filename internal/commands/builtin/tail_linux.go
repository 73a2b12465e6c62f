package builtin

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// fileWatcher wakes on IN_MODIFY and related events for one file.
type fileWatcher struct {
	fd  int
	buf []byte
}

func newFileWatcher(path string) (*fileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	if _, err := unix.InotifyAddWatch(fd, path, unix.IN_MODIFY|unix.IN_CLOSE_WRITE|unix.IN_ATTRIB); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch on %s: %w", path, err)
	}
	return &fileWatcher{fd: fd, buf: make([]byte, 4096)}, nil
}

// Wait polls the inotify descriptor and drains any queued events.
func (w *fileWatcher) Wait(timeout time.Duration) {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil || n == 0 {
		return
	}
	for {
		if _, err := unix.Read(w.fd, w.buf); err != nil {
			return
		}
	}
}

func (w *fileWatcher) Close() error {
	return unix.Close(w.fd)
}
