package builtin

import (
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// FileStat is the subset of stat(2) the handlers report.
type FileStat struct {
	Size  int64
	Mode  uint32
	UID   uint32
	GID   uint32
	Atime time.Time
	Mtime time.Time
}

// File is a readable, seekable open file.
type File interface {
	io.Reader
	io.Seeker
	io.Closer
}

type DirReader interface {
	ReadDir(n int) ([]iofs.DirEntry, error)
	Close() error
}

// TempFile is a sibling file written before an atomic rename.
type TempFile interface {
	io.Writer
	Name() string
	Chmod(mode iofs.FileMode) error
	Sync() error
	Close() error
}

// FS is the operating-system capability handlers run against.
type FS interface {
	Open(name string) (File, error)
	OpenDir(name string) (DirReader, error)
	OpenAppend(name string) (io.WriteCloser, error)
	CreateTemp(target string) (TempFile, error)
	Stat(name string) (FileStat, error)
	Getwd() (string, error)
	Chtimes(name string, atime, mtime time.Time) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// OSFS is FS backed by the host.
type OSFS struct{}

func (OSFS) Open(name string) (File, error) {
	return os.Open(name)
}

func (OSFS) OpenDir(name string) (DirReader, error) {
	return os.Open(name)
}

func (OSFS) OpenAppend(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
}

func (OSFS) CreateTemp(target string) (TempFile, error) {
	return os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
}

// Stat follows symlinks.
func (OSFS) Stat(name string) (FileStat, error) {
	var st unix.Stat_t
	if err := unix.Stat(name, &st); err != nil {
		return FileStat{}, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	return FileStat{
		Size:  st.Size,
		Mode:  st.Mode,
		UID:   st.Uid,
		GID:   st.Gid,
		Atime: time.Unix(st.Atim.Unix()),
		Mtime: time.Unix(st.Mtim.Unix()),
	}, nil
}

func (OSFS) Getwd() (string, error) {
	return os.Getwd()
}

// Chtimes sets both timestamps with utimensat(2).
func (OSFS) Chtimes(name string, atime, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, name, ts, 0); err != nil {
		return &os.PathError{Op: "utimensat", Path: name, Err: err}
	}
	return nil
}

func (OSFS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (OSFS) Remove(name string) error {
	return os.Remove(name)
}
