// Package engine owns the process-wide registry of open collections: the
// single place that maps a collection name to its live state object for
// the lifetime of the process (spec.md §9 "global state" design note).
package engine

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// DirLock guards a data directory against being opened for writing by
// more than one process at once, adapted from the single-daemon pidfile
// pattern into an advisory flock so a crashed process never leaves a
// stale lock behind.
type DirLock struct {
	path string
	lock *flock.Flock
}

// NewDirLock returns a lock for the ".lock" file inside dir.
func NewDirLock(dir string) *DirLock {
	return &DirLock{path: filepath.Join(dir, ".lock")}
}

// Path returns the lock file path.
func (l *DirLock) Path() string { return l.path }

// Acquire takes the lock, failing with Unavailable if another process
// already holds it, and records this process's pid for diagnostics.
func (l *DirLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}

	l.lock = flock.New(l.path)
	ok, err := l.lock.TryLock()
	if err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	if !ok {
		return vecerrors.New(vecerrors.Unavailable, "data directory is already locked by another process", nil)
	}

	_ = os.WriteFile(l.path+".pid", []byte(strconv.Itoa(os.Getpid())), 0o644)
	return nil
}

// Release drops the lock.
func (l *DirLock) Release() error {
	if l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	_ = os.Remove(l.path + ".pid")
	return nil
}

// HolderPID returns the pid recorded by whichever process last acquired
// the lock, or 0 if unknown.
func (l *DirLock) HolderPID() int {
	data, err := os.ReadFile(l.path + ".pid")
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}
