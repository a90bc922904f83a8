// Package lock provides the non-blocking try-acquire primitive used to keep
// sync cycles single-flight.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// TryLocker is a lock that never waits.
type TryLocker interface {
	// TryLock acquires the lock if it is free and reports whether it did.
	TryLock() (bool, error)
	Unlock() error
}

// Local is an in-process TryLocker.
type Local struct {
	mu sync.Mutex
}

// NewLocal returns an unlocked in-process lock.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryLock() (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *Local) Unlock() error {
	l.mu.Unlock()
	return nil
}

// File combines an in-process lock with an advisory file lock so that two
// nfosync processes watching the same tree never sync concurrently.
type File struct {
	local Local
	flock *flock.Flock
}

// NewFile returns a lock backed by the file at path. The file is created
// on first acquisition.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &File{flock: flock.New(path)}, nil
}

// TryLock takes the in-process lock first: flock grants a second TryLock on
// the same handle, so it cannot detect overlap within one process.
func (f *File) TryLock() (bool, error) {
	if ok, _ := f.local.TryLock(); !ok {
		return false, nil
	}
	ok, err := f.flock.TryLock()
	if err != nil || !ok {
		_ = f.local.Unlock()
		if err != nil {
			return false, fmt.Errorf("lock %s: %w", f.flock.Path(), err)
		}
		return false, nil
	}
	return true, nil
}

func (f *File) Unlock() error {
	defer f.local.Unlock()
	if err := f.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", f.flock.Path(), err)
	}
	return nil
}

// Path returns the lock file path.
func (f *File) Path() string {
	return f.flock.Path()
}
