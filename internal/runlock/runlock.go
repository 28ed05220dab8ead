// Package runlock provides the exclusive lease that keeps two sync runs from
// operating on the same state directory at once.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"podmirror/internal/services"
)

// Lease is a held run lock.
type Lease struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock at path without blocking. A lock held by another
// process yields services.ErrAlreadyRunning. The lock is advisory and is
// released by the kernel if the process dies.
func Acquire(path string) (*Lease, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrAlreadyRunning, "lock", "acquire", path, nil)
	}
	return &Lease{path: path, lock: lock}, nil
}

// Path returns the lock file.
func (l *Lease) Path() string { return l.path }

// Release drops the lock. It is safe to call more than once.
func (l *Lease) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Held reports whether another process currently holds the lock at path.
func Held(path string) (bool, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
