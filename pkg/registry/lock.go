package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Lock is an advisory flock taken next to the registry file. Two
// invocations mutating the registry at once would otherwise race on a
// read-modify-write of the whole document.
type Lock struct {
	file *os.File
}

// AcquireLock blocks until the registry lock is held or the wait expires.
func (s *Store) AcquireLock(wait time.Duration) (*Lock, error) {
	lockPath := s.Path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	deadline := time.Now().Add(wait)
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			return &Lock{file: f}, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, fmt.Errorf("lock registry: %w", err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("registry is locked by another process (waited %s)", wait)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// Release drops the lock. Safe to call on a nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	defer l.file.Close()
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock registry: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the registry lock.
func (s *Store) WithLock(wait time.Duration, fn func() error) error {
	lock, err := s.AcquireLock(wait)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}
