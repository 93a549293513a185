// Package lockfile keeps two processes from running the same script. The
// lock is a file holding the owner's PID; a file left behind by a dead
// process is taken over.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLocked is returned when a live process holds the lock.
var ErrLocked = errors.New("script is already running")

// Lockfile represents a file-based lock
type Lockfile struct {
	path   string
	owner  string
	file   *os.File
	locked bool
}

// New creates a lock at path. owner is recorded next to the PID for
// humans reading the file.
func New(path, owner string) *Lockfile {
	return &Lockfile{path: path, owner: owner}
}

// TryAcquire takes the lock or returns ErrLocked.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := l.create()
	if os.IsExist(err) {
		holder, stale := l.holder()
		if !stale {
			return fmt.Errorf("%w: pid %d holds %s", ErrLocked, holder, l.path)
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lockfile: %w", err)
		}
		file, err = l.create()
	}
	if err != nil {
		return fmt.Errorf("failed to create lockfile: %w", err)
	}

	l.file = file
	l.locked = true
	if _, err := fmt.Fprintf(file, "%d\n%s\n", os.Getpid(), l.owner); err != nil {
		l.Release()
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	return nil
}

func (l *Lockfile) create() (*os.File, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

// holder returns the PID in the existing file and whether it is stale.
func (l *Lockfile) holder() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, true
	}
	first, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, true
	}
	if pid == os.Getpid() {
		// Left behind by an earlier Lockfile of this process.
		return pid, false
	}
	return pid, !isProcessRunning(pid)
}

// Release drops the lock. It is safe to call more than once.
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false

	var errs []error
	if l.file != nil {
		errs = append(errs, l.file.Close())
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove lockfile: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases the lock.
func (l *Lockfile) Close() error {
	return l.Release()
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}
