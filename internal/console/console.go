// Package console reports the size of the controlling terminal and saves
// its mode so the fatal path can put it back.
package console

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when none of the console's files is a terminal.
var ErrNotTerminal = errors.New("not a terminal")

// Console wraps the standard streams.
type Console struct {
	files []*os.File

	mu    sync.Mutex
	saved *term.State
	fd    int
}

// New returns a console over stdout, stdin and stderr, tried in that order.
func New() *Console {
	return NewWithFiles(os.Stdout, os.Stdin, os.Stderr)
}

// NewWithFiles returns a console over the given files.
func NewWithFiles(files ...*os.File) *Console {
	return &Console{files: files, fd: -1}
}

func (c *Console) terminalFD() (int, bool) {
	for _, f := range c.files {
		if f == nil {
			continue
		}
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			return fd, true
		}
	}
	return -1, false
}

// IsTerminal reports whether any of the files is a terminal.
func (c *Console) IsTerminal() bool {
	_, ok := c.terminalFD()
	return ok
}

// Size returns the terminal size in character cells.
func (c *Console) Size() (int, int, error) {
	for _, f := range c.files {
		if f == nil {
			continue
		}
		fd := int(f.Fd())
		if !term.IsTerminal(fd) {
			continue
		}
		if width, height, err := term.GetSize(fd); err == nil && width > 0 && height > 0 {
			return width, height, nil
		}
	}
	return 0, 0, ErrNotTerminal
}

// SaveState records the current terminal mode for Restore.
func (c *Console) SaveState() error {
	fd, ok := c.terminalFD()
	if !ok {
		return ErrNotTerminal
	}
	state, err := term.GetState(fd)
	if err != nil {
		return fmt.Errorf("failed to read terminal state: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = state
	c.fd = fd
	return nil
}

// Restore puts back the mode recorded by SaveState. It does nothing when no
// state was saved.
func (c *Console) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saved == nil {
		return nil
	}
	if err := term.Restore(c.fd, c.saved); err != nil {
		return fmt.Errorf("failed to restore terminal state: %w", err)
	}
	return nil
}
