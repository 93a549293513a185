package script

import (
	"errors"
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

// ErrNoClipboard is returned when no clipboard is configured.
var ErrNoClipboard = errors.New("clipboard is not available")

// Clipboard is the text clipboard scripts can read and write.
type Clipboard interface {
	Text() (string, error)
	SetText(s string) error
}

// SystemClipboard is the desktop clipboard. It is initialized on first use.
type SystemClipboard struct {
	once sync.Once
	err  error
}

func (c *SystemClipboard) init() error {
	c.once.Do(func() {
		if err := clipboard.Init(); err != nil {
			c.err = fmt.Errorf("failed to initialize clipboard: %w", err)
		}
	})
	return c.err
}

func (c *SystemClipboard) Text() (string, error) {
	if err := c.init(); err != nil {
		return "", err
	}
	return string(clipboard.Read(clipboard.FmtText)), nil
}

func (c *SystemClipboard) SetText(s string) error {
	if err := c.init(); err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtText, []byte(s))
	return nil
}

// MemoryClipboard keeps the text in process.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *MemoryClipboard) Text() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *MemoryClipboard) SetText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = s
	return nil
}
