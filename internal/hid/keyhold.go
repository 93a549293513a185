package hid

import (
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/macroscript/internal/consts"
	"github.com/codefionn/macroscript/internal/logger"
)

// KeyTimePair is a synthetic key press waiting for its release.
type KeyTimePair struct {
	At     time.Time
	VK     int
	Target Window
}

// KeyHold sends synthetic key presses. Asynchronous presses are released
// later by HandleKeyHeldQueue, in press order.
type KeyHold struct {
	sender Sender
	clock  Clock
	hold   time.Duration
	log    *logger.Logger

	mu   sync.Mutex
	held []KeyTimePair
	head int
}

// NewKeyHold creates a scheduler holding keys for hold (the default hold
// duration if zero).
func NewKeyHold(sender Sender, clock Clock, hold time.Duration, log *logger.Logger) *KeyHold {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if sender == nil {
		sender = LogSender{Log: log}
	}
	if hold <= 0 {
		hold = consts.DefaultKeyHoldDuration
	}
	return &KeyHold{sender: sender, clock: clock, hold: hold, log: log}
}

// HoldDuration returns how long a key stays down.
func (k *KeyHold) HoldDuration() time.Duration {
	return k.hold
}

// Press sends vk down. With async it returns at once and the release is
// left to HandleKeyHeldQueue; otherwise it waits the hold duration and
// sends the release itself.
func (k *KeyHold) Press(vk int, async bool, target Window) error {
	if err := k.sender.KeyDown(vk, target); err != nil {
		return fmt.Errorf("failed to press key %d: %w", vk, err)
	}

	if async {
		k.mu.Lock()
		k.held = append(k.held, KeyTimePair{At: k.clock.Now(), VK: vk, Target: target})
		k.mu.Unlock()
		return nil
	}

	k.clock.Sleep(k.hold)
	if err := k.sender.KeyUp(vk, target); err != nil {
		return fmt.Errorf("failed to release key %d: %w", vk, err)
	}
	return nil
}

// HandleKeyHeldQueue releases every held key whose hold duration has
// elapsed. Entries are due in order, so it stops at the first one that is
// not. It returns the number of released keys.
func (k *KeyHold) HandleKeyHeldQueue() int {
	now := k.clock.Now()

	k.mu.Lock()
	var due []KeyTimePair
	for k.head < len(k.held) && now.Sub(k.held[k.head].At) >= k.hold {
		due = append(due, k.held[k.head])
		k.head++
	}
	k.compactLocked()
	k.mu.Unlock()

	k.release(due)
	return len(due)
}

// ReleaseAll releases every held key regardless of its due time.
func (k *KeyHold) ReleaseAll() int {
	k.mu.Lock()
	due := append([]KeyTimePair(nil), k.held[k.head:]...)
	k.held = k.held[:0]
	k.head = 0
	k.mu.Unlock()

	k.release(due)
	return len(due)
}

// Pending returns the number of keys still held.
func (k *KeyHold) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.held) - k.head
}

func (k *KeyHold) release(due []KeyTimePair) {
	for _, p := range due {
		if err := k.sender.KeyUp(p.VK, p.Target); err != nil {
			k.log.Warn("failed to release held key %d: %v", p.VK, err)
		}
	}
}

func (k *KeyHold) compactLocked() {
	switch {
	case k.head == len(k.held):
		k.held = k.held[:0]
		k.head = 0
	case k.head >= 32 && k.head*2 >= len(k.held):
		n := copy(k.held, k.held[k.head:])
		k.held = k.held[:n]
		k.head = 0
	}
}
