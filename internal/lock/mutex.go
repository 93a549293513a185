// Package lock provides a mutex with bounded or unbounded acquisition.
package lock

import (
	"errors"
	"sync"
	"time"
)

// Infinite makes TryLockFor and Do wait until the lock is acquired.
const Infinite time.Duration = -1

// ErrTimeout is returned when a bounded acquisition gives up.
var ErrTimeout = errors.New("lock acquisition timed out")

// Mutex is a mutual exclusion lock whose acquisition can be bounded by a
// timeout. The zero value is an unlocked mutex.
type Mutex struct {
	once sync.Once
	ch   chan struct{}
}

func (m *Mutex) init() {
	m.once.Do(func() {
		m.ch = make(chan struct{}, 1)
	})
}

// Lock blocks until the mutex is acquired.
func (m *Mutex) Lock() {
	m.init()
	m.ch <- struct{}{}
}

// TryLockFor tries to acquire the mutex within d. A negative d waits forever,
// zero tries exactly once.
func (m *Mutex) TryLockFor(d time.Duration) bool {
	m.init()

	if d < 0 {
		m.ch <- struct{}{}
		return true
	}

	select {
	case m.ch <- struct{}{}:
		return true
	default:
	}
	if d == 0 {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m.ch <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// Unlock releases the mutex. Unlocking an unlocked mutex panics.
func (m *Mutex) Unlock() {
	m.init()
	select {
	case <-m.ch:
	default:
		panic("lock: unlock of unlocked mutex")
	}
}

// Do runs fn while holding the mutex, acquired within d. The mutex is
// released on every exit path, including a panic in fn.
func (m *Mutex) Do(d time.Duration, fn func()) error {
	if !m.TryLockFor(d) {
		return ErrTimeout
	}
	defer m.Unlock()

	fn()
	return nil
}
