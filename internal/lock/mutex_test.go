package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexZeroValue(t *testing.T) {
	var m Mutex
	m.Lock()
	assert.False(t, m.TryLockFor(0), "locked mutex must not be acquired again")
	m.Unlock()
	assert.True(t, m.TryLockFor(0))
	m.Unlock()
}

func TestTryLockForTimesOut(t *testing.T) {
	var m Mutex
	m.Lock()
	defer m.Unlock()

	start := time.Now()
	ok := m.TryLockFor(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTryLockForInfiniteWaitsForRelease(t *testing.T) {
	var m Mutex
	m.Lock()

	acquired := make(chan struct{})
	go func() {
		m.TryLockFor(Infinite)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released lock")
	}
	m.Unlock()
}

func TestDoReleasesOnPanic(t *testing.T) {
	var m Mutex

	func() {
		defer func() { _ = recover() }()
		_ = m.Do(Infinite, func() { panic("boom") })
	}()

	require.True(t, m.TryLockFor(0), "lock must be released after a panic")
	m.Unlock()
}

func TestDoReportsTimeout(t *testing.T) {
	var m Mutex
	m.Lock()
	defer m.Unlock()

	called := false
	err := m.Do(5*time.Millisecond, func() { called = true })
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, called)
}

func TestMutexExcludes(t *testing.T) {
	var m Mutex
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Do(Infinite, func() { counter++ })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5000, counter)
}

func TestUnlockOfUnlockedPanics(t *testing.T) {
	var m Mutex
	assert.Panics(t, func() { m.Unlock() })
}
