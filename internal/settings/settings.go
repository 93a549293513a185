// Package settings is the key/value store the core reads its tunables from.
package settings

import (
	"strconv"
	"strings"
	"sync"

	"github.com/codefionn/macroscript/internal/consts"
)

// Keys read by the core.
const (
	KeyNetworkBufferSize = "network.buffer_size"
	KeyRecvQueueSize     = "network.recv_queue_size"
	KeyYieldTimeSlice    = "loop.yield_time_slice"
)

// Store holds string settings.
type Store interface {
	// Get returns the value of key and whether it was set.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Close() error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Int reads key as an integer, falling back to def when it is missing or
// malformed.
func Int(s Store, key string, def int) int {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Bool reads key as a boolean, falling back to def.
func Bool(s Store, key string, def bool) bool {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// NetworkBufferSize returns the socket read buffer size, clamped to
// [16, 65535].
func NetworkBufferSize(s Store) int {
	n := Int(s, KeyNetworkBufferSize, consts.DefaultNetworkBufferSize)
	return consts.Clamp(n, consts.MinNetworkBufferSize, consts.MaxNetworkBufferSize)
}

// RecvQueueSize returns the socket receive ring capacity, clamped to
// [4, 10240].
func RecvQueueSize(s Store) int {
	n := Int(s, KeyRecvQueueSize, consts.DefaultRecvQueueSize)
	return consts.Clamp(n, consts.MinRecvQueueSize, consts.MaxRecvQueueSize)
}

// YieldTimeSlice reports whether the main loop yields instead of sleeping.
func YieldTimeSlice(s Store) bool {
	return Bool(s, KeyYieldTimeSlice, false)
}
