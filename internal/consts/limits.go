package consts

import "time"

// Network buffer limits
const (
	// MinNetworkBufferSize is the smallest read buffer a socket worker uses
	MinNetworkBufferSize = 16
	// MaxNetworkBufferSize is the largest read buffer a socket worker uses
	MaxNetworkBufferSize = 65535
	// DefaultNetworkBufferSize is the read buffer size when nothing is configured
	DefaultNetworkBufferSize = 1024
)

// Receive queue limits
const (
	// MinRecvQueueSize is the smallest receive ring capacity
	MinRecvQueueSize = 4
	// MaxRecvQueueSize is the largest receive ring capacity
	MaxRecvQueueSize = 10240
	// DefaultRecvQueueSize is the receive ring capacity when nothing is configured
	DefaultRecvQueueSize = 64
)

// Lock timeouts
const (
	// LockTimeoutShort bounds producer-side lock acquisition (event push, worker state updates)
	LockTimeoutShort = 100 * time.Millisecond
	// LockTimeoutInfinite waits forever; used by teardown paths
	LockTimeoutInfinite time.Duration = -1
)

// Socket timeouts
const (
	// DefaultDialTimeout bounds the synchronous connect handshake
	DefaultDialTimeout = 5 * time.Second
	// DefaultRecvTimeout is the receive-timeout window of deadline-capable transports
	DefaultRecvTimeout = 250 * time.Millisecond
	// DefaultWriteTimeout bounds a single Send
	DefaultWriteTimeout = 5 * time.Second
	// DefaultMaxConnections caps concurrently accepted connections per listener
	DefaultMaxConnections = 64
)

// Input timings
const (
	// DefaultKeyHoldDuration is how long a pressed key stays down before release
	DefaultKeyHoldDuration = 50 * time.Millisecond
	// DefaultRepollInterval is how often input devices are re-enumerated
	DefaultRepollInterval = 5 * time.Second
	// DefaultAxisThreshold is the minimum normalised axis change reported as an event
	DefaultAxisThreshold = 0.05
)

// Main loop
const (
	// DefaultCycleInterval is the main loop sleep when the yield flag is off
	DefaultCycleInterval = time.Millisecond
	// DefaultMaxMessagesPerCycle bounds OS message pumping per cycle
	DefaultMaxMessagesPerCycle = 32
	// DefaultConsolePollInterval is how often the console size is checked
	DefaultConsolePollInterval = 250 * time.Millisecond
)

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
