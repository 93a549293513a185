package socket

import (
	"time"

	"github.com/codefionn/macroscript/internal/consts"
	"github.com/codefionn/macroscript/internal/lock"
)

// Options configures sockets created by a Registry.
type Options struct {
	// BufferSize is the read buffer size of receiver workers, clamped to [16, 65535].
	BufferSize int
	// RecvQueueSize is the receive ring capacity, clamped to [4, 10240].
	RecvQueueSize int
	// RecvTimeout is the receive-timeout window of deadline-capable transports.
	// Zero disables read deadlines.
	RecvTimeout time.Duration
	DialTimeout time.Duration
	// WriteTimeout bounds one Send. Zero disables write deadlines.
	WriteTimeout time.Duration
	// LockTimeout bounds lock acquisition on producer and script paths.
	LockTimeout time.Duration
	// TeardownTimeout bounds lock acquisition on close/delete/shutdown paths.
	TeardownTimeout time.Duration
	// MaxConnections caps concurrently accepted connections per listener; 0 = unlimited.
	MaxConnections int
	// WebSocketPath is the HTTP path websocket listeners accept upgrades on.
	WebSocketPath string
}

// DefaultOptions returns the built-in socket defaults.
func DefaultOptions() Options {
	return Options{
		BufferSize:      consts.DefaultNetworkBufferSize,
		RecvQueueSize:   consts.DefaultRecvQueueSize,
		RecvTimeout:     consts.DefaultRecvTimeout,
		DialTimeout:     consts.DefaultDialTimeout,
		WriteTimeout:    consts.DefaultWriteTimeout,
		LockTimeout:     consts.LockTimeoutShort,
		TeardownTimeout: lock.Infinite,
		MaxConnections:  consts.DefaultMaxConnections,
		WebSocketPath:   "/",
	}
}

func (o Options) normalized() Options {
	o.BufferSize = consts.Clamp(o.BufferSize, consts.MinNetworkBufferSize, consts.MaxNetworkBufferSize)
	o.RecvQueueSize = consts.Clamp(o.RecvQueueSize, consts.MinRecvQueueSize, consts.MaxRecvQueueSize)
	if o.DialTimeout <= 0 {
		o.DialTimeout = consts.DefaultDialTimeout
	}
	if o.LockTimeout == 0 {
		o.LockTimeout = consts.LockTimeoutShort
	}
	if o.TeardownTimeout == 0 {
		o.TeardownTimeout = lock.Infinite
	}
	if o.WebSocketPath == "" {
		o.WebSocketPath = "/"
	}
	return o
}
