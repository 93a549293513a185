package socket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/lock"
	"github.com/codefionn/macroscript/internal/logger"
)

// Registry tracks the sockets that are visible to scripts. Membership is
// guarded by the registry lock; socket fields by each socket's own lock. The
// two are never held at the same time.
type Registry struct {
	sink event.Sink
	opts Options
	log  *logger.Logger

	mu      lock.Mutex
	sockets map[int]*Socket
	nextID  atomic.Int64

	transportsMu sync.RWMutex
	transports   map[Protocol]Transport

	// onEvict is called outside both locks after a socket left the registry.
	onEvict func(*Socket)
}

// NewRegistry creates a registry that reports socket events to sink, with the
// tcp and ws transports registered.
func NewRegistry(sink event.Sink, opts Options, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	opts = opts.normalized()

	r := &Registry{
		sink:       sink,
		opts:       opts,
		log:        log,
		sockets:    make(map[int]*Socket),
		transports: make(map[Protocol]Transport),
	}
	r.RegisterTransport(ProtocolTCP, TCPTransport{
		DialTimeout:    opts.DialTimeout,
		MaxConnections: opts.MaxConnections,
	})
	r.RegisterTransport(ProtocolWebSocket, WebSocketTransport{
		DialTimeout: opts.DialTimeout,
		BufferSize:  opts.BufferSize,
		Path:        opts.WebSocketPath,
		Logger:      log,
	})
	return r
}

// Options returns the normalized options sockets of this registry use.
func (r *Registry) Options() Options {
	return r.opts
}

// RegisterTransport makes t the transport for p, replacing any previous one.
func (r *Registry) RegisterTransport(p Protocol, t Transport) {
	r.transportsMu.Lock()
	defer r.transportsMu.Unlock()
	r.transports[p] = t
}

func (r *Registry) transport(p Protocol) (Transport, error) {
	r.transportsMu.RLock()
	defer r.transportsMu.RUnlock()
	t, ok := r.transports[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, p)
	}
	return t, nil
}

// New creates an idle socket. It joins the registry once it connects or
// listens.
func (r *Registry) New(p Protocol) *Socket {
	return &Socket{
		id:       int(r.nextID.Add(1)),
		protocol: p,
		reg:      r,
		ring:     NewRing(r.opts.RecvQueueSize),
	}
}

func (r *Registry) add(s *Socket) error {
	err := r.mu.Do(r.opts.LockTimeout, func() {
		r.sockets[s.id] = s
	})
	if errors.Is(err, lock.ErrTimeout) {
		return ErrLockTimeout
	}
	return err
}

// Get returns the registered socket with the given id.
func (r *Registry) Get(id int) (*Socket, bool) {
	var s *Socket
	r.mu.Do(r.opts.LockTimeout, func() {
		s = r.sockets[id]
	})
	return s, s != nil
}

// Len returns the number of registered sockets.
func (r *Registry) Len() int {
	n := 0
	r.mu.Do(r.opts.LockTimeout, func() {
		n = len(r.sockets)
	})
	return n
}

// Stats summarizes the registered sockets.
type Stats struct {
	Sockets   int    `json:"sockets"`
	Listening int    `json:"listening"`
	Buffered  int    `json:"buffered_chunks"`
	Dropped   uint64 `json:"dropped_chunks"`
}

// Stats walks a snapshot of the registry. Each socket is locked on its own,
// after the registry lock was released.
func (r *Registry) Stats() Stats {
	var st Stats
	for _, s := range r.Sockets() {
		st.Sockets++
		if s.Listening() {
			st.Listening++
		}
		st.Buffered += s.RecvQueueSize()
		st.Dropped += s.RecvDropped()
	}
	return st
}

// Sockets returns the registered sockets ordered by id.
func (r *Registry) Sockets() []*Socket {
	return r.snapshot(r.opts.LockTimeout)
}

func (r *Registry) snapshot(d time.Duration) []*Socket {
	var out []*Socket
	r.mu.Do(d, func() {
		out = make([]*Socket, 0, len(r.sockets))
		for _, s := range r.sockets {
			out = append(out, s)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Release marks s for deletion and closes it. This is what a script's
// garbage collector calls once it drops its handle. The socket stays in the
// registry until its worker has exited.
func (r *Registry) Release(s *Socket) {
	s.withLock(r.opts.TeardownTimeout, func() {
		s.deleteMe = true
		s.closeLocked()
	})
	r.sweep(s)
}

// Sweep evicts every socket that is marked for deletion and has no running
// worker. It returns the number of evicted sockets.
func (r *Registry) Sweep() int {
	return r.sweep(r.snapshot(r.opts.TeardownTimeout)...)
}

func (r *Registry) sweep(candidates ...*Socket) int {
	var evict []*Socket
	for _, s := range candidates {
		ok := false
		s.withLock(r.opts.TeardownTimeout, func() {
			ok = s.deleteMe && s.worker == nil && !s.evicted
			if ok {
				s.evicted = true
			}
		})
		if ok {
			evict = append(evict, s)
		}
	}
	if len(evict) == 0 {
		return 0
	}

	// deleteMe is never cleared and a deleted socket never starts a new
	// worker, so the check above still holds here.
	r.mu.Do(r.opts.TeardownTimeout, func() {
		for _, s := range evict {
			delete(r.sockets, s.id)
		}
	})

	for _, s := range evict {
		r.log.Debug("socket %d evicted", s.id)
		if r.onEvict != nil {
			r.onEvict(s)
		}
	}
	return len(evict)
}

// Delete releases s and waits until its worker has exited, then evicts it.
// It returns ctx.Err() if ctx ends first; the socket is evicted later by the
// exiting worker.
func (r *Registry) Delete(ctx context.Context, s *Socket) error {
	r.Release(s)

	select {
	case <-s.Done():
	case <-ctx.Done():
		return fmt.Errorf("failed to delete socket %d: %w", s.id, ctx.Err())
	}
	r.sweep(s)
	return nil
}

// Shutdown deletes every registered socket, including connections a
// listener accepted while the shutdown was in progress.
func (r *Registry) Shutdown(ctx context.Context) error {
	total := 0
	for {
		sockets := r.snapshot(r.opts.TeardownTimeout)
		if len(sockets) == 0 {
			break
		}
		for _, s := range sockets {
			r.Release(s)
		}

		var errs []error
		for _, s := range sockets {
			if err := r.Delete(ctx, s); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		total += len(sockets)
	}

	r.log.Debug("registry shut down, %d sockets deleted", total)
	return nil
}
