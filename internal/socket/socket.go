package socket

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/lock"
)

// State is the lifecycle state of a Socket.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// worker is the completion handle of the goroutine that owns a socket's
// blocking I/O. done is closed when the goroutine has exited.
type worker struct {
	done chan struct{}
}

func newWorker() *worker {
	return &worker{done: make(chan struct{})}
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Socket is a script-visible connection or listener. It is shared between the
// script and its worker goroutine; the registry frees it only after both
// have let go (see Registry.Sweep).
type Socket struct {
	id       int
	protocol Protocol
	reg      *Registry

	mu        lock.Mutex
	state     State
	open      bool
	connected bool
	listening bool
	deleteMe  bool
	evicted   bool
	conn      Conn
	listener  Listener
	worker    *worker
	ring      *Ring
	local     []event.Event
	localIP   string
	localPort int
	remoteIP  string
}

// ID returns the registry-assigned identifier.
func (s *Socket) ID() int { return s.id }

// Protocol returns the transport protocol.
func (s *Socket) Protocol() Protocol { return s.protocol }

func (s *Socket) ref() event.Data { return event.SocketRef{Socket: s} }

func (s *Socket) withLock(d time.Duration, fn func()) bool {
	return s.mu.Do(d, fn) == nil
}

// Connect dials host:port and, on success, registers the socket and starts
// its receiver worker. A socketconnected event is queued before Connect
// returns.
func (s *Socket) Connect(ctx context.Context, host string, port int) error {
	transport, err := s.reg.transport(s.protocol)
	if err != nil {
		return err
	}

	var stateErr error
	if !s.withLock(s.reg.opts.LockTimeout, func() {
		switch {
		case s.deleteMe:
			stateErr = ErrDeleted
		case s.open || s.state == StateConnecting || s.worker != nil:
			stateErr = ErrAlreadyOpen
		default:
			s.state = StateConnecting
		}
	}) {
		return ErrLockTimeout
	}
	if stateErr != nil {
		return stateErr
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := transport.Dial(ctx, address)
	if err != nil {
		s.withLock(s.reg.opts.TeardownTimeout, func() { s.state = StateError })
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	w, err := s.attach(conn, event.New(event.TypeSocketConnected, s.ref()))
	if err != nil {
		conn.Close()
		return err
	}
	if err := s.reg.add(s); err != nil {
		s.discard(w)
		s.reg.log.Warn("socket %d connected but could not be registered: %v", s.id, err)
		return err
	}
	s.promote()

	s.reg.log.Debug("socket %d connected to %s", s.id, address)
	go s.receive(conn, w)
	return nil
}

// Listen binds host:port and starts a listener worker. Every accepted
// connection becomes a new registered Socket with its own receiver worker.
func (s *Socket) Listen(host string, port int) error {
	transport, err := s.reg.transport(s.protocol)
	if err != nil {
		return err
	}

	var stateErr error
	if !s.withLock(s.reg.opts.LockTimeout, func() {
		switch {
		case s.deleteMe:
			stateErr = ErrDeleted
		case s.open || s.state == StateConnecting || s.worker != nil:
			stateErr = ErrAlreadyOpen
		default:
			s.state = StateConnecting
		}
	}) {
		return ErrLockTimeout
	}
	if stateErr != nil {
		return stateErr
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := transport.Listen(address)
	if err != nil {
		s.withLock(s.reg.opts.TeardownTimeout, func() { s.state = StateError })
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	var w *worker
	if !s.withLock(s.reg.opts.TeardownTimeout, func() {
		if s.deleteMe {
			stateErr = ErrDeleted
			return
		}
		s.listener = ln
		s.open = true
		s.listening = true
		s.state = StateOpen
		s.localIP, s.localPort = splitAddr(ln.Addr())
		w = newWorker()
		s.worker = w
	}) || stateErr != nil {
		ln.Close()
		if stateErr == nil {
			stateErr = ErrLockTimeout
		}
		return stateErr
	}

	if err := s.reg.add(s); err != nil {
		s.discard(w)
		s.reg.log.Warn("socket %d listening but could not be registered: %v", s.id, err)
		return err
	}

	s.reg.log.Info("socket %d listening on %s", s.id, ln.Addr())
	go s.accept(ln, w)
	return nil
}

// attach installs conn, marks the socket open and puts first on its local
// sub-queue, all under the socket lock.
func (s *Socket) attach(conn Conn, first event.Event) (*worker, error) {
	var w *worker
	var stateErr error
	if !s.withLock(s.reg.opts.TeardownTimeout, func() {
		if s.deleteMe {
			stateErr = ErrDeleted
			return
		}
		s.conn = conn
		s.open = true
		s.connected = true
		s.state = StateOpen
		s.localIP, s.localPort = splitAddr(conn.LocalAddr())
		s.remoteIP, _ = splitAddr(conn.RemoteAddr())
		s.local = append(s.local, first)
		w = newWorker()
		s.worker = w
	}) {
		return nil, ErrLockTimeout
	}
	return w, stateErr
}

// discard undoes an open whose socket could not be registered. The worker w
// was never started, so its handle is cleared and signalled here, and the
// pending local events are dropped unseen.
func (s *Socket) discard(w *worker) {
	s.withLock(s.reg.opts.TeardownTimeout, func() {
		if s.worker == w {
			s.worker = nil
		}
		close(w.done)
		s.local = nil
		s.listening = false
		s.closeLocked()
	})
}

// promote moves the local sub-queue into the global event queue.
func (s *Socket) promote() {
	var pending []event.Event
	if !s.withLock(s.reg.opts.LockTimeout, func() {
		pending = s.local
		s.local = nil
	}) {
		s.reg.log.Warn("socket %d: lock timed out promoting local events", s.id)
		return
	}
	s.reg.sink.PushAll(pending)
}

// Send writes b to the connection. It reports false when the socket is not
// connected or the write fails.
func (s *Socket) Send(b []byte) bool {
	var conn Conn
	if !s.withLock(s.reg.opts.LockTimeout, func() {
		if s.open && s.connected {
			conn = s.conn
		}
	}) || conn == nil {
		return false
	}

	if wd, ok := conn.(writeDeadliner); ok && s.reg.opts.WriteTimeout > 0 {
		_ = wd.SetWriteDeadline(time.Now().Add(s.reg.opts.WriteTimeout))
	}
	n, err := conn.Write(b)
	if err != nil {
		s.reg.log.Debug("socket %d send failed: %v", s.id, err)
		return false
	}
	return n == len(b)
}

// Recv pops the oldest received chunk without blocking. It returns nil when
// nothing is buffered.
func (s *Socket) Recv() []byte {
	var b []byte
	s.withLock(s.reg.opts.LockTimeout, func() {
		if s.ring != nil {
			b, _ = s.ring.Pop()
		}
	})
	return b
}

// FlushRecvQueue discards every buffered chunk.
func (s *Socket) FlushRecvQueue() {
	s.withLock(s.reg.opts.LockTimeout, func() {
		if s.ring != nil {
			s.ring.Clear()
		}
	})
}

// RecvQueueSize returns the number of buffered chunks.
func (s *Socket) RecvQueueSize() int {
	n := 0
	s.withLock(s.reg.opts.LockTimeout, func() {
		if s.ring != nil {
			n = s.ring.Len()
		}
	})
	return n
}

// RecvDropped returns how many chunks the receive ring discarded.
func (s *Socket) RecvDropped() uint64 {
	var n uint64
	s.withLock(s.reg.opts.LockTimeout, func() {
		if s.ring != nil {
			n = s.ring.Dropped()
		}
	})
	return n
}

// Close invalidates the socket and closes its handle. It is idempotent. A
// worker blocked in a read notices on its next failed read and exits.
func (s *Socket) Close() error {
	s.withLock(s.reg.opts.TeardownTimeout, s.closeLocked)
	return nil
}

func (s *Socket) closeLocked() {
	if s.open {
		s.state = StateClosing
	}
	s.open = false
	s.connected = false
	s.closeHandlesLocked()
	if s.worker == nil && s.state != StateError && s.state != StateIdle {
		s.state = StateClosed
	}
}

// closeHandlesLocked closes the OS handles. Handles are cleared once closed,
// so each one is closed exactly once.
func (s *Socket) closeHandlesLocked() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.reg.log.Debug("socket %d close: %v", s.id, err)
		}
		s.conn = nil
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.reg.log.Debug("socket %d listener close: %v", s.id, err)
		}
		s.listener = nil
	}
}

// State returns the lifecycle state.
func (s *Socket) State() State {
	st := StateIdle
	s.withLock(s.reg.opts.LockTimeout, func() { st = s.state })
	return st
}

// IsOpen reports whether the socket is open.
func (s *Socket) IsOpen() bool {
	open := false
	s.withLock(s.reg.opts.LockTimeout, func() { open = s.open })
	return open
}

// Listening reports whether the socket is a listener.
func (s *Socket) Listening() bool {
	listening := false
	s.withLock(s.reg.opts.LockTimeout, func() { listening = s.listening })
	return listening
}

// IP returns the local address.
func (s *Socket) IP() string {
	ip := ""
	s.withLock(s.reg.opts.LockTimeout, func() { ip = s.localIP })
	return ip
}

// Port returns the local port, which is the bound port for listeners.
func (s *Socket) Port() int {
	port := 0
	s.withLock(s.reg.opts.LockTimeout, func() { port = s.localPort })
	return port
}

// RemoteIP returns the peer address; empty for listeners.
func (s *Socket) RemoteIP() string {
	ip := ""
	s.withLock(s.reg.opts.LockTimeout, func() { ip = s.remoteIP })
	return ip
}

// Done returns a channel closed once no worker goroutine owns the socket.
func (s *Socket) Done() <-chan struct{} {
	done := closedDone
	s.withLock(s.reg.opts.TeardownTimeout, func() {
		if s.worker != nil {
			done = s.worker.done
		}
	})
	return done
}

func (s *Socket) String() string {
	return fmt.Sprintf("socket(%d, %s)", s.id, s.protocol)
}

func splitAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	n, _ := strconv.Atoi(port)
	return host, n
}
