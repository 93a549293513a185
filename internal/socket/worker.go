package socket

import (
	"time"

	"github.com/codefionn/macroscript/internal/event"
)

// receive is the receiver worker. It owns the blocking reads of conn until
// the peer disconnects, a read fails or the socket is closed locally.
func (s *Socket) receive(conn Conn, w *worker) {
	final := StateClosed
	defer func() { s.finishWorker(w, final) }()

	opts := s.reg.opts
	buf := make([]byte, opts.BufferSize)
	rd, useDeadline := conn.(readDeadliner)
	useDeadline = useDeadline && opts.RecvTimeout > 0

	for {
		if useDeadline {
			_ = rd.SetReadDeadline(time.Now().Add(opts.RecvTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !s.deliver(chunk) {
				return
			}
		}
		if err == nil {
			continue
		}

		if useDeadline && isTimeout(err) {
			// The receive window elapsed; keep reading unless the socket
			// was invalidated in the meantime.
			if !s.IsOpen() {
				return
			}
			continue
		}

		final = s.reportReadError(err)
		return
	}
}

// deliver appends chunk to the receive ring and queues a socketreceived
// event. It reports false once the socket has been closed locally.
func (s *Socket) deliver(chunk []byte) bool {
	open := false
	dropped := false
	if !s.withLock(s.reg.opts.LockTimeout, func() {
		open = s.open
		if open {
			dropped = s.ring.Push(chunk)
		}
	}) {
		s.reg.log.Warn("socket %d: lock timed out, dropped %d received bytes", s.id, len(chunk))
		return true
	}
	if !open {
		return false
	}
	if dropped {
		s.reg.log.Debug("socket %d: receive queue full, dropped oldest chunk", s.id)
	}

	s.reg.sink.Push(event.New(event.TypeSocketReceived, s.ref(), event.String(chunk)))
	return true
}

// reportReadError turns a failed read into an event. Errors caused by a local
// Close are not reported; the script already knows.
func (s *Socket) reportReadError(err error) State {
	class := Classify(err)
	if !s.IsOpen() {
		return StateClosed
	}

	if class == ClassBenignDisconnect {
		s.reg.log.Debug("socket %d disconnected: %v", s.id, err)
		s.reg.sink.Push(event.New(event.TypeSocketDisconnected, s.ref()))
		return StateClosed
	}

	s.reg.log.Warn("socket %d read failed (%s): %v", s.id, class, err)
	s.reg.sink.Push(event.New(event.TypeSocketError, s.ref(), event.String(err.Error()), event.String(class.String())))
	return StateError
}

// accept is the listener worker. Every accepted connection is adopted as a
// new registered socket with its own receiver worker.
func (s *Socket) accept(ln Listener, w *worker) {
	final := StateClosed
	defer func() { s.finishWorker(w, final) }()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.IsOpen() {
				return
			}
			class := Classify(err)
			s.reg.log.Warn("socket %d accept failed (%s): %v", s.id, class, err)
			s.reg.sink.Push(event.New(event.TypeSocketError, s.ref(), event.String(err.Error()), event.String(class.String())))
			if class != ClassBenignDisconnect {
				final = StateError
			}
			return
		}
		s.adopt(conn)
	}
}

// adopt registers an accepted connection. Its socketconnected event goes
// through the new socket's local sub-queue and is promoted only after the
// socket is registered.
func (s *Socket) adopt(conn Conn) {
	child := s.reg.New(s.protocol)
	w, err := child.attach(conn, event.New(event.TypeSocketConnected, child.ref(), s.ref()))
	if err != nil {
		conn.Close()
		s.reg.log.Warn("socket %d: could not adopt connection from %s: %v", s.id, conn.RemoteAddr(), err)
		return
	}
	if err := s.reg.add(child); err != nil {
		child.discard(w)
		s.reg.log.Warn("socket %d: dropped connection from %s: %v", s.id, conn.RemoteAddr(), err)
		return
	}
	child.promote()

	s.reg.log.Debug("socket %d accepted %s as socket %d", s.id, conn.RemoteAddr(), child.id)
	go child.receive(conn, w)
}

// finishWorker runs when a worker goroutine exits: the handle is closed (at
// most once), the worker handle is cleared and signalled, and a socket already
// released for deletion is swept.
func (s *Socket) finishWorker(w *worker, final State) {
	sweep := false
	if !s.withLock(s.reg.opts.TeardownTimeout, func() {
		s.closeHandlesLocked()
		s.open = false
		s.connected = false
		s.state = final
		if s.worker == w {
			s.worker = nil
		}
		close(w.done)
		sweep = s.deleteMe
	}) {
		s.reg.log.Error("socket %d: lock timed out finishing worker", s.id)
		return
	}

	if sweep {
		s.reg.sweep(s)
	}
}
