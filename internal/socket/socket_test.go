package socket

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/lock"
)

const protocolFake Protocol = "fake"

// chanSink collects pushed events for assertions.
type chanSink struct {
	ch chan event.Event
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan event.Event, 1024)}
}

func (s *chanSink) Push(ev event.Event) bool {
	s.ch <- ev
	return true
}

func (s *chanSink) PushAll(evs []event.Event) bool {
	for _, ev := range evs {
		s.ch <- ev
	}
	return true
}

func (s *chanSink) next(t *testing.T, typ event.Type) event.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.ch:
			if ev.Type() == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
			return event.Event{}
		}
	}
}

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// fakeConn blocks in Read until data or an error is injected, or it is
// closed. It counts Close calls.
type fakeConn struct {
	reads     chan []byte
	fail      chan error
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 16),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case b := <-c.reads:
		return copy(p, b), nil
	case err := <-c.fail:
		return 0, err
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
		return len(p), nil
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr  { return fakeAddr("127.0.0.1:1000") }
func (c *fakeConn) RemoteAddr() net.Addr { return fakeAddr("127.0.0.1:2000") }

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Dial(ctx context.Context, address string) (Conn, error) {
	c := newFakeConn()
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) Listen(address string) (Listener, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[len(t.conns)-1]
}

func newFakeRegistry(t *testing.T) (*Registry, *fakeTransport, *chanSink) {
	t.Helper()
	sink := newChanSink()
	reg := NewRegistry(sink, DefaultOptions(), nil)
	ft := &fakeTransport{}
	reg.RegisterTransport(protocolFake, ft)
	return reg, ft, sink
}

func waitDone(t *testing.T, s *Socket, d time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(d):
		t.Fatalf("worker of socket %d did not exit within %s", s.ID(), d)
	}
}

func TestConnectQueuesConnectedEventAndRegisters(t *testing.T) {
	reg, _, sink := newFakeRegistry(t)

	s := reg.New(protocolFake)
	require.NoError(t, s.Connect(context.Background(), "127.0.0.1", 2000))

	ev := sink.next(t, event.TypeSocketConnected)
	assert.Same(t, s, ev.At(0).Value())
	got, ok := reg.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, "127.0.0.1", s.IP())
	assert.Equal(t, "127.0.0.1", s.RemoteIP())

	assert.ErrorIs(t, s.Connect(context.Background(), "127.0.0.1", 2000), ErrAlreadyOpen)
}

func TestReceivedChunksReachRingAndQueue(t *testing.T) {
	reg, ft, sink := newFakeRegistry(t)

	s := reg.New(protocolFake)
	require.NoError(t, s.Connect(context.Background(), "127.0.0.1", 2000))
	conn := ft.last()

	conn.reads <- []byte("hello")
	ev := sink.next(t, event.TypeSocketReceived)
	assert.Equal(t, "hello", ev.At(1).String())

	assert.Equal(t, 1, s.RecvQueueSize())
	assert.Equal(t, []byte("hello"), s.Recv())
	assert.Nil(t, s.Recv())

	conn.reads <- []byte("a")
	conn.reads <- []byte("b")
	sink.next(t, event.TypeSocketReceived)
	sink.next(t, event.TypeSocketReceived)
	s.FlushRecvQueue()
	assert.Equal(t, 0, s.RecvQueueSize())
}

func TestCloseTwiceClosesHandleOnce(t *testing.T) {
	reg, ft, _ := newFakeRegistry(t)

	s := reg.New(protocolFake)
	require.NoError(t, s.Connect(context.Background(), "127.0.0.1", 2000))
	conn := ft.last()

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	waitDone(t, s, time.Second)
	assert.NoError(t, s.Close())

	assert.Equal(t, int32(1), conn.closes.Load())
	assert.False(t, s.IsOpen())
	assert.Equal(t, StateClosed, s.State())
	assert.False(t, s.Send([]byte("x")))
}

func TestReadErrorsBecomeEvents(t *testing.T) {
	reg, ft, sink := newFakeRegistry(t)

	s := reg.New(protocolFake)
	require.NoError(t, s.Connect(context.Background(), "127.0.0.1", 2000))
	ft.last().fail <- os.NewSyscallError("read", syscall.ECONNRESET)

	ev := sink.next(t, event.TypeSocketError)
	assert.Equal(t, "transport-error", ev.At(2).String())
	waitDone(t, s, time.Second)
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, int32(1), ft.last().closes.Load())

	s2 := reg.New(protocolFake)
	require.NoError(t, s2.Connect(context.Background(), "127.0.0.1", 2000))
	ft.last().fail <- io.EOF
	sink.next(t, event.TypeSocketDisconnected)
	waitDone(t, s2, time.Second)
}

func TestDeleteWaitsForWorkerThenEvicts(t *testing.T) {
	reg, _, _ := newFakeRegistry(t)

	s := reg.New(protocolFake)
	require.NoError(t, s.Connect(context.Background(), "127.0.0.1", 2000))
	require.Equal(t, 1, reg.Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Delete(ctx, s))

	assert.Equal(t, 0, reg.Len())
	assert.ErrorIs(t, s.Connect(context.Background(), "127.0.0.1", 2000), ErrDeleted)
}

func TestRegistryNeverEvictsLiveWorker(t *testing.T) {
	reg, ft, _ := newFakeRegistry(t)

	var violations atomic.Int32
	reg.onEvict = func(s *Socket) {
		live := false
		s.withLock(lock.Infinite, func() { live = s.worker != nil })
		if live {
			violations.Add(1)
		}
	}

	const n = 100
	sockets := make([]*Socket, n)
	conns := make([]*fakeConn, n)
	for i := range sockets {
		sockets[i] = reg.New(protocolFake)
		require.NoError(t, sockets[i].Connect(context.Background(), "127.0.0.1", 2000))
		conns[i] = ft.last()
	}

	rng := rand.New(rand.NewSource(42))
	var wg sync.WaitGroup
	for i := range sockets {
		s, conn := sockets[i], conns[i]
		order := rng.Perm(3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, step := range order {
				switch step {
				case 0:
					s.Close()
				case 1:
					reg.Release(s)
				case 2:
					select {
					case conn.fail <- os.NewSyscallError("read", syscall.ECONNABORTED):
					default:
					}
				}
				if rand.Intn(3) == 0 {
					time.Sleep(time.Microsecond)
				}
			}
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	assert.Equal(t, int32(0), violations.Load())
	assert.Equal(t, 0, reg.Len())
	for _, conn := range conns {
		assert.Equal(t, int32(1), conn.closes.Load())
	}
}

func TestTCPEchoScenario(t *testing.T) {
	echo, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer echo.Close()
	go func() {
		for {
			c, err := echo.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				buf := make([]byte, 64)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					c.Write(buf[:n])
				}
			}()
		}
	}()
	port := echo.Addr().(*net.TCPAddr).Port

	sink := newChanSink()
	opts := DefaultOptions()
	opts.RecvTimeout = 50 * time.Millisecond
	reg := NewRegistry(sink, opts, nil)

	s := reg.New(ProtocolTCP)
	require.NoError(t, s.Connect(context.Background(), "127.0.0.1", port))
	sink.next(t, event.TypeSocketConnected)

	require.True(t, s.Send([]byte("ping")))
	ev := sink.next(t, event.TypeSocketReceived)
	assert.Equal(t, "ping", ev.At(1).String())
	assert.Equal(t, []byte("ping"), s.Recv())

	require.NoError(t, s.Close())
	waitDone(t, s, opts.RecvTimeout+time.Second)
	assert.Equal(t, StateClosed, s.State())
}

func TestListenAcceptsAndRegistersBeforeEvent(t *testing.T) {
	sink := newChanSink()
	reg := NewRegistry(sink, DefaultOptions(), nil)

	server := reg.New(ProtocolTCP)
	require.NoError(t, server.Listen("127.0.0.1", 0))
	require.True(t, server.Listening())
	require.NotZero(t, server.Port())

	client, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(server.Port())))
	require.NoError(t, err)
	defer client.Close()

	ev := sink.next(t, event.TypeSocketConnected)
	accepted, ok := ev.At(0).Value().(*Socket)
	require.True(t, ok)
	assert.Same(t, server, ev.At(1).Value())
	got, ok := reg.Get(accepted.ID())
	require.True(t, ok)
	assert.Same(t, accepted, got)

	_, err = client.Write([]byte("hi"))
	require.NoError(t, err)
	received := sink.next(t, event.TypeSocketReceived)
	assert.Same(t, accepted, received.At(0).Value())
	assert.Equal(t, "hi", received.At(1).String())

	require.NoError(t, client.Close())
	sink.next(t, event.TypeSocketDisconnected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	assert.Equal(t, 0, reg.Len())
}

func TestWebSocketRoundTrip(t *testing.T) {
	sink := newChanSink()
	opts := DefaultOptions()
	opts.WebSocketPath = "/macro"
	reg := NewRegistry(sink, opts, nil)

	server := reg.New(ProtocolWebSocket)
	require.NoError(t, server.Listen("127.0.0.1", 0))

	client := reg.New(ProtocolWebSocket)
	require.NoError(t, client.Connect(context.Background(), "127.0.0.1", server.Port()))

	var accepted *Socket
	for accepted == nil {
		ev := sink.next(t, event.TypeSocketConnected)
		if ev.Len() == 2 {
			accepted = ev.At(0).Value().(*Socket)
		}
	}

	require.True(t, client.Send([]byte("hello")))
	ev := sink.next(t, event.TypeSocketReceived)
	assert.Same(t, accepted, ev.At(0).Value())
	assert.Equal(t, "hello", ev.At(1).String())

	require.True(t, accepted.Send([]byte("world")))
	ev = sink.next(t, event.TypeSocketReceived)
	assert.Same(t, client, ev.At(0).Value())
	assert.Equal(t, "world", ev.At(1).String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	assert.Equal(t, 0, reg.Len())
}

func TestConnectUnknownProtocol(t *testing.T) {
	reg := NewRegistry(newChanSink(), DefaultOptions(), nil)
	s := reg.New("carrier-pigeon")
	assert.ErrorIs(t, s.Connect(context.Background(), "127.0.0.1", 1), ErrUnknownProtocol)
	assert.Equal(t, 0, reg.Len())
}

func TestOpenFailsWhenSocketCannotBeRegistered(t *testing.T) {
	sink := newChanSink()
	opts := DefaultOptions()
	opts.LockTimeout = 10 * time.Millisecond
	reg := NewRegistry(sink, opts, nil)
	ft := &fakeTransport{}
	reg.RegisterTransport(protocolFake, ft)

	client := reg.New(protocolFake)
	server := reg.New(ProtocolTCP)

	reg.mu.Lock()
	connectErr := client.Connect(context.Background(), "127.0.0.1", 2000)
	listenErr := server.Listen("127.0.0.1", 0)
	reg.mu.Unlock()

	assert.ErrorIs(t, connectErr, ErrLockTimeout)
	assert.Equal(t, StateClosed, client.State())
	assert.Equal(t, int32(1), ft.last().closes.Load())
	waitDone(t, client, time.Second)

	assert.ErrorIs(t, listenErr, ErrLockTimeout)
	assert.False(t, server.Listening())
	assert.Equal(t, StateClosed, server.State())
	waitDone(t, server, time.Second)
	if port := server.Port(); port != 0 {
		_, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
		assert.Error(t, err)
	}

	assert.Zero(t, reg.Len())
	select {
	case ev := <-sink.ch:
		t.Fatalf("unexpected event %s", ev)
	default:
	}
}

func TestRegistryStatsCountRingDrops(t *testing.T) {
	sink := newChanSink()
	opts := DefaultOptions()
	opts.RecvQueueSize = 4
	reg := NewRegistry(sink, opts, nil)
	ft := &fakeTransport{}
	reg.RegisterTransport(protocolFake, ft)

	s := reg.New(protocolFake)
	require.NoError(t, s.Connect(context.Background(), "127.0.0.1", 2000))
	conn := ft.last()
	for i := 0; i < 6; i++ {
		conn.reads <- []byte("m" + strconv.Itoa(i))
		sink.next(t, event.TypeSocketReceived)
	}

	st := reg.Stats()
	assert.Equal(t, 1, st.Sockets)
	assert.Zero(t, st.Listening)
	assert.Equal(t, 4, st.Buffered)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, uint64(2), s.RecvDropped())
}
