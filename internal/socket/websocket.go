package socket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/macroscript/internal/logger"
)

const wsCloseWait = time.Second

// WebSocketTransport carries socket data in websocket messages. Each message
// is delivered as one chunk, split only when larger than the read buffer.
type WebSocketTransport struct {
	DialTimeout time.Duration
	BufferSize  int
	Path        string
	Logger      *logger.Logger
}

// Dial opens ws://address/Path.
func (t WebSocketTransport) Dial(ctx context.Context, address string) (Conn, error) {
	u := url.URL{Scheme: "ws", Host: address, Path: t.path()}
	dialer := websocket.Dialer{
		HandshakeTimeout: t.DialTimeout,
		ReadBufferSize:   t.BufferSize,
		WriteBufferSize:  t.BufferSize,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return newWSConn(conn), nil
}

// Listen serves websocket upgrades on address. Upgraded connections are handed
// out by Accept in arrival order.
func (t WebSocketTransport) Listen(address string) (Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	log := t.Logger
	if log == nil {
		log = logger.Nop()
	}

	l := &wsListener{
		ln:    ln,
		conns: make(chan Conn),
		done:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  t.BufferSize,
			WriteBufferSize: t.BufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // scripts talk to arbitrary peers
			},
		},
	}

	router := httprouter.New()
	router.GET(t.path(), l.handleUpgrade)

	l.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.ErrorLog(log.WithPrefix("ws")),
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("websocket listener on %s stopped: %v", ln.Addr(), err)
		}
		l.Close()
	}()

	return l, nil
}

func (t WebSocketTransport) path() string {
	if t.Path == "" {
		return "/"
	}
	return t.Path
}

type wsListener struct {
	ln        net.Listener
	srv       *http.Server
	upgrader  websocket.Upgrader
	conns     chan Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case l.conns <- newWSConn(conn):
	case <-l.done:
		conn.Close()
	}
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}

// wsConn adapts a message-oriented websocket connection to Conn.
type wsConn struct {
	conn    *websocket.Conn
	pending []byte
	writeMu sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.pending = msg
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msgType := websocket.BinaryMessage
	if utf8.Valid(p) {
		msgType = websocket.TextMessage
	}
	if err := c.conn.WriteMessage(msgType, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsCloseWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
