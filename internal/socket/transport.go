package socket

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/netutil"
)

// Protocol names a transport.
type Protocol string

const (
	ProtocolTCP       Protocol = "tcp"
	ProtocolWebSocket Protocol = "ws"
)

// ParseProtocol accepts "tcp", "ws" and "websocket", case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tcp":
		return ProtocolTCP, nil
	case "ws", "websocket":
		return ProtocolWebSocket, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
	}
}

// Conn is the raw connection primitive a receiver worker reads from.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener is the raw accept primitive a listener worker loops on.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// Transport opens connections and listeners for one Protocol.
type Transport interface {
	Dial(ctx context.Context, address string) (Conn, error)
	Listen(address string) (Listener, error)
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// TCPTransport dials and listens on plain TCP.
type TCPTransport struct {
	DialTimeout    time.Duration
	MaxConnections int
}

// Dial connects to address.
func (t TCPTransport) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := net.Dialer{Timeout: t.DialTimeout}
	return dialer.DialContext(ctx, "tcp", address)
}

// Listen binds address. With MaxConnections set, Accept blocks while that
// many accepted connections are still open.
func (t TCPTransport) Listen(address string) (Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	if t.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, t.MaxConnections)
	}
	return tcpListener{ln}, nil
}

type tcpListener struct {
	net.Listener
}

func (l tcpListener) Accept() (Conn, error) {
	return l.Listener.Accept()
}
