package socket

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/gorilla/websocket"
)

var (
	// ErrAlreadyOpen is returned by Connect/Listen on a socket that is in use
	ErrAlreadyOpen = errors.New("socket is already open")
	// ErrDeleted is returned for sockets released for deletion
	ErrDeleted = errors.New("socket was deleted")
	// ErrUnknownProtocol is returned for protocols without a transport
	ErrUnknownProtocol = errors.New("unknown socket protocol")
	// ErrLockTimeout is returned when a bounded socket or registry lock wait expires
	ErrLockTimeout = errors.New("socket lock timed out")
)

// ErrorClass groups receive errors by how scripts should react to them.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	// ClassBenignDisconnect means the peer closed or the socket was invalidated locally
	ClassBenignDisconnect
	// ClassTransport means the local stack or the connection failed
	ClassTransport
	// ClassUnknown is any other OS error
	ClassUnknown
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassBenignDisconnect:
		return "benign-disconnect"
	case ClassTransport:
		return "transport-error"
	default:
		return "unknown-os-error"
	}
}

// Classify maps a read or accept error onto an ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ClassBenignDisconnect
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return ClassTransport
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETDOWN) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return ClassTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransport
	}

	return ClassUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
