package event

import (
	"fmt"
	"strconv"
)

// Kind is the tag of a Data value.
type Kind int

const (
	KindNil Kind = iota
	KindInteger
	KindNumber
	KindString
	KindSocket
)

// Data is one payload slot of an Event. The set of implementations is closed:
// Nil, Integer, Number, String and SocketRef.
type Data interface {
	Kind() Kind
	// Value returns the payload as a plain Go value for script engines.
	Value() any
	String() string
	sealed()
}

// SocketHandle is the part of a socket an event payload can refer to.
type SocketHandle interface {
	ID() int
}

// Nil is the empty payload slot.
type Nil struct{}

func (Nil) Kind() Kind     { return KindNil }
func (Nil) Value() any     { return nil }
func (Nil) String() string { return "nil" }
func (Nil) sealed()        {}

// Integer is a signed integer payload.
type Integer int64

func (Integer) Kind() Kind       { return KindInteger }
func (i Integer) Value() any     { return int64(i) }
func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }
func (Integer) sealed()          {}

// Number is a floating point payload.
type Number float64

func (Number) Kind() Kind       { return KindNumber }
func (n Number) Value() any     { return float64(n) }
func (n Number) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 64) }
func (Number) sealed()          {}

// String is a text or binary payload.
type String string

func (String) Kind() Kind       { return KindString }
func (s String) Value() any     { return string(s) }
func (s String) String() string { return string(s) }
func (String) sealed()          {}

// SocketRef refers to a socket owned by the socket registry.
type SocketRef struct {
	Socket SocketHandle
}

func (SocketRef) Kind() Kind   { return KindSocket }
func (r SocketRef) Value() any { return r.Socket }
func (r SocketRef) String() string {
	if r.Socket == nil {
		return "socket(nil)"
	}
	return fmt.Sprintf("socket(%d)", r.Socket.ID())
}
func (SocketRef) sealed() {}

// FromValue converts a plain Go value into a payload slot. It is used for
// payloads coming from scripts.
func FromValue(v any) (Data, error) {
	switch x := v.(type) {
	case nil:
		return Nil{}, nil
	case Data:
		return x, nil
	case bool:
		if x {
			return Integer(1), nil
		}
		return Integer(0), nil
	case int:
		return Integer(x), nil
	case int8:
		return Integer(x), nil
	case int16:
		return Integer(x), nil
	case int32:
		return Integer(x), nil
	case int64:
		return Integer(x), nil
	case uint8:
		return Integer(x), nil
	case uint16:
		return Integer(x), nil
	case uint32:
		return Integer(x), nil
	case float32:
		return Number(x), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	case []byte:
		return String(x), nil
	case SocketHandle:
		return SocketRef{Socket: x}, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}
