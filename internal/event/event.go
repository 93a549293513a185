// Package event defines the events delivered to scripts and the queue that
// carries them from producer goroutines to the single dispatching consumer.
package event

import (
	"errors"
	"fmt"
	"strings"
)

// MaxCustomArgs is the number of payload slots a custom event may carry.
const MaxCustomArgs = 8

var (
	// ErrTooManyArgs is returned for custom events with more than MaxCustomArgs slots
	ErrTooManyArgs = errors.New("too many custom event arguments")
	// ErrReservedName is returned when a custom event reuses a built-in type name
	ErrReservedName = errors.New("event name is reserved")
	// ErrEmptyName is returned for custom events without a name
	ErrEmptyName = errors.New("event name is empty")
)

// Event is a one-shot notification. Its payload is never modified after
// construction.
type Event struct {
	typ     Type
	name    string
	payload []Data
}

// New creates a built-in event.
func New(t Type, payload ...Data) Event {
	return Event{
		typ:     t,
		name:    t.String(),
		payload: append([]Data(nil), payload...),
	}
}

// Custom creates a user-defined event.
func Custom(name string, payload ...Data) (Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Event{}, ErrEmptyName
	}
	if _, builtin := ParseType(name); builtin || name == TypeCustom.String() {
		return Event{}, fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	if len(payload) > MaxCustomArgs {
		return Event{}, fmt.Errorf("%w: %d > %d", ErrTooManyArgs, len(payload), MaxCustomArgs)
	}
	return Event{
		typ:     TypeCustom,
		name:    name,
		payload: append([]Data(nil), payload...),
	}, nil
}

// Error creates an error event carrying err's message.
func Error(err error) Event {
	if err == nil {
		return New(TypeError, String("unknown error"))
	}
	return New(TypeError, String(err.Error()))
}

// Warning creates a warning event.
func Warning(format string, args ...any) Event {
	return New(TypeWarning, String(fmt.Sprintf(format, args...)))
}

// Type returns the event type. Custom events report TypeCustom.
func (e Event) Type() Type {
	return e.typ
}

// Name returns the script-visible event name.
func (e Event) Name() string {
	return e.name
}

// Len returns the number of payload slots.
func (e Event) Len() int {
	return len(e.payload)
}

// At returns payload slot i, or Nil when out of range.
func (e Event) At(i int) Data {
	if i < 0 || i >= len(e.payload) {
		return Nil{}
	}
	return e.payload[i]
}

// Payload returns a copy of the payload slots.
func (e Event) Payload() []Data {
	return append([]Data(nil), e.payload...)
}

// Args returns the payload as plain Go values.
func (e Event) Args() []any {
	args := make([]any, len(e.payload))
	for i, d := range e.payload {
		args[i] = d.Value()
	}
	return args
}

func (e Event) String() string {
	if len(e.payload) == 0 {
		return e.name
	}
	parts := make([]string, len(e.payload))
	for i, d := range e.payload {
		parts[i] = d.String()
	}
	return e.name + "(" + strings.Join(parts, ", ") + ")"
}
