package script

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/traefik/yaegi/interp"

	"github.com/codefionn/macroscript/internal/consts"
	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/hid"
	"github.com/codefionn/macroscript/internal/logger"
	"github.com/codefionn/macroscript/internal/socket"
)

// ImportPath is what scripts import to reach the host API.
const ImportPath = "macro"

// API is the host surface exposed to scripts. Nil collaborators disable the
// functions that need them.
type API struct {
	Registry    *socket.Registry
	Events      event.Sink
	Keys        *hid.KeyHold
	Input       *hid.Poller
	Clipboard   Clipboard
	Quit        func()
	RunID       string
	Args        []string
	DialTimeout time.Duration
	Log         *logger.Logger
}

func (a *API) logger() *logger.Logger {
	if a.Log == nil {
		return logger.Nop()
	}
	return a.Log
}

// Socket is the script's handle on a socket.
type Socket struct {
	s   *socket.Socket
	api *API
}

func (a *API) wrap(s *socket.Socket) *Socket {
	return &Socket{s: s, api: a}
}

func (s *Socket) Connect(host string, port int) error {
	timeout := s.api.DialTimeout
	if timeout <= 0 {
		timeout = consts.DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.s.Connect(ctx, host, port)
}

func (s *Socket) Listen(host string, port int) error { return s.s.Listen(host, port) }
func (s *Socket) Send(data string) bool              { return s.s.Send([]byte(data)) }
func (s *Socket) FlushRecvQueue()                    { s.s.FlushRecvQueue() }
func (s *Socket) RecvQueueSize() int                 { return s.s.RecvQueueSize() }
func (s *Socket) Close()                             { s.s.Close() }
func (s *Socket) ID() int                            { return s.s.ID() }
func (s *Socket) IP() string                         { return s.s.IP() }
func (s *Socket) RemoteIP() string                   { return s.s.RemoteIP() }
func (s *Socket) Port() int                          { return s.s.Port() }
func (s *Socket) IsOpen() bool                       { return s.s.IsOpen() }

// Recv returns the oldest received chunk; ok is false when none is buffered.
func (s *Socket) Recv() (data string, ok bool) {
	b := s.s.Recv()
	if b == nil {
		return "", false
	}
	return string(b), true
}

// Release drops the script's handle. The socket is closed and freed once
// its worker has exited.
func (s *Socket) Release() {
	if s.api.Registry != nil {
		s.api.Registry.Release(s.s)
	}
}

// Equal reports whether both handles refer to the same socket.
func (s *Socket) Equal(o *Socket) bool {
	return o != nil && s.s == o.s
}

// NewSocket creates a socket for "tcp" or "ws".
func (a *API) NewSocket(proto string) (*Socket, error) {
	if a.Registry == nil {
		return nil, fmt.Errorf("sockets are not available")
	}
	p, err := socket.ParseProtocol(proto)
	if err != nil {
		return nil, err
	}
	return a.wrap(a.Registry.New(p)), nil
}

// PushEvent queues a custom event for the script itself.
func (a *API) PushEvent(name string, args ...any) error {
	if a.Events == nil {
		return fmt.Errorf("events are not available")
	}
	payload := make([]event.Data, 0, len(args))
	for _, arg := range args {
		if s, ok := arg.(*Socket); ok {
			arg = s.s
		}
		d, err := event.FromValue(arg)
		if err != nil {
			return err
		}
		payload = append(payload, d)
	}
	ev, err := event.Custom(name, payload...)
	if err != nil {
		return err
	}
	if !a.Events.Push(ev) {
		return fmt.Errorf("event %s was dropped", name)
	}
	return nil
}

// Press sends a synthetic key press.
func (a *API) Press(vk int, async bool) error {
	if a.Keys == nil {
		return fmt.Errorf("key injection is not available")
	}
	return a.Keys.Press(vk, async, hid.NoWindow)
}

func (a *API) KeyDown(vk int) bool {
	return a.Input != nil && a.Input.Down(vk)
}

func (a *API) MouseDown(button int) bool {
	return a.Input != nil && a.Input.MouseDown(button)
}

func (a *API) GamepadDown(pad, button int) bool {
	return a.Input != nil && a.Input.GamepadDown(pad, button)
}

func (a *API) GamepadAxis(pad, axis int) float64 {
	if a.Input == nil {
		return 0
	}
	return a.Input.Axis(pad, axis)
}

func (a *API) ClipboardText() string {
	if a.Clipboard == nil {
		return ""
	}
	text, err := a.Clipboard.Text()
	if err != nil {
		a.logger().Warn("clipboard read failed: %v", err)
		return ""
	}
	return text
}

func (a *API) SetClipboardText(text string) bool {
	if a.Clipboard == nil {
		return false
	}
	if err := a.Clipboard.SetText(text); err != nil {
		a.logger().Warn("clipboard write failed: %v", err)
		return false
	}
	return true
}

// args converts an event payload into script values. Socket references
// become *Socket handles.
func (a *API) args(ev event.Event) []any {
	args := ev.Args()
	for i, arg := range args {
		if s, ok := arg.(*socket.Socket); ok {
			args[i] = a.wrap(s)
		}
	}
	return args
}

// releaseAll drops every registered socket, as if the script's handles had
// been collected.
func (a *API) releaseAll() {
	if a.Registry == nil {
		return
	}
	for _, s := range a.Registry.Sockets() {
		a.Registry.Release(s)
	}
}

// Exports returns the yaegi symbol table of the API.
func (a *API) Exports() interp.Exports {
	log := a.logger().WithPrefix("script")
	return interp.Exports{
		ImportPath + "/" + ImportPath: {
			"Socket":           reflect.ValueOf((*Socket)(nil)),
			"NewSocket":        reflect.ValueOf(a.NewSocket),
			"PushEvent":        reflect.ValueOf(a.PushEvent),
			"Press":            reflect.ValueOf(a.Press),
			"KeyDown":          reflect.ValueOf(a.KeyDown),
			"MouseDown":        reflect.ValueOf(a.MouseDown),
			"GamepadDown":      reflect.ValueOf(a.GamepadDown),
			"GamepadAxis":      reflect.ValueOf(a.GamepadAxis),
			"ClipboardText":    reflect.ValueOf(a.ClipboardText),
			"SetClipboardText": reflect.ValueOf(a.SetClipboardText),
			"Log": reflect.ValueOf(func(format string, args ...any) {
				log.Info(format, args...)
			}),
			"Quit": reflect.ValueOf(func() {
				if a.Quit != nil {
					a.Quit()
				}
			}),
			"RunID": reflect.ValueOf(func() string { return a.RunID }),
			"Args":  reflect.ValueOf(func() []string { return append([]string(nil), a.Args...) }),
		},
	}
}
