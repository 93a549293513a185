package hid

import (
	"errors"
	"time"

	"github.com/codefionn/macroscript/internal/logger"
)

// ErrUnsupported is returned by device backends unavailable on this platform.
var ErrUnsupported = errors.New("input devices are not supported on this platform")

// Device reads raw input state.
type Device interface {
	// ReadState fills st with the current state. st has been Reset.
	ReadState(st *State) error
	// Enumerate rediscovers attached devices. It is comparatively expensive
	// and only called on the repoll timer.
	Enumerate() error
}

// DeviceInfo describes one attached input device.
type DeviceInfo struct {
	Path string
	Name string
	Kind string
}

// Lister is implemented by devices that can report what they enumerated.
type Lister interface {
	Devices() []DeviceInfo
}

// NopDevice reports that nothing is held.
type NopDevice struct{}

func (NopDevice) ReadState(*State) error { return nil }
func (NopDevice) Enumerate() error       { return nil }

// Clock abstracts time for the key-hold scheduler.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Window identifies the window synthetic input is sent to. NoWindow targets
// whatever has focus.
type Window uint64

const NoWindow Window = 0

// Sender injects synthetic key transitions.
type Sender interface {
	KeyDown(vk int, target Window) error
	KeyUp(vk int, target Window) error
}

// LogSender only logs the transitions it is asked to send. It is used when
// no input injection backend is available.
type LogSender struct {
	Log *logger.Logger
}

func (s LogSender) KeyDown(vk int, target Window) error {
	s.Log.Debug("key down %d (window %d)", vk, target)
	return nil
}

func (s LogSender) KeyUp(vk int, target Window) error {
	s.Log.Debug("key up %d (window %d)", vk, target)
	return nil
}
