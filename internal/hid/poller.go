package hid

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/codefionn/macroscript/internal/consts"
	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/logger"
)

// ErrReentrant is returned when Poll is called while another Poll runs.
var ErrReentrant = errors.New("hid poll is not reentrant")

// PollerOptions configures a Poller.
type PollerOptions struct {
	// RepollInterval is how often devices are re-enumerated. The first Poll
	// always enumerates.
	RepollInterval time.Duration
	// AxisThreshold is the minimum axis movement reported as a change.
	AxisThreshold float64
	Clock         Clock
}

// DefaultPollerOptions returns the built-in poller settings.
func DefaultPollerOptions() PollerOptions {
	return PollerOptions{
		RepollInterval: consts.DefaultRepollInterval,
		AxisThreshold:  consts.DefaultAxisThreshold,
		Clock:          SystemClock{},
	}
}

// Poller keeps the two most recent device snapshots and derives edges from
// them. The snapshots live in a fixed pair of buffers; each poll flips which
// one is current and refills it.
type Poller struct {
	dev  Device
	opts PollerOptions
	log  *logger.Logger

	buf      [2]State
	spare    State
	cur      int
	// reported is the last axis value handed out by Events, so slow
	// movement accumulates until it crosses the threshold.
	reported [MaxGamepads][NumGamepadAxes]float64
	lastEnum time.Time
	enumOnce bool
	polling  atomic.Bool
}

// NewPoller creates a poller over dev. Both snapshots start out empty, so
// anything held at the first poll is reported as pressed.
func NewPoller(dev Device, opts PollerOptions, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	p := &Poller{dev: dev, opts: opts, log: log}
	p.buf[0].Reset()
	p.buf[1].Reset()
	return p
}

// Poll re-reads device state into a fresh snapshot. It must run once per
// cycle; on failure the previous pair of snapshots is kept.
func (p *Poller) Poll() error {
	if !p.polling.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer p.polling.Store(false)

	now := p.opts.Clock.Now()
	if !p.enumOnce || (p.opts.RepollInterval > 0 && now.Sub(p.lastEnum) >= p.opts.RepollInterval) {
		p.enumOnce = true
		p.lastEnum = now
		if err := p.dev.Enumerate(); err != nil {
			p.log.Warn("device enumeration failed: %v", err)
		}
	}

	next := &p.buf[p.cur^1]
	p.spare = *next
	next.Reset()
	if err := p.dev.ReadState(next); err != nil {
		*next = p.spare
		return fmt.Errorf("failed to read device state: %w", err)
	}
	p.cur ^= 1
	return nil
}

func (p *Poller) current() *State  { return &p.buf[p.cur] }
func (p *Poller) previous() *State { return &p.buf[p.cur^1] }

// Down reports whether key k is held.
func (p *Poller) Down(k int) bool {
	return validKey(k) && p.current().Keys[k]
}

// Pressed reports whether key k went down between the last two polls.
func (p *Poller) Pressed(k int) bool {
	return validKey(k) && p.current().Keys[k] && !p.previous().Keys[k]
}

// Released reports whether key k went up between the last two polls.
func (p *Poller) Released(k int) bool {
	return validKey(k) && !p.current().Keys[k] && p.previous().Keys[k]
}

func (p *Poller) MouseDown(b int) bool {
	return validMouse(b) && p.current().Mouse[b]
}

func (p *Poller) MousePressed(b int) bool {
	return validMouse(b) && p.current().Mouse[b] && !p.previous().Mouse[b]
}

func (p *Poller) MouseReleased(b int) bool {
	return validMouse(b) && !p.current().Mouse[b] && p.previous().Mouse[b]
}

// GamepadConnected reports whether pad was present at the last poll.
func (p *Poller) GamepadConnected(pad int) bool {
	return validPad(pad) && p.current().Gamepads[pad].Connected
}

func (p *Poller) GamepadDown(pad, b int) bool {
	return validPad(pad) && validButton(b) && p.current().Gamepads[pad].Buttons[b]
}

func (p *Poller) GamepadPressed(pad, b int) bool {
	return validPad(pad) && validButton(b) &&
		p.current().Gamepads[pad].Buttons[b] && !p.previous().Gamepads[pad].Buttons[b]
}

func (p *Poller) GamepadReleased(pad, b int) bool {
	return validPad(pad) && validButton(b) &&
		!p.current().Gamepads[pad].Buttons[b] && p.previous().Gamepads[pad].Buttons[b]
}

// POV returns the current value of hat pov on pad.
func (p *Poller) POV(pad, pov int) int {
	if !validPad(pad) || !validPOV(pov) {
		return POVCentered
	}
	return p.current().Gamepads[pad].POV[pov]
}

func (p *Poller) POVChanged(pad, pov int) bool {
	return validPad(pad) && validPOV(pov) &&
		p.current().Gamepads[pad].POV[pov] != p.previous().Gamepads[pad].POV[pov]
}

// Axis returns the current normalized value of axis on pad.
func (p *Poller) Axis(pad, axis int) float64 {
	if !validPad(pad) || !validAxis(axis) {
		return 0
	}
	return p.current().Gamepads[pad].Axes[axis]
}

// AxisChanged reports whether axis moved more than the configured threshold
// away from the value last reported by Events, or settled on a rest or end
// position (-1, 0, 1) different from it.
func (p *Poller) AxisChanged(pad, axis int) bool {
	if !validPad(pad) || !validAxis(axis) {
		return false
	}
	cur := p.current().Gamepads[pad].Axes[axis]
	last := p.reported[pad][axis]
	if cur == last {
		return false
	}
	if math.Abs(cur-last) > p.opts.AxisThreshold {
		return true
	}
	return cur == 0 || cur == 1 || cur == -1
}

// Events returns the edge events of the last poll, keyboard first, then
// mouse, then gamepads. It must be called once per successful Poll; axis
// events advance the reported values.
func (p *Poller) Events() []event.Event {
	var evs []event.Event

	for k := 0; k < NumKeys; k++ {
		switch {
		case p.Pressed(k):
			evs = append(evs, event.New(event.TypeKeyPressed, event.Integer(k)))
		case p.Released(k):
			evs = append(evs, event.New(event.TypeKeyReleased, event.Integer(k)))
		}
	}

	for b := 0; b < NumMouseButtons; b++ {
		switch {
		case p.MousePressed(b):
			evs = append(evs, event.New(event.TypeMousePressed, event.Integer(b)))
		case p.MouseReleased(b):
			evs = append(evs, event.New(event.TypeMouseReleased, event.Integer(b)))
		}
	}

	for pad := 0; pad < MaxGamepads; pad++ {
		if !p.current().Gamepads[pad].Connected && !p.previous().Gamepads[pad].Connected {
			continue
		}
		for b := 0; b < NumGamepadButtons; b++ {
			switch {
			case p.GamepadPressed(pad, b):
				evs = append(evs, event.New(event.TypeGamepadPressed, event.Integer(pad), event.Integer(b)))
			case p.GamepadReleased(pad, b):
				evs = append(evs, event.New(event.TypeGamepadReleased, event.Integer(pad), event.Integer(b)))
			}
		}
		for pov := 0; pov < NumGamepadPOVs; pov++ {
			if p.POVChanged(pad, pov) {
				evs = append(evs, event.New(event.TypeGamepadPOVChanged,
					event.Integer(pad), event.Integer(pov), event.Integer(p.POV(pad, pov))))
			}
		}
		for axis := 0; axis < NumGamepadAxes; axis++ {
			if p.AxisChanged(pad, axis) {
				v := p.Axis(pad, axis)
				p.reported[pad][axis] = v
				evs = append(evs, event.New(event.TypeGamepadAxisChanged,
					event.Integer(pad), event.Integer(axis), event.Number(v)))
			}
		}
	}

	return evs
}
