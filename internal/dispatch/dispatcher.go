package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/codefionn/macroscript/internal/consts"
	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/hid"
	"github.com/codefionn/macroscript/internal/logger"
)

// Engine is the script's callback entry point.
type Engine interface {
	// Invoke delivers one event to the script. A returned error aborts the
	// rest of the cycle's dispatch.
	Invoke(ev event.Event) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ev event.Event) error

func (f EngineFunc) Invoke(ev event.Event) error { return f(ev) }

// Refresher is implemented by engines that need a hook once per cycle on
// the dispatcher goroutine, before events are delivered.
type Refresher interface {
	Refresh() error
}

// MessagePump runs pending messages on the dispatcher goroutine.
type MessagePump interface {
	// Pump runs at most max messages and returns how many ran.
	Pump(max int) int
}

// FocusSource reports which window has input focus.
type FocusSource interface {
	// Focused returns an identifier of the focused window.
	Focused() (string, error)
}

// SizeSource reports the console size.
type SizeSource interface {
	Size() (width, height int, err error)
}

// Sources are the optional producers the dispatcher polls itself.
type Sources struct {
	Poller  *hid.Poller
	KeyHold *hid.KeyHold
	Pump    MessagePump
	Focus   FocusSource
	Console SizeSource
}

// Options configures the cycle cadence.
type Options struct {
	// Yield gives up the time slice between cycles instead of sleeping
	// CycleInterval.
	Yield               bool
	CycleInterval       time.Duration
	MaxMessagesPerCycle int
	ConsolePollInterval time.Duration
}

// DefaultOptions returns the built-in cadence.
func DefaultOptions() Options {
	return Options{
		CycleInterval:       consts.DefaultCycleInterval,
		MaxMessagesPerCycle: consts.DefaultMaxMessagesPerCycle,
		ConsolePollInterval: consts.DefaultConsolePollInterval,
	}
}

// Stats counts dispatcher activity.
type Stats struct {
	Cycles     uint64 `json:"cycles"`
	Dispatched uint64 `json:"dispatched"`
	Failures   uint64 `json:"failures"`
	Messages   uint64 `json:"messages"`
}

// Dispatcher is the single consumer of the event queue.
type Dispatcher struct {
	queue   *event.Queue
	engine  Engine
	sources Sources
	opts    Options
	log     *logger.Logger

	quit         atomic.Bool
	pollFailed   bool
	focus        string
	focusKnown   bool
	width        int
	height       int
	sizeKnown    bool
	lastSizePoll time.Time
	dropped      uint64

	cycles     atomic.Uint64
	dispatched atomic.Uint64
	failures   atomic.Uint64
	messages   atomic.Uint64
}

// New creates a dispatcher delivering events from queue to engine.
func New(queue *event.Queue, engine Engine, sources Sources, opts Options, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	if opts.MaxMessagesPerCycle <= 0 {
		opts.MaxMessagesPerCycle = consts.DefaultMaxMessagesPerCycle
	}
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = consts.DefaultCycleInterval
	}
	return &Dispatcher{
		queue:   queue,
		engine:  engine,
		sources: sources,
		opts:    opts,
		log:     log,
	}
}

// Cycle runs one poll, drain and pump round.
func (d *Dispatcher) Cycle() {
	d.cycles.Add(1)

	d.pollInputs()

	if r, ok := d.engine.(Refresher); ok {
		if err := d.safeCall(r.Refresh); err != nil {
			d.queue.Push(event.Warning("script refresh failed: %v", err))
		}
	}

	d.reportDrops()

	n, err := d.queue.Drain(d.invoke)
	d.dispatched.Add(uint64(n))
	if err != nil {
		d.failures.Add(1)
		d.log.Warn("script callback failed, remaining events deferred: %v", err)
	}

	if d.sources.Pump != nil {
		d.messages.Add(uint64(d.sources.Pump.Pump(d.opts.MaxMessagesPerCycle)))
	}
}

func (d *Dispatcher) pollInputs() {
	if p := d.sources.Poller; p != nil {
		if err := p.Poll(); err != nil {
			// Log the first failure of a streak only.
			if !d.pollFailed {
				d.log.Warn("input poll failed: %v", err)
			}
			d.pollFailed = true
		} else {
			d.pollFailed = false
			d.queue.PushAll(p.Events())
		}
	}

	if kh := d.sources.KeyHold; kh != nil {
		kh.HandleKeyHeldQueue()
	}

	if f := d.sources.Focus; f != nil {
		if id, err := f.Focused(); err == nil {
			if d.focusKnown && id != d.focus {
				d.queue.Push(event.New(event.TypeFocusChanged, event.String(id), event.String(d.focus)))
			}
			d.focus = id
			d.focusKnown = true
		}
	}

	if c := d.sources.Console; c != nil {
		now := time.Now()
		if now.Sub(d.lastSizePoll) >= d.opts.ConsolePollInterval {
			d.lastSizePoll = now
			if w, h, err := c.Size(); err == nil {
				if d.sizeKnown && (w != d.width || h != d.height) {
					d.queue.Push(event.New(event.TypeConsoleResized, event.Integer(w), event.Integer(h)))
				}
				d.width, d.height = w, h
				d.sizeKnown = true
			}
		}
	}
}

// reportDrops turns events lost to push timeouts since the last cycle into
// one warning event.
func (d *Dispatcher) reportDrops() {
	dropped := d.queue.Stats().Dropped
	if dropped == d.dropped {
		return
	}
	lost := dropped - d.dropped
	d.dropped = dropped
	d.queue.Push(event.Warning("%d events were dropped", lost))
}

func (d *Dispatcher) invoke(ev event.Event) error {
	err := d.safeCall(func() error { return d.engine.Invoke(ev) })
	if ev.Type() == event.TypeQuit {
		d.quit.Store(true)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", ev.Name(), err)
	}
	return nil
}

// safeCall turns a script panic into an error.
func (d *Dispatcher) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("script panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("script panic: %v", r)
		}
	}()
	return fn()
}

// Run cycles until a quit event has been dispatched or ctx ends. When ctx
// ends, a final quit event is delivered before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started (yield=%t, interval=%s)", d.opts.Yield, d.opts.CycleInterval)
	defer d.log.Info("dispatcher stopped after %d cycles", d.cycles.Load())

	var timer *time.Timer
	if !d.opts.Yield {
		timer = time.NewTimer(d.opts.CycleInterval)
		defer timer.Stop()
	}

	for {
		if ctx.Err() != nil {
			d.finish()
			return nil
		}

		d.Cycle()
		if d.quit.Load() {
			return nil
		}

		if d.opts.Yield {
			runtime.Gosched()
			continue
		}
		timer.Reset(d.opts.CycleInterval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// maxFinalCycles bounds the cycles spent reaching the final quit event.
const maxFinalCycles = 8

// finish delivers the final quit behind whatever is already queued. Callback
// failures on the way get a few more cycles; after that quit is handed to the
// engine directly.
func (d *Dispatcher) finish() {
	d.queue.Push(event.New(event.TypeQuit))
	for i := 0; i < maxFinalCycles && !d.quit.Load(); i++ {
		d.Cycle()
	}
	if d.quit.Load() {
		return
	}
	d.log.Warn("quit not reached after %d cycles, delivering it directly", maxFinalCycles)
	if err := d.invoke(event.New(event.TypeQuit)); err != nil {
		d.log.Warn("final callback failed: %v", err)
	}
}

// Quit asks the loop to stop after delivering a quit event.
func (d *Dispatcher) Quit() {
	d.queue.Push(event.New(event.TypeQuit))
}

// Done reports whether a quit event has been dispatched.
func (d *Dispatcher) Done() bool {
	return d.quit.Load()
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Cycles:     d.cycles.Load(),
		Dispatched: d.dispatched.Load(),
		Failures:   d.failures.Load(),
		Messages:   d.messages.Load(),
	}
}
