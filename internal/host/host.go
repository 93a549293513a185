// Package host wires the process together. A Host owns every long-lived
// component and is passed explicitly instead of living in globals.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/macroscript/internal/config"
	"github.com/codefionn/macroscript/internal/console"
	"github.com/codefionn/macroscript/internal/dispatch"
	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/hid"
	"github.com/codefionn/macroscript/internal/lockfile"
	"github.com/codefionn/macroscript/internal/logger"
	"github.com/codefionn/macroscript/internal/script"
	"github.com/codefionn/macroscript/internal/settings"
	"github.com/codefionn/macroscript/internal/socket"
)

// ErrPanic wraps a panic that reached the top of the process.
var ErrPanic = errors.New("unrecovered panic")

// ShutdownTimeout bounds socket teardown in Close.
const ShutdownTimeout = 5 * time.Second

// Options selects the script and overrides collaborators. Nil fields get
// the platform defaults.
type Options struct {
	Config     *config.Config
	ScriptPath string
	// ScriptSource, when set, is loaded instead of reading ScriptPath and
	// is not watched.
	ScriptSource []byte
	ScriptArgs   []string
	// Engine replaces the script interpreter; ScriptPath is then ignored.
	Engine    dispatch.Engine
	Log       *logger.Logger
	Settings  settings.Store
	Device    hid.Device
	Sender    hid.Sender
	Clipboard script.Clipboard
	Focus     dispatch.FocusSource
	Console   *console.Console
}

// Host is the process context.
type Host struct {
	RunID       string
	Config      *config.Config
	Log         *logger.Logger
	Settings    settings.Store
	Queue       *event.Queue
	Registry    *socket.Registry
	Poller      *hid.Poller
	Keys        *hid.KeyHold
	Pump        *dispatch.Pump
	Console     *console.Console
	Interpreter *script.Interpreter
	Dispatcher  *dispatch.Dispatcher

	watcher *script.Watcher
	closers []io.Closer
	ownLog  bool
}

// New builds a host. On error everything created so far is closed.
func New(opts Options) (_ *Host, err error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	h := &Host{
		RunID:   uuid.New().String(),
		Config:  cfg,
		Console: opts.Console,
	}
	defer func() {
		if err != nil {
			h.Close()
		}
	}()

	h.Log = opts.Log
	if h.Log == nil {
		if h.Log, err = newLogger(cfg, h.RunID); err != nil {
			return nil, err
		}
		h.ownLog = true
	}
	h.Log.Info("macroscript starting (run %s)", h.RunID)

	if h.Console == nil {
		h.Console = console.New()
	}
	if err := h.Console.SaveState(); err != nil && !errors.Is(err, console.ErrNotTerminal) {
		h.Log.Warn("failed to save terminal state: %v", err)
	}

	h.Settings = opts.Settings
	if h.Settings == nil {
		h.Settings = openSettings(cfg, h.Log)
		h.closers = append(h.closers, h.Settings)
	}
	if err := cfg.Seed(h.Settings); err != nil {
		return nil, fmt.Errorf("failed to seed settings: %w", err)
	}

	h.Queue = event.NewQueue(cfg.QueueOptions(), h.Log.WithPrefix("queue"))
	h.Registry = socket.NewRegistry(h.Queue, cfg.SocketOptions(h.Settings), h.Log.WithPrefix("socket"))

	device := opts.Device
	if device == nil {
		device = h.openDevice()
	}
	pollOpts := cfg.PollerOptions()
	h.Poller = hid.NewPoller(device, pollOpts, h.Log.WithPrefix("input"))

	sender := opts.Sender
	if sender == nil {
		sender = h.openSender()
	}
	h.Keys = hid.NewKeyHold(sender, pollOpts.Clock, cfg.KeyHold(), h.Log.WithPrefix("keys"))
	h.Pump = dispatch.NewPump(cfg.Loop.MaxMessagesPerCycle * 2)

	engine := opts.Engine
	if engine == nil {
		if opts.ScriptPath == "" && opts.ScriptSource == nil {
			return nil, errors.New("no script given")
		}
		clip := opts.Clipboard
		if clip == nil {
			clip = &script.SystemClipboard{}
		}
		api := &script.API{
			Registry:    h.Registry,
			Events:      h.Queue,
			Keys:        h.Keys,
			Input:       h.Poller,
			Clipboard:   clip,
			RunID:       h.RunID,
			Args:        opts.ScriptArgs,
			DialTimeout: h.Registry.Options().DialTimeout,
			Log:         h.Log,
		}
		h.Interpreter = script.NewInterpreter(api, h.Log.WithPrefix("script"))
		api.Quit = func() { h.Queue.Push(event.New(event.TypeQuit)) }

		if cfg.Script.SingleInstance && opts.ScriptSource == nil {
			lf := lockfile.New(cfg.LockPath(opts.ScriptPath), opts.ScriptPath)
			if err := lf.TryAcquire(); err != nil {
				return nil, err
			}
			h.closers = append(h.closers, lf)
		}
		if opts.ScriptSource != nil {
			name := opts.ScriptPath
			if name == "" {
				name = "script"
			}
			if err := h.Interpreter.Load(name, opts.ScriptSource); err != nil {
				return nil, err
			}
		} else if err := h.Interpreter.LoadFile(opts.ScriptPath); err != nil {
			return nil, err
		}
		if cfg.Script.Watch && opts.ScriptSource == nil {
			w, err := script.Watch(opts.ScriptPath, cfg.Debounce(), h.Interpreter.RequestReload, h.Log.WithPrefix("watch"))
			if err != nil {
				h.Log.Warn("script reload disabled: %v", err)
			} else {
				h.watcher = w
			}
		}
		engine = h.Interpreter
	}

	sources := dispatch.Sources{
		Poller:  h.Poller,
		KeyHold: h.Keys,
		Pump:    h.Pump,
		Focus:   opts.Focus,
		Console: h.Console,
	}
	h.Dispatcher = dispatch.New(h.Queue, engine, sources, cfg.DispatchOptions(h.Settings), h.Log.WithPrefix("dispatch"))
	return h, nil
}

func newLogger(cfg *config.Config, runID string) (*logger.Logger, error) {
	prefix := "macroscript " + runID[:8]
	if cfg.LogPath == "" {
		return logger.NewWriter(cfg.Level(), os.Stderr, prefix), nil
	}
	l, err := logger.New(cfg.Level(), cfg.LogPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

func openSettings(cfg *config.Config, log *logger.Logger) settings.Store {
	if cfg.SettingsPath == "" {
		return settings.NewMemoryStore()
	}
	store, err := settings.OpenSQLite(cfg.SettingsPath)
	if err != nil {
		log.Warn("settings are not persisted: %v", err)
		return settings.NewMemoryStore()
	}
	return store
}

func (h *Host) openDevice() hid.Device {
	if !h.Config.Input.Devices {
		return hid.NopDevice{}
	}
	dev, err := hid.NewEvdevDevice(h.Log.WithPrefix("evdev"))
	if err != nil {
		h.Log.Warn("input devices are not available: %v", err)
		return hid.NopDevice{}
	}
	h.closers = append(h.closers, dev)
	return dev
}

func (h *Host) openSender() hid.Sender {
	fallback := hid.LogSender{Log: h.Log.WithPrefix("keys")}
	if !h.Config.Input.Inject {
		return fallback
	}
	s, err := hid.NewUinputSender(h.Log.WithPrefix("uinput"))
	if err != nil {
		h.Log.Warn("key injection is not available: %v", err)
		return fallback
	}
	h.closers = append(h.closers, s)
	return s
}

// Run drives the dispatcher until the script quits or ctx is cancelled.
// SIGINT and SIGTERM quit; SIGHUP reloads the script.
func (h *Host) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)
	go h.forwardSignals(ctx, sigs)

	return h.Dispatcher.Run(ctx)
}

// forwardSignals hands signals to the dispatcher goroutine through the pump.
func (h *Host) forwardSignals(ctx context.Context, sigs <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			h.Log.Info("received %s", sig)
			var msg dispatch.Message
			switch sig {
			case syscall.SIGHUP:
				if h.Interpreter == nil {
					continue
				}
				msg = h.Interpreter.RequestReload
			default:
				msg = h.Dispatcher.Quit
			}
			if !h.Pump.Post(msg) {
				h.Log.Warn("message pump is full, dropped %s", sig)
			}
		}
	}
}

// Stats is a snapshot of the host's counters.
type Stats struct {
	RunID      string           `json:"run_id"`
	Queue      event.QueueStats `json:"queue"`
	Dispatcher dispatch.Stats   `json:"dispatcher"`
	Sockets    socket.Stats     `json:"sockets"`
}

// Stats returns the current counters. It is safe to call from any goroutine.
func (h *Host) Stats() Stats {
	return Stats{
		RunID:      h.RunID,
		Queue:      h.Queue.Stats(),
		Dispatcher: h.Dispatcher.Stats(),
		Sockets:    h.Registry.Stats(),
	}
}

// Close stops the script and releases every resource. It may be called on
// a partially built host.
func (h *Host) Close() error {
	var errs []error
	var sockets socket.Stats
	if h.Registry != nil {
		sockets = h.Registry.Stats()
	}
	if h.watcher != nil {
		errs = append(errs, h.watcher.Close())
	}
	if h.Interpreter != nil {
		h.Interpreter.Close()
	}
	if h.Registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		errs = append(errs, h.Registry.Shutdown(ctx))
		cancel()
	}
	if h.Keys != nil {
		h.Keys.ReleaseAll()
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i].Close())
	}
	h.closers = nil
	if h.Console != nil {
		errs = append(errs, h.Console.Restore())
	}
	if h.Log != nil {
		if q := h.Queue; q != nil {
			st := q.Stats()
			h.Log.Info("shutting down: %d events pushed, %d dropped, %d received chunks dropped",
				st.Pushed, st.Dropped, sockets.Dropped)
		}
		if h.ownLog {
			errs = append(errs, h.Log.Close())
		}
	}
	return errors.Join(errs...)
}
