package script

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/logger"
)

// ErrNotLoaded is returned by Invoke before a script was loaded.
var ErrNotLoaded = errors.New("no script loaded")

// Standard library packages scripts may import.
var allowedPackages = []string{
	"bytes/bytes",
	"encoding/hex/hex",
	"encoding/json/json",
	"errors/errors",
	"fmt/fmt",
	"math/math",
	"sort/sort",
	"strconv/strconv",
	"strings/strings",
	"time/time",
	"unicode/utf8/utf8",
}

func restrictedStdlib() interp.Exports {
	restricted := interp.Exports{}
	for _, key := range allowedPackages {
		if syms, ok := stdlib.Symbols[key]; ok {
			restricted[key] = syms
		}
	}
	return restricted
}

// Handler is the script's event callback.
type Handler func(name string, args ...any) error

// Interpreter runs Go scripts with yaegi. A script defines
//
//	func Event(name string, args ...any) error
//
// and optionally Init() (or Init() error) and Terminate(). Only the dispatcher goroutine may
// call Load, Invoke and Refresh.
type Interpreter struct {
	api *API
	log *logger.Logger

	path      string
	handler   Handler
	terminate func()
	reload    atomic.Bool
}

// NewInterpreter creates an interpreter exposing api to scripts.
func NewInterpreter(api *API, log *logger.Logger) *Interpreter {
	if log == nil {
		log = logger.Nop()
	}
	if api == nil {
		api = &API{}
	}
	return &Interpreter{api: api, log: log}
}

// LoadFile loads the script at path. Later reloads read the same path.
func (i *Interpreter) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	if err := i.Load(path, src); err != nil {
		return err
	}
	i.path = path
	return nil
}

// Load evaluates src and, on success, replaces the running script. The old
// script's Terminate runs and its sockets are released first. On failure
// the old script keeps running.
func (i *Interpreter) Load(name string, src []byte) error {
	vm := interp.New(interp.Options{})
	if err := vm.Use(restrictedStdlib()); err != nil {
		return fmt.Errorf("failed to load standard library symbols: %w", err)
	}
	if err := vm.Use(i.api.Exports()); err != nil {
		return fmt.Errorf("failed to load host symbols: %w", err)
	}

	if _, err := vm.Eval(string(stripBuildDirectives(src))); err != nil {
		return fmt.Errorf("failed to evaluate %s: %w", name, err)
	}

	v, err := vm.Eval("Event")
	if err != nil {
		return fmt.Errorf("%s does not define func Event: %w", name, err)
	}
	handler, err := asHandler(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	var terminateFn func()
	if v, err := vm.Eval("Terminate"); err == nil {
		terminateFn, _ = v.Interface().(func())
	}
	var initFn func() error
	if v, err := vm.Eval("Init"); err == nil {
		switch fn := v.Interface().(type) {
		case func():
			initFn = func() error { fn(); return nil }
		case func() error:
			initFn = fn
		}
	}

	if i.handler != nil {
		i.unload()
	}
	i.handler = handler
	i.terminate = terminateFn
	i.log.Info("loaded script %s", name)

	// A failing Init leaves the new script loaded; it may have registered
	// sockets already.
	if initFn != nil {
		if err := protect(initFn); err != nil {
			return fmt.Errorf("%s: Init failed: %w", name, err)
		}
	}
	return nil
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panic: %v", r)
		}
	}()
	return fn()
}

func asHandler(v reflect.Value) (Handler, error) {
	switch fn := v.Interface().(type) {
	case func(string, ...any) error:
		return fn, nil
	case func(string, ...any):
		return func(name string, args ...any) error {
			fn(name, args...)
			return nil
		}, nil
	case func(string, []any) error:
		return func(name string, args ...any) error {
			return fn(name, args)
		}, nil
	default:
		return nil, fmt.Errorf("Event has unsupported signature %s", v.Type())
	}
}

func (i *Interpreter) unload() {
	if i.terminate != nil {
		if err := protect(func() error { i.terminate(); return nil }); err != nil {
			i.log.Warn("script Terminate failed: %v", err)
		}
	}
	i.api.releaseAll()
	i.handler = nil
	i.terminate = nil
}

// Invoke delivers ev to the script's Event function.
func (i *Interpreter) Invoke(ev event.Event) error {
	if i.handler == nil {
		return ErrNotLoaded
	}
	return i.handler(ev.Name(), i.api.args(ev)...)
}

// RequestReload marks the script file for reloading on the next Refresh.
// It is safe to call from any goroutine.
func (i *Interpreter) RequestReload() {
	i.reload.Store(true)
}

// Refresh reloads the script file if a reload was requested.
func (i *Interpreter) Refresh() error {
	if !i.reload.Swap(false) || i.path == "" {
		return nil
	}
	i.log.Info("reloading script %s", i.path)
	return i.LoadFile(i.path)
}

// Close runs the script's Terminate and releases its sockets.
func (i *Interpreter) Close() {
	if i.handler != nil {
		i.unload()
	}
}

// stripBuildDirectives drops leading build constraints, which only matter
// to the Go toolchain.
func stripBuildDirectives(src []byte) []byte {
	lines := strings.Split(string(src), "\n")
	start := 0
	for start < len(lines) {
		l := strings.TrimSpace(lines[start])
		if l != "" && !strings.HasPrefix(l, "//go:build") && !strings.HasPrefix(l, "// +build") {
			break
		}
		start++
	}
	if start == 0 {
		return src
	}
	return []byte(strings.Join(lines[start:], "\n"))
}
