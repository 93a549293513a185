package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/macroscript/internal/config"
	"github.com/codefionn/macroscript/internal/console"
	"github.com/codefionn/macroscript/internal/dispatch"
	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/hid"
	"github.com/codefionn/macroscript/internal/lockfile"
	"github.com/codefionn/macroscript/internal/logger"
	"github.com/codefionn/macroscript/internal/script"
	"github.com/codefionn/macroscript/internal/settings"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Script.Watch = false
	cfg.Script.SingleInstance = false
	return Options{
		Config:    cfg,
		Log:       logger.Nop(),
		Settings:  settings.NewMemoryStore(),
		Device:    hid.NopDevice{},
		Sender:    hid.LogSender{},
		Clipboard: &script.MemoryClipboard{},
		Console:   console.NewWithFiles(),
	}
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "macro.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestRunUntilScriptQuits(t *testing.T) {
	opts := testOptions(t)
	opts.ScriptPath = writeScript(t, `package main

import "macro"

var seen string

func Init() error {
	return macro.PushEvent("hello", 1)
}

func Event(name string, args ...any) error {
	seen += name + ";"
	macro.SetClipboardText(seen)
	if name == "hello" {
		macro.Quit()
	}
	return nil
}
`)

	h, err := New(opts)
	require.NoError(t, err)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Run(ctx))

	text, _ := opts.Clipboard.Text()
	assert.Equal(t, "hello;quit;", text)
	assert.True(t, h.Dispatcher.Done())
}

func TestNewRequiresScriptOrEngine(t *testing.T) {
	_, err := New(testOptions(t))
	assert.Error(t, err)

	opts := testOptions(t)
	opts.ScriptPath = filepath.Join(t.TempDir(), "missing.go")
	_, err = New(opts)
	assert.Error(t, err)
}

func TestCancelDeliversQuit(t *testing.T) {
	var mu sync.Mutex
	var got []string

	opts := testOptions(t)
	opts.Engine = dispatch.EngineFunc(func(ev event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Name())
		return nil
	})

	h, err := New(opts)
	require.NoError(t, err)
	assert.Nil(t, h.Interpreter)
	assert.NotEmpty(t, h.RunID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.NoError(t, h.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"quit"}, got)
}

func TestSettingsAreSeededFromConfig(t *testing.T) {
	opts := testOptions(t)
	opts.Config.Network.RecvQueueSize = 20000
	opts.Engine = dispatch.EngineFunc(func(event.Event) error { return nil })

	h, err := New(opts)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, 10240, h.Registry.Options().RecvQueueSize)
	v, ok, err := h.Settings.Get(settings.KeyRecvQueueSize)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "20000", v)
}

func TestRunRecoversPanics(t *testing.T) {
	opts := testOptions(t)
	opts.Engine = dispatch.EngineFunc(func(event.Event) error { return nil })
	h, err := New(opts)
	require.NoError(t, err)
	defer h.Close()

	h.Pump.Post(func() { panic("pump exploded") })
	err = h.Run(context.Background())
	assert.ErrorIs(t, err, ErrPanic)
}

func TestFatalExitsWithStatus2(t *testing.T) {
	var code int
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()

	Fatal(logger.Nop(), console.NewWithFiles(), errors.New("out of memory"))
	assert.Equal(t, ExitFatal, code)
}

func TestSingleInstanceLock(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	opts := testOptions(t)
	opts.Config.Script.SingleInstance = true
	opts.ScriptPath = writeScript(t, "package main\n\nfunc Event(name string, args ...any) error { return nil }\n")

	first, err := New(opts)
	require.NoError(t, err)

	_, err = New(opts)
	assert.ErrorIs(t, err, lockfile.ErrLocked)

	require.NoError(t, first.Close())
	second, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
