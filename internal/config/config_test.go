package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/macroscript/internal/lock"
	"github.com/codefionn/macroscript/internal/logger"
	"github.com/codefionn/macroscript/internal/settings"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := `
log_level: debug
network:
  recv_queue_size: 128
  websocket_path: /macro
loop:
  yield_time_slice: true
input:
  devices: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, logger.LevelDebug, cfg.Level())
	assert.Equal(t, 128, cfg.Network.RecvQueueSize)
	assert.Equal(t, "/macro", cfg.Network.WebSocketPath)
	require.NotNil(t, cfg.Loop.YieldTimeSlice)
	assert.True(t, *cfg.Loop.YieldTimeSlice)
	assert.False(t, cfg.Input.Devices)

	// Untouched fields keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.Network.DialTimeoutMS, cfg.Network.DialTimeoutMS)
	assert.True(t, cfg.Input.Inject)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"queue": {"push_timeout_ms": -1}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, lock.Infinite, cfg.QueueOptions().PushTimeout)
	assert.Equal(t, lock.Infinite, cfg.QueueOptions().DrainTimeout)
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"malformed json", "config.json", "{"},
		{"malformed yaml", "config.yaml", "network: [1"},
		{"unknown level", "config.yaml", "log_level: loud"},
		{"relative ws path", "config.yaml", "network:\n  websocket_path: macro"},
		{"axis threshold", "config.yaml", "input:\n  axis_threshold: 1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogPath, "/tmp/macroscript.log")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "/tmp/macroscript.log", cfg.LogPath)
}

func TestSeedOnlyWritesSetValues(t *testing.T) {
	store := settings.NewMemoryStore()
	require.NoError(t, store.Set(settings.KeyNetworkBufferSize, "2048"))

	cfg := DefaultConfig()
	cfg.Network.RecvQueueSize = 1
	yield := true
	cfg.Loop.YieldTimeSlice = &yield
	require.NoError(t, cfg.Seed(store))

	opts := cfg.SocketOptions(store)
	assert.Equal(t, 2048, opts.BufferSize)
	assert.Equal(t, 4, opts.RecvQueueSize, "clamped to the minimum")
	assert.True(t, cfg.DispatchOptions(store).Yield)
}

func TestOptionBuilders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.TeardownTimeoutS = 3
	cfg.Input.KeyHoldMS = 0
	cfg.Input.RepollMS = 1000

	opts := cfg.SocketOptions(settings.NewMemoryStore())
	assert.Equal(t, 3*time.Second, opts.TeardownTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.RecvTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.KeyHold())
	assert.Equal(t, time.Second, cfg.PollerOptions().RepollInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Debounce())
	assert.False(t, cfg.DispatchOptions(settings.NewMemoryStore()).Yield)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.LogLevel = "info"
			cfg.Script.Watch = false
			require.NoError(t, cfg.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLockPathIsStablePerScript(t *testing.T) {
	cfg := DefaultConfig()
	dir := t.TempDir()
	a := cfg.LockPath(filepath.Join(dir, "echo.go"))
	assert.Equal(t, a, cfg.LockPath(filepath.Join(dir, ".", "echo.go")))
	assert.NotEqual(t, a, cfg.LockPath(filepath.Join(dir, "other", "echo.go")))
	assert.Regexp(t, `echo-[0-9a-f]{8}\.lock$`, a)
}
