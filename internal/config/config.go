package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codefionn/macroscript/internal/consts"
	"github.com/codefionn/macroscript/internal/dispatch"
	"github.com/codefionn/macroscript/internal/event"
	"github.com/codefionn/macroscript/internal/hid"
	"github.com/codefionn/macroscript/internal/lock"
	"github.com/codefionn/macroscript/internal/logger"
	"github.com/codefionn/macroscript/internal/settings"
	"github.com/codefionn/macroscript/internal/socket"
)

// Environment variables that override the file.
const (
	EnvLogLevel = "MACROSCRIPT_LOG_LEVEL"
	EnvLogPath  = "MACROSCRIPT_LOG_PATH"
)

// NetworkConfig holds socket settings. Zero BufferSize and RecvQueueSize
// leave the settings store in charge.
type NetworkConfig struct {
	BufferSize       int    `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	RecvQueueSize    int    `json:"recv_queue_size,omitempty" yaml:"recv_queue_size,omitempty"`
	RecvTimeoutMS    int    `json:"recv_timeout_ms" yaml:"recv_timeout_ms"`
	DialTimeoutMS    int    `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	WriteTimeoutMS   int    `json:"write_timeout_ms" yaml:"write_timeout_ms"`
	LockTimeoutMS    int    `json:"lock_timeout_ms" yaml:"lock_timeout_ms"`
	MaxConnections   int    `json:"max_connections" yaml:"max_connections"`
	WebSocketPath    string `json:"websocket_path" yaml:"websocket_path"`
	TeardownTimeoutS int    `json:"teardown_timeout_s" yaml:"teardown_timeout_s"` // 0 waits forever
}

// QueueConfig holds event queue lock timeouts. -1 waits forever.
type QueueConfig struct {
	PushTimeoutMS  int `json:"push_timeout_ms" yaml:"push_timeout_ms"`
	DrainTimeoutMS int `json:"drain_timeout_ms" yaml:"drain_timeout_ms"`
}

// LoopConfig holds the main loop cadence.
type LoopConfig struct {
	YieldTimeSlice      *bool `json:"yield_time_slice,omitempty" yaml:"yield_time_slice,omitempty"`
	CycleIntervalMS     int   `json:"cycle_interval_ms" yaml:"cycle_interval_ms"`
	MaxMessagesPerCycle int   `json:"max_messages_per_cycle" yaml:"max_messages_per_cycle"`
	ConsolePollMS       int   `json:"console_poll_ms" yaml:"console_poll_ms"`
}

// InputConfig holds input device settings.
type InputConfig struct {
	Devices       bool    `json:"devices" yaml:"devices"` // read evdev devices
	Inject        bool    `json:"inject" yaml:"inject"`   // create a uinput keyboard for Press
	KeyHoldMS     int     `json:"key_hold_ms" yaml:"key_hold_ms"`
	RepollMS      int     `json:"repoll_ms" yaml:"repoll_ms"`
	AxisThreshold float64 `json:"axis_threshold" yaml:"axis_threshold"`
}

// ScriptConfig holds script loading settings.
type ScriptConfig struct {
	Watch          bool `json:"watch" yaml:"watch"`
	DebounceMS     int  `json:"debounce_ms" yaml:"debounce_ms"`
	SingleInstance bool `json:"single_instance" yaml:"single_instance"` // refuse to run a script twice
}

// Config represents application configuration
type Config struct {
	LogLevel     string        `json:"log_level" yaml:"log_level"` // debug, info, warn, error, none
	LogPath      string        `json:"log_path" yaml:"log_path"`   // empty logs to stderr
	SettingsPath string        `json:"settings_path" yaml:"settings_path"`
	Network      NetworkConfig `json:"network" yaml:"network"`
	Queue        QueueConfig   `json:"queue" yaml:"queue"`
	Loop         LoopConfig    `json:"loop" yaml:"loop"`
	Input        InputConfig   `json:"input" yaml:"input"`
	Script       ScriptConfig  `json:"script" yaml:"script"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "macroscript")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "macroscript")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "macroscript")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "macroscript")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "macroscript")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "macroscript")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "macroscript")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "macroscript")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "macroscript")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "warn",
		SettingsPath: filepath.Join(defaultStateDir(), "settings.db"),
		Network: NetworkConfig{
			RecvTimeoutMS:  int(consts.DefaultRecvTimeout / time.Millisecond),
			DialTimeoutMS:  int(consts.DefaultDialTimeout / time.Millisecond),
			WriteTimeoutMS: int(consts.DefaultWriteTimeout / time.Millisecond),
			LockTimeoutMS:  int(consts.LockTimeoutShort / time.Millisecond),
			MaxConnections: consts.DefaultMaxConnections,
			WebSocketPath:  "/",
		},
		Queue: QueueConfig{
			PushTimeoutMS:  int(consts.LockTimeoutShort / time.Millisecond),
			DrainTimeoutMS: -1,
		},
		Loop: LoopConfig{
			CycleIntervalMS:     int(consts.DefaultCycleInterval / time.Millisecond),
			MaxMessagesPerCycle: consts.DefaultMaxMessagesPerCycle,
			ConsolePollMS:       int(consts.DefaultConsolePollInterval / time.Millisecond),
		},
		Input: InputConfig{
			Devices:       true,
			Inject:        true,
			KeyHoldMS:     int(consts.DefaultKeyHoldDuration / time.Millisecond),
			RepollMS:      int(consts.DefaultRepollInterval / time.Millisecond),
			AxisThreshold: consts.DefaultAxisThreshold,
		},
		Script: ScriptConfig{
			Watch:          true,
			DebounceMS:     100,
			SingleInstance: true,
		},
	}
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load loads configuration from file. YAML is used for .yaml and .yml files,
// JSON otherwise. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// Unmarshal into default config (overrides only provided fields)
			if isYAML(path) {
				err = yaml.Unmarshal(data, config)
			} else {
				err = json.Unmarshal(data, config)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config.applyEnv()
	if config.LogLevel == "" {
		config.LogLevel = "warn"
	}
	if config.Network.WebSocketPath == "" {
		config.Network.WebSocketPath = "/"
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvLogPath); ok {
		c.LogPath = strings.TrimSpace(v)
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "none":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if !strings.HasPrefix(c.Network.WebSocketPath, "/") {
		return fmt.Errorf("websocket_path must start with /: %q", c.Network.WebSocketPath)
	}
	if c.Input.AxisThreshold < 0 || c.Input.AxisThreshold >= 1 {
		return fmt.Errorf("axis_threshold must be in [0, 1): %v", c.Input.AxisThreshold)
	}
	if c.Network.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative: %d", c.Network.MaxConnections)
	}
	return nil
}

// Save saves configuration to file in the format its extension selects.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Level returns the parsed log level.
func (c *Config) Level() logger.Level {
	return logger.ParseLevel(strings.ToLower(c.LogLevel))
}

// Seed writes the settings set in the file into store. Unset values keep
// whatever the store already holds.
func (c *Config) Seed(store settings.Store) error {
	if c.Network.BufferSize != 0 {
		if err := store.Set(settings.KeyNetworkBufferSize, fmt.Sprint(c.Network.BufferSize)); err != nil {
			return err
		}
	}
	if c.Network.RecvQueueSize != 0 {
		if err := store.Set(settings.KeyRecvQueueSize, fmt.Sprint(c.Network.RecvQueueSize)); err != nil {
			return err
		}
	}
	if c.Loop.YieldTimeSlice != nil {
		if err := store.Set(settings.KeyYieldTimeSlice, fmt.Sprint(*c.Loop.YieldTimeSlice)); err != nil {
			return err
		}
	}
	return nil
}

func millis(ms int) time.Duration {
	if ms < 0 {
		return lock.Infinite
	}
	return time.Duration(ms) * time.Millisecond
}

// SocketOptions builds registry options; buffer sizes come from store.
func (c *Config) SocketOptions(store settings.Store) socket.Options {
	opts := socket.DefaultOptions()
	opts.BufferSize = settings.NetworkBufferSize(store)
	opts.RecvQueueSize = settings.RecvQueueSize(store)
	opts.RecvTimeout = millis(c.Network.RecvTimeoutMS)
	opts.DialTimeout = millis(c.Network.DialTimeoutMS)
	opts.WriteTimeout = millis(c.Network.WriteTimeoutMS)
	opts.LockTimeout = millis(c.Network.LockTimeoutMS)
	opts.MaxConnections = c.Network.MaxConnections
	opts.WebSocketPath = c.Network.WebSocketPath
	if c.Network.TeardownTimeoutS > 0 {
		opts.TeardownTimeout = time.Duration(c.Network.TeardownTimeoutS) * time.Second
	}
	return opts
}

// QueueOptions builds event queue options.
func (c *Config) QueueOptions() event.QueueOptions {
	return event.QueueOptions{
		PushTimeout:  millis(c.Queue.PushTimeoutMS),
		DrainTimeout: millis(c.Queue.DrainTimeoutMS),
	}
}

// DispatchOptions builds main loop options; the yield flag comes from store.
func (c *Config) DispatchOptions(store settings.Store) dispatch.Options {
	opts := dispatch.DefaultOptions()
	opts.Yield = settings.YieldTimeSlice(store)
	if c.Loop.CycleIntervalMS > 0 {
		opts.CycleInterval = millis(c.Loop.CycleIntervalMS)
	}
	if c.Loop.MaxMessagesPerCycle > 0 {
		opts.MaxMessagesPerCycle = c.Loop.MaxMessagesPerCycle
	}
	if c.Loop.ConsolePollMS > 0 {
		opts.ConsolePollInterval = millis(c.Loop.ConsolePollMS)
	}
	return opts
}

// PollerOptions builds input poller options.
func (c *Config) PollerOptions() hid.PollerOptions {
	opts := hid.DefaultPollerOptions()
	if c.Input.RepollMS > 0 {
		opts.RepollInterval = millis(c.Input.RepollMS)
	}
	opts.AxisThreshold = c.Input.AxisThreshold
	return opts
}

// KeyHold returns how long Press keeps a key down.
func (c *Config) KeyHold() time.Duration {
	if c.Input.KeyHoldMS <= 0 {
		return consts.DefaultKeyHoldDuration
	}
	return millis(c.Input.KeyHoldMS)
}

// LockPath returns the single-instance lock file for the script at path.
func (c *Config) LockPath(script string) string {
	abs, err := filepath.Abs(script)
	if err != nil {
		abs = script
	}
	sum := sha256.Sum256([]byte(abs))
	name := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	return filepath.Join(defaultStateDir(), "locks", fmt.Sprintf("%s-%s.lock", name, hex.EncodeToString(sum[:4])))
}

// Debounce returns the script watcher debounce.
func (c *Config) Debounce() time.Duration {
	return millis(c.Script.DebounceMS)
}
