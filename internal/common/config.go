package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Modules     ModulesConfig   `toml:"modules"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Metrics     MetricsConfig   `toml:"metrics"`
	Monitor     MonitorConfig   `toml:"monitor"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

// QueueConfig controls the request broker. Durations are Go duration strings.
type QueueConfig struct {
	ResponseTimeout       string `toml:"response_timeout" validate:"required"`        // e.g. "60s" - ceiling a caller waits for a worker result
	CommandDequeueTimeout string `toml:"command_dequeue_timeout" validate:"required"` // e.g. "10s" - worker long-poll ceiling
	MaxQueueLength        int    `toml:"max_queue_length" validate:"min=1"`           // per-queue capacity
}

// ModulesConfig contains configuration for module descriptor loading
type ModulesConfig struct {
	Dir string `toml:"dir"` // Directory containing module descriptor files (TOML/YAML)
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`          // Persist module status between restarts
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// WebSocketConfig contains configuration for the /ws event stream
type WebSocketConfig struct {
	// Whitelist of event types to broadcast. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Minimum interval between queue_stats broadcasts
	StatsInterval string `toml:"stats_interval"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// MonitorConfig controls the module liveness sweep
type MonitorConfig struct {
	Schedule        string `toml:"schedule"`         // cron spec, e.g. "@every 15s"
	IdleAfter       string `toml:"idle_after"`       // modules not seen for this long are marked idle
	CompactSchedule string `toml:"compact_schedule"` // cron spec for badger value log GC
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 32168,
			Host: "localhost",
		},
		Queue: QueueConfig{
			ResponseTimeout:       "60s",
			CommandDequeueTimeout: "10s",
			MaxQueueLength:        32,
		},
		Modules: ModulesConfig{
			Dir: "./modules",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Enabled: true,
				Path:    "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		WebSocket: WebSocketConfig{
			StatsInterval: "2s",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Monitor: MonitorConfig{
			Schedule:        "@every 15s",
			IdleAfter:       "1m",
			CompactSchedule: "@every 10m",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied afterwards by the caller via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal merges into the existing values
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("INFERD_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("INFERD_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("INFERD_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if timeout := os.Getenv("INFERD_QUEUE_RESPONSE_TIMEOUT"); timeout != "" {
		config.Queue.ResponseTimeout = timeout
	}
	if timeout := os.Getenv("INFERD_QUEUE_COMMAND_DEQUEUE_TIMEOUT"); timeout != "" {
		config.Queue.CommandDequeueTimeout = timeout
	}
	if maxLen := os.Getenv("INFERD_QUEUE_MAX_LENGTH"); maxLen != "" {
		if ml, err := strconv.Atoi(maxLen); err == nil {
			config.Queue.MaxQueueLength = ml
		}
	}

	if dir := os.Getenv("INFERD_MODULES_DIR"); dir != "" {
		config.Modules.Dir = dir
	}

	// Storage configuration
	if badgerPath := os.Getenv("INFERD_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if enabled := os.Getenv("INFERD_BADGER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Storage.Badger.Enabled = e
		}
	}

	// Logging configuration
	if level := os.Getenv("INFERD_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if output := os.Getenv("INFERD_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if enabled := os.Getenv("INFERD_METRICS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Metrics.Enabled = e
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints and that every duration string parses
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.response_timeout":        c.Queue.ResponseTimeout,
		"queue.command_dequeue_timeout": c.Queue.CommandDequeueTimeout,
		"websocket.stats_interval":      c.WebSocket.StatsInterval,
		"monitor.idle_after":            c.Monitor.IdleAfter,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid configuration: %s must be positive", name)
		}
	}

	return nil
}

// ResponseTimeoutDuration returns the caller-side ceiling for a queued request
func (q QueueConfig) ResponseTimeoutDuration() time.Duration {
	return parseDurationOr(q.ResponseTimeout, 60*time.Second)
}

// CommandDequeueTimeoutDuration returns the worker long-poll ceiling
func (q QueueConfig) CommandDequeueTimeoutDuration() time.Duration {
	return parseDurationOr(q.CommandDequeueTimeout, 10*time.Second)
}

// StatsIntervalDuration returns the minimum gap between queue_stats broadcasts
func (w WebSocketConfig) StatsIntervalDuration() time.Duration {
	return parseDurationOr(w.StatsInterval, 2*time.Second)
}

// IdleAfterDuration returns how long a module may be silent before it is marked idle
func (m MonitorConfig) IdleAfterDuration() time.Duration {
	return parseDurationOr(m.IdleAfter, time.Minute)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
