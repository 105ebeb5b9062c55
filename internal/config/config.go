package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// TriggerConfig describes the hardware trigger input and the gating policy.
type TriggerConfig struct {
	InterruptPin    int    `yaml:"interrupt_pin"`    // GPIO pin (BCM) of the trigger input. 0 = no GPIO trigger.
	Edge            string `yaml:"edge"`             // "rising" or "falling" (default: falling)
	Pull            string `yaml:"pull"`             // "up", "down" or "none" (default: up)
	PollIntervalMs  int    `yaml:"poll_interval_ms"` // input sampling interval (default: 5)
	DebounceMs      int    `yaml:"debounce_ms"`      // minimum time between accepted triggers (0 = off)
	CommandDebounce *bool  `yaml:"command_debounce"` // apply debounce to remote commands (default: true)
}

// StatusConfig describes the rejection indicator LED.
type StatusConfig struct {
	DisplayPin int `yaml:"display_pin"` // GPIO pin (BCM) of the LED. 0 = no LED.
	DisplayMs  int `yaml:"display_ms"`  // how long the LED stays on (default: 10)
}

// TimerConfig describes a periodic capture cadence. Schedule (cron) takes
// precedence over DueMs/PeriodMs.
type TimerConfig struct {
	DueMs    int    `yaml:"due_ms"`    // delay before the first tick
	PeriodMs int    `yaml:"period_ms"` // repeat period (0 = fire once)
	Schedule string `yaml:"schedule"`  // cron expression, seconds optional
	Timezone string `yaml:"timezone"`  // IANA zone for Schedule (default: UTC)
}

// CameraConfig describes how to communicate with the camera.
// Type selects a concrete implementation ("mock", "command", "nikon_d90_gpio").
type CameraConfig struct {
	Type           string   `yaml:"type"`
	Command        []string `yaml:"command"`          // argv for the "command" camera
	TimeoutMs      int      `yaml:"timeout_ms"`       // command timeout (default: 10000)
	FocusPin       int      `yaml:"focus_pin"`        // GPIO pin for FOCUS line
	ShutterPin     int      `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line
	FocusDelayMs   int      `yaml:"focus_delay_ms"`   // autofocus delay (default: 500)
	ShutterDelayMs int      `yaml:"shutter_delay_ms"` // shutter hold time (default: 200)
	MockDelayMs    int      `yaml:"mock_delay_ms"`    // simulated exposure for the mock camera
}

// ClassifierConfig describes the optional prediction endpoint.
type ClassifierConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	Key       string  `yaml:"key"`
	Threshold float64 `yaml:"threshold"` // 0..1 (default: 0.5)
	TimeoutMs int     `yaml:"timeout_ms"`
}

// StorageConfig describes local image storage. Formats are text/template
// strings over the capture record (.Host, .ID, .Source, .TakenAt).
type StorageConfig struct {
	Dir           string `yaml:"dir"`
	LatestFormat  string `yaml:"latest_format"`  // default: "{{.Host}}_latest.jpg"
	HistoryFormat string `yaml:"history_format"` // empty = no history
}

// WebhookConfig describes the telemetry webhook.
type WebhookConfig struct {
	URL          string `yaml:"url"`
	Secret       string `yaml:"secret"`
	TimeoutMs    int    `yaml:"timeout_ms"`
	IncludeImage bool   `yaml:"include_image"`
}

// RedisConfig describes the Redis publisher.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Channel   string `yaml:"channel"`    // default: "snapgate:captures"
	LatestKey string `yaml:"latest_key"` // empty = don't store the image
	TTLMs     int    `yaml:"ttl_ms"`     // 0 = no expiry
}

// PipelineConfig bounds the capture runner.
type PipelineConfig struct {
	TimeoutMs int `yaml:"timeout_ms"` // watchdog per capture (0 = none)
	QueueSize int `yaml:"queue_size"` // pending trigger notifications (default: 16)
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DeviceName string `yaml:"device_name"` // host name used in filenames and telemetry (default: os.Hostname)
	DebugLevel int    `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool   `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Trigger    TriggerConfig     `yaml:"trigger"`
	Status     StatusConfig      `yaml:"status"`
	Timer      TimerConfig       `yaml:"timer"`
	Camera     CameraConfig      `yaml:"camera"`
	Classifier *ClassifierConfig `yaml:"classifier,omitempty"` // optional
	Storage    *StorageConfig    `yaml:"storage,omitempty"`    // optional
	Webhook    *WebhookConfig    `yaml:"webhook,omitempty"`    // optional
	Redis      *RedisConfig      `yaml:"redis,omitempty"`      // optional
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Defaults   DefaultsConfig    `yaml:"defaults"`
}

// ValidateConfigPath accepts only "<...>/configs/<name>.yaml" paths without
// parent-directory segments.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (cfg *Config) applyDefaults() error {
	// Trigger
	if cfg.Trigger.Edge == "" {
		cfg.Trigger.Edge = "falling"
	}
	if e := strings.ToLower(cfg.Trigger.Edge); e != "rising" && e != "falling" {
		return invalid("trigger.edge must be rising or falling, got %q", cfg.Trigger.Edge)
	}
	if cfg.Trigger.Pull == "" {
		cfg.Trigger.Pull = "up"
	}
	switch strings.ToLower(cfg.Trigger.Pull) {
	case "up", "down", "none":
	default:
		return invalid("trigger.pull must be up, down or none, got %q", cfg.Trigger.Pull)
	}
	if cfg.Trigger.DebounceMs < 0 {
		return invalid("trigger.debounce_ms must be >= 0, got %d", cfg.Trigger.DebounceMs)
	}
	if cfg.Trigger.PollIntervalMs <= 0 {
		cfg.Trigger.PollIntervalMs = 5
	}
	if cfg.Trigger.CommandDebounce == nil {
		on := true
		cfg.Trigger.CommandDebounce = &on
	}

	// Status LED
	if cfg.Status.DisplayMs <= 0 {
		cfg.Status.DisplayMs = 10 // brief flash
	}

	// Timer
	if cfg.Timer.DueMs < 0 || cfg.Timer.PeriodMs < 0 {
		return invalid("timer.due_ms and timer.period_ms must be >= 0")
	}

	// Camera
	switch cfg.Camera.Type {
	case "":
		return invalid("camera.type is required")
	case "mock":
	case "command":
		if len(cfg.Camera.Command) == 0 {
			return invalid("camera.command is required for the command camera")
		}
	case "nikon_d90_gpio":
		if cfg.Camera.FocusPin <= 0 || cfg.Camera.ShutterPin <= 0 {
			return invalid("camera.focus_pin and camera.shutter_pin are required for nikon_d90_gpio")
		}
	default:
		return invalid("unsupported camera.type %q", cfg.Camera.Type)
	}
	if cfg.Camera.TimeoutMs <= 0 {
		cfg.Camera.TimeoutMs = 10000
	}
	if cfg.Camera.FocusDelayMs <= 0 {
		cfg.Camera.FocusDelayMs = 500 // 500ms for autofocus
	}
	if cfg.Camera.ShutterDelayMs <= 0 {
		cfg.Camera.ShutterDelayMs = 200 // 200ms shutter hold
	}

	// Optional sections
	if c := cfg.Classifier; c != nil {
		if c.Endpoint == "" {
			return invalid("classifier.endpoint is required when classifier is set")
		}
		if c.Threshold < 0 || c.Threshold > 1 {
			return invalid("classifier.threshold must be between 0 and 1, got %.2f", c.Threshold)
		}
		if c.Threshold == 0 {
			c.Threshold = 0.5
		}
	}
	if s := cfg.Storage; s != nil {
		if s.Dir == "" {
			return invalid("storage.dir is required when storage is set")
		}
		if s.LatestFormat == "" {
			s.LatestFormat = "{{.Host}}_latest.jpg"
		}
	}
	if w := cfg.Webhook; w != nil && w.URL == "" {
		return invalid("webhook.url is required when webhook is set")
	}
	if r := cfg.Redis; r != nil {
		if r.Addr == "" {
			return invalid("redis.addr is required when redis is set")
		}
		if r.Channel == "" {
			r.Channel = "snapgate:captures"
		}
		if r.TTLMs < 0 {
			return invalid("redis.ttl_ms must be >= 0")
		}
	}

	// Pipeline
	if cfg.Pipeline.TimeoutMs < 0 {
		return invalid("pipeline.timeout_ms must be >= 0")
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = 16
	}

	// Defaults
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return invalid("defaults.debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	if cfg.Defaults.DeviceName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Defaults.DeviceName = host
		} else {
			cfg.Defaults.DeviceName = "snapgate"
		}
	}
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Debounce returns the minimum interval between two accepted triggers.
func (c *Config) Debounce() time.Duration {
	return ms(c.Trigger.DebounceMs)
}

// PollInterval returns the trigger input sampling interval.
func (c *Config) PollInterval() time.Duration {
	return ms(c.Trigger.PollIntervalMs)
}

// CommandDebounce reports whether remote commands are debounced.
func (c *Config) CommandDebounce() bool {
	return c.Trigger.CommandDebounce == nil || *c.Trigger.CommandDebounce
}

// DisplayDuration returns how long the status LED stays on.
func (c *Config) DisplayDuration() time.Duration {
	return ms(c.Status.DisplayMs)
}

// TimerDue returns the delay before the first timer tick.
func (c *Config) TimerDue() time.Duration {
	return ms(c.Timer.DueMs)
}

// TimerPeriod returns the timer repeat period.
func (c *Config) TimerPeriod() time.Duration {
	return ms(c.Timer.PeriodMs)
}

// CameraTimeout returns the timeout for command cameras.
func (c *Config) CameraTimeout() time.Duration {
	return ms(c.Camera.TimeoutMs)
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return ms(c.Camera.FocusDelayMs)
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return ms(c.Camera.ShutterDelayMs)
}

// PipelineTimeout returns the per-capture watchdog (0 = none).
func (c *Config) PipelineTimeout() time.Duration {
	return ms(c.Pipeline.TimeoutMs)
}
