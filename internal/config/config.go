// Package config loads the mudra YAML configuration.
//
// Precedence is defaults, then the config file, then command-line flag
// overrides. Validate centralises the checks so the rest of the code can
// assume a well-formed Config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// Config is the top-level YAML configuration.
type Config struct {
	Camera   capture.Config  `yaml:"camera"`
	Detector detector.Config `yaml:"detector"`
	Gesture  GestureConfig   `yaml:"gesture"`
	Server   ServerConfig    `yaml:"server"`
	Store    StoreConfig     `yaml:"store"`
	Plugins  PluginsConfig   `yaml:"plugins"`
	Logging  LoggingConfig   `yaml:"logging"`
	Tray     TrayConfig      `yaml:"tray"`
}

type GestureConfig struct {
	// Sensitivity is the tilt threshold. A value stored through the API
	// takes precedence at startup.
	Sensitivity float64 `yaml:"sensitivity"`

	// CalibrateOnStart captures a baseline from the first hand seen.
	CalibrateOnStart bool `yaml:"calibrate_on_start"`

	// MotionThreshold is the percentage of changed pixels that switches
	// the pipeline to its active frame rate.
	MotionThreshold float64 `yaml:"motion_threshold"`
	IdleFPS         int     `yaml:"idle_fps"`
	IdleAfterMS     int     `yaml:"idle_after_ms"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir,omitempty"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type PluginsConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Camera:   capture.DefaultConfig(),
		Detector: detector.DefaultConfig(),
		Gesture: GestureConfig{
			Sensitivity:      gesture.DefaultSensitivity,
			CalibrateOnStart: true,
			MotionThreshold:  capture.DefaultMotionThreshold,
			IdleFPS:          5,
			IdleAfterMS:      2000,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Store: StoreConfig{
			Path: "~/.mudra/mudra.db",
		},
		Plugins: PluginsConfig{
			Dir:       "~/.mudra/plugins",
			TimeoutMS: 5000,
		},
		Logging: LoggingConfig{
			Level: string(LogLevelInfo),
		},
		Tray: TrayConfig{
			Enabled: true,
		},
	}
}

// Load reads and parses a YAML config file on top of the defaults.
// Unknown fields and trailing documents are rejected.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults.
func Parse(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments may follow the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values set on the command line. Nil pointers are
// ignored; non-nil values are applied even when zero.
type FlagOverrides struct {
	Addr      *string
	CameraID  *int
	LogLevel  *string
	NoTray    *bool
	StaticDir *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Addr != nil {
		cfg.Server.Addr = *o.Addr
	}
	if o.CameraID != nil {
		cfg.Camera.DeviceID = *o.CameraID
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.NoTray != nil && *o.NoTray {
		cfg.Tray.Enabled = false
	}
	if o.StaticDir != nil {
		cfg.Server.StaticDir = *o.StaticDir
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	if c.Camera.DeviceID < 0 {
		return errors.New("camera.device_id must be >= 0")
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 120 {
		return errors.New("camera.fps must be between 1 and 120")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be > 0")
	}

	if c.Detector.MaxHands < 1 {
		return errors.New("detector.max_hands must be >= 1")
	}
	if !unit(c.Detector.MinConfidence) {
		return errors.New("detector.min_confidence must be between 0 and 1")
	}
	if !unit(c.Detector.MinTrackingConf) {
		return errors.New("detector.min_tracking_confidence must be between 0 and 1")
	}

	if c.Gesture.Sensitivity <= 0 {
		return errors.New("gesture.sensitivity must be > 0")
	}
	if c.Gesture.MotionThreshold < 0 || c.Gesture.MotionThreshold > 100 {
		return errors.New("gesture.motion_threshold must be between 0 and 100")
	}
	if c.Gesture.IdleFPS <= 0 || c.Gesture.IdleFPS > c.Camera.FPS {
		return errors.New("gesture.idle_fps must be between 1 and camera.fps")
	}
	if c.Gesture.IdleAfterMS < 0 {
		return errors.New("gesture.idle_after_ms must be >= 0")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if c.Plugins.TimeoutMS <= 0 {
		return errors.New("plugins.timeout_ms must be > 0")
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// PluginTimeout returns plugins.timeout_ms as a duration.
func (c *Config) PluginTimeout() time.Duration {
	return time.Duration(c.Plugins.TimeoutMS) * time.Millisecond
}

// IdleAfter returns gesture.idle_after_ms as a duration.
func (c *Config) IdleAfter() time.Duration {
	return time.Duration(c.Gesture.IdleAfterMS) * time.Millisecond
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
