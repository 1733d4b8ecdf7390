package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.08, cfg.Gesture.Sensitivity)
	assert.True(t, cfg.Gesture.CalibrateOnStart)
	assert.True(t, cfg.Tray.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
camera:
  device_id: 2
gesture:
  sensitivity: 0.12
  calibrate_on_start: false
server:
  addr: ":9000"
plugins:
  timeout_ms: 1500
logging:
  level: debug
`))
	require.NoError(t, err)

	want := DefaultConfig()
	want.Camera.DeviceID = 2
	want.Gesture.Sensitivity = 0.12
	want.Gesture.CalibrateOnStart = false
	want.Server.Addr = ":9000"
	want.Plugins.TimeoutMS = 1500
	want.Logging.Level = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(1500), cfg.PluginTimeout().Milliseconds())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "unknown field", yaml: "gesture:\n  sensitivty: 0.1\n", want: "sensitivty"},
		{name: "wrong type", yaml: "camera:\n  fps: fast\n", want: "decode config yaml"},
		{name: "trailing document", yaml: "logging:\n  level: info\n---\nlogging:\n  level: debug\n", want: "trailing document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mudra.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tray:\n  enabled: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Tray.Enabled)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Load("")
	assert.Error(t, err)
}

func TestFlagOverrides_Apply(t *testing.T) {
	addr := ":7000"
	camera := 0
	level := "warn"
	noTray := true

	cfg := DefaultConfig()
	cfg.Camera.DeviceID = 3

	FlagOverrides{Addr: &addr, CameraID: &camera, LogLevel: &level, NoTray: &noTray}.Apply(&cfg)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, 0, cfg.Camera.DeviceID, "zero values are applied")
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Tray.Enabled)

	before := cfg
	FlagOverrides{}.Apply(&cfg)
	assert.Equal(t, before, cfg)

	FlagOverrides{}.Apply(nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "negative device", mutate: func(c *Config) { c.Camera.DeviceID = -1 }, want: "camera.device_id"},
		{name: "zero fps", mutate: func(c *Config) { c.Camera.FPS = 0 }, want: "camera.fps"},
		{name: "zero width", mutate: func(c *Config) { c.Camera.Width = 0 }, want: "camera.width"},
		{name: "no hands", mutate: func(c *Config) { c.Detector.MaxHands = 0 }, want: "detector.max_hands"},
		{name: "confidence above one", mutate: func(c *Config) { c.Detector.MinConfidence = 1.5 }, want: "detector.min_confidence"},
		{name: "tracking below zero", mutate: func(c *Config) { c.Detector.MinTrackingConf = -0.1 }, want: "detector.min_tracking_confidence"},
		{name: "zero sensitivity", mutate: func(c *Config) { c.Gesture.Sensitivity = 0 }, want: "gesture.sensitivity"},
		{name: "motion over 100", mutate: func(c *Config) { c.Gesture.MotionThreshold = 101 }, want: "gesture.motion_threshold"},
		{name: "idle fps above camera fps", mutate: func(c *Config) { c.Gesture.IdleFPS = c.Camera.FPS + 1 }, want: "gesture.idle_fps"},
		{name: "negative idle after", mutate: func(c *Config) { c.Gesture.IdleAfterMS = -1 }, want: "gesture.idle_after_ms"},
		{name: "empty addr", mutate: func(c *Config) { c.Server.Addr = "" }, want: "server.addr"},
		{name: "empty store path", mutate: func(c *Config) { c.Store.Path = "" }, want: "store.path"},
		{name: "zero plugin timeout", mutate: func(c *Config) { c.Plugins.TimeoutMS = 0 }, want: "plugins.timeout_ms"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/etc/mudra.yaml", ExpandPath("/etc/mudra.yaml"))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, ".mudra", "mudra.db"), ExpandPath("~/.mudra/mudra.db"))
	assert.Equal(t, "~other/x", ExpandPath("~other/x"))
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"error":   LogLevelError,
		"WARN":    LogLevelWarn,
		"warning": LogLevelWarn,
		"Info":    LogLevelInfo,
		"debug":   LogLevelDebug,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogLevelWarn)

	logger.Info("hidden")
	logger.Warn("shown", "gesture", "fist")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, "msg=shown"))
	assert.Contains(t, out, "gesture=fist")
}
