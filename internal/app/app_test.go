package app

import (
	"encoding/json"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

type fixture struct {
	app      *App
	camera   *capture.MockCamera
	detector *detector.MockDetector
	store    *store.Store
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping pipeline test in short mode")
	}

	frame := capture.SolidFrame(64, 48, color.RGBA{R: 40, G: 40, B: 40, A: 255})
	t.Cleanup(func() { frame.Close() })

	s, err := store.New(filepath.Join(t.TempDir(), "mudra.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		camera:   capture.NewMockCamera([]*gocv.Mat{frame}, true),
		detector: detector.NewMockDetector(),
		store:    s,
	}

	cfg.Camera = f.camera
	cfg.Detector = f.detector
	cfg.Store = s
	cfg.IdleFPS = 100
	cfg.ActiveFPS = 100
	if cfg.Now == nil {
		clock := &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), step: 100 * time.Millisecond}
		cfg.Now = clock.Now
	}

	f.app = New(cfg)
	t.Cleanup(func() { f.app.Close() })
	return f
}

func waitEvent(t *testing.T, ch <-chan gesture.Event) gesture.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for gesture")
		return gesture.Event{}
	}
}

func TestApp_EmitsAndRecordsGesture(t *testing.T) {
	f := newFixture(t, Config{})
	f.detector.SetHands([]detector.HandLandmarks{detector.FistLandmarks()})

	events, cancel := f.app.Subscribe()
	defer cancel()

	require.NoError(t, f.app.Start())
	ev := waitEvent(t, events)
	f.app.Stop()

	assert.Equal(t, gesture.TypeFist, ev.Type)

	last, ok := f.app.LastGesture()
	require.True(t, ok)
	assert.Equal(t, gesture.TypeFist, last.Type)

	recorded, err := f.store.Events().List(10)
	require.NoError(t, err)
	require.NotEmpty(t, recorded)
	assert.Equal(t, "fist", recorded[len(recorded)-1].Type)
	assert.Empty(t, recorded[len(recorded)-1].ActionID)
}

func TestApp_CooldownSpacesRepeatedGestures(t *testing.T) {
	f := newFixture(t, Config{})
	f.detector.SetHands([]detector.HandLandmarks{detector.FistLandmarks()})

	events, cancel := f.app.Subscribe()
	defer cancel()

	require.NoError(t, f.app.Start())
	first := waitEvent(t, events)
	second := waitEvent(t, events)
	f.app.Stop()

	assert.GreaterOrEqual(t, second.At.Sub(first.At), gesture.PoseCooldown)
}

func TestApp_CalibratesOnStart(t *testing.T) {
	f := newFixture(t, Config{CalibrateOnStart: true})
	relaxed := detector.RelaxedLandmarks()
	f.detector.SetHands([]detector.HandLandmarks{relaxed})

	assert.True(t, f.app.Calibration().Pending)
	require.NoError(t, f.app.Start())

	require.Eventually(t, func() bool {
		return f.app.Calibration().Baseline != nil
	}, 3*time.Second, 10*time.Millisecond)
	f.app.Stop()

	want := gesture.TiltMetric(&relaxed)
	cal := f.app.Calibration()
	assert.False(t, cal.Pending)
	assert.InDelta(t, want, *cal.Baseline, 1e-9)

	stored, err := f.store.Settings().TiltBaseline()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.InDelta(t, want, *stored, 1e-9)
}

func TestApp_RequestCalibrationWhileRunning(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.app.Start())

	token := f.app.RequestCalibration()
	assert.Equal(t, uint64(1), token)
	require.Eventually(t, func() bool {
		return f.app.Calibration().Pending
	}, 3*time.Second, 10*time.Millisecond)

	// No hand yet, so the capture stays armed.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, f.app.Calibration().Pending)

	f.detector.SetHands([]detector.HandLandmarks{detector.RelaxedLandmarks()})
	require.Eventually(t, func() bool {
		return f.app.Calibration().Baseline != nil
	}, 3*time.Second, 10*time.Millisecond)
	f.app.Stop()

	assert.False(t, f.app.Calibration().Pending)
	assert.Equal(t, uint64(2), f.app.RequestCalibration())
}

func TestApp_SettingsWithoutPipeline(t *testing.T) {
	f := newFixture(t, Config{Sensitivity: 0.08})

	require.NoError(t, f.app.SetSensitivity(0.12))
	assert.Equal(t, 0.12, f.app.Calibration().Sensitivity)

	stored, err := f.store.Settings().Sensitivity(0)
	require.NoError(t, err)
	assert.Equal(t, 0.12, stored)

	assert.Error(t, f.app.SetSensitivity(0))
	assert.Equal(t, 0.12, f.app.Calibration().Sensitivity)

	f.app.RequestCalibration()
	assert.True(t, f.app.Calibration().Pending)

	baseline := 0.05
	require.NoError(t, f.store.Settings().SetTiltBaseline(&baseline))
	f.app.session.SetBaseline(&baseline)
	require.NoError(t, f.app.ClearBaseline())
	assert.Nil(t, f.app.Calibration().Baseline)

	stored2, err := f.store.Settings().TiltBaseline()
	require.NoError(t, err)
	assert.Nil(t, stored2)
}

func TestApp_UpdatesRacingStopAreApplied(t *testing.T) {
	f := newFixture(t, Config{Sensitivity: 0.08})

	for round := 0; round < 20; round++ {
		require.NoError(t, f.app.Start())

		baseline := 0.01 * float64(round+1)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				f.app.send(baselineUpdate{value: &baseline})
			}()
		}

		close(start)
		f.app.Stop()
		wg.Wait()

		assert.Empty(t, f.app.updates, "round %d", round)
		got := f.app.Calibration().Baseline
		require.NotNil(t, got, "round %d", round)
		assert.Equal(t, baseline, *got, "round %d", round)
	}
}

func TestApp_DisabledSkipsFrames(t *testing.T) {
	f := newFixture(t, Config{})
	f.app.SetEnabled(false)
	assert.False(t, f.app.IsEnabled())

	require.NoError(t, f.app.Start())
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.detector.Calls())
	assert.Zero(t, f.camera.Reads())

	f.app.SetEnabled(true)
	require.Eventually(t, func() bool {
		return f.detector.Calls() > 0
	}, 3*time.Second, 10*time.Millisecond)
	f.app.Stop()

	enabled, err := f.store.Settings().Enabled(false)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestApp_DetectorErrorsAreSkipped(t *testing.T) {
	f := newFixture(t, Config{})
	f.detector.SetError(errors.New("model crashed"))

	require.NoError(t, f.app.Start())
	require.Eventually(t, func() bool {
		return f.detector.Calls() > 3
	}, 3*time.Second, 10*time.Millisecond)

	assert.True(t, f.app.Running())
	status, err := f.app.CameraStatus()
	assert.Equal(t, CameraScanning, status)
	assert.NoError(t, err)
	f.app.Stop()

	_, ok := f.app.LastGesture()
	assert.False(t, ok)
}

func TestApp_CameraStatus(t *testing.T) {
	f := newFixture(t, Config{})

	status, _ := f.app.CameraStatus()
	assert.Equal(t, CameraIdle, status)

	f.camera.FailOpen(errors.New("permission denied"))
	err := f.app.Start()
	require.Error(t, err)
	assert.False(t, f.app.Running())

	status, cause := f.app.CameraStatus()
	assert.Equal(t, CameraError, status)
	assert.EqualError(t, cause, "permission denied")
	assert.Equal(t, "permission denied", f.app.Status().CameraError)

	f.camera.FailOpen(nil)
	require.NoError(t, f.app.Start())
	status, cause = f.app.CameraStatus()
	assert.Equal(t, CameraScanning, status)
	assert.NoError(t, cause)

	f.app.Stop()
	status, _ = f.app.CameraStatus()
	assert.Equal(t, CameraIdle, status)
}

func TestApp_NoCamera(t *testing.T) {
	a := New(Config{})
	defer a.Close()

	require.Error(t, a.Start())
	status, _ := a.CameraStatus()
	assert.Equal(t, CameraError, status)
}

func TestApp_Snapshot(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.app.Snapshot()
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, f.app.Start())
	var jpeg []byte
	require.Eventually(t, func() bool {
		jpeg, err = f.app.Snapshot()
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
	f.app.Stop()

	require.Greater(t, len(jpeg), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, jpeg[:2])
}

func TestApp_DispatchesBoundAction(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script plugins need a POSIX shell")
	}

	pluginsDir := t.TempDir()
	dir := filepath.Join(pluginsDir, "recorder")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	out := filepath.Join(t.TempDir(), "request.json")
	manifest := `{"name":"recorder","version":"1.0.0","executable":"run.sh","actions":["record"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644))
	script := "#!/bin/sh\ncat > " + out + "\necho '{\"success\":true}'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0o755))

	mgr := plugin.NewManager(pluginsDir, nil)
	require.NoError(t, mgr.Discover())

	f := newFixture(t, Config{
		Plugins:  mgr,
		Executor: plugin.NewExecutor(5*time.Second, nil),
	})

	action := &store.Action{
		ID:          "act-1",
		GestureType: "open-palm",
		PluginName:  "recorder",
		ActionName:  "record",
		Config:      json.RawMessage(`{"steps":2}`),
		Enabled:     true,
	}
	require.NoError(t, f.store.Actions().Create(action))

	f.detector.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	events, cancel := f.app.Subscribe()
	defer cancel()

	require.NoError(t, f.app.Start())
	waitEvent(t, events)
	f.app.Stop()

	recorded, err := f.store.Events().List(10)
	require.NoError(t, err)
	require.NotEmpty(t, recorded)
	assert.Equal(t, "act-1", recorded[len(recorded)-1].ActionID)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	var req plugin.Request
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "record", req.Action)
	assert.Equal(t, "open-palm", req.Gesture.Type)
	assert.JSONEq(t, `{"steps":2}`, string(req.Config))
}

func TestApp_DisabledActionIsNotRun(t *testing.T) {
	f := newFixture(t, Config{
		Plugins:  plugin.NewManager(t.TempDir(), nil),
		Executor: plugin.NewExecutor(time.Second, nil),
	})

	require.NoError(t, f.store.Actions().Create(&store.Action{
		ID:          "act-off",
		GestureType: "fist",
		PluginName:  "missing",
		ActionName:  "noop",
		Enabled:     false,
	}))

	f.detector.SetHands([]detector.HandLandmarks{detector.FistLandmarks()})
	events, cancel := f.app.Subscribe()
	defer cancel()

	require.NoError(t, f.app.Start())
	waitEvent(t, events)
	f.app.Stop()

	recorded, err := f.store.Events().List(1)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Empty(t, recorded[0].ActionID)
}

func TestApp_SubscribeCancel(t *testing.T) {
	a := New(Config{})
	defer a.Close()

	ch, cancel := a.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	a.publish(gesture.Event{Type: gesture.TypeFist})
}
