// Package app runs the mudra detection pipeline: it reads camera frames,
// feeds the primary hand into a gesture session, records emitted gestures and
// dispatches them to the plugin bound to each gesture type.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// Pipeline defaults.
const (
	DefaultIdleFPS   = 5
	DefaultActiveFPS = capture.DefaultFPS
	DefaultIdleAfter = 2 * time.Second
)

// CameraStatus is the state of the capture side of the pipeline.
type CameraStatus string

const (
	CameraIdle     CameraStatus = "idle"
	CameraScanning CameraStatus = "scanning"
	CameraError    CameraStatus = "error"
)

// ErrNotRunning is returned by operations that need a running pipeline.
var ErrNotRunning = errors.New("pipeline is not running")

// Config holds configuration options for the application.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	Store    *store.Store
	Plugins  *plugin.Manager
	Executor *plugin.Executor
	Logger   *slog.Logger

	Sensitivity      float64
	Baseline         *float64
	CalibrateOnStart bool

	MotionThreshold float64
	IdleFPS         int
	ActiveFPS       int
	IdleAfter       time.Duration

	// Now is the frame clock. Defaults to time.Now.
	Now func() time.Time
}

// Status is a snapshot of the application state.
type Status struct {
	Enabled     bool                `json:"enabled"`
	Camera      CameraStatus        `json:"camera"`
	CameraError string              `json:"cameraError,omitempty"`
	FPS         int                 `json:"fps"`
	Calibration gesture.Calibration `json:"calibration"`
	LastGesture *gesture.Event      `json:"lastGesture,omitempty"`
}

// App is the main application that orchestrates gesture detection and action execution.
type App struct {
	config  Config
	logger  *slog.Logger
	sink    *frameSink
	session *gesture.Session
	motion  *capture.MotionDetector
	cadence *capture.Cadence

	updates  chan update
	outbound chan outboundMsg

	mu        sync.RWMutex
	enabled   bool
	running   bool
	done      chan struct{}
	wg        sync.WaitGroup
	senders   sync.WaitGroup // in-flight sends to the running loop
	status    CameraStatus
	cameraErr error
	fps       int
	token     uint64
	last      *gesture.Event
	frame     *latestFrame

	subMu  sync.Mutex
	subs   map[int]chan gesture.Event
	nextID int
}

// New creates a new App instance with the given configuration. A nil
// detector is replaced by a MockDetector that never sees a hand.
func New(config Config) *App {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.IdleFPS <= 0 {
		config.IdleFPS = DefaultIdleFPS
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = DefaultActiveFPS
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = DefaultIdleAfter
	}
	if config.Detector == nil {
		config.Logger.Warn("no hand detector configured, using mock detector")
		config.Detector = detector.NewMockDetector()
	}

	sink := &frameSink{logger: config.Logger}
	return &App{
		config: config,
		logger: config.Logger,
		sink:   sink,
		session: gesture.NewSession(gesture.SessionConfig{
			Sensitivity:      config.Sensitivity,
			Baseline:         config.Baseline,
			CalibrateOnStart: config.CalibrateOnStart,
		}, sink),
		motion:   capture.NewMotionDetector(config.MotionThreshold),
		cadence:  capture.NewCadence(config.IdleFPS, config.ActiveFPS, config.IdleAfter),
		updates:  make(chan update, 16),
		outbound: make(chan outboundMsg, 64),
		enabled:  true,
		status:   CameraIdle,
		fps:      config.IdleFPS,
		frame:    &latestFrame{},
		subs:     make(map[int]chan gesture.Event),
	}
}

// Start opens the camera and starts the frame loop and the dispatcher.
// Starting a running App is a no-op.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}
	if a.config.Camera == nil {
		a.status, a.cameraErr = CameraError, errors.New("no camera configured")
		return a.cameraErr
	}

	if err := a.config.Camera.Open(); err != nil {
		a.status, a.cameraErr = CameraError, err
		a.logger.Error("failed to open camera", "error", err)
		return fmt.Errorf("open camera: %w", err)
	}
	a.fps = a.cadence.FPS()
	a.config.Camera.SetFPS(a.fps)

	a.status, a.cameraErr = CameraScanning, nil
	a.running = true
	a.done = make(chan struct{})

	a.wg.Add(2)
	go a.runPipeline(a.done)
	go a.runDispatcher(a.done)

	a.logger.Info("detection pipeline started", "fps", a.fps)
	return nil
}

// Stop halts the pipeline, waits for it to drain and releases the camera.
// The detector stays open so the App can be restarted; Close releases it.
func (a *App) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	close(a.done)
	a.running = false
	a.mu.Unlock()

	a.wg.Wait()
	a.drainOutbound()

	// Senders that saw the loop running may still have queued updates.
	a.senders.Wait()
	a.drainUpdates()

	if err := a.config.Camera.Close(); err != nil {
		a.logger.Warn("error closing camera", "error", err)
	}
	a.session.Reset()
	a.frame.clear()

	a.mu.Lock()
	a.status = CameraIdle
	a.mu.Unlock()

	a.logger.Info("detection pipeline stopped")
}

// Close stops the pipeline and releases the detector and motion buffers.
func (a *App) Close() error {
	a.Stop()
	a.motion.Close()
	return a.config.Detector.Close()
}

// Running reports whether the frame loop is running.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// SetEnabled enables or disables gesture detection. While disabled the loop
// keeps the camera open but skips frames.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetEnabled(enabled); err != nil {
			a.logger.Warn("failed to persist enabled flag", "error", err)
		}
	}
	a.send(enabledUpdate{enabled: enabled})
}

// IsEnabled returns whether gesture detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// RequestCalibration arms a one-shot baseline capture for the next frame
// with a hand and returns the token that armed it.
func (a *App) RequestCalibration() uint64 {
	a.mu.Lock()
	a.token++
	token := a.token
	a.mu.Unlock()

	a.send(calibrationRequest{token: token})
	return token
}

// SetSensitivity persists and applies a new tilt threshold.
func (a *App) SetSensitivity(sensitivity float64) error {
	if sensitivity <= 0 {
		return fmt.Errorf("sensitivity must be > 0, got %v", sensitivity)
	}
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetSensitivity(sensitivity); err != nil {
			return fmt.Errorf("persist sensitivity: %w", err)
		}
	}
	a.send(sensitivityUpdate{sensitivity: sensitivity})
	return nil
}

// ClearBaseline forgets the stored baseline. Tilt gestures stop until the
// next calibration.
func (a *App) ClearBaseline() error {
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetTiltBaseline(nil); err != nil {
			return fmt.Errorf("clear baseline: %w", err)
		}
	}
	a.send(baselineUpdate{})
	return nil
}

// Calibration returns the session's calibration state.
func (a *App) Calibration() gesture.Calibration {
	return a.session.Calibration()
}

// CameraStatus returns the camera status and the error that caused
// CameraError, if any.
func (a *App) CameraStatus() (CameraStatus, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status, a.cameraErr
}

// LastGesture returns the most recently emitted gesture.
func (a *App) LastGesture() (gesture.Event, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return gesture.Event{}, false
	}
	return *a.last, true
}

// Status returns a snapshot of the application state.
func (a *App) Status() Status {
	a.mu.RLock()
	s := Status{
		Enabled: a.enabled,
		Camera:  a.status,
		FPS:     a.fps,
	}
	if a.cameraErr != nil {
		s.CameraError = a.cameraErr.Error()
	}
	if a.last != nil {
		ev := *a.last
		s.LastGesture = &ev
	}
	a.mu.RUnlock()

	s.Calibration = a.session.Calibration()
	return s
}

// Snapshot returns the latest frame encoded as JPEG.
func (a *App) Snapshot() ([]byte, error) {
	if !a.Running() {
		return nil, ErrNotRunning
	}
	return a.frame.jpeg()
}

// Subscribe returns a channel of emitted gestures and a function that
// cancels the subscription. Slow subscribers miss events.
func (a *App) Subscribe() (<-chan gesture.Event, func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	id := a.nextID
	a.nextID++
	ch := make(chan gesture.Event, 16)
	a.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *App) publish(ev gesture.Event) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// send delivers u to the frame loop, or applies it directly when the loop
// is not running.
func (a *App) send(u update) {
	a.mu.RLock()
	running, done := a.running, a.done
	if running {
		a.senders.Add(1)
	}
	a.mu.RUnlock()

	if running {
		defer a.senders.Done()
		select {
		case a.updates <- u:
			return
		case <-done:
		}
	}
	a.apply(u)
}

// dispatchTimeout bounds one event's store writes and plugin run.
func (a *App) dispatchTimeout() time.Duration {
	if a.config.Executor != nil {
		return a.config.Executor.Timeout() + time.Second
	}
	return 5 * time.Second
}
