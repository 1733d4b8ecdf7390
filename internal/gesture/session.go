package gesture

import (
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Sink receives the outputs of a Session.
type Sink interface {
	// OnGesture is called once per emitted gesture.
	OnGesture(Event)

	// OnBaselineSample receives the raw tilt metric captured after a
	// calibration request. The sink is expected to store it and hand it back
	// through Session.SetBaseline.
	OnBaselineSample(tilt float64)
}

// DebugSink is optionally implemented by a Sink to receive the features of
// every frame that produced a candidate.
type DebugSink interface {
	OnDebug(Debug)
}

// Debug describes a frame that produced a candidate.
type Debug struct {
	Candidate     Type    `json:"candidate"`
	OpennessRatio float64 `json:"opennessRatio"`
	Tilt          float64 `json:"tilt"`
}

// SessionConfig configures a new Session.
type SessionConfig struct {
	Sensitivity float64
	Baseline    *float64
	// CalibrateOnStart arms a capture for the first frame with a hand.
	CalibrateOnStart bool
}

// Session is one detection session: calibration capture, classification and
// stabilization behind a single lock, driven once per frame.
type Session struct {
	sink Sink

	mu          sync.Mutex
	state       State
	cal         calibrator
	baseline    float64
	calibrated  bool
	sensitivity float64
}

// NewSession creates a Session reporting to sink. A nil sink disables
// calibration capture; events are still returned from Process.
func NewSession(cfg SessionConfig, sink Sink) *Session {
	s := &Session{
		sink:        sink,
		sensitivity: cfg.Sensitivity,
	}
	if s.sensitivity <= 0 {
		s.sensitivity = DefaultSensitivity
	}
	if cfg.Baseline != nil {
		s.baseline = *cfg.Baseline
		s.calibrated = true
	}
	s.cal.armed = cfg.CalibrateOnStart
	return s
}

// Process runs one frame. h is nil when no hand was detected.
// Sink callbacks run after the session lock is released, in the order
// baseline sample, debug, gesture.
func (s *Session) Process(h *detector.HandLandmarks, now time.Time) (Event, bool) {
	s.mu.Lock()

	var (
		sample   float64
		captured bool
	)
	if s.sink != nil {
		sample, captured = s.cal.capture(h)
	}

	var baseline *float64
	if s.calibrated {
		b := s.baseline
		baseline = &b
	}

	c, ok := Classify(h, baseline, s.sensitivity)

	var dbg Debug
	if ok {
		dbg = Debug{Candidate: c.Type, OpennessRatio: c.OpennessRatio, Tilt: TiltMetric(h)}
	}

	next, ev, emitted := Step(s.state, c, ok, now)
	s.state = next
	s.mu.Unlock()

	if s.sink == nil {
		return ev, emitted
	}
	if captured {
		s.sink.OnBaselineSample(sample)
	}
	if ok {
		if ds, isDebug := s.sink.(DebugSink); isDebug {
			ds.OnDebug(dbg)
		}
	}
	if emitted {
		s.sink.OnGesture(ev)
	}

	return ev, emitted
}

// RequestCalibration arms a tilt capture for the next frame with a hand.
// Repeating the previous token is a no-op. Reports whether a capture was armed.
func (s *Session) RequestCalibration(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal.request(token)
}

// SetBaseline sets the tilt baseline. nil clears it and disables tilt gestures.
func (s *Session) SetBaseline(baseline *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if baseline == nil {
		s.baseline, s.calibrated = 0, false
		return
	}
	s.baseline, s.calibrated = *baseline, true
}

// SetSensitivity sets the tilt threshold. Non-positive values are ignored.
func (s *Session) SetSensitivity(sensitivity float64) {
	if sensitivity <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensitivity = sensitivity
}

// Calibration returns a snapshot of the calibration state.
func (s *Session) Calibration() Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := Calibration{
		Sensitivity: s.sensitivity,
		Pending:     s.cal.armed,
	}
	if s.calibrated {
		b := s.baseline
		c.Baseline = &b
	}
	return c
}

// State returns a snapshot of the stabilizer state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset drops any streak in progress and the cooldown clock.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
}
