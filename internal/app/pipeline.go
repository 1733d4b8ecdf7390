package app

import (
	"log/slog"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// update is a configuration change delivered to the frame loop.
type update interface{}

type (
	enabledUpdate      struct{ enabled bool }
	calibrationRequest struct{ token uint64 }
	sensitivityUpdate  struct{ sensitivity float64 }
	// baselineUpdate with a nil value clears the baseline.
	baselineUpdate struct{ value *float64 }
)

// outboundMsg is produced by the frame loop and consumed by the dispatcher.
type outboundMsg interface{}

type (
	gestureMsg  struct{ event gesture.Event }
	baselineMsg struct{ tilt float64 }
)

// frameSink collects session output for the frame currently being
// processed. Only the frame loop touches it.
type frameSink struct {
	logger  *slog.Logger
	pending []outboundMsg
}

func (s *frameSink) OnGesture(ev gesture.Event) {
	s.pending = append(s.pending, gestureMsg{event: ev})
}

func (s *frameSink) OnBaselineSample(tilt float64) {
	s.pending = append(s.pending, baselineMsg{tilt: tilt})
}

func (s *frameSink) OnDebug(d gesture.Debug) {
	s.logger.Debug("candidate", "type", d.Candidate, "openness_ratio", d.OpennessRatio, "tilt", d.Tilt)
}

func (s *frameSink) take() []outboundMsg {
	out := s.pending
	s.pending = nil
	return out
}

func interval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}

// runPipeline is the frame loop. It owns the session and applies
// configuration updates between frames.
func (a *App) runPipeline(done <-chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval(a.cadence.FPS()))
	defer ticker.Stop()

	for {
		select {
		case <-done:
			a.drainUpdates()
			return
		case u := <-a.updates:
			a.apply(u)
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}
			a.processFrame(ticker, done)
		}
	}
}

// processFrame reads one frame and steps the session with its primary hand.
// Camera and detector failures count as a frame without a hand.
func (a *App) processFrame(ticker *time.Ticker, done <-chan struct{}) {
	now := a.config.Now()

	hand, err := a.readHand(ticker, now)
	if err != nil {
		a.logger.Debug("frame skipped", "error", err)
	}

	a.session.Process(hand, now)
	for _, m := range a.sink.take() {
		a.emit(m, done)
	}
}

func (a *App) readHand(ticker *time.Ticker, now time.Time) (*detector.HandLandmarks, error) {
	frame, err := a.config.Camera.ReadFrame()
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	motion, _ := a.motion.Detect(frame)
	if fps, changed := a.cadence.Observe(motion, now); changed {
		a.config.Camera.SetFPS(fps)
		ticker.Reset(interval(fps))
		a.mu.Lock()
		a.fps = fps
		a.mu.Unlock()
		if a.cadence.Active() {
			a.logger.Debug("switched to active mode", "fps", fps)
		} else {
			a.logger.Debug("switched to idle mode", "fps", fps)
		}
	}

	a.frame.store(frame)

	hands, err := a.config.Detector.Detect(frame)
	if err != nil {
		return nil, err
	}
	return detector.Primary(hands), nil
}

// emit hands m to the dispatcher. While waiting it keeps applying updates,
// since the dispatcher may itself be blocked sending one.
func (a *App) emit(m outboundMsg, done <-chan struct{}) {
	for {
		select {
		case a.outbound <- m:
			return
		case u := <-a.updates:
			a.apply(u)
		case <-done:
			return
		}
	}
}

func (a *App) apply(u update) {
	switch u := u.(type) {
	case enabledUpdate:
		if !u.enabled {
			a.session.Reset()
			a.motion.Reset()
		}
	case calibrationRequest:
		if a.session.RequestCalibration(u.token) {
			a.logger.Info("calibration requested", "token", u.token)
		}
	case sensitivityUpdate:
		a.session.SetSensitivity(u.sensitivity)
	case baselineUpdate:
		a.session.SetBaseline(u.value)
	}
}

func (a *App) drainUpdates() {
	for {
		select {
		case u := <-a.updates:
			a.apply(u)
		default:
			return
		}
	}
}
