package gesture

import "time"

// Stabilizer timing.
const (
	// TiltCooldown is the minimum time since the last emission before a tilt may fire.
	TiltCooldown = 220 * time.Millisecond
	// PoseCooldown applies to every other gesture.
	PoseCooldown = 850 * time.Millisecond
)

// Event is an emitted gesture.
type Event struct {
	Type          Type      `json:"type"`
	OpennessRatio float64   `json:"opennessRatio,omitempty"`
	TiltDelta     float64   `json:"tiltDelta,omitempty"`
	At            time.Time `json:"at"`
}

// Streak counts consecutive frames with the same candidate type.
// The zero value is the idle state.
type Streak struct {
	Type  Type `json:"type,omitempty"`
	Count int  `json:"count"`
}

// Idle reports whether no streak is in progress.
func (s Streak) Idle() bool {
	return s.Count == 0
}

// State is everything the stabilizer carries between frames.
type State struct {
	Streak   Streak
	LastEmit time.Time // zero until the first emission
}

// RequiredFrames returns how many consecutive frames t must hold before it may fire.
func RequiredFrames(t Type) int {
	switch {
	case t.IsTilt():
		return 2
	case t == TypeFist, t == TypeOpenPalm:
		return 2
	default:
		return 3
	}
}

// Cooldown returns the minimum time since the last emission of any gesture
// before t may fire.
func Cooldown(t Type) time.Duration {
	if t.IsTilt() {
		return TiltCooldown
	}
	return PoseCooldown
}

// Step advances the stabilizer by one frame. It is a pure function: the
// caller owns the state and keeps the returned value for the next frame.
//
// A frame without a candidate (ok == false) drops back to idle. A candidate
// of the current streak's type extends it; any other type starts a new
// streak at 1. Once the streak is long enough and the cooldown has passed,
// the event is emitted and the stabilizer returns to idle. A streak blocked
// only by the cooldown is kept so the next qualifying frame retries.
func Step(s State, c Candidate, ok bool, now time.Time) (State, Event, bool) {
	if !ok {
		s.Streak = Streak{}
		return s, Event{}, false
	}

	if !s.Streak.Idle() && s.Streak.Type == c.Type {
		s.Streak.Count++
	} else {
		s.Streak = Streak{Type: c.Type, Count: 1}
	}

	if s.Streak.Count < RequiredFrames(c.Type) {
		return s, Event{}, false
	}

	if !s.LastEmit.IsZero() && now.Sub(s.LastEmit) < Cooldown(c.Type) {
		return s, Event{}, false
	}

	s.LastEmit = now
	s.Streak = Streak{}

	return s, Event{
		Type:          c.Type,
		OpennessRatio: c.OpennessRatio,
		TiltDelta:     c.TiltDelta,
		At:            now,
	}, true
}
