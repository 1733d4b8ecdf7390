package gesture

import (
	"strings"

	"github.com/ayusman/mudra/internal/detector"
)

// Type identifies a recognized gesture.
type Type string

const (
	TypeFist     Type = "fist"
	TypeOpenPalm Type = "open-palm"
	TypeTiltUp   Type = "tilt-up"
	TypeTiltDown Type = "tilt-down"
)

// Openness thresholds. Ratios between the two fall through to tilt detection.
const (
	FistMaxRatio     = 1.2
	OpenPalmMinRatio = 1.35
)

// DefaultSensitivity is the tilt delta a hand must exceed to count as tilted.
const DefaultSensitivity = 0.08

// Types lists every gesture the classifier can produce.
var Types = []Type{TypeFist, TypeOpenPalm, TypeTiltUp, TypeTiltDown}

// IsTilt reports whether t is one of the tilt gestures.
func (t Type) IsTilt() bool {
	return strings.HasPrefix(string(t), "tilt")
}

// Valid reports whether t is a known gesture type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Candidate is the classification of a single frame.
// TiltDelta is only set for tilt gestures.
type Candidate struct {
	Type          Type
	OpennessRatio float64
	TiltDelta     float64
}

// Classify decides the gesture shown in a single frame.
//
// Openness is checked first: below FistMaxRatio is a fist, above
// OpenPalmMinRatio an open palm. Hands in between are only tested for tilt,
// and only once a baseline exists. ok is false when the frame holds no gesture.
func Classify(h *detector.HandLandmarks, baseline *float64, sensitivity float64) (c Candidate, ok bool) {
	if h == nil {
		return Candidate{}, false
	}

	f := ExtractFeatures(h)
	ratio := f.OpennessRatio
	switch {
	case ratio < FistMaxRatio:
		return Candidate{Type: TypeFist, OpennessRatio: ratio}, true
	case ratio > OpenPalmMinRatio:
		return Candidate{Type: TypeOpenPalm, OpennessRatio: ratio}, true
	}

	if baseline == nil {
		return Candidate{}, false
	}

	delta := f.Tilt - *baseline
	switch {
	case delta > sensitivity:
		return Candidate{Type: TypeTiltUp, OpennessRatio: ratio, TiltDelta: delta}, true
	case delta < -sensitivity:
		return Candidate{Type: TypeTiltDown, OpennessRatio: ratio, TiltDelta: delta}, true
	}

	return Candidate{}, false
}
