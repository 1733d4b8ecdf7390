// Package gesture turns per-frame hand landmarks into debounced gesture events.
//
// A frame goes through three steps: feature extraction (openness ratio and
// tilt metric), one-frame classification into a Candidate, and the
// stabilizer state machine (Step) which only emits an Event once a candidate
// has held for enough consecutive frames and the global cooldown has passed.
// Session wires the three together with tilt calibration for a frame loop.
package gesture

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/mudra/internal/detector"
)

// minPalmSpan floors the openness denominator for degenerate hands.
const minPalmSpan = 1e-4

// Features are the scalar values classification is based on.
type Features struct {
	OpennessRatio float64 `json:"opennessRatio"`
	Tilt          float64 `json:"tilt"`
}

// Distance returns the 3D Euclidean distance between two landmarks.
func Distance(a, b detector.Point3D) float64 {
	return r3.Norm(r3.Sub(vec(a), vec(b)))
}

func vec(p detector.Point3D) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// OpennessRatio compares finger spread to palm size.
//
// The palm span (index MCP to pinky MCP plus wrist to palm centre) stays
// roughly constant while the thumb-tip to index-tip distance collapses on a
// closed fist, so the ratio is near 1 for a fist and well above it for an
// open hand.
func OpennessRatio(h *detector.HandLandmarks) float64 {
	knuckles := Distance(h.Points[detector.IndexMCP], h.Points[detector.PinkyMCP])
	palm := Distance(h.Points[detector.Wrist], h.Points[detector.PalmCenter])
	pinch := Distance(h.Points[detector.ThumbTip], h.Points[detector.IndexTip])

	span := knuckles + palm
	return (knuckles + pinch + palm) / math.Max(span, minPalmSpan)
}

// TiltMetric is the wrist depth minus the palm centre depth, a proxy for
// wrist pitch. It is only meaningful relative to a calibrated baseline.
func TiltMetric(h *detector.HandLandmarks) float64 {
	return h.Points[detector.Wrist].Z - h.Points[detector.PalmCenter].Z
}

// ExtractFeatures computes all features for one hand.
func ExtractFeatures(h *detector.HandLandmarks) Features {
	return Features{
		OpennessRatio: OpennessRatio(h),
		Tilt:          TiltMetric(h),
	}
}
