package gesture

import "github.com/ayusman/mudra/internal/detector"

// Calibration is the tilt reference classification runs against.
type Calibration struct {
	// Baseline is the tilt metric of the neutral hand; nil until calibrated.
	Baseline    *float64 `json:"baseline"`
	Sensitivity float64  `json:"sensitivity"`
	// Pending is true while a capture is armed and waiting for a hand.
	Pending bool `json:"pending"`
}

// calibrator arms a one-shot tilt capture each time a new token is seen.
type calibrator struct {
	token uint64
	armed bool
}

// request arms a capture if token differs from the last one seen.
func (c *calibrator) request(token uint64) bool {
	if token == c.token {
		return false
	}
	c.token = token
	c.armed = true
	return true
}

// capture takes the tilt sample from h if a capture is armed.
func (c *calibrator) capture(h *detector.HandLandmarks) (float64, bool) {
	if !c.armed || h == nil {
		return 0, false
	}
	c.armed = false
	return TiltMetric(h), true
}
