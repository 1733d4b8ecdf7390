package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/gesture"
)

// Controller is the part of the running application the control
// endpoints drive. *app.App implements it.
type Controller interface {
	Status() app.Status
	Calibration() gesture.Calibration
	RequestCalibration() uint64
	ClearBaseline() error
	SetSensitivity(sensitivity float64) error
	SetEnabled(enabled bool)
}

// ControlHandler serves status, calibration and settings.
type ControlHandler struct {
	app Controller
}

// NewControlHandler creates a ControlHandler for c.
func NewControlHandler(c Controller) *ControlHandler {
	return &ControlHandler{app: c}
}

type calibrationResponse struct {
	Token       uint64              `json:"token,omitempty"`
	Calibration gesture.Calibration `json:"calibration"`
}

type settingsRequest struct {
	Sensitivity *float64 `json:"sensitivity"`
	Enabled     *bool    `json:"enabled"`
}

// Status handles GET /api/status.
func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Status())
}

// Calibration handles /api/calibration. POST arms a baseline capture for
// the next frame with a hand; DELETE forgets the baseline.
func (h *ControlHandler) Calibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, calibrationResponse{Calibration: h.app.Calibration()})
	case http.MethodPost:
		token := h.app.RequestCalibration()
		writeJSON(w, http.StatusAccepted, calibrationResponse{
			Token:       token,
			Calibration: h.app.Calibration(),
		})
	case http.MethodDelete:
		if err := h.app.ClearBaseline(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to clear baseline")
			return
		}
		writeJSON(w, http.StatusOK, calibrationResponse{Calibration: h.app.Calibration()})
	default:
		methodNotAllowed(w)
	}
}

// Settings handles PUT /api/settings.
func (h *ControlHandler) Settings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Sensitivity != nil && *req.Sensitivity <= 0 {
		writeError(w, http.StatusBadRequest, "sensitivity must be greater than 0")
		return
	}

	if req.Sensitivity != nil {
		if err := h.app.SetSensitivity(*req.Sensitivity); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save sensitivity")
			return
		}
	}
	if req.Enabled != nil {
		h.app.SetEnabled(*req.Enabled)
	}

	writeJSON(w, http.StatusOK, h.app.Status())
}
