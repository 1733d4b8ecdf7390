package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/mudra/internal/store"
)

// Event list limits.
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

// EventHandler serves the recorded gesture history.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates an EventHandler backed by s.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

type eventResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	OpennessRatio float64 `json:"openness_ratio"`
	TiltDelta     float64 `json:"tilt_delta"`
	ActionID      string  `json:"action_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
}

// ServeHTTP routes /api/events and /api/events/stats.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	switch r.URL.Path {
	case "/api/events", "/api/events/":
		h.list(w, r)
	case "/api/events/stats":
		h.stats(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// list handles GET /api/events?limit=N, most recent first.
func (h *EventHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxEventLimit)
	}

	events, err := h.store.Events().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	response := listEventsResponse{
		Events: make([]eventResponse, 0, len(events)),
	}
	for _, e := range events {
		response.Events = append(response.Events, eventResponse{
			ID:            e.ID,
			Type:          e.Type,
			OpennessRatio: e.OpennessRatio,
			TiltDelta:     e.TiltDelta,
			ActionID:      e.ActionID,
			CreatedAt:     formatTime(e.CreatedAt),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *EventHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Events().Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute event stats")
		return
	}
	if stats.ByType == nil {
		stats.ByType = []store.TypeStats{}
	}

	writeJSON(w, http.StatusOK, stats)
}
