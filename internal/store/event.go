package store

import (
	"database/sql"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Event is a recorded gesture emission.
type Event struct {
	ID            string
	Type          string
	OpennessRatio float64
	TiltDelta     float64
	// ActionID is the action that was dispatched for the event, if any.
	ActionID  string
	CreatedAt time.Time
}

// TypeStats summarises the recorded events of one gesture type.
type TypeStats struct {
	Type             string  `json:"type"`
	Count            int     `json:"count"`
	MeanOpenness     float64 `json:"meanOpenness"`
	StdDevOpenness   float64 `json:"stdDevOpenness"`
	MeanAbsTiltDelta float64 `json:"meanAbsTiltDelta"`
	Dispatched       int     `json:"dispatched"`
}

// EventStats summarises all recorded events.
type EventStats struct {
	Total  int         `json:"total"`
	ByType []TypeStats `json:"byType"`
}

// EventRepository records emitted gesture events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create inserts an event. A zero CreatedAt is set to the current time.
func (r *EventRepository) Create(e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var actionID sql.NullString
	if e.ActionID != "" {
		actionID = sql.NullString{String: e.ActionID, Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO gesture_events (id, type, openness_ratio, tilt_delta, action_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.OpennessRatio, e.TiltDelta, actionID, e.CreatedAt,
	)
	return err
}

// List returns up to limit events, most recent first.
func (r *EventRepository) List(limit int) ([]*Event, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.db.Query(
		`SELECT id, type, openness_ratio, tilt_delta, action_id, created_at
		 FROM gesture_events ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var actionID sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &e.OpennessRatio, &e.TiltDelta, &actionID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActionID = actionID.String
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Stats computes per-type summaries over all recorded events, ordered by type.
func (r *EventRepository) Stats() (EventStats, error) {
	rows, err := r.db.Query(`SELECT type, openness_ratio, tilt_delta, action_id IS NOT NULL FROM gesture_events`)
	if err != nil {
		return EventStats{}, err
	}
	defer rows.Close()

	type samples struct {
		openness   []float64
		tilt       []float64
		dispatched int
	}
	byType := map[string]*samples{}

	var total int
	for rows.Next() {
		var (
			typ             string
			openness, delta float64
			dispatched      bool
		)
		if err := rows.Scan(&typ, &openness, &delta, &dispatched); err != nil {
			return EventStats{}, err
		}

		s, ok := byType[typ]
		if !ok {
			s = &samples{}
			byType[typ] = s
		}
		s.openness = append(s.openness, openness)
		if delta < 0 {
			delta = -delta
		}
		s.tilt = append(s.tilt, delta)
		if dispatched {
			s.dispatched++
		}
		total++
	}
	if err := rows.Err(); err != nil {
		return EventStats{}, err
	}

	stats := EventStats{Total: total, ByType: make([]TypeStats, 0, len(byType))}
	for typ, s := range byType {
		ts := TypeStats{
			Type:             typ,
			Count:            len(s.openness),
			MeanAbsTiltDelta: stat.Mean(s.tilt, nil),
			Dispatched:       s.dispatched,
		}
		if ts.Count > 1 {
			ts.MeanOpenness, ts.StdDevOpenness = stat.MeanStdDev(s.openness, nil)
		} else {
			ts.MeanOpenness = s.openness[0]
		}
		stats.ByType = append(stats.ByType, ts)
	}
	sort.Slice(stats.ByType, func(i, j int) bool {
		return stats.ByType[i].Type < stats.ByType[j].Type
	})

	return stats, nil
}
