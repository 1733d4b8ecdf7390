package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action binds a gesture type to a plugin action.
type Action struct {
	ID          string
	GestureType string
	PluginName  string
	ActionName  string
	Config      json.RawMessage
	Enabled     bool
	CreatedAt   time.Time
}

// ActionRepository provides CRUD operations for actions.
type ActionRepository struct {
	db *sql.DB
}

// Actions returns the action repository for this store.
func (s *Store) Actions() *ActionRepository {
	return &ActionRepository{db: s.db}
}

const actionColumns = `id, gesture_type, plugin_name, action_name, config, enabled, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*Action, error) {
	a := &Action{}
	var config string
	var enabled int

	if err := row.Scan(&a.ID, &a.GestureType, &a.PluginName, &a.ActionName, &config, &enabled, &a.CreatedAt); err != nil {
		return nil, err
	}

	a.Config = json.RawMessage(config)
	a.Enabled = enabled != 0
	return a, nil
}

func rawConfig(c json.RawMessage) string {
	if len(c) == 0 {
		return "{}"
	}
	return string(c)
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a new action. Binding a gesture type that already has an
// action returns ErrConflict.
func (r *ActionRepository) Create(a *Action) error {
	a.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(
		`INSERT INTO actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.GestureType, a.PluginName, a.ActionName, rawConfig(a.Config), a.Enabled, a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// GetByID retrieves an action by its ID.
func (r *ActionRepository) GetByID(id string) (*Action, error) {
	a, err := scanAction(r.db.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// GetByGesture retrieves the action bound to a gesture type.
// Returns nil, nil if nothing is bound.
func (r *ActionRepository) GetByGesture(gestureType string) (*Action, error) {
	a, err := scanAction(r.db.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE gesture_type = ?`, gestureType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// List retrieves all actions, newest first.
func (r *ActionRepository) List() ([]*Action, error) {
	rows, err := r.db.Query(`SELECT ` + actionColumns + ` FROM actions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return actions, nil
}

// Update updates an existing action.
func (r *ActionRepository) Update(a *Action) error {
	enabled := 0
	if a.Enabled {
		enabled = 1
	}

	result, err := r.db.Exec(
		`UPDATE actions SET gesture_type = ?, plugin_name = ?, action_name = ?, config = ?, enabled = ?
		 WHERE id = ?`,
		a.GestureType, a.PluginName, a.ActionName, rawConfig(a.Config), enabled, a.ID,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}

	return expectAffected(result)
}

// Delete removes an action by its ID.
func (r *ActionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM actions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	return expectAffected(result)
}

func expectAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// actionsSeededKey marks a database whose default actions were installed.
const actionsSeededKey = "actions_seeded"

// DefaultActions returns the bindings a new database starts with: tilting
// the hand steps the display brightness.
func DefaultActions() []*Action {
	return []*Action{
		{GestureType: "tilt-up", PluginName: "system-control", ActionName: "brightness-up", Enabled: true},
		{GestureType: "tilt-down", PluginName: "system-control", ActionName: "brightness-down", Enabled: true},
	}
}

// SeedDefaultActions installs DefaultActions once per database. Gesture
// types that are already bound keep their binding, and removing a default
// later does not bring it back. It returns the number of actions created.
func (s *Store) SeedDefaultActions() (int, error) {
	settings := s.Settings()
	if _, err := settings.Get(actionsSeededKey); err == nil {
		return 0, nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("read %s: %w", actionsSeededKey, err)
	}

	actions := s.Actions()
	created := 0
	for _, a := range DefaultActions() {
		a.ID = uuid.NewString()
		err := actions.Create(a)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %s action: %w", a.GestureType, err)
		}
		created++
	}

	if err := settings.Set(actionsSeededKey, "1"); err != nil {
		return created, fmt.Errorf("write %s: %w", actionsSeededKey, err)
	}
	return created, nil
}
