package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Setting keys.
const (
	KeyTiltBaseline = "tilt_baseline"
	KeySensitivity  = "sensitivity"
	KeyEnabled      = "enabled"
)

// SettingsRepository stores application settings as key/value pairs.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key, or ErrNotFound.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (r *SettingsRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

func (r *SettingsRepository) getFloat(key string) (float64, bool, error) {
	raw, err := r.Get(key)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("setting %q: %w", key, err)
	}
	return v, true, nil
}

func (r *SettingsRepository) setFloat(key string, v float64) error {
	return r.Set(key, strconv.FormatFloat(v, 'g', -1, 64))
}

// TiltBaseline returns the stored tilt baseline, or nil if none was captured.
func (r *SettingsRepository) TiltBaseline() (*float64, error) {
	v, ok, err := r.getFloat(KeyTiltBaseline)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// SetTiltBaseline stores the tilt baseline. nil clears it.
func (r *SettingsRepository) SetTiltBaseline(baseline *float64) error {
	if baseline == nil {
		return r.Delete(KeyTiltBaseline)
	}
	return r.setFloat(KeyTiltBaseline, *baseline)
}

// Sensitivity returns the stored tilt sensitivity, or def if unset.
func (r *SettingsRepository) Sensitivity(def float64) (float64, error) {
	v, ok, err := r.getFloat(KeySensitivity)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// SetSensitivity stores the tilt sensitivity.
func (r *SettingsRepository) SetSensitivity(v float64) error {
	if v <= 0 {
		return fmt.Errorf("sensitivity must be positive, got %v", v)
	}
	return r.setFloat(KeySensitivity, v)
}

// Enabled returns the stored detection toggle, or def if unset.
func (r *SettingsRepository) Enabled(def bool) (bool, error) {
	raw, err := r.Get(KeyEnabled)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return strconv.ParseBool(raw)
}

// SetEnabled stores the detection toggle.
func (r *SettingsRepository) SetEnabled(enabled bool) error {
	return r.Set(KeyEnabled, strconv.FormatBool(enabled))
}
