package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionRepository_CRUD(t *testing.T) {
	s := newTestStore(t)
	repo := s.Actions()

	a := &Action{
		ID:          "action-1",
		GestureType: "tilt-up",
		PluginName:  "system-control",
		ActionName:  "brightness-up",
		Config:      json.RawMessage(`{"step":0.05}`),
		Enabled:     true,
	}
	require.NoError(t, repo.Create(a))
	assert.False(t, a.CreatedAt.IsZero())

	got, err := repo.GetByID("action-1")
	require.NoError(t, err)
	assert.Equal(t, "tilt-up", got.GestureType)
	assert.Equal(t, "system-control", got.PluginName)
	assert.Equal(t, "brightness-up", got.ActionName)
	assert.JSONEq(t, `{"step":0.05}`, string(got.Config))
	assert.True(t, got.Enabled)

	byGesture, err := repo.GetByGesture("tilt-up")
	require.NoError(t, err)
	require.NotNil(t, byGesture)
	assert.Equal(t, "action-1", byGesture.ID)

	got.Enabled = false
	got.ActionName = "brightness-down"
	got.GestureType = "tilt-down"
	require.NoError(t, repo.Update(got))

	got, err = repo.GetByID("action-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "brightness-down", got.ActionName)
	assert.Equal(t, "tilt-down", got.GestureType)

	require.NoError(t, repo.Delete("action-1"))
	_, err = repo.GetByID("action-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActionRepository_GetByGestureUnbound(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Actions().GetByGesture("fist")
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestActionRepository_EmptyConfigDefaults(t *testing.T) {
	s := newTestStore(t)
	repo := s.Actions()

	require.NoError(t, repo.Create(&Action{ID: "a", GestureType: "fist", PluginName: "p", ActionName: "x", Enabled: true}))

	got, err := repo.GetByID("a")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got.Config))
}

func TestActionRepository_OneActionPerGesture(t *testing.T) {
	s := newTestStore(t)
	repo := s.Actions()

	require.NoError(t, repo.Create(&Action{ID: "a", GestureType: "fist", PluginName: "p", ActionName: "x"}))
	require.NoError(t, repo.Create(&Action{ID: "b", GestureType: "open-palm", PluginName: "p", ActionName: "y"}))

	err := repo.Create(&Action{ID: "c", GestureType: "fist", PluginName: "p", ActionName: "z"})
	assert.ErrorIs(t, err, ErrConflict)

	b, err := repo.GetByID("b")
	require.NoError(t, err)
	b.GestureType = "fist"
	assert.ErrorIs(t, repo.Update(b), ErrConflict)
}

func TestActionRepository_RejectsUnknownGesture(t *testing.T) {
	s := newTestStore(t)

	err := s.Actions().Create(&Action{ID: "a", GestureType: "wave", PluginName: "p", ActionName: "x"})
	assert.Error(t, err)
}

func TestActionRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Actions()

	actions, err := repo.List()
	require.NoError(t, err)
	assert.Empty(t, actions)

	for _, a := range []*Action{
		{ID: "1", GestureType: "fist", PluginName: "p", ActionName: "a"},
		{ID: "2", GestureType: "open-palm", PluginName: "p", ActionName: "b"},
		{ID: "3", GestureType: "tilt-up", PluginName: "p", ActionName: "c"},
	} {
		require.NoError(t, repo.Create(a))
	}

	actions, err = repo.List()
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, "3", actions[0].ID)
}

func TestActionRepository_NotFound(t *testing.T) {
	s := newTestStore(t)
	repo := s.Actions()

	assert.ErrorIs(t, repo.Update(&Action{ID: "missing", GestureType: "fist", PluginName: "p", ActionName: "a"}), ErrNotFound)
	assert.ErrorIs(t, repo.Delete("missing"), ErrNotFound)
}

func TestStore_SeedDefaultActions(t *testing.T) {
	t.Run("fresh database gets tilt brightness bindings", func(t *testing.T) {
		s := newTestStore(t)

		n, err := s.SeedDefaultActions()
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		up, err := s.Actions().GetByGesture("tilt-up")
		require.NoError(t, err)
		require.NotNil(t, up)
		assert.Equal(t, "system-control", up.PluginName)
		assert.Equal(t, "brightness-up", up.ActionName)
		assert.True(t, up.Enabled)
		assert.NotEmpty(t, up.ID)

		down, err := s.Actions().GetByGesture("tilt-down")
		require.NoError(t, err)
		require.NotNil(t, down)
		assert.Equal(t, "brightness-down", down.ActionName)
	})

	t.Run("seeds only once", func(t *testing.T) {
		s := newTestStore(t)

		_, err := s.SeedDefaultActions()
		require.NoError(t, err)

		up, err := s.Actions().GetByGesture("tilt-up")
		require.NoError(t, err)
		require.NoError(t, s.Actions().Delete(up.ID))

		n, err := s.SeedDefaultActions()
		require.NoError(t, err)
		assert.Zero(t, n)

		all, err := s.Actions().List()
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("keeps existing bindings", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Actions().Create(&Action{
			ID:          "mine",
			GestureType: "tilt-up",
			PluginName:  "keyboard",
			ActionName:  "shortcut",
			Enabled:     true,
		}))

		n, err := s.SeedDefaultActions()
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		up, err := s.Actions().GetByGesture("tilt-up")
		require.NoError(t, err)
		assert.Equal(t, "mine", up.ID)
	})
}
