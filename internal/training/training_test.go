package training_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCR4all/ocr4all-app-sub002/internal/training"
)

func TestNewEngineIDProducesDistinctValues(t *testing.T) {
	a := training.NewEngineID()
	b := training.NewEngineID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestCreateThenUpdateReflectsTerminalState(t *testing.T) {
	store := training.NewMemoryStore()
	id := training.NewEngineID()

	e, err := store.Create(id, "model-7")
	require.NoError(t, err)
	assert.Equal(t, training.StateRunning, e.State)
	assert.Equal(t, "model-7", e.ModelID)

	require.NoError(t, store.Update(id, training.StateCompleted, 1.0, "done"))

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, training.StateCompleted, got.State)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, "done", got.Note)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	store := training.NewMemoryStore()
	id := training.NewEngineID()

	_, err := store.Create(id, "model-1")
	require.NoError(t, err)

	_, err = store.Create(id, "model-1")
	assert.Error(t, err)
}

func TestGetUnknownIDFails(t *testing.T) {
	store := training.NewMemoryStore()
	_, err := store.Get("does-not-exist")
	assert.Error(t, err)
}

func TestUpdateUnknownIDFails(t *testing.T) {
	store := training.NewMemoryStore()
	err := store.Update("does-not-exist", training.StateCanceled, 0, "")
	assert.Error(t, err)
}
