package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshotstore/memory"
)

func TestCreateRootThenDerivedSequence(t *testing.T) {
	store := memory.New()

	root, err := store.CreateRoot("wf-1", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)
	assert.True(t, root.Track.IsRoot())

	// A freshly created root is not completed, so it does not allow
	// derived snapshots until the engine marks it completed.
	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	assert.Error(t, err)

	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessCompleted, nil, nil, nil, nil))

	child1, err := store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Track{1}, child1.Track)

	child2, err := store.CreateDerived(root.Track, snapshot.TypeOCR, "p2", "", "ocr.tesseract", nil)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Track{2}, child2.Track)
}

func TestCreateDerivedRejectsLockedParent(t *testing.T) {
	store := memory.New()
	root, err := store.CreateRoot("wf-2", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessCompleted, nil, nil, nil, nil))
	require.NoError(t, store.Lock(root.Track, "ocr.tesseract", "final"))

	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	assert.Error(t, err)

	require.NoError(t, store.Unlock(root.Track))
	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	assert.NoError(t, err)
}

func TestUpdateProcessPersistsOptionalFields(t *testing.T) {
	store := memory.New()
	root, err := store.CreateRoot("wf-3", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)

	progress := 0.75
	stdout := "out"
	note := "note"
	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessRunning, &progress, &stdout, nil, &note))

	got, err := store.Get(root.Track)
	require.NoError(t, err)
	assert.Equal(t, snapshot.ProcessRunning, got.Process)
	assert.InDelta(t, 0.75, got.Progress, 1e-9)
	assert.Equal(t, "out", got.StandardOutput)
	assert.Equal(t, "note", got.Note)
}

func TestLeafRejectsNonLeaf(t *testing.T) {
	store := memory.New()
	root, err := store.CreateRoot("wf-4", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessCompleted, nil, nil, nil, nil))
	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	require.NoError(t, err)

	_, err = store.Leaf(root.Track)
	assert.Error(t, err)

	leaf, err := store.Leaf(snapshot.Track{1})
	require.NoError(t, err)
	assert.Equal(t, snapshot.Track{1}, leaf.Track)
}

func TestRemoveDerivedAndRemoveAll(t *testing.T) {
	store := memory.New()
	root, err := store.CreateRoot("wf-5", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessCompleted, nil, nil, nil, nil))
	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	require.NoError(t, err)
	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p2", "", "ocr.tesseract", nil)
	require.NoError(t, err)

	require.NoError(t, store.RemoveDerived(root.Track, 1))
	_, err = store.Get(snapshot.Track{1})
	assert.Error(t, err)

	require.NoError(t, store.RemoveAllDerived(root.Track))
	_, err = store.Get(snapshot.Track{2})
	assert.Error(t, err)
}
