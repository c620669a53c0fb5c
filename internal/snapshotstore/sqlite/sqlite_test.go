package sqlite_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshotstore/sqlite"
	"github.com/OCR4all/ocr4all-app-sub002/pkg/engineerrors"
)

func open(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(sqlite.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRootAndDerivedLifecycle(t *testing.T) {
	store := open(t)

	root, err := store.CreateRoot("wf-1", snapshot.TypeLauncher, "root", "d", "", nil)
	require.NoError(t, err)
	assert.True(t, root.Track.IsRoot())

	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	assert.Error(t, err, "root not completed yet")

	progress := 1.0
	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessCompleted, &progress, nil, nil, nil))

	child, err := store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Track{1}, child.Track)

	got, err := store.Get(root.Track)
	require.NoError(t, err)
	assert.Len(t, got.Derived, 1)
	assert.Contains(t, got.Derived, 1)
}

func TestLockPreventsCreateDerived(t *testing.T) {
	store := open(t)
	root, err := store.CreateRoot("wf-2", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessCompleted, nil, nil, nil, nil))
	require.NoError(t, store.Lock(root.Track, "ocr.tesseract", "done"))

	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	assert.Error(t, err)

	require.NoError(t, store.Unlock(root.Track))
	_, err = store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	assert.NoError(t, err)
}

func TestRemoveAllDerived(t *testing.T) {
	store := open(t)
	root, err := store.CreateRoot("wf-3", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessCompleted, nil, nil, nil, nil))

	child, err := store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateProcess(child.Track, snapshot.ProcessCompleted, nil, nil, nil, nil))
	_, err = store.CreateDerived(child.Track, snapshot.TypeOCR, "p1a", "", "ocr.tesseract", nil)
	require.NoError(t, err)

	require.NoError(t, store.RemoveAllDerived(root.Track))
	got, err := store.Get(root.Track)
	require.NoError(t, err)
	assert.Empty(t, got.Derived)

	_, err = store.Get(snapshot.Track{1})
	assert.Error(t, err)
}

func TestGetRootNoRootIsNotAnError(t *testing.T) {
	store := open(t)

	got, err := store.GetRoot("no-such-workflow")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetRootOnClosedStoreReturnsPersistenceFailure(t *testing.T) {
	store := open(t)
	_, err := store.CreateRoot("wf-closed", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)

	require.NoError(t, store.Close())

	_, err = store.GetRoot("wf-closed")
	require.Error(t, err, "a closed connection must surface as a genuine failure, not a no-root miss")
	assert.True(t, errors.Is(err, engineerrors.ErrPersistenceFailure))
}
