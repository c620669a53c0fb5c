package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OCR4all/ocr4all-app-sub002/internal/engine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
pools:
  work:
    core_pool_size: 2
  task:
    core_pool_size: 2
  workflow:
    core_pool_size: 2
  training:
    core_pool_size: 1
workspace_pools: {}
`

func TestNewBuildsAllComponents(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	e, err := engine.New(engine.Options{ConfigPath: path})
	require.NoError(t, err)
	require.NotNil(t, e.Pools)
	require.NotNil(t, e.Scheduler)
	require.NotNil(t, e.SnapshotStore)
	require.NotNil(t, e.TrainingStore)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx, 100*time.Millisecond))
}

func TestNewWithSqliteSnapshotStore(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	e, err := engine.New(engine.Options{ConfigPath: path, SnapshotDSN: "sqlite::memory:"})
	require.NoError(t, err)

	root, err := e.SnapshotStore.CreateRoot("wf-1", "task", "label", "desc", "provider.x", nil)
	require.NoError(t, err)
	require.True(t, root.Track.IsRoot())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx, 100*time.Millisecond))
}

func TestNewRejectsUnreadableConfig(t *testing.T) {
	_, err := engine.New(engine.Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestConfigWatchAppliesPoolResize(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	e, err := engine.New(engine.Options{ConfigPath: path, WatchConfig: true})
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Close(ctx, 100*time.Millisecond)
	}()

	resized := `
pools:
  work:
    core_pool_size: 5
  task:
    core_pool_size: 2
  workflow:
    core_pool_size: 2
  training:
    core_pool_size: 1
workspace_pools: {}
`
	require.NoError(t, os.WriteFile(path, []byte(resized), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := e.Pools.Category("work"); p != nil && p.Size() == 5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("work pool was never resized after config reload")
}
