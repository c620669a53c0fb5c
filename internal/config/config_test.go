package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCR4all/ocr4all-app-sub002/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesPoolsAndWorkspacePools(t *testing.T) {
	path := writeFile(t, `
pools:
  work:
    core_pool_size: 4
  task:
    core_pool_size: 2
workspace_pools:
  project-1:
    core_pool_size: 3
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pools["work"].CorePoolSize)
	assert.Equal(t, 2, cfg.Pools["task"].CorePoolSize)
	assert.Equal(t, 3, cfg.WorkspacePools["project-1"].CorePoolSize)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAMLFails(t *testing.T) {
	path := writeFile(t, "pools: [this is not a mapping")
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestWatchDeliversReloadOnWrite(t *testing.T) {
	path := writeFile(t, "pools:\n  work:\n    core_pool_size: 1\n")

	events := make(chan *config.Config, 4)
	w, err := config.Watch(path, func(cfg *config.Config, err error) {
		require.NoError(t, err)
		events <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("pools:\n  work:\n    core_pool_size: 9\n"), 0o644))

	select {
	case cfg := <-events:
		assert.Equal(t, 9, cfg.Pools["work"].CorePoolSize)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never delivered the reload")
	}
}

func TestWatchCloseStopsDelivery(t *testing.T) {
	path := writeFile(t, "pools:\n  work:\n    core_pool_size: 1\n")

	w, err := config.Watch(path, func(*config.Config, error) {})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "closing twice must be safe")
}
