// Package config loads the job engine's pool configuration and watches it
// for live changes via an fsnotify-backed file watcher.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// PoolConfig describes one named thread pool's configured core size.
type PoolConfig struct {
	CorePoolSize int `yaml:"core_pool_size"`
}

// Config is the engine's top-level configuration document.
type Config struct {
	// Pools holds the predefined pools: work, task, workflow, training.
	Pools map[string]PoolConfig `yaml:"pools"`

	// WorkspacePools holds the dynamic workspace.<name> family.
	WorkspacePools map[string]PoolConfig `yaml:"workspace_pools"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Watcher watches a config file on disk and invokes onChange with the
// newly-parsed Config every time it is written. This is the "callback
// registered with the configuration service" spec.md §4.4 requires for
// dynamic workspace.<name> pool resize.
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts watching path and delivers reload events to onChange. The
// returned Watcher must be closed by the caller when done.
func Watch(path string, onChange func(*Config, error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching config %s: %w", path, err)
	}

	w := &Watcher{watcher: fw, done: make(chan struct{})}

	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					cfg, err := Load(path)
					onChange(cfg, err)
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		// already closed
	default:
		close(w.done)
	}
	return w.watcher.Close()
}
