// Package training defines the Engine record a TrainingInstance updates on
// completion (spec.md §4.2's training variant) and an in-memory reference
// store, grounded the same way internal/snapshotstore/memory is: a single
// mutex guarding a map, serializing updates per engine id.
package training

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State mirrors the instance/job state alphabet restricted to running (the
// state Create sets) and the terminal outcomes a training run can leave an
// Engine record in.
type State string

const (
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateCanceled    State = "canceled"
	StateInterrupted State = "interrupted"
)

// Engine is the persisted record of one model-training run.
type Engine struct {
	ID        string
	ModelID   string
	State     State
	Progress  float64
	Note      string
	Updated   time.Time
}

// Store is the persistence boundary a TrainingInstance updates through.
type Store interface {
	Get(id string) (*Engine, error)
	Create(id, modelID string) (*Engine, error)
	Update(id string, state State, progress float64, note string) error
}

// NewEngineID mints a fresh engine record id. Callers that don't already
// have a stable id to key the training engine record by (a model version,
// a resumed run) should use this before Store.Create.
func NewEngineID() string {
	return uuid.New().String()
}

// MemoryStore is an in-memory reference Store.
type MemoryStore struct {
	mu      sync.Mutex
	engines map[string]*Engine
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{engines: make(map[string]*Engine)}
}

// Get returns the engine record for id.
func (m *MemoryStore) Get(id string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[id]
	if !ok {
		return nil, fmt.Errorf("no engine record %q", id)
	}
	return e, nil
}

// Create creates a new engine record in the running state.
func (m *MemoryStore) Create(id, modelID string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.engines[id]; exists {
		return nil, fmt.Errorf("engine record %q already exists", id)
	}
	e := &Engine{ID: id, ModelID: modelID, State: StateRunning, Updated: time.Now()}
	m.engines[id] = e
	return e, nil
}

// Update mirrors a training run's terminal outcome into the engine record.
func (m *MemoryStore) Update(id string, state State, progress float64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[id]
	if !ok {
		return fmt.Errorf("no engine record %q", id)
	}
	e.State = state
	e.Progress = progress
	e.Note = note
	e.Updated = time.Now()
	return nil
}

var _ Store = (*MemoryStore)(nil)
