// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory provides an in-memory reference implementation of
// snapshot.Store, used for tests and for local/CLI operation. Mirrors the
// corpus's MemoryQueue: a single mutex guarding a plain map, with
// per-snapshot updates serialized by that same mutex (spec.md §5 requires
// the store to serialize concurrent updates on a per-snapshot basis; a
// single coarse mutex satisfies that trivially at this scale).
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
)

// Store is an in-memory snapshot.Store.
type Store struct {
	mu    sync.RWMutex
	roots map[string]*snapshot.Snapshot
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{roots: make(map[string]*snapshot.Snapshot)}
}

func newSnapshot(typ snapshot.Type, label, description, serviceProviderID string, instanceArgs any, track snapshot.Track) *snapshot.Snapshot {
	now := time.Now()
	return &snapshot.Snapshot{
		Track:             track,
		Type:              typ,
		Label:             label,
		Description:       description,
		ServiceProviderID: serviceProviderID,
		InstanceArguments: instanceArgs,
		Created:           now,
		Updated:           now,
		Process:           snapshot.ProcessInitialized,
		HasMainConfig:     true,
		HasProcessConfig:  true,
		Derived:           make(map[int]*snapshot.Snapshot),
	}
}

// GetRoot returns the root snapshot for workflowID, if any.
func (s *Store) GetRoot(workflowID string) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roots[workflowID], nil
}

// CreateRoot creates the (single-shot) root snapshot for workflowID.
func (s *Store) CreateRoot(workflowID string, typ snapshot.Type, label, description, serviceProviderID string, instanceArgs any) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.roots[workflowID]; exists {
		return nil, fmt.Errorf("root snapshot already exists for workflow %q", workflowID)
	}

	root := newSnapshot(typ, label, description, serviceProviderID, instanceArgs, snapshot.Track{})
	s.roots[workflowID] = root
	return root, nil
}

// resolve walks from a root to the node identified by track. Callers must
// hold s.mu.
func (s *Store) resolve(track snapshot.Track) *snapshot.Snapshot {
	for _, root := range s.roots {
		node := root
		ok := true
		for _, key := range track {
			child, exists := node.Derived[key]
			if !exists {
				ok = false
				break
			}
			node = child
		}
		if ok && node.Track.Equal(track) {
			return node
		}
	}
	return nil
}

// Get returns the snapshot identified by track.
func (s *Store) Get(track snapshot.Track) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.resolve(track)
	if n == nil {
		return nil, fmt.Errorf("no snapshot at track %v", track)
	}
	return n, nil
}

// Leaf returns the snapshot identified by track, requiring it have no
// derived children.
func (s *Store) Leaf(track snapshot.Track) (*snapshot.Snapshot, error) {
	n, err := s.Get(track)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(n.Derived) != 0 {
		return nil, fmt.Errorf("snapshot at track %v is not a leaf", track)
	}
	return n, nil
}

// CreateDerived creates a new derived snapshot under parent, permitted only
// when parent allows derived snapshots.
func (s *Store) CreateDerived(parent snapshot.Track, typ snapshot.Type, label, description, serviceProviderID string, instanceArgs any) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.resolve(parent)
	if p == nil {
		return nil, fmt.Errorf("no snapshot at track %v", parent)
	}
	if !p.AllowsDerivedSnapshots() {
		return nil, fmt.Errorf("snapshot at track %v does not allow derived snapshots", parent)
	}

	key := p.NextChildKey()
	child := newSnapshot(typ, label, description, serviceProviderID, instanceArgs, parent.Child(key))
	p.Derived[key] = child
	return child, nil
}

// UpdateProcess mirrors an Instance's state transition into the snapshot's
// persisted process state and, when provided, its progress/stdout/stderr/
// note fields.
func (s *Store) UpdateProcess(track snapshot.Track, state snapshot.ProcessState, progress *float64, stdout, stderr, note *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.resolve(track)
	if n == nil {
		return fmt.Errorf("no snapshot at track %v", track)
	}
	n.Process = state
	n.Updated = time.Now()
	if progress != nil {
		n.Progress = *progress
	}
	if stdout != nil {
		n.StandardOutput = *stdout
	}
	if stderr != nil {
		n.StandardError = *stderr
	}
	if note != nil {
		n.Note = *note
	}
	return nil
}

// Lock locks a snapshot with the given source and comment.
func (s *Store) Lock(track snapshot.Track, source, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.resolve(track)
	if n == nil {
		return fmt.Errorf("no snapshot at track %v", track)
	}
	n.Lock = &snapshot.Lock{Source: source, Comment: comment}
	n.Updated = time.Now()
	return nil
}

// Unlock removes a snapshot's lock, if any.
func (s *Store) Unlock(track snapshot.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.resolve(track)
	if n == nil {
		return fmt.Errorf("no snapshot at track %v", track)
	}
	n.Lock = nil
	n.Updated = time.Now()
	return nil
}

// RemoveDerived removes one derived child by key.
func (s *Store) RemoveDerived(parent snapshot.Track, childKey int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.resolve(parent)
	if p == nil {
		return fmt.Errorf("no snapshot at track %v", parent)
	}
	delete(p.Derived, childKey)
	return nil
}

// RemoveAllDerived removes every derived child of parent.
func (s *Store) RemoveAllDerived(parent snapshot.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.resolve(parent)
	if p == nil {
		return fmt.Errorf("no snapshot at track %v", parent)
	}
	p.Derived = make(map[int]*snapshot.Snapshot)
	return nil
}

var _ snapshot.Store = (*Store)(nil)
