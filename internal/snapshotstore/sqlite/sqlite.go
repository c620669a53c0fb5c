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

// Package sqlite provides a modernc.org/sqlite-backed reference
// implementation of snapshot.Store (connection setup, pragmas, migrations).
// It exists to let the engine be exercised end-to-end against real
// persistence without pulling in the full project/sandbox/folio/METS
// domain, which stays out of scope per spec.md §1.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	_ "modernc.org/sqlite"

	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
	"github.com/OCR4all/ocr4all-app-sub002/pkg/engineerrors"
)

// Store is a SQLite-backed snapshot.Store.
type Store struct {
	db *sql.DB
}

// Config configures the SQLite connection.
type Config struct {
	// Path is the database file path ("" or ":memory:" for an ephemeral
	// in-process database).
	Path string
	WAL  bool
}

// Open creates (or opens) a SQLite-backed store and runs migrations.
func Open(cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if cfg.WAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			workflow_id TEXT NOT NULL,
			track TEXT NOT NULL,
			type TEXT NOT NULL,
			label TEXT,
			description TEXT,
			service_provider_id TEXT,
			instance_arguments TEXT,
			process TEXT NOT NULL,
			progress REAL DEFAULT 0,
			stdout TEXT,
			stderr TEXT,
			note TEXT,
			lock_source TEXT,
			lock_comment TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (workflow_id, track)
		)
	`)
	return err
}

func trackKey(t snapshot.Track) string {
	if len(t) == 0 {
		return "root"
	}
	parts := make([]string, len(t))
	for i, k := range t {
		parts[i] = strconv.Itoa(k)
	}
	return strings.Join(parts, "/")
}

func parseTrackKey(key string) snapshot.Track {
	if key == "root" {
		return snapshot.Track{}
	}
	parts := strings.Split(key, "/")
	t := make(snapshot.Track, len(parts))
	for i, p := range parts {
		n, _ := strconv.Atoi(p)
		t[i] = n
	}
	return t
}

// workflowOf finds the workflow_id owning track. A store holds many
// independent workflow trees at once (one Store is shared across every job
// the engine runs), so the track alone does not identify a row: it must be
// paired with the workflow_id that actually recorded it.
func (s *Store) workflowOf(track snapshot.Track) (string, error) {
	var workflowID string
	err := s.db.QueryRow(`SELECT workflow_id FROM snapshots WHERE track = ? LIMIT 1`, trackKey(track)).Scan(&workflowID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no snapshot at track %v", track)
	}
	return workflowID, err
}

func (s *Store) rowToSnapshot(workflowID, trackKeyStr, typ, label, description, spID, argsJSON, process string, progress float64, stdout, stderr, note, lockSource, lockComment sql.NullString, created, updated string) (*snapshot.Snapshot, error) {
	var args any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("decoding instance arguments: %w", err)
		}
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, created)
	updatedAt, _ := time.Parse(time.RFC3339Nano, updated)

	n := &snapshot.Snapshot{
		Track:             parseTrackKey(trackKeyStr),
		Type:              snapshot.Type(typ),
		Label:             label,
		Description:       description,
		ServiceProviderID: spID,
		InstanceArguments: args,
		Created:           createdAt,
		Updated:           updatedAt,
		Process:           snapshot.ProcessState(process),
		Progress:          progress,
		HasMainConfig:     true,
		HasProcessConfig:  true,
		Derived:           make(map[int]*snapshot.Snapshot),
	}
	if stdout.Valid {
		n.StandardOutput = stdout.String
	}
	if stderr.Valid {
		n.StandardError = stderr.String
	}
	if note.Valid {
		n.Note = note.String
	}
	if lockSource.Valid {
		n.Lock = &snapshot.Lock{Source: lockSource.String, Comment: lockComment.String}
	}

	if err := s.loadDerived(workflowID, n); err != nil {
		return nil, err
	}
	return n, nil
}

// loadDerived populates n.Derived by globbing over recorded track keys
// matching "<n's track>/<single extra segment>", using doublestar so the
// pattern reads the same way the on-disk "derived/*" layout in spec.md §6
// would be globbed by a filesystem-backed store.
func (s *Store) loadDerived(workflowID string, n *snapshot.Snapshot) error {
	rows, err := s.db.Query(`SELECT track FROM snapshots WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return err
	}
	defer rows.Close()

	prefix := trackKey(n.Track)
	var pattern string
	if prefix == "root" {
		pattern = "*"
	} else {
		pattern = prefix + "/*"
	}

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		if key == prefix {
			continue
		}
		matched, err := doublestar.Match(pattern, key)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		track := parseTrackKey(key)
		childKey := track[len(track)-1]
		n.Derived[childKey] = &snapshot.Snapshot{Track: track}
	}
	return rows.Err()
}

func (s *Store) getRow(workflowID string, track snapshot.Track) (*snapshot.Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT workflow_id, track, type, label, description, service_provider_id,
		       instance_arguments, process, progress, stdout, stderr, note,
		       lock_source, lock_comment, created_at, updated_at
		FROM snapshots WHERE workflow_id = ? AND track = ?`, workflowID, trackKey(track))

	var wID, trackKeyStr, typ, label, description, spID, argsJSON, process, created, updated string
	var progress float64
	var stdout, stderr, note, lockSource, lockComment sql.NullString
	if err := row.Scan(&wID, &trackKeyStr, &typ, &label, &description, &spID, &argsJSON, &process, &progress, &stdout, &stderr, &note, &lockSource, &lockComment, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no snapshot at track %v: %w", track, err)
		}
		return nil, engineerrors.NewPersistenceFailure("querying snapshot", err)
	}
	return s.rowToSnapshot(wID, trackKeyStr, typ, label, description, spID, argsJSON, process, progress, stdout, stderr, note, lockSource, lockComment, created, updated)
}

// GetRoot returns the root snapshot for workflowID, or (nil, nil) if the
// workflow has none. A genuine query failure is returned as a
// KindPersistenceFailure error rather than folded into the no-root case.
func (s *Store) GetRoot(workflowID string) (*snapshot.Snapshot, error) {
	n, err := s.getRow(workflowID, snapshot.Track{})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// CreateRoot creates the single-shot root snapshot for workflowID.
func (s *Store) CreateRoot(workflowID string, typ snapshot.Type, label, description, serviceProviderID string, instanceArgs any) (*snapshot.Snapshot, error) {
	if existing, _ := s.GetRoot(workflowID); existing != nil {
		return nil, fmt.Errorf("root snapshot already exists for workflow %q", workflowID)
	}
	return s.insert(workflowID, snapshot.Track{}, typ, label, description, serviceProviderID, instanceArgs)
}

func (s *Store) insert(workflowID string, track snapshot.Track, typ snapshot.Type, label, description, serviceProviderID string, instanceArgs any) (*snapshot.Snapshot, error) {
	argsJSON := "null"
	if instanceArgs != nil {
		b, err := json.Marshal(instanceArgs)
		if err != nil {
			return nil, fmt.Errorf("encoding instance arguments: %w", err)
		}
		argsJSON = string(b)
	}

	now := time.Now().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`
		INSERT INTO snapshots (workflow_id, track, type, label, description, service_provider_id, instance_arguments, process, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		workflowID, trackKey(track), string(typ), label, description, serviceProviderID, argsJSON, string(snapshot.ProcessInitialized), now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}

	return s.getRow(workflowID, track)
}

// Get returns the snapshot identified by track. The workflow owning track
// is looked up by workflowOf.
func (s *Store) Get(track snapshot.Track) (*snapshot.Snapshot, error) {
	workflowID, err := s.workflowOf(track)
	if err != nil {
		return nil, err
	}
	return s.getRow(workflowID, track)
}

// Leaf returns the snapshot identified by track, requiring it have no
// derived children.
func (s *Store) Leaf(track snapshot.Track) (*snapshot.Snapshot, error) {
	n, err := s.Get(track)
	if err != nil {
		return nil, err
	}
	if len(n.Derived) != 0 {
		return nil, fmt.Errorf("snapshot at track %v is not a leaf", track)
	}
	return n, nil
}

// CreateDerived creates a new derived snapshot under parent, permitted only
// when parent allows derived snapshots.
func (s *Store) CreateDerived(parent snapshot.Track, typ snapshot.Type, label, description, serviceProviderID string, instanceArgs any) (*snapshot.Snapshot, error) {
	workflowID, err := s.workflowOf(parent)
	if err != nil {
		return nil, err
	}
	p, err := s.getRow(workflowID, parent)
	if err != nil {
		return nil, err
	}
	if !p.AllowsDerivedSnapshots() {
		return nil, fmt.Errorf("snapshot at track %v does not allow derived snapshots", parent)
	}

	key := p.NextChildKey()
	return s.insert(workflowID, parent.Child(key), typ, label, description, serviceProviderID, instanceArgs)
}

// UpdateProcess mirrors an Instance's state transition into the snapshot's
// persisted process state and optional progress/stdout/stderr/note fields.
func (s *Store) UpdateProcess(track snapshot.Track, state snapshot.ProcessState, progress *float64, stdout, stderr, note *string) error {
	workflowID, err := s.workflowOf(track)
	if err != nil {
		return err
	}

	set := []string{"process = ?", "updated_at = ?"}
	args := []any{string(state), time.Now().Format(time.RFC3339Nano)}
	if progress != nil {
		set = append(set, "progress = ?")
		args = append(args, *progress)
	}
	if stdout != nil {
		set = append(set, "stdout = ?")
		args = append(args, *stdout)
	}
	if stderr != nil {
		set = append(set, "stderr = ?")
		args = append(args, *stderr)
	}
	if note != nil {
		set = append(set, "note = ?")
		args = append(args, *note)
	}
	args = append(args, workflowID, trackKey(track))

	query := fmt.Sprintf(`UPDATE snapshots SET %s WHERE workflow_id = ? AND track = ?`, strings.Join(set, ", "))
	_, err = s.db.Exec(query, args...)
	return err
}

// Lock locks a snapshot with the given source and comment.
func (s *Store) Lock(track snapshot.Track, source, comment string) error {
	workflowID, err := s.workflowOf(track)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE snapshots SET lock_source = ?, lock_comment = ?, updated_at = ? WHERE workflow_id = ? AND track = ?`,
		source, comment, time.Now().Format(time.RFC3339Nano), workflowID, trackKey(track))
	return err
}

// Unlock removes a snapshot's lock, if any.
func (s *Store) Unlock(track snapshot.Track) error {
	workflowID, err := s.workflowOf(track)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE snapshots SET lock_source = NULL, lock_comment = NULL, updated_at = ? WHERE workflow_id = ? AND track = ?`,
		time.Now().Format(time.RFC3339Nano), workflowID, trackKey(track))
	return err
}

// RemoveDerived removes one derived child by key.
func (s *Store) RemoveDerived(parent snapshot.Track, childKey int) error {
	workflowID, err := s.workflowOf(parent)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM snapshots WHERE workflow_id = ? AND track = ?`, workflowID, trackKey(parent.Child(childKey)))
	return err
}

// RemoveAllDerived removes every derived descendant of parent.
func (s *Store) RemoveAllDerived(parent snapshot.Track) error {
	workflowID, err := s.workflowOf(parent)
	if err != nil {
		return err
	}
	prefix := trackKey(parent)
	var pattern string
	if prefix == "root" {
		pattern = "**"
	} else {
		pattern = prefix + "/**"
	}

	rows, err := s.db.Query(`SELECT track FROM snapshots WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return err
	}
	var toDelete []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return err
		}
		if key == prefix {
			continue
		}
		matched, _ := doublestar.Match(pattern, key)
		if matched {
			toDelete = append(toDelete, key)
		}
	}
	rows.Close()

	for _, key := range toDelete {
		if _, err := s.db.Exec(`DELETE FROM snapshots WHERE workflow_id = ? AND track = ?`, workflowID, key); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ snapshot.Store = (*Store)(nil)
