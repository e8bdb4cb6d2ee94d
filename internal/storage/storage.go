// Package storage provides the JSON-file record store used by DeployHub.
//
// Every entity type lives in its own file holding a pretty-printed JSON
// array. Reads load the whole file; every mutation rewrites it in full.
// A Store serializes its writers with a mutex, so read-modify-write cycles
// issued through one Store never lose updates to each other. Run a single
// Store per file.
//
// A file that cannot be decoded reads as empty. Before the next write it is
// moved aside to <file>.corrupt-<timestamp> so its records can be repaired
// by hand.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
)

// ErrNotFound is returned by Update when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Record is implemented by every stored entity.
type Record interface {
	RecordID() string
}

// Toucher is implemented by records that carry an updated_at timestamp.
// Update stamps it after applying the caller's changes.
type Toucher interface {
	Touch(time.Time)
}

// File names used inside the data directory.
const (
	ProjectsFile      = "project_data.json"
	DeployHistoryFile = "deploy_history_data.json"
	TemplatesFile     = "template_data.json"
	AgentsFile        = "agent_data.json"
	UsersFile         = "user_data.json"
	SystemConfigFile  = "system_config_data.json"
)

// Store is a load-all/replace-all persistence layer for one record type.
type Store[T Record] struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
	now    func() time.Time
}

// Open returns a store backed by path, creating the parent directory.
// The file itself is created on first write.
func Open[T Record](path string, logger zerolog.Logger) (*Store[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store[T]{
		path:   path,
		logger: logger.With().Str("store", filepath.Base(path)).Logger(),
		now:    time.Now,
	}, nil
}

// Path returns the backing file.
func (s *Store[T]) Path() string { return s.path }

// Load returns every record in file order. A missing or unreadable file
// yields an empty slice.
func (s *Store[T]) Load() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ReplaceAll rewrites the file with records.
func (s *Store[T]) ReplaceAll(records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadForWrite(); err != nil {
		return err
	}
	return s.write(records)
}

// List is an alias of Load for readability at call sites.
func (s *Store[T]) List() []T {
	return s.Load()
}

// Get returns the record with id. The boolean is false when none matches.
func (s *Store[T]) Get(id string) (T, bool) {
	for _, r := range s.Load() {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Find returns the first record matching pred.
func (s *Store[T]) Find(pred func(T) bool) (T, bool) {
	for _, r := range s.Load() {
		if pred(r) {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Create appends record and rewrites the file.
func (s *Store[T]) Create(record T) error {
	return s.Mutate(func(records []T) ([]T, error) {
		return append(records, record), nil
	})
}

// Update applies fn to the record with id, stamps its updated_at and
// rewrites the file. When no record matches, ErrNotFound is returned and
// nothing is written.
func (s *Store[T]) Update(id string, fn func(*T) error) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	records, err := s.loadForWrite()
	if err != nil {
		return zero, err
	}
	for i := range records {
		if records[i].RecordID() != id {
			continue
		}
		if err := fn(&records[i]); err != nil {
			return zero, err
		}
		if t, ok := any(&records[i]).(Toucher); ok {
			t.Touch(s.now())
		}
		if err := s.write(records); err != nil {
			return zero, err
		}
		return records[i], nil
	}
	return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes the record with id. Deleting an unknown id is not an
// error; the file is rewritten either way.
func (s *Store[T]) Delete(id string) error {
	return s.Mutate(func(records []T) ([]T, error) {
		kept := records[:0]
		for _, r := range records {
			if r.RecordID() != id {
				kept = append(kept, r)
			}
		}
		return kept, nil
	})
}

// Mutate runs a read-modify-write cycle under the store lock. If fn returns
// an error the file is left untouched.
func (s *Store[T]) Mutate(fn func([]T) ([]T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadForWrite()
	if err != nil {
		return err
	}
	next, err := fn(records)
	if err != nil {
		return err
	}
	return s.write(next)
}

func (s *Store[T]) load() []T {
	records, err := s.decode()
	if err != nil {
		s.logger.Warn().Err(err).Msg("store file unreadable, treating as empty")
		return []T{}
	}
	return records
}

// loadForWrite is load for read-modify-write cycles. An undecodable file is
// moved aside first so the following write cannot destroy its contents.
func (s *Store[T]) loadForWrite() ([]T, error) {
	records, err := s.decode()
	if err == nil {
		return records, nil
	}
	backup := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().Format("20060102T150405"))
	if rerr := os.Rename(s.path, backup); rerr != nil {
		return nil, fmt.Errorf("%s is unreadable (%v) and could not be moved aside: %w", filepath.Base(s.path), err, rerr)
	}
	s.logger.Error().Err(err).Str("backup", backup).Msg("store file unreadable, moved aside before writing")
	return []T{}, nil
}

// decode reads the file. A missing or blank file is an empty store, not an
// error.
func (s *Store[T]) decode() ([]T, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(jsonc.ToJSON(data), &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(s.path), err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

func (s *Store[T]) write(records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(s.path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(s.path), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(s.path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(s.path), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(s.path), err)
	}
	return nil
}
