// Package cache persists the IDs of failed test cases between runs.
//
// Entries are file::name IDs. A run adds the tests that failed and removes
// the tests that passed, so a fixed test leaves the set even when other
// files were not run.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
)

// Store is an on-disk last-failed cache.
type Store struct {
	Dir string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// File returns the path of the last-failed list.
func (s *Store) File() string {
	return filepath.Join(s.Dir, "lastfailed.json")
}

// LockFile returns the path of the lock guarding the list.
func (s *Store) LockFile() string {
	return filepath.Join(s.Dir, "lock")
}

// LastFailed returns the recorded failures. A missing cache is empty.
func (s *Store) LastFailed() (map[string]bool, error) {
	var ids []string
	err := s.withLock(func() error {
		return readJSON(s.File(), &ids)
	})
	if err != nil {
		return nil, fmt.Errorf("reading last failed: %w", err)
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// Update records failed and forgets passed.
func (s *Store) Update(failed, passed []string) error {
	err := s.withLock(func() error {
		var ids []string
		if err := readJSON(s.File(), &ids); err != nil {
			return err
		}

		set := make(map[string]bool, len(ids)+len(failed))
		for _, id := range ids {
			set[id] = true
		}
		for _, id := range passed {
			delete(set, id)
		}
		for _, id := range failed {
			set[id] = true
		}

		out := make([]string, 0, len(set))
		for id := range set {
			out = append(out, id)
		}
		sort.Strings(out)
		return writeJSON(s.File(), out)
	})
	if err != nil {
		return fmt.Errorf("updating last failed: %w", err)
	}
	return nil
}

// Clear removes every recorded failure.
func (s *Store) Clear() error {
	return s.withLock(func() error {
		if err := os.Remove(s.File()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
}

func (s *Store) withLock(fn func() error) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}

	fileLock := flock.New(s.LockFile())
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	return fn()
}

func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

// writeJSON replaces path atomically.
func writeJSON(path string, value any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
