// Package checkpoint persists a summary of the last completed cycle so a
// restarted node can report where it left off.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cycle summarizes one coordinator cycle. Blocks maps provider keys to the
// block the provider was at.
type Cycle struct {
	ID          string            `json:"id"`
	CompletedAt time.Time         `json:"completedAt"`
	Blocks      map[string]uint64 `json:"blocks"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the recorded cycle. ok is false when nothing was recorded yet.
func (s *Store) Load() (c Cycle, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Cycle{}, false, nil
	}
	if err != nil {
		return Cycle{}, false, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return Cycle{}, false, fmt.Errorf("decode checkpoint %s: %w", s.path, err)
	}
	return c, true, nil
}

// Save replaces the recorded cycle. Readers see either the old or the new
// file, never a partial one.
func (s *Store) Save(c Cycle) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("checkpoint rename: %w", err)
	}
	return nil
}
