package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ProcessedSet holds the ids of incidents already seen. It is owned by the poll loop
// and only mutated from its goroutine, so it carries no lock.
type ProcessedSet struct {
	ids map[int64]struct{}
}

func NewProcessedSet(ids ...int64) *ProcessedSet {
	s := &ProcessedSet{ids: make(map[int64]struct{}, len(ids))}
	s.Seed(ids)
	return s
}

func (s *ProcessedSet) Seed(ids []int64) {
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

func (s *ProcessedSet) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Add marks id processed and reports whether it was new.
func (s *ProcessedSet) Add(id int64) bool {
	if s.Has(id) {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *ProcessedSet) Len() int {
	return len(s.ids)
}

// IDs returns the processed ids in ascending order.
func (s *ProcessedSet) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear forgets every id, making all incidents eligible again.
func (s *ProcessedSet) Clear() {
	s.ids = make(map[int64]struct{})
}

type stateFile struct {
	ProcessedIncidents []int64 `json:"processed_incidents"`
}

// LoadFile seeds the set from a state file. A missing file is not an error.
func (s *ProcessedSet) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	var st stateFile
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	s.Seed(st.ProcessedIncidents)
	return nil
}

// SaveFile writes the set to path, replacing it atomically.
func (s *ProcessedSet) SaveFile(path string) error {
	b, err := json.Marshal(stateFile{ProcessedIncidents: s.IDs()})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
