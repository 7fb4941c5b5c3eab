package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrStateNotFound signals that no persisted state exists for a run ID.
var ErrStateNotFound = errors.New("engine: run state not found")

// StateStore persists run snapshots between engine invocations.
type StateStore interface {
	Save(State) error
	Load(runID string) (State, error)
	// Latest returns the most recently updated run, or ErrStateNotFound when
	// no runs have been recorded yet.
	Latest() (State, error)
	List() ([]string, error)
}

// FileStore keeps one JSON document per run under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("engine: state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the snapshot atomically enough for single-process use.
func (s *FileStore) Save(state State) error {
	if state.RunID == "" {
		return fmt.Errorf("engine: cannot save state without run id")
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("engine: marshal state %s: %w", state.RunID, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.path(state.RunID), data, 0o644); err != nil {
		return fmt.Errorf("engine: write state %s: %w", state.RunID, err)
	}
	return nil
}

// Load reads one run snapshot by ID.
func (s *FileStore) Load(runID string) (State, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, fmt.Errorf("engine: run %s: %w", runID, ErrStateNotFound)
		}
		return State{}, fmt.Errorf("engine: read state %s: %w", runID, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("engine: decode state %s: %w", runID, err)
	}
	return state, nil
}

// Latest returns the snapshot with the newest UpdatedAt stamp.
func (s *FileStore) Latest() (State, error) {
	ids, err := s.List()
	if err != nil {
		return State{}, err
	}
	var latest State
	found := false
	for _, id := range ids {
		state, err := s.Load(id)
		if err != nil {
			continue
		}
		if !found || state.UpdatedAt.After(latest.UpdatedAt) {
			latest = state
			found = true
		}
	}
	if !found {
		return State{}, ErrStateNotFound
	}
	return latest, nil
}

// List returns every recorded run ID sorted lexically.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("engine: list state dir: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}
