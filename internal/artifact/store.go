package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const metaDirName = ".meta"

// Store manages artifact IO rooted at one run's working directory. Producer
// metadata lives in a sidecar directory so artifact payloads stay exactly as
// the producing job wrote them.
type Store struct {
	root string
	now  func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore builds a store rooted at the given run working directory.
func NewStore(root string, opts ...StoreOption) *Store {
	store := &Store{
		root: root,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Path resolves a ref to its absolute location.
func (s *Store) Path(ref Ref) string {
	if ref.Path == "" {
		return ""
	}
	return filepath.Join(s.root, ref.Path)
}

// Check inspects the artifact on disk and returns its status and metadata.
// An artifact without producer metadata is invalid: it was written outside
// the store and cannot be trusted as a declared hand-off.
func (s *Store) Check(ref Ref) (CheckResult, error) {
	if err := ref.Validate(); err != nil {
		return CheckResult{Ref: ref, State: StateError, Err: err}, err
	}
	path := s.Path(ref)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	switch ref.Kind {
	case KindDirectory:
		if !info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: %s expected directory", ref.ID))
		}
	case KindFile:
		if info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: %s expected file got directory", ref.ID))
		}
	case KindJSON:
		if info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: %s expected file got directory", ref.ID))
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return CheckResult{Ref: ref, Path: path, State: StateError, Err: readErr}, readErr
		}
		var payload any
		if jsonErr := json.Unmarshal(data, &payload); jsonErr != nil {
			return invalidResult(ref, path, fmt.Errorf("artifact: %s is not valid json: %w", ref.ID, jsonErr))
		}
	}
	meta, metaErr := s.loadMetadata(ref)
	if metaErr != nil {
		return invalidResult(ref, path, metaErr)
	}
	if meta.ArtifactID != ref.ID {
		return invalidResult(ref, path, fmt.Errorf("artifact: metadata id %s does not match %s", meta.ArtifactID, ref.ID))
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta}, nil
}

// EnsureDir creates the directory backing a KindDirectory ref and returns its
// path so the producing job can write into it.
func (s *Store) EnsureDir(ref Ref) (string, error) {
	if ref.Kind != KindDirectory {
		return "", fmt.Errorf("artifact: %s is not a directory artifact", ref.ID)
	}
	path := s.Path(ref)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("artifact: ensure %s: %w", ref.ID, err)
	}
	return path, nil
}

// WriteFile persists a file-backed artifact payload together with its
// producer metadata.
func (s *Store) WriteFile(ref Ref, body []byte, jobID, runID string) error {
	if ref.Kind == KindDirectory {
		return fmt.Errorf("artifact: %s is a directory artifact, use EnsureDir + Record", ref.ID)
	}
	if ref.Kind == KindJSON {
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("artifact: invalid json body for %s: %w", ref.ID, err)
		}
	}
	path := s.Path(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	return s.Record(ref, jobID, runID)
}

// Record stamps producer metadata for an artifact whose payload already
// exists on disk (the directory case).
func (s *Store) Record(ref Ref, jobID, runID string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(s.Path(ref)); err != nil {
		return fmt.Errorf("artifact: record %s: %w", ref.ID, err)
	}
	meta := Metadata{
		ArtifactID: ref.ID,
		JobID:      jobID,
		RunID:      runID,
		CreatedAt:  s.now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode metadata for %s: %w", ref.ID, err)
	}
	metaPath := s.metadataPath(ref)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(metaPath, data, 0o644)
}

func (s *Store) loadMetadata(ref Ref) (Metadata, error) {
	data, err := os.ReadFile(s.metadataPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, fmt.Errorf("artifact: %s has no producer metadata", ref.ID)
		}
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("artifact: parse metadata for %s: %w", ref.ID, err)
	}
	if meta.ArtifactID == "" || meta.JobID == "" {
		return Metadata{}, fmt.Errorf("artifact: incomplete metadata for %s", ref.ID)
	}
	return meta, nil
}

func (s *Store) metadataPath(ref Ref) string {
	return filepath.Join(s.root, metaDirName, ref.ID+".json")
}

func invalidResult(ref Ref, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}
