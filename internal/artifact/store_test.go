package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewStore(t.TempDir(), WithClock(func() time.Time { return fixed }))
}

func TestCheckMissingArtifact(t *testing.T) {
	store := testStore(t)
	result, err := store.Check(ReleaseVersion)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.State != StateMissing {
		t.Fatalf("expected missing, got %s", result.State)
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	store := testStore(t)
	if err := store.WriteFile(ReleaseVersion, []byte("v202401.0.0"), "check-version-tag", "run-1"); err != nil {
		t.Fatalf("write: %v", err)
	}
	result, err := store.Check(ReleaseVersion)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.State != StateReady {
		t.Fatalf("expected ready, got %s (%v)", result.State, result.Err)
	}
	if result.Metadata == nil || result.Metadata.JobID != "check-version-tag" || result.Metadata.RunID != "run-1" {
		t.Fatalf("unexpected metadata: %+v", result.Metadata)
	}
	data, err := os.ReadFile(result.Path)
	if err != nil || string(data) != "v202401.0.0" {
		t.Fatalf("payload mismatch: %q %v", data, err)
	}
}

func TestCheckRejectsUnrecordedPayload(t *testing.T) {
	store := testStore(t)
	path := store.Path(ReleaseVersion)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("v202401.0.0"), 0o644); err != nil {
		t.Fatal(err)
	}
	result, _ := store.Check(ReleaseVersion)
	if result.State != StateInvalid {
		t.Fatalf("expected invalid for unrecorded payload, got %s", result.State)
	}
}

func TestDirectoryArtifact(t *testing.T) {
	store := testStore(t)
	dir, err := store.EnsureDir(SchemasDir)
	if err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "thing.json"), []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(SchemasDir, "json-schemas", "run-1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	result, err := store.Check(SchemasDir)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.State != StateReady {
		t.Fatalf("expected ready, got %s (%v)", result.State, result.Err)
	}
}

func TestJSONArtifactValidation(t *testing.T) {
	store := testStore(t)
	ref := Ref{ID: "report", Kind: KindJSON, Path: "report.json"}
	if err := store.WriteFile(ref, []byte("not json"), "job", "run-1"); err == nil {
		t.Fatalf("expected invalid json rejection on write")
	}
	if err := store.WriteFile(ref, []byte(`{"jobs":5}`), "job", "run-1"); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Corrupt the payload after recording; Check must notice.
	if err := os.WriteFile(store.Path(ref), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	result, _ := store.Check(ref)
	if result.State != StateInvalid {
		t.Fatalf("expected invalid after corruption, got %s", result.State)
	}
}

func TestRecordRequiresPayload(t *testing.T) {
	store := testStore(t)
	if err := store.Record(DistDir, "build", "run-1"); err == nil {
		t.Fatalf("expected error recording absent artifact")
	}
}
