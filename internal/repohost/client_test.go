package repohost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPushTreeSendsFilesAndReturnsSHA(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "bo/angebot.json", `{"title":"Angebot"}`)
	writeFile(t, src, "enum/sparte.json", `{"title":"Sparte"}`)

	var got pushPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/schemas/push" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(commitResponse{CommitSHA: "abc123"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	sha, err := client.PushTree(context.Background(), PushRequest{
		Repo:      "acme/schemas",
		Branch:    "main",
		DestDir:   "src/schemas",
		SourceDir: src,
		Message:   "Update schemas to v202401.0.0",
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if sha != "abc123" {
		t.Fatalf("unexpected sha %q", sha)
	}
	if got.Branch != "main" || got.DestDir != "src/schemas" {
		t.Fatalf("payload mismatch: %+v", got)
	}
	decoded, err := base64.StdEncoding.DecodeString(got.Files["bo/angebot.json"])
	if err != nil || string(decoded) != `{"title":"Angebot"}` {
		t.Fatalf("file payload mismatch: %q %v", decoded, err)
	}
}

func TestPushTreeRejectsEmptyDir(t *testing.T) {
	client := NewClient("http://unused", "")
	if _, err := client.PushTree(context.Background(), PushRequest{
		Repo:      "acme/schemas",
		Branch:    "main",
		SourceDir: t.TempDir(),
	}); err == nil {
		t.Fatalf("expected error for empty source dir")
	}
}

func TestLookupRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Release{TagName: "v202401.0.0", CommitSHA: "abc123"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", WithLookupRetries(5))
	release, err := client.LatestRelease(context.Background(), "acme/schemas")
	if err != nil {
		t.Fatalf("latest release: %v", err)
	}
	if release.TagName != "v202401.0.0" {
		t.Fatalf("unexpected release %+v", release)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestLookupDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", WithLookupRetries(5))
	_, err := client.LatestRelease(context.Background(), "acme/schemas")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt for 404, got %d", calls.Load())
	}
}

func TestCreateReleaseSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	err := client.CreateRelease(context.Background(), "acme/schemas", "v202401.0.0", "abc123")
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("writes must not retry, got %d attempts", calls.Load())
	}
}

func TestBranchHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/schemas/branches/main" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(commitResponse{CommitSHA: "head999"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	sha, err := client.BranchHead(context.Background(), "acme/schemas", "main")
	if err != nil {
		t.Fatalf("branch head: %v", err)
	}
	if sha != "head999" {
		t.Fatalf("unexpected sha %q", sha)
	}
}
