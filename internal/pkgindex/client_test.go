package pkgindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func staticIdentity(token string) IdentityProvider {
	return func(context.Context) (string, error) { return token, nil }
}

func TestPublishExchangesTokenAndUploads(t *testing.T) {
	dist := t.TempDir()
	for _, name := range []string{"pkg-1.0.0.tar.gz", "pkg-1.0.0-py3-none-any.whl"} {
		if err := os.WriteFile(filepath.Join(dist, name), []byte("payload"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var uploads []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oidc/mint-token":
			var req mintRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode mint request: %v", err)
			}
			if req.Environment != "release" || req.Identity != "id-token" {
				t.Errorf("unexpected mint request %+v", req)
			}
			json.NewEncoder(w).Encode(mintResponse{Token: "short-lived"})
		case "/upload":
			if r.Header.Get("Authorization") != "Bearer short-lived" {
				t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			_, header, err := r.FormFile("content")
			if err != nil {
				t.Errorf("form file: %v", err)
				return
			}
			uploads = append(uploads, header.Filename)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "release", staticIdentity("id-token"))
	if err := client.Publish(context.Background(), dist); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %v", uploads)
	}
	// Deterministic order: sorted by file name.
	if uploads[0] != "pkg-1.0.0-py3-none-any.whl" || uploads[1] != "pkg-1.0.0.tar.gz" {
		t.Fatalf("unexpected upload order %v", uploads)
	}
}

func TestPublishRejectsEmptyDistDir(t *testing.T) {
	client := NewClient("http://unused", "release", staticIdentity("id"))
	if err := client.Publish(context.Background(), t.TempDir()); err == nil {
		t.Fatalf("expected error for empty dist dir")
	}
}

func TestPublishAbortsOnUploadFailure(t *testing.T) {
	dist := t.TempDir()
	for _, name := range []string{"a.whl", "b.whl"} {
		if err := os.WriteFile(filepath.Join(dist, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var uploadCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oidc/mint-token":
			json.NewEncoder(w).Encode(mintResponse{Token: "tok"})
		case "/upload":
			uploadCalls++
			http.Error(w, "quota exceeded", http.StatusForbidden)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "release", staticIdentity("id"))
	if err := client.Publish(context.Background(), dist); err == nil {
		t.Fatalf("expected publish failure")
	}
	if uploadCalls != 1 {
		t.Fatalf("expected upload to abort after first failure, got %d calls", uploadCalls)
	}
}

func TestEnvIdentity(t *testing.T) {
	t.Setenv("IDENTITY_TOKEN", "ambient")
	token, err := EnvIdentity("IDENTITY_TOKEN")(context.Background())
	if err != nil || token != "ambient" {
		t.Fatalf("env identity: %q %v", token, err)
	}
	t.Setenv("IDENTITY_TOKEN", "")
	if _, err := EnvIdentity("IDENTITY_TOKEN")(context.Background()); err == nil {
		t.Fatalf("expected error for empty identity")
	}
}
