package repohost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultLookupRetries = 3

// Client is the HTTP implementation of API.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	lookupRetries uint64
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLookupRetries overrides how many times idempotent lookups retry.
func WithLookupRetries(n uint64) ClientOption {
	return func(c *Client) {
		c.lookupRetries = n
	}
}

// NewClient builds a host client for the given API base URL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		lookupRetries: defaultLookupRetries,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type pushPayload struct {
	Branch  string            `json:"branch"`
	DestDir string            `json:"dest_dir,omitempty"`
	Message string            `json:"message"`
	Files   map[string]string `json:"files"`
}

type commitResponse struct {
	CommitSHA string `json:"commit_sha"`
}

type releasePayload struct {
	TagName   string `json:"tag_name"`
	CommitSHA string `json:"commit_sha"`
}

// PushTree implements API. The source directory is read in full and shipped
// as one commit; an empty directory is rejected here rather than surfacing as
// an empty commit on the target repository.
func (c *Client) PushTree(ctx context.Context, req PushRequest) (string, error) {
	files, err := readTree(req.SourceDir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("repohost: push %s: source dir %s is empty", req.Repo, req.SourceDir)
	}
	payload := pushPayload{
		Branch:  req.Branch,
		DestDir: req.DestDir,
		Message: req.Message,
		Files:   files,
	}
	var resp commitResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/push", req.Repo), payload, &resp); err != nil {
		return "", fmt.Errorf("repohost: push %s: %w", req.Repo, err)
	}
	if resp.CommitSHA == "" {
		return "", fmt.Errorf("repohost: push %s: host returned no commit sha", req.Repo)
	}
	return resp.CommitSHA, nil
}

// BranchHead implements API with backoff on transient failures.
func (c *Client) BranchHead(ctx context.Context, repo, branch string) (string, error) {
	var resp commitResponse
	path := fmt.Sprintf("/repos/%s/branches/%s", repo, url.PathEscape(branch))
	if err := c.lookup(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("repohost: branch head %s@%s: %w", repo, branch, err)
	}
	return resp.CommitSHA, nil
}

// CreateRelease implements API. A single attempt: re-creating a release that
// may already exist is not safe.
func (c *Client) CreateRelease(ctx context.Context, repo, tag, commitSHA string) error {
	payload := releasePayload{TagName: tag, CommitSHA: commitSHA}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/releases", repo), payload, nil); err != nil {
		return fmt.Errorf("repohost: create release %s on %s: %w", tag, repo, err)
	}
	return nil
}

// LatestRelease implements API with backoff on transient failures.
func (c *Client) LatestRelease(ctx context.Context, repo string) (Release, error) {
	var release Release
	if err := c.lookup(ctx, fmt.Sprintf("/repos/%s/releases/latest", repo), &release); err != nil {
		return Release{}, fmt.Errorf("repohost: latest release %s: %w", repo, err)
	}
	return release, nil
}

func (c *Client) lookup(ctx context.Context, path string, out any) error {
	operation := func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.lookupRetries)
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("host returned %s", resp.Status)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return backoff.Permanent(fmt.Errorf("host returned %s: %s", resp.Status, strings.TrimSpace(string(data))))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func readTree(dir string) (map[string]string, error) {
	files := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = base64.StdEncoding.EncodeToString(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repohost: read tree %s: %w", dir, err)
	}
	return files, nil
}
