// Package pkgindex uploads built distributions to the package index using
// trusted publishing: an ambient identity token scoped to a deployment
// environment is exchanged for a short-lived upload token, so no long-lived
// registry credential ever lives in configuration. Uploads are terminal; a
// failure here is reported and left to an operator to re-issue.
package pkgindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// API is the publishing surface consumed by the distribution job.
type API interface {
	// Publish uploads every file in distDir. Success or failure only; the
	// caller consumes no structured output.
	Publish(ctx context.Context, distDir string) error
}

// IdentityProvider yields the ambient identity token presented to the index
// during token exchange. In CI this is the runner's identity document.
type IdentityProvider func(ctx context.Context) (string, error)

// EnvIdentity reads the identity token from an environment variable.
func EnvIdentity(name string) IdentityProvider {
	return func(context.Context) (string, error) {
		token := os.Getenv(name)
		if token == "" {
			return "", fmt.Errorf("pkgindex: identity variable %s is empty", name)
		}
		return token, nil
	}
}

// Client implements API against the index HTTP surface.
type Client struct {
	baseURL     string
	environment string
	identity    IdentityProvider
	httpClient  *http.Client
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

// NewClient builds an index client bound to one deployment environment.
func NewClient(baseURL, environment string, identity IdentityProvider, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		environment: environment,
		identity:    identity,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type mintRequest struct {
	Environment string `json:"environment"`
	Identity    string `json:"identity"`
}

type mintResponse struct {
	Token string `json:"token"`
}

// Publish implements API: mint an upload token, then upload each file in
// deterministic order. The first failed upload aborts the rest.
func (c *Client) Publish(ctx context.Context, distDir string) error {
	entries, err := os.ReadDir(distDir)
	if err != nil {
		return fmt.Errorf("pkgindex: read dist dir %s: %w", distDir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return fmt.Errorf("pkgindex: dist dir %s holds no files", distDir)
	}
	sort.Strings(names)

	token, err := c.mintToken(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := c.upload(ctx, token, filepath.Join(distDir, name)); err != nil {
			return fmt.Errorf("pkgindex: upload %s: %w", name, err)
		}
	}
	return nil
}

func (c *Client) mintToken(ctx context.Context) (string, error) {
	if c.identity == nil {
		return "", fmt.Errorf("pkgindex: no identity provider configured")
	}
	identity, err := c.identity(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(mintRequest{Environment: c.environment, Identity: identity})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oidc/mint-token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pkgindex: mint token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pkgindex: mint token: index returned %s", resp.Status)
	}
	var minted mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		return "", fmt.Errorf("pkgindex: mint token: decode: %w", err)
	}
	if minted.Token == "" {
		return "", fmt.Errorf("pkgindex: mint token: empty token in response")
	}
	return minted.Token, nil
}

func (c *Client) upload(ctx context.Context, token, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("content", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("index returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return nil
}
