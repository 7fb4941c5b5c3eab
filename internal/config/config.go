// internal/config/config.go
//
// This package handles configuration and the .releasegate directory
// structure. Every project that uses releasegate gets a .releasegate/ folder
// created in its root holding config.yaml, run state, logs, and plugin job
// definitions.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each project.
	Dir = ".releasegate"

	defaultPipelineID = "release"
)

const defaultProjectConfigYAML = `# releasegate project configuration
version: 1

# Source host the orchestrator talks to for commits, releases, and lookups.
# repo is the project's own repository, used for latest-release lookups.
host:
  base_url: https://git.example.com/api
  repo: example/project
  token_env: RELEASEGATE_HOST_TOKEN

# Sibling repository that receives generated schema artifacts.
schema_repo:
  repo: example/schemas
  branch: main
  dest_dir: src/schemas

# Versioned documentation publishing.
docs:
  repo: example/project
  branch: gh-pages
  stable_alias: stable

# Package index for distribution publishing (trusted publishing).
index:
  base_url: https://index.example.com
  environment: release

# Commands for the opaque build steps. Each entry is one shell-less argv.
commands:
  tests:
    - [go, test, ./...]
  schemas:
    - [schematool, generate, --output, schemas]
  docs:
    - [docbuilder, build, --site-dir, docs]
  distributions:
    - [packager, build, --out, dist]

# Webhook ingest for release events pushed by the source host.
webhook:
  enabled: true
  host: 127.0.0.1
  port: 8766

pipelines:
  default: release
`

// HostConfig points at the source-control host API.
type HostConfig struct {
	BaseURL string `yaml:"base_url"`
	// Repo is the project's own repository slug, the target of latest-release
	// lookups for version ordering and the stable docs alias.
	Repo     string `yaml:"repo"`
	TokenEnv string `yaml:"token_env,omitempty"`
}

// Token resolves the host credential from the configured environment variable.
func (h HostConfig) Token() string {
	if h.TokenEnv == "" {
		return ""
	}
	return os.Getenv(h.TokenEnv)
}

// SchemaRepoConfig names the target repository for generated schemas.
type SchemaRepoConfig struct {
	Repo    string `yaml:"repo"`
	Branch  string `yaml:"branch"`
	DestDir string `yaml:"dest_dir,omitempty"`
}

// DocsConfig configures versioned documentation publishing.
type DocsConfig struct {
	Repo        string `yaml:"repo"`
	Branch      string `yaml:"branch"`
	StableAlias string `yaml:"stable_alias,omitempty"`
}

// Alias returns the stable alias name, defaulting to "stable".
func (d DocsConfig) Alias() string {
	if strings.TrimSpace(d.StableAlias) == "" {
		return "stable"
	}
	return d.StableAlias
}

// IndexConfig points at the package index used for distribution publishing.
type IndexConfig struct {
	BaseURL     string `yaml:"base_url"`
	Environment string `yaml:"environment"`
}

// CommandsConfig carries the opaque argv lists executed by the build jobs.
type CommandsConfig struct {
	Tests         [][]string `yaml:"tests,omitempty"`
	Schemas       [][]string `yaml:"schemas,omitempty"`
	Docs          [][]string `yaml:"docs,omitempty"`
	Distributions [][]string `yaml:"distributions,omitempty"`
}

// WebhookConfig configures the release-event ingest server.
type WebhookConfig struct {
	// Enabled is a tri-state: nil means "use the default".
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// PipelinesConfig captures pipeline preferences.
type PipelinesConfig struct {
	Default   string   `yaml:"default"`
	Available []string `yaml:"available,omitempty"`
}

// ProjectConfig models .releasegate/config.yaml.
type ProjectConfig struct {
	Version    int              `yaml:"version"`
	Host       HostConfig       `yaml:"host"`
	SchemaRepo SchemaRepoConfig `yaml:"schema_repo"`
	Docs       DocsConfig       `yaml:"docs"`
	Index      IndexConfig      `yaml:"index"`
	Commands   CommandsConfig   `yaml:"commands"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Pipelines  PipelinesConfig  `yaml:"pipelines"`
}

// Config holds the runtime configuration for releasegate.
type Config struct {
	// ProjectDir is the directory where the user ran `releasegate` from.
	ProjectDir string

	// StateDir is ProjectDir/.releasegate.
	StateDir string

	Project ProjectConfig
}

// InitDir creates the .releasegate directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .releasegate/
// ├── logs/     <- orchestration log file
// ├── runs/     <- persisted run state (one JSON file per run)
// ├── work/     <- per-run working directories and artifacts
// └── jobs/     <- plugin job definitions (*.yaml, *.go)
func InitDir(projectDir string) error {
	stateDir := filepath.Join(projectDir, Dir)
	dirs := []string{
		filepath.Join(stateDir, "logs"),
		filepath.Join(stateDir, "runs"),
		filepath.Join(stateDir, "work"),
		filepath.Join(stateDir, "jobs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(stateDir, "config.yaml"))
}

// NewConfig creates a Config instance populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, Dir),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// RunsDir returns the directory that persists run state.
func (c *Config) RunsDir() string {
	return filepath.Join(c.StateDir, "runs")
}

// WorkDir returns the working directory for one run.
func (c *Config) WorkDir(runID string) string {
	return filepath.Join(c.StateDir, "work", runID)
}

// JobsDir returns the directory scanned for plugin job definitions.
func (c *Config) JobsDir() string {
	return filepath.Join(c.StateDir, "jobs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// DefaultPipeline returns the configured default pipeline id.
func (c *Config) DefaultPipeline() string {
	id := strings.TrimSpace(c.Project.Pipelines.Default)
	if id == "" {
		return defaultPipelineID
	}
	return id
}

func defaultProjectConfig() ProjectConfig {
	var cfg ProjectConfig
	if err := yaml.Unmarshal([]byte(defaultProjectConfigYAML), &cfg); err != nil {
		// The embedded default must always parse; failing loudly here beats
		// running with a half-initialized config.
		panic(fmt.Sprintf("config: default config.yaml is invalid: %v", err))
	}
	return cfg
}

func (c *Config) loadProjectConfig() error {
	data, err := os.ReadFile(c.ProjectConfigPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", c.ProjectConfigPath(), err)
	}
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.ProjectConfigPath(), err)
	}
	if parsed.Version == 0 {
		parsed.Version = 1
	}
	c.Project = parsed
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
