package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mfeuerstein/releasegate/internal/config"
	"github.com/mfeuerstein/releasegate/internal/job"
)

const sampleDefinition = `id: smoke-check
version: 1.0.0
name: Smoke check
concurrency_group: smoke
steps:
  - name: ping
    command: ["true"]
`

const goPluginSource = `package main

func JobDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{
			"id":      "go-plugin",
			"version": "1.0.0",
			"steps": []map[string]any{
				{"name": "noop", "command": []string{"true"}},
			},
		},
	}, nil
}`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.ID != "smoke-check" || def.Group != "smoke" || len(def.Steps) != 1 {
		t.Fatalf("unexpected definition: %+v", def)
	}
}

func TestParseDefinitionYAMLErrors(t *testing.T) {
	cases := map[string]string{
		"empty payload": "",
		"missing id":    "version: 1.0.0\nsteps:\n  - name: x\n    command: [\"true\"]\n",
		"missing steps": "id: broken\nversion: 1.0.0\n",
		"empty command": "id: broken\nversion: 1.0.0\nsteps:\n  - name: x\n    command: []\n",
	}
	for label, payload := range cases {
		if _, err := ParseDefinitionYAML([]byte(payload)); err == nil {
			t.Fatalf("%s: expected validation error", label)
		}
	}
}

func TestLoadDefinitionDir(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "plugin.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinition), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	defs, err := LoadDefinitionDir(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 || defs[0].Path != path {
		t.Fatalf("unexpected defs: %+v", defs)
	}
}

func TestLoadDefinitionDirMissingIsEmpty(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil || defs != nil {
		t.Fatalf("missing dir must be empty, got %v %v", defs, err)
	}
}

func TestLoadGoDefinitionDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go-plugin.go"), []byte(goPluginSource), 0644); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	defs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		t.Fatalf("load go defs: %v", err)
	}
	if len(defs) != 1 || defs[0].Definition.ID != "go-plugin" {
		t.Fatalf("unexpected defs: %+v", defs)
	}
}

func TestLoadGoDefinitionDirMissingFunc(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write broken plugin: %v", err)
	}
	if _, err := LoadGoDefinitionDir(dir); err == nil {
		t.Fatalf("expected error for missing JobDefinitions function")
	}
}

func TestRegisterPluginJobsRunsCommandSteps(t *testing.T) {
	projectDir := t.TempDir()
	if err := config.InitDir(projectDir); err != nil {
		t.Fatalf("init dir: %v", err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.JobsDir(), "smoke.yaml"), []byte(sampleDefinition), 0644); err != nil {
		t.Fatalf("write plugin: %v", err)
	}

	registry := job.NewRegistry()
	if err := RegisterPluginJobs(registry, cfg); err != nil {
		t.Fatalf("register: %v", err)
	}
	instance, err := registry.Resolve("smoke-check", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if instance.Info().Group != "smoke" {
		t.Fatalf("group lost: %+v", instance.Info())
	}
	result, err := instance.Run(&job.Context{Ctx: context.Background(), Config: cfg})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != job.StatusSucceeded {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRegisterPluginJobsRejectsDuplicateIDs(t *testing.T) {
	projectDir := t.TempDir()
	if err := config.InitDir(projectDir); err != nil {
		t.Fatalf("init dir: %v", err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(cfg.JobsDir(), name), []byte(sampleDefinition), 0644); err != nil {
			t.Fatalf("write plugin: %v", err)
		}
	}
	if err := RegisterPluginJobs(job.NewRegistry(), cfg); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
