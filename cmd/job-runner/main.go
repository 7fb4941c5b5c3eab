// cmd/job-runner/main.go
//
// job-runner executes exactly one job of a persisted run and reports the
// result back through the engine. It is the external step-executor role: an
// operator (or a CI wrapper) can re-drive a single job without restarting the
// whole run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mfeuerstein/releasegate/internal/config"
	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/jobs"
	"github.com/mfeuerstein/releasegate/internal/logging"
	"github.com/mfeuerstein/releasegate/internal/pipeline/engine"
	"github.com/mfeuerstein/releasegate/internal/pkgindex"
	"github.com/mfeuerstein/releasegate/internal/repohost"
	"github.com/mfeuerstein/releasegate/plugins"
)

func main() {
	jobID := flag.String("job", "", "job instance id inside the run (e.g. json-schemas)")
	runID := flag.String("run", "", "run id to execute against")
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	flag.Parse()

	if strings.TrimSpace(*jobID) == "" {
		die("--job is required")
	}
	if strings.TrimSpace(*runID) == "" {
		die("--run is required")
	}

	project := *projectDir
	if project == "" {
		cwd, err := os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
		project = cwd
	}
	absolute, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}
	if err := config.InitDir(absolute); err != nil {
		die("init %s: %v", config.Dir, err)
	}
	cfg, err := config.NewConfig(absolute)
	if err != nil {
		die("load config: %v", err)
	}
	log, err := logging.New(absolute)
	if err != nil {
		die("open log: %v", err)
	}
	defer log.Close()

	registry := job.NewRegistry()
	jobs.RegisterBuiltins(registry)
	if err := plugins.RegisterPluginJobs(registry, cfg); err != nil {
		die("load plugins: %v", err)
	}
	store, err := engine.NewFileStore(cfg.RunsDir())
	if err != nil {
		die("open run store: %v", err)
	}
	eng, err := engine.New(registry, store, engine.WithLogger(log))
	if err != nil {
		die("build engine: %v", err)
	}

	state, err := eng.Resume(*runID)
	if err != nil {
		die("resume run %s: %v", *runID, err)
	}
	if !contains(state.Runnable, *jobID) {
		die("job %s is not runnable in run %s (runnable: %s)", *jobID, *runID, strings.Join(state.Runnable, ", "))
	}
	nodes, err := eng.Dispatchable(*runID)
	if err != nil {
		die("resolve runnable jobs: %v", err)
	}
	ctx := context.Background()
	host := repohost.NewClient(cfg.Project.Host.BaseURL, cfg.Project.Host.Token())
	index := pkgindex.NewClient(cfg.Project.Index.BaseURL, cfg.Project.Index.Environment,
		pkgindex.EnvIdentity("RELEASEGATE_INDEX_IDENTITY"))
	jc := job.NewContext(ctx, cfg, job.RunInfo{ID: state.RunID, Event: state.Event, StartedAt: state.StartedAt}, host, index).
		WithLogger(log)

	for _, node := range nodes {
		if node.ID != *jobID {
			continue
		}
		result, runErr := node.Job.Run(jc)
		run := engine.JobRun{Status: result.Status, Message: result.Message}
		if runErr != nil {
			run.Status = job.StatusFailed
			run.Error = runErr.Error()
		}
		updated, err := eng.Update(*runID, map[string]engine.JobRun{node.ID: run}, nil)
		if err != nil {
			die("record result: %v", err)
		}
		fmt.Printf("job %s: %s\n", node.ID, run.Status)
		if run.Message != "" {
			fmt.Println(run.Message)
		}
		if run.Error != "" {
			fmt.Fprintln(os.Stderr, run.Error)
		}
		fmt.Printf("run %s: %s\n", updated.RunID, updated.Status)
		if run.Status != job.StatusSucceeded {
			os.Exit(1)
		}
		return
	}
	die("job %s not found in runnable set", *jobID)
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
