// cmd/releasegate/main.go
//
// Entry point for the releasegate CLI.
//
// Subcommands:
//   serve   start the webhook server and run eligible releases as they arrive
//   run     start one run synchronously for a given ref
//   status  open the terminal run monitor
//   init    create the .releasegate directory structure
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mfeuerstein/releasegate/internal/config"
	"github.com/mfeuerstein/releasegate/internal/job"
	"github.com/mfeuerstein/releasegate/internal/jobs"
	"github.com/mfeuerstein/releasegate/internal/logging"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/pipeline/engine"
	"github.com/mfeuerstein/releasegate/internal/pkgindex"
	"github.com/mfeuerstein/releasegate/internal/repohost"
	"github.com/mfeuerstein/releasegate/internal/trigger"
	"github.com/mfeuerstein/releasegate/internal/tui"
	"github.com/mfeuerstein/releasegate/internal/webhook"
	"github.com/mfeuerstein/releasegate/plugins"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "run":
		cmdRun(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "releasegate: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: releasegate <command> [flags]

commands:
  init    create the .releasegate directory in the current project
  serve   start the webhook server and execute eligible releases
  run     start one run synchronously (-ref v202401.0.0)
  status  open the terminal run monitor`)
}

// runtime bundles everything a command needs after project setup.
type runtime struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *job.Registry
	engine   *engine.Engine
	store    *engine.FileStore
}

func setup(projectDir string) (*runtime, error) {
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		projectDir = cwd
	}
	absolute, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	if err := config.InitDir(absolute); err != nil {
		return nil, fmt.Errorf("init %s: %w", config.Dir, err)
	}
	cfg, err := config.NewConfig(absolute)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(absolute)
	if err != nil {
		return nil, err
	}
	registry := job.NewRegistry()
	jobs.RegisterBuiltins(registry)
	if err := plugins.RegisterPluginJobs(registry, cfg); err != nil {
		return nil, err
	}
	store, err := engine.NewFileStore(cfg.RunsDir())
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(registry, store, engine.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, log: log, registry: registry, engine: eng, store: store}, nil
}

func (rt *runtime) contextFactory() engine.ContextFactory {
	return func(run job.RunInfo) (*job.Context, error) {
		host := repohost.NewClient(
			rt.cfg.Project.Host.BaseURL,
			rt.cfg.Project.Host.Token(),
		)
		index := pkgindex.NewClient(
			rt.cfg.Project.Index.BaseURL,
			rt.cfg.Project.Index.Environment,
			pkgindex.EnvIdentity("RELEASEGATE_INDEX_IDENTITY"),
		)
		jc := job.NewContext(context.Background(), rt.cfg, run, host, index)
		return jc.WithLogger(rt.log), nil
	}
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	projectDir := fs.String("project", "", "path to the project directory (defaults to cwd)")
	fs.Parse(args)
	rt, err := setup(*projectDir)
	if err != nil {
		die("%v", err)
	}
	defer rt.log.Close()
	fmt.Printf("initialized %s\n", filepath.Join(rt.cfg.ProjectDir, config.Dir))
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	projectDir := fs.String("project", "", "path to the project directory (defaults to cwd)")
	fs.Parse(args)
	rt, err := setup(*projectDir)
	if err != nil {
		die("%v", err)
	}
	defer rt.log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := engine.NewRunner(rt.engine, rt.contextFactory(), engine.WithRunnerLogger(rt.log))
	if err != nil {
		die("%v", err)
	}
	dispatcher := webhook.NewDispatcher(rt.engine, pipeline.ReleaseDefinition(),
		webhook.WithDispatcherLogger(rt.log),
		webhook.WithLaunch(func(runID string) {
			go func() {
				if _, err := runner.Run(ctx, runID); err != nil {
					rt.log.Printf("serve: run %s: %v", runID, err)
				}
			}()
		}))
	server := webhook.NewServer(webhook.SettingsFromConfig(rt.cfg),
		webhook.WithProcessor(dispatcher),
		webhook.WithLogger(rt.log))
	if err := server.Start(ctx); err != nil {
		die("%v", err)
	}
	fmt.Printf("listening on %s\n", server.Addr())
	<-ctx.Done()
	if err := server.Shutdown(context.Background()); err != nil {
		die("shutdown: %v", err)
	}
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	projectDir := fs.String("project", "", "path to the project directory (defaults to cwd)")
	ref := fs.String("ref", "", "release tag ref, e.g. v202401.0.0")
	kind := fs.String("kind", string(trigger.KindCreated), "trigger kind (created or edited)")
	fs.Parse(args)
	if *ref == "" {
		die("run: -ref is required")
	}
	rt, err := setup(*projectDir)
	if err != nil {
		die("%v", err)
	}
	defer rt.log.Close()

	event := trigger.Event{Kind: trigger.Kind(*kind), Ref: *ref}
	state, err := rt.engine.Start(pipeline.ReleaseDefinition(), event)
	if errors.Is(err, engine.ErrNotEligible) {
		die("run: %v", err)
	}
	if err != nil {
		die("%v", err)
	}
	fmt.Printf("run %s started for %s\n", state.RunID, *ref)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runner, err := engine.NewRunner(rt.engine, rt.contextFactory(), engine.WithRunnerLogger(rt.log))
	if err != nil {
		die("%v", err)
	}
	final, err := runner.Run(ctx, state.RunID)
	if err != nil {
		die("run %s: %v", state.RunID, err)
	}
	fmt.Printf("run %s finished: %s\n", final.RunID, final.Status)
	for _, node := range final.Nodes {
		line := fmt.Sprintf("  %-12s %s", node.State, node.Name)
		if node.LastRun != nil && node.LastRun.Message != "" {
			line += "  " + node.LastRun.Message
		}
		fmt.Println(line)
	}
	if final.Status != engine.RunStatusSucceeded {
		os.Exit(1)
	}
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	projectDir := fs.String("project", "", "path to the project directory (defaults to cwd)")
	runID := fs.String("run", "", "run id to watch (defaults to the latest run)")
	fs.Parse(args)
	rt, err := setup(*projectDir)
	if err != nil {
		die("%v", err)
	}
	defer rt.log.Close()
	if err := tui.Run(rt.store, *runID); err != nil {
		die("status: %v", err)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
