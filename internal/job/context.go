package job

import (
	"context"
	"time"

	"github.com/mfeuerstein/releasegate/internal/artifact"
	"github.com/mfeuerstein/releasegate/internal/config"
	"github.com/mfeuerstein/releasegate/internal/logging"
	"github.com/mfeuerstein/releasegate/internal/pkgindex"
	"github.com/mfeuerstein/releasegate/internal/repohost"
	"github.com/mfeuerstein/releasegate/internal/trigger"
)

// RunInfo is the immutable event context of the run a job belongs to.
type RunInfo struct {
	ID        string
	Event     trigger.Event
	StartedAt time.Time
}

// Context carries shared runtime dependencies into every job.
type Context struct {
	Ctx       context.Context
	Config    *config.Config
	Run       RunInfo
	Artifacts *artifact.Store
	Log       *logging.Logger
	Host      repohost.API
	Index     pkgindex.API
}

// NewContext builds a Context with a fresh artifact store rooted at the run's
// working directory.
func NewContext(ctx context.Context, cfg *config.Config, run RunInfo, host repohost.API, index pkgindex.API) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Ctx:       ctx,
		Config:    cfg,
		Run:       run,
		Artifacts: artifact.NewStore(cfg.WorkDir(run.ID)),
		Host:      host,
		Index:     index,
	}
}

// WithArtifacts allows dependency injection of a pre-built store.
func (c *Context) WithArtifacts(store *artifact.Store) *Context {
	clone := *c
	clone.Artifacts = store
	return &clone
}

// WithLogger attaches the run logger.
func (c *Context) WithLogger(log *logging.Logger) *Context {
	clone := *c
	clone.Log = log
	return &clone
}

// Logf writes to the run log when a logger is attached.
func (c *Context) Logf(format string, args ...any) {
	if c == nil || c.Log == nil {
		return
	}
	c.Log.Printf(format, args...)
}
