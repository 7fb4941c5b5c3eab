package webhook

import (
	"errors"
	"sync"

	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/pipeline/engine"
	"github.com/mfeuerstein/releasegate/internal/trigger"
)

const defaultDedupeWindow = 1024

// RunStarter is the slice of the engine the dispatcher depends on.
type RunStarter interface {
	Start(def pipeline.Definition, event trigger.Event) (engine.State, error)
}

// Dispatcher turns validated webhook events into pipeline runs. Redelivered
// events (same event id inside the dedup window) are acknowledged without
// starting a second run; ineligible events are a deliberate no-op.
type Dispatcher struct {
	starter    RunStarter
	definition pipeline.Definition
	launch     func(runID string)
	logger     Logger

	mu           sync.Mutex
	recentIDs    map[string]struct{}
	recentOrder  []string
	dedupeWindow int
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLaunch installs the callback invoked with each newly started run id,
// typically to hand the run to an execution driver.
func WithLaunch(launch func(runID string)) DispatcherOption {
	return func(d *Dispatcher) {
		d.launch = launch
	}
}

// WithDedupeWindow controls how many recent event ids are retained.
func WithDedupeWindow(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.dedupeWindow = size
		}
	}
}

// WithDispatcherLogger attaches a log for dispatch decisions.
func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher wires a dispatcher to a run starter and a pipeline definition.
func NewDispatcher(starter RunStarter, def pipeline.Definition, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		starter:      starter,
		definition:   def,
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		dedupeWindow: defaultDedupeWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// HandleEvent implements EventProcessor.
func (d *Dispatcher) HandleEvent(evt Event) error {
	if d.isDuplicate(evt.EventID) {
		d.logf("webhook: duplicate event %s ignored", evt.EventID)
		return nil
	}
	state, err := d.starter.Start(d.definition, evt.Trigger())
	if errors.Is(err, engine.ErrNotEligible) {
		d.logf("webhook: event %s (%s %q) not eligible, no run created", evt.EventID, evt.Kind, evt.Ref)
		return nil
	}
	if err != nil {
		return err
	}
	d.logf("webhook: event %s started run %s", evt.EventID, state.RunID)
	if d.launch != nil {
		d.launch(state.RunID)
	}
	return nil
}

func (d *Dispatcher) isDuplicate(eventID string) bool {
	if eventID == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.recentIDs[eventID]; ok {
		return true
	}
	d.recentIDs[eventID] = struct{}{}
	d.recentOrder = append(d.recentOrder, eventID)
	if len(d.recentOrder) > d.dedupeWindow {
		oldest := d.recentOrder[0]
		d.recentOrder = d.recentOrder[1:]
		delete(d.recentIDs, oldest)
	}
	return false
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}
