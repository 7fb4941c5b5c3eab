package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/mfeuerstein/releasegate/internal/config"
	"github.com/mfeuerstein/releasegate/internal/pipeline"
	"github.com/mfeuerstein/releasegate/internal/pipeline/engine"
	"github.com/mfeuerstein/releasegate/internal/trigger"
)

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("RELEASEGATE_WEBHOOK_PORT", "9001")
	t.Setenv("RELEASEGATE_WEBHOOK_HOST", "0.0.0.0")
	t.Setenv("RELEASEGATE_WEBHOOK_ENABLED", "false")
	settings := SettingsFromConfig(&config.Config{})
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.Enabled {
		t.Fatalf("expected enabled=false from env override")
	}
}

func TestEventNormalizeAndValidate(t *testing.T) {
	evt := Event{Kind: " Created ", Ref: " v202401.0.0 "}
	evt.Normalize()
	if evt.EventID == "" {
		t.Fatalf("expected generated event id")
	}
	if evt.Kind != "created" || evt.Ref != "v202401.0.0" {
		t.Fatalf("normalize failed: %+v", evt)
	}
	if err := evt.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
	evt.Kind = "published"
	if err := evt.Validate(); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	evt.Kind = "created"
	evt.Version = 99
	if err := evt.Validate(); err == nil {
		t.Fatalf("expected version error")
	}
}

func testSettings() Settings {
	return Settings{
		Enabled:      true,
		Host:         "127.0.0.1",
		Port:         0,
		MaxBodyBytes: 1024,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		IdleTimeout:  time.Second,
	}
}

func TestServerAcceptsEvents(t *testing.T) {
	fixed := time.Unix(1730000000, 0).UTC()
	recorded := make(chan Event, 1)
	srv := NewServer(testSettings(),
		WithClock(func() time.Time { return fixed }),
		WithProcessor(EventProcessorFunc(func(e Event) error {
			recorded <- e
			return nil
		})))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	payload, _ := json.Marshal(Event{Kind: "created", Ref: "v202401.0.0", EventID: "evt-1"})
	resp, err := http.Post(srv.BaseURL()+"/events", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	select {
	case evt := <-recorded:
		if evt.Ref != "v202401.0.0" || !evt.ServerTime.Equal(fixed) {
			t.Fatalf("event not normalized/stamped: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("processor never invoked")
	}
}

func TestServerRejectsMalformedEvents(t *testing.T) {
	srv := NewServer(testSettings())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	cases := []string{
		`{not json`,
		`{"kind":"published","ref":"v202401.0.0"}`,
		`{"kind":"created"}`,
	}
	for _, body := range cases {
		resp, err := http.Post(srv.BaseURL()+"/events", "application/json", bytes.NewReader([]byte(body)))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

type fakeStarter struct {
	starts []trigger.Event
	err    error
}

func (f *fakeStarter) Start(_ pipeline.Definition, event trigger.Event) (engine.State, error) {
	if f.err != nil {
		return engine.State{}, f.err
	}
	f.starts = append(f.starts, event)
	return engine.State{RunID: fmt.Sprintf("run-%d", len(f.starts))}, nil
}

func TestDispatcherDeduplicatesRedeliveries(t *testing.T) {
	starter := &fakeStarter{}
	var launched []string
	d := NewDispatcher(starter, pipeline.Definition{ID: "release"},
		WithLaunch(func(runID string) { launched = append(launched, runID) }))

	evt := Event{Version: 1, EventID: "evt-1", Kind: "created", Ref: "v202401.0.0"}
	if err := d.HandleEvent(evt); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := d.HandleEvent(evt); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(starter.starts) != 1 {
		t.Fatalf("expected one run start, got %d", len(starter.starts))
	}
	if len(launched) != 1 || launched[0] != "run-1" {
		t.Fatalf("expected one launch, got %v", launched)
	}
}

func TestDispatcherIgnoresIneligibleEvents(t *testing.T) {
	starter := &fakeStarter{err: fmt.Errorf("start: %w", engine.ErrNotEligible)}
	launched := false
	d := NewDispatcher(starter, pipeline.Definition{ID: "release"},
		WithLaunch(func(string) { launched = true }))

	evt := Event{Version: 1, EventID: "evt-2", Kind: "deleted", Ref: "v202401.0.0"}
	if err := d.HandleEvent(evt); err != nil {
		t.Fatalf("ineligible event must be a no-op, got %v", err)
	}
	if launched {
		t.Fatalf("ineligible event must not launch a run")
	}
}

func TestDispatcherDedupeWindowSlides(t *testing.T) {
	starter := &fakeStarter{}
	d := NewDispatcher(starter, pipeline.Definition{ID: "release"}, WithDedupeWindow(2))
	for _, id := range []string{"a", "b", "c", "a"} {
		evt := Event{Version: 1, EventID: id, Kind: "created", Ref: "v202401.0.0"}
		if err := d.HandleEvent(evt); err != nil {
			t.Fatalf("handle %s: %v", id, err)
		}
	}
	// "a" slid out of the window after "b" and "c", so its redelivery starts
	// a fresh run.
	if len(starter.starts) != 4 {
		t.Fatalf("expected 4 starts, got %d", len(starter.starts))
	}
}
