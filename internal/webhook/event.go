// Package webhook ingests release events pushed by the source host and turns
// the eligible ones into pipeline runs. Redelivered events are deduplicated
// by event id inside a sliding window; ineligible events are acknowledged and
// dropped, never errors.
package webhook

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfeuerstein/releasegate/internal/trigger"
)

const (
	// ProtocolVersion identifies the ingest contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// EventSchemaVersion is the currently supported inbound event version.
	EventSchemaVersion = 1
)

// Event is one host notification about a release.
type Event struct {
	Version    int       `json:"version"`
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"`
	Ref        string    `json:"ref"`
	Repository string    `json:"repository,omitempty"`
	ClientTime time.Time `json:"client_time,omitempty"`
	ServerTime time.Time `json:"server_time,omitempty"`
}

// Normalize applies defaults and canonical formatting before validation.
// Events delivered without an id get a generated one so dedup still works
// for exact redeliveries carrying ids.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Version == 0 {
		e.Version = EventSchemaVersion
	}
	e.EventID = strings.TrimSpace(e.EventID)
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	e.Kind = strings.ToLower(strings.TrimSpace(e.Kind))
	e.Ref = strings.TrimSpace(e.Ref)
	e.Repository = strings.TrimSpace(e.Repository)
}

// StampServerTime overwrites ServerTime with the supplied clock reading (UTC).
func (e *Event) StampServerTime(now time.Time) {
	if e == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	e.ServerTime = now.UTC()
}

// Validate enforces baseline schema requirements for incoming events.
func (e Event) Validate() error {
	if e.Version != EventSchemaVersion {
		return fmt.Errorf("version %d not supported", e.Version)
	}
	if e.Kind == "" {
		return errors.New("kind is required")
	}
	switch trigger.Kind(e.Kind) {
	case trigger.KindCreated, trigger.KindEdited, trigger.KindDeleted:
	default:
		return fmt.Errorf("kind %q not recognized", e.Kind)
	}
	if e.Ref == "" {
		return errors.New("ref is required")
	}
	return nil
}

// Trigger converts the wire event into the engine's trigger form.
func (e Event) Trigger() trigger.Event {
	return trigger.Event{Kind: trigger.Kind(e.Kind), Ref: e.Ref}
}

// EventProcessor consumes validated events.
type EventProcessor interface {
	HandleEvent(Event) error
}

// EventProcessorFunc adapts a function into an EventProcessor.
type EventProcessorFunc func(Event) error

// HandleEvent executes f(e).
func (f EventProcessorFunc) HandleEvent(e Event) error {
	if f == nil {
		return nil
	}
	return f(e)
}

// Logger records webhook status information. It matches logging.Logger's
// signature.
type Logger interface {
	Printf(format string, args ...any)
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type eventResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}
