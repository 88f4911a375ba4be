// Package audit delivers a record of every mutating engine call to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not import any
// particular audit store. Callers inject a RecorderFunc adapter at wiring
// time. The engine holds exactly one Sink: NewSink over a Recorder in
// production, Nop in tests and tools.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event is one audited mutation. OldValues and NewValues hold the changed
// fields before and after the call; either may be nil.
type Event struct {
	Action         string         `json:"action"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	OldValues      map[string]any `json:"old_values,omitempty"`
	NewValues      map[string]any `json:"new_values,omitempty"`
	Outcome        string         `json:"outcome"`
	Reason         string         `json:"reason,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Sink receives audit events from the engine.
type Sink interface {
	Record(ctx context.Context, event *Event) error
}

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

type recorderSink struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *zap.Logger
}

// NewSink creates a Sink that forwards events to r. Recorder failures are
// logged and swallowed: the audited mutation has already committed.
func NewSink(r Recorder, opts ...Option) Sink {
	s := &recorderSink{
		recorder: r,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *recorderSink) Record(ctx context.Context, event *Event) error {
	if s.enabled != nil && !s.enabled[event.Action] {
		return nil
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event",
			zap.String("action", event.Action),
			zap.String("entity_type", event.EntityType),
			zap.String("entity_id", event.EntityID),
			zap.Error(err),
		)
	}
	return nil
}

type nopSink struct{}

func (nopSink) Record(context.Context, *Event) error { return nil }

// Nop returns a Sink that discards every event.
func Nop() Sink { return nopSink{} }
