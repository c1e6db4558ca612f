// Package audit delivers security events about dispute workspace mutations to
// best-effort sinks. Emit never reports failure to the caller.
package audit

import (
	"context"
	"log/slog"
	"time"
)

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Context is the caller-resolved actor information forwarded with each event.
type Context struct {
	ActorID       string
	ActorRole     string
	ActorPersona  string
	IPAddress     string
	UserAgent     string
	CorrelationID string
}

// Event is a single audit record.
type Event struct {
	ActorID       string         `json:"actor_id,omitempty"`
	ActorRole     string         `json:"actor_role,omitempty"`
	ActorPersona  string         `json:"actor_persona,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Resource      string         `json:"resource"`
	Action        string         `json:"action"`
	Decision      string         `json:"decision"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// NewEvent copies the actor fields out of actx.
func NewEvent(actx Context, resource, action, decision string, metadata map[string]any) Event {
	return Event{
		ActorID:       actx.ActorID,
		ActorRole:     actx.ActorRole,
		ActorPersona:  actx.ActorPersona,
		IPAddress:     actx.IPAddress,
		UserAgent:     actx.UserAgent,
		CorrelationID: actx.CorrelationID,
		Resource:      resource,
		Action:        action,
		Decision:      decision,
		Metadata:      metadata,
	}
}

// Emitter is a fire-and-forget sink.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// LogEmitter writes events as structured log lines.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger.With("component", "audit")}
}

func (e *LogEmitter) Emit(ctx context.Context, ev Event) {
	e.logger.InfoContext(ctx, "audit event",
		"resource", ev.Resource,
		"action", ev.Action,
		"decision", ev.Decision,
		"actor_id", ev.ActorID,
		"actor_role", ev.ActorRole,
		"correlation_id", ev.CorrelationID,
		"metadata", ev.Metadata,
	)
}

// Multi fans an event out to every sink in order.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}
