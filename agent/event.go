// Package agent implements the three-phase reasoning pipeline: a planning
// engine that turns a query into a reasoning plan, an execution loop that
// carries the plan out through a thought/action/observation cycle, and a
// validation engine that critiques and improves the result.
package agent

import (
	"context"
	"time"
)

// Name identifies which pipeline component produced an event.
type Name string

const (
	AgentPlanner   Name = "planner"
	AgentExecutor  Name = "executor"
	AgentValidator Name = "validator"
	AgentSystem    Name = "system"
)

// EventKind classifies the progress events streamed to clients.
type EventKind string

const (
	EventStatus          EventKind = "status"
	EventThought         EventKind = "thought"
	EventAction          EventKind = "action"
	EventObservation     EventKind = "observation"
	EventPlan            EventKind = "plan"
	EventArtifactChunk   EventKind = "artifact_chunk"
	EventMemoryUpdate    EventKind = "memory_update"
	EventRetrievalResult EventKind = "retrieval_result"
	EventError           EventKind = "error"
	EventComplete        EventKind = "complete"
)

// Event is a single progress event emitted by a pipeline phase.
type Event struct {
	Agent     Name      `json:"agent"`
	Kind      EventKind `json:"kind"`
	Content   string    `json:"content"`
	Payload   Payload   `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event with the current timestamp and no payload.
func NewEvent(agent Name, kind EventKind, content string) *Event {
	return &Event{Agent: agent, Kind: kind, Content: content, Timestamp: time.Now().UTC()}
}

// WithPayload attaches a typed payload to the event.
func (e *Event) WithPayload(p Payload) *Event {
	e.Payload = p
	return e
}

// Terminal reports whether an event ends the stream for a session: any error
// event, or a complete event from the system agent. Per-phase complete events
// do not terminate the stream.
func (e *Event) Terminal() bool {
	if e.Kind == EventError {
		return true
	}
	return e.Kind == EventComplete && e.Agent == AgentSystem
}

// Payload is implemented by the typed event payload variants. Consumers
// switch on the concrete type instead of digging through an untyped map.
type Payload interface {
	payloadKind() EventKind
}

// PlanPayload accompanies plan events.
type PlanPayload struct {
	Plan             *ReasoningPlan `json:"plan"`
	Mermaid          string         `json:"mermaid,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	StepCount        int            `json:"step_count"`
	RequiresApproval bool           `json:"requires_approval"`
	Refined          bool           `json:"is_refined,omitempty"`
}

// ActionPayload accompanies action events from the execution loop.
type ActionPayload struct {
	Iteration int    `json:"iteration"`
	Action    string `json:"action"`
	Input     string `json:"input,omitempty"`
}

// ObservationPayload accompanies observation events.
type ObservationPayload struct {
	Action string `json:"action,omitempty"`
	Result string `json:"result,omitempty"`
}

// ArtifactChunkPayload carries one chunk of generated content. Total is the
// chunk count when a finished artifact is replayed and zero while a live
// stream is still in flight.
type ArtifactChunkPayload struct {
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Content string `json:"content"`
}

// RetrievalPayload accompanies retrieval_result events.
type RetrievalPayload struct {
	Query   string   `json:"query"`
	Sources []string `json:"sources"`
}

// MemoryPayload accompanies memory_update events.
type MemoryPayload struct {
	Kind string   `json:"kind"`
	Tags []string `json:"tags,omitempty"`
}

// ValidationPayload accompanies validator observation events.
type ValidationPayload struct {
	Scores             *CritiqueScores     `json:"scores,omitempty"`
	TemplateValidation *TemplateValidation `json:"template_validation,omitempty"`
}

// ErrorPayload accompanies error events.
type ErrorPayload struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// CompletePayload accompanies complete events.
type CompletePayload struct {
	Iterations   int      `json:"iterations,omitempty"`
	OutputLength int      `json:"output_length,omitempty"`
	QualityScore int      `json:"quality_score,omitempty"`
	Domain       string   `json:"domain,omitempty"`
	FinalOutput  string   `json:"final_output,omitempty"`
	Sections     int      `json:"sections,omitempty"`
	Skills       []string `json:"skills,omitempty"`
}

func (PlanPayload) payloadKind() EventKind          { return EventPlan }
func (ActionPayload) payloadKind() EventKind        { return EventAction }
func (ObservationPayload) payloadKind() EventKind   { return EventObservation }
func (ArtifactChunkPayload) payloadKind() EventKind { return EventArtifactChunk }
func (RetrievalPayload) payloadKind() EventKind     { return EventRetrievalResult }
func (MemoryPayload) payloadKind() EventKind        { return EventMemoryUpdate }
func (ValidationPayload) payloadKind() EventKind    { return EventObservation }
func (ErrorPayload) payloadKind() EventKind         { return EventError }
func (CompletePayload) payloadKind() EventKind      { return EventComplete }

// Emitter receives pipeline events. Implemented by the event bus; tests use
// an in-memory recorder.
type Emitter interface {
	Emit(ctx context.Context, ev *Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, ev *Event)

func (f EmitterFunc) Emit(ctx context.Context, ev *Event) { f(ctx, ev) }
