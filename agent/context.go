package agent

import (
	"context"
	"time"

	"github.com/c360studio/thinker/llm"
)

// SessionStatus tracks where a session is in its lifecycle.
type SessionStatus string

const (
	SessionCreated  SessionStatus = "created"
	SessionRunning  SessionStatus = "running"
	SessionComplete SessionStatus = "complete"
	SessionError    SessionStatus = "error"
)

// Session is the durable record of one pipeline run.
type Session struct {
	ID            string        `json:"id"`
	Domain        string        `json:"domain"`
	OriginalQuery string        `json:"original_query"`
	Status        SessionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Context carries a session's state between the three pipeline phases.
type Context struct {
	SessionID        string         `json:"session_id"`
	Domain           string         `json:"domain"`
	Query            string         `json:"query"`
	Plan             *ReasoningPlan `json:"plan,omitempty"`
	Artifact         string         `json:"artifact,omitempty"`
	CurrentStepIndex int            `json:"current_step_index"`
	State            *PipelineState `json:"state"`
}

// NewContext creates a pipeline context with empty state.
func NewContext(sessionID, domain, query string) *Context {
	return &Context{
		SessionID: sessionID,
		Domain:    domain,
		Query:     query,
		State:     NewPipelineState(),
	}
}

// EffectiveDomain returns the caller-supplied domain unless it is a
// placeholder, in which case the detected domain wins.
func (c *Context) EffectiveDomain() string {
	switch c.Domain {
	case "", "default", "general":
		if c.State != nil && c.State.DetectedDomain != "" {
			return c.State.DetectedDomain
		}
		return "default"
	}
	return c.Domain
}

// PipelineState holds the typed fields the phases hand each other. Known
// inter-phase fields are explicit struct members; per-action byproducts that
// have no fixed schema live in ActionOutputs.
type PipelineState struct {
	DetectedDomain     string   `json:"detected_domain,omitempty"`
	DomainSkills       []string `json:"domain_skills,omitempty"`
	DomainCapabilities []string `json:"domain_capabilities,omitempty"`

	Analysis *DeepAnalysis `json:"deep_analysis,omitempty"`

	// Execution loop outputs.
	GeneratedContent      []string          `json:"generated_content,omitempty"`
	GeneratedSkills       []string          `json:"generated_skills,omitempty"`
	GeneratedCapabilities map[string]string `json:"generated_capabilities,omitempty"`
	DomainTemplate        map[string]any    `json:"domain_template,omitempty"`
	DomainTemplateRaw     string            `json:"domain_template_raw,omitempty"`
	TemplateParsed        bool              `json:"template_parsed,omitempty"`
	ExecutorOutput        string            `json:"executor_output,omitempty"`
	Iterations            int               `json:"iterations,omitempty"`

	// Validation outputs.
	Critique           string              `json:"critique,omitempty"`
	Scores             *CritiqueScores     `json:"scores,omitempty"`
	TemplateValidation *TemplateValidation `json:"template_validation,omitempty"`
	FinalOutput        string              `json:"final_output,omitempty"`
	Sections           []Section           `json:"sections,omitempty"`

	// ActionOutputs keeps schemaless per-action byproducts keyed by action
	// name.
	ActionOutputs map[string]string `json:"action_outputs,omitempty"`
}

// NewPipelineState returns an empty state with maps allocated.
func NewPipelineState() *PipelineState {
	return &PipelineState{
		ActionOutputs: make(map[string]string),
	}
}

// CompletionClient is the slice of the LLM client the agents need.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// StreamingClient is implemented by LLM clients that can deliver a
// completion incrementally. The executor streams generated content through
// it when available so clients see text as it is produced.
type StreamingClient interface {
	Stream(ctx context.Context, req llm.Request, onChunk func(string)) (*llm.Response, error)
}

// SearchResult is one document returned by the retrieval store.
type SearchResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Domain  string  `json:"domain,omitempty"`
	Score   float64 `json:"score"`
}

// Retriever serves domain reference lookups for the SEARCH action and
// planning context.
type Retriever interface {
	Search(ctx context.Context, query, domain string, limit int) ([]SearchResult, error)
}

// MemoryWriter persists session memories for the REMEMBER action and
// post-phase summaries.
type MemoryWriter interface {
	Remember(ctx context.Context, sessionID, content, kind string, tags []string) error
}
