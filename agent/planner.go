package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/thinker/llm"
	"github.com/c360studio/thinker/model"
)

// Planner turns a free-text request into a reasoning plan: domain
// classification, pre-planning analysis, step generation, clarification
// questions and refinement from user feedback.
type Planner struct {
	llm        CompletionClient
	retriever  Retriever
	memory     MemoryWriter
	logger     *slog.Logger
	capability string
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithRetriever wires a retrieval store for planning context.
func WithRetriever(r Retriever) PlannerOption {
	return func(p *Planner) { p.retriever = r }
}

// WithMemory wires a memory store for post-plan summaries.
func WithMemory(m MemoryWriter) PlannerOption {
	return func(p *Planner) { p.memory = m }
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(l *slog.Logger) PlannerOption {
	return func(p *Planner) { p.logger = l }
}

// NewPlanner creates a planning engine backed by the given LLM client.
func NewPlanner(client CompletionClient, opts ...PlannerOption) *Planner {
	p := &Planner{
		llm:        client,
		logger:     slog.Default(),
		capability: model.CapabilityForAgent(string(AgentPlanner)).String(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan runs the full planning phase for a context, emitting progress events.
// The returned plan always satisfies the structural invariants (lead skill at
// index 0, at most five priority-sorted questions, derived totals); an error
// is returned only when the LLM call itself fails.
func (p *Planner) Plan(ctx context.Context, tc *Context, emit Emitter) (*ReasoningPlan, error) {
	emit.Emit(ctx, NewEvent(AgentPlanner, EventStatus, "Analyzing request..."))

	domain := DetectDomain(tc.Query)
	tc.State.DetectedDomain = domain
	tc.State.DomainSkills = DomainSkills(domain)
	tc.State.DomainCapabilities = DomainCapabilities(domain)

	emit.Emit(ctx, NewEvent(AgentPlanner, EventThought,
		fmt.Sprintf("Domain: %s | Skills: %d | Capabilities: %d",
			domain, len(tc.State.DomainSkills), len(tc.State.DomainCapabilities))))

	analysis := p.analyze(ctx, tc)
	tc.State.Analysis = analysis
	emit.Emit(ctx, NewEvent(AgentPlanner, EventThought,
		fmt.Sprintf("Analysis: %s (%s)", analysis.Audience.Primary, analysis.Audience.SkillLevel)))

	retrievalContext := p.searchContext(ctx, tc, emit)

	emit.Emit(ctx, NewEvent(AgentPlanner, EventThought, "Creating execution plan..."))

	resp, err := p.llm.Complete(ctx, llm.Request{
		Capability: p.capability,
		Messages: []llm.Message{
			{Role: "system", Content: planningSystemPrompt},
			{Role: "user", Content: buildPlanningPrompt(tc, analysis, retrievalContext)},
		},
		Temperature: llm.Temp(0.7),
		MaxTokens:   1800,
	})
	if err != nil {
		return nil, fmt.Errorf("planning call failed: %w", err)
	}

	plan, ok := ParsePlan(resp.Content, domain)
	if !ok {
		p.logger.Warn("Failed to parse plan, using fallback", "session_id", tc.SessionID)
		plan = FallbackPlan(tc, resp.Content)
	}
	p.normalize(tc, plan)

	p.remember(ctx, tc, emit,
		fmt.Sprintf("Plan created: %s (%d steps, %s)", plan.Title, len(plan.Steps), plan.EstimatedComplexity),
		"plan_result", []string{"planner", plan.Domain})

	emit.Emit(ctx, NewEvent(AgentPlanner, EventPlan,
		fmt.Sprintf("Plan ready: %s (%d steps)", plan.Title, len(plan.Steps))).
		WithPayload(PlanPayload{
			Plan:             plan,
			Mermaid:          Mermaid(plan),
			Summary:          PlanSummary(plan),
			StepCount:        len(plan.Steps),
			RequiresApproval: true,
		}))
	emit.Emit(ctx, NewEvent(AgentPlanner, EventComplete,
		fmt.Sprintf("Planning complete: %d steps, %d questions", len(plan.Steps), len(plan.ClarificationQuestions))))

	return plan, nil
}

// Refine produces a new plan from an existing one plus the user's
// clarification responses and optional free-text feedback. The chat history
// gains exactly one user turn and one assistant turn when feedback is given.
func (p *Planner) Refine(ctx context.Context, tc *Context, plan *ReasoningPlan, responses map[string]string, chatMessage string, emit Emitter) (*ReasoningPlan, error) {
	emit.Emit(ctx, NewEvent(AgentPlanner, EventStatus, "Refining plan from your responses..."))

	resp, err := p.llm.Complete(ctx, llm.Request{
		Capability: p.capability,
		Messages: []llm.Message{
			{Role: "system", Content: refineSystemPrompt},
			{Role: "user", Content: buildRefinementPrompt(plan, responses, chatMessage)},
		},
		Temperature: llm.Temp(0.7),
		MaxTokens:   1800,
	})
	if err != nil {
		return nil, fmt.Errorf("refinement call failed: %w", err)
	}

	refined, ok := ParsePlan(resp.Content, plan.Domain)
	if !ok {
		p.logger.Warn("Failed to parse refined plan, using fallback", "session_id", tc.SessionID)
		refined = FallbackPlan(tc, resp.Content)
	}
	refined.TemplateID = plan.TemplateID
	p.normalize(tc, refined)

	refined.ChatHistory = append([]ChatTurn(nil), plan.ChatHistory...)
	if chatMessage != "" {
		refined.ChatHistory = append(refined.ChatHistory,
			ChatTurn{Role: "user", Content: chatMessage},
			ChatTurn{Role: "assistant", Content: "Updated plan: " + refined.Title},
		)
	}

	emit.Emit(ctx, NewEvent(AgentPlanner, EventPlan,
		fmt.Sprintf("Plan refined: %s (%d steps)", refined.Title, len(refined.Steps))).
		WithPayload(PlanPayload{
			Plan:             refined,
			Mermaid:          Mermaid(refined),
			Summary:          PlanSummary(refined),
			StepCount:        len(refined.Steps),
			RequiresApproval: true,
			Refined:          true,
		}))
	emit.Emit(ctx, NewEvent(AgentPlanner, EventComplete, "Refinement complete"))

	return refined, nil
}

// analyze asks the model for a deep analysis of the request; any failure
// falls back to the deterministic heuristic analysis.
func (p *Planner) analyze(ctx context.Context, tc *Context) *DeepAnalysis {
	resp, err := p.llm.Complete(ctx, llm.Request{
		Capability: string(model.CapabilityFast),
		Messages: []llm.Message{
			{Role: "system", Content: "You analyze task requests. Output ONLY a JSON object with keys: audience {primary, skill_level, prerequisites, goals}, stakeholders, context_of_use, motivation, requirements {explicit, implicit, out_of_scope}, risks_and_assumptions {assumptions, risks, mitigations}, strategy {alternatives, recommended, rationale}, complexity_factors, estimated_effort."},
			{Role: "user", Content: fmt.Sprintf("Domain: %s\nRequest: %s", tc.State.DetectedDomain, tc.Query)},
		},
		Temperature: llm.Temp(0.3),
		MaxTokens:   800,
	})
	if err != nil {
		p.logger.Debug("Analysis call failed, using heuristics", "error", err)
		return HeuristicAnalysis(tc.Query)
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return HeuristicAnalysis(tc.Query)
	}
	var analysis DeepAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil || analysis.Audience.Primary == "" {
		return HeuristicAnalysis(tc.Query)
	}
	return &analysis
}

// searchContext pulls retrieval context for the planning prompt. Failures
// degrade to empty context.
func (p *Planner) searchContext(ctx context.Context, tc *Context, emit Emitter) string {
	if p.retriever == nil {
		return ""
	}
	results, err := p.retriever.Search(ctx, tc.Query, tc.EffectiveDomain(), 3)
	if err != nil {
		p.logger.Warn("Retrieval failed during planning", "error", err)
		emit.Emit(ctx, NewEvent(AgentPlanner, EventStatus, "Reference lookup unavailable, planning without context"))
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	sources := make([]string, 0, len(results))
	var b strings.Builder
	for i, r := range results {
		sources = append(sources, r.Source)
		if i >= 2 {
			continue
		}
		content := r.Content
		if len(content) > 150 {
			content = content[:150]
		}
		fmt.Fprintf(&b, "- %s\n", content)
	}
	emit.Emit(ctx, NewEvent(AgentPlanner, EventRetrievalResult,
		fmt.Sprintf("Found %d relevant sources", len(results))).
		WithPayload(RetrievalPayload{Query: tc.Query, Sources: sources}))
	return b.String()
}

// normalize applies the plan invariants and fills derived fields.
func (p *Planner) normalize(tc *Context, plan *ReasoningPlan) {
	if plan.Domain == "" {
		plan.Domain = tc.State.DetectedDomain
	}
	if len(plan.DomainSkills) == 0 {
		plan.DomainSkills = tc.State.DomainSkills
	}
	if len(plan.DomainCapabilities) == 0 {
		plan.DomainCapabilities = tc.State.DomainCapabilities
	}
	plan.DomainCapabilities = dedupe(plan.DomainCapabilities)
	if len(plan.ClarificationQuestions) == 0 {
		plan.ClarificationQuestions = DefaultQuestions(tc.Query, plan.Domain)
	}
	plan.ClarificationQuestions = capQuestions(plan.ClarificationQuestions)
	if plan.Analysis == nil {
		plan.Analysis = tc.State.Analysis
	}
	plan.Finalize()
	tc.Plan = plan
}

// remember stores a summary in session memory, best effort.
func (p *Planner) remember(ctx context.Context, tc *Context, emit Emitter, content, kind string, tags []string) {
	if p.memory == nil {
		return
	}
	if err := p.memory.Remember(ctx, tc.SessionID, content, kind, tags); err != nil {
		p.logger.Warn("Failed to store plan memory", "error", err)
		return
	}
	emit.Emit(ctx, NewEvent(AgentPlanner, EventMemoryUpdate, "Saved planning result to memory").
		WithPayload(MemoryPayload{Kind: kind, Tags: tags}))
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}

// DefaultQuestions builds the rule-based clarification questions used when
// the model supplied none.
func DefaultQuestions(query, domain string) []ClarificationQuestion {
	questions := []ClarificationQuestion{{
		ID:       "q_skill_level",
		Question: "What is the target skill level for this content?",
		Type:     "choice",
		Options:  []string{"Beginner", "Intermediate", "Advanced", "Mixed"},
		Default:  "Intermediate",
		Priority: "high",
		Reason:   "Determines depth and pacing of the content",
	}}

	switch {
	case domain == "education" || strings.Contains(strings.ToLower(query), "course"):
		questions = append(questions,
			ClarificationQuestion{
				ID:       "q_content_type",
				Question: "What type of content delivery do you prefer?",
				Type:     "choice",
				Options:  []string{"Theory-focused", "Hands-on projects", "Mixed approach", "Case studies"},
				Default:  "Mixed approach",
				Priority: "medium",
				Reason:   "Shapes the structure of each section",
			},
			ClarificationQuestion{
				ID:       "q_include_exercises",
				Question: "Should I include practice exercises and quizzes?",
				Type:     "boolean",
				Default:  "yes",
				Priority: "medium",
				Reason:   "Adds assessment material to each section",
			})
	case domain == "software":
		questions = append(questions,
			ClarificationQuestion{
				ID:       "q_code_examples",
				Question: "Should I include detailed code examples?",
				Type:     "boolean",
				Default:  "yes",
				Priority: "medium",
				Reason:   "Code examples make technical content concrete",
			},
			ClarificationQuestion{
				ID:       "q_deployment",
				Question: "Should deployment/production considerations be covered?",
				Type:     "boolean",
				Default:  "yes",
				Priority: "low",
				Reason:   "Extends scope beyond development basics",
			})
	default:
		questions = append(questions,
			ClarificationQuestion{
				ID:       "q_detail_level",
				Question: "What level of detail do you need?",
				Type:     "choice",
				Options:  []string{"High-level overview", "Detailed breakdown", "Comprehensive deep-dive"},
				Default:  "Detailed breakdown",
				Priority: "medium",
				Reason:   "Controls length and depth of the output",
			},
			ClarificationQuestion{
				ID:       "q_examples",
				Question: "Should I include practical examples?",
				Type:     "boolean",
				Default:  "yes",
				Priority: "low",
				Reason:   "Examples improve applicability",
			})
	}
	return questions
}
