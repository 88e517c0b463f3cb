package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/c360studio/thinker/llm"
	"github.com/c360studio/thinker/model"
)

// DefaultIterationFloor is the minimum iteration budget regardless of plan
// size.
const DefaultIterationFloor = 10

// Action vocabulary of the execution loop.
const (
	ActionSearch               = "SEARCH"
	ActionGenerate             = "GENERATE"
	ActionAnalyze              = "ANALYZE"
	ActionRemember             = "REMEMBER"
	ActionBuildTemplate        = "BUILD_TEMPLATE"
	ActionGenerateSkills       = "GENERATE_SKILLS"
	ActionGenerateCapabilities = "GENERATE_CAPABILITIES"
	ActionFinalAnswer          = "FINAL_ANSWER"
)

const executorSystemPrompt = `You are the EXECUTOR and CONTENT CREATOR of the pipeline.

A plan exists. YOU must now CREATE THE ACTUAL CONTENT by executing each step.
- If the user asked for a COURSE, write actual lessons, modules and exercises
- If the user asked for ANALYSIS, write the actual analysis with data and insights
- If the user asked for a GUIDE, write actual step-by-step instructions
- DO NOT create another plan. CREATE THE REAL CONTENT.

## EXECUTION PATTERN
THOUGHT: [Which step you're working on and what content you'll create]
ACTION: GENERATE - [Describe the actual content to create for this step]
OBSERVATION: [You receive the generated content]

## AVAILABLE ACTIONS
- GENERATE: Create ACTUAL content (lessons, analysis, guides, etc.)
- SEARCH: Research information needed
- ANALYZE: Analyze a subject briefly
- REMEMBER: Store an important fact for later
- BUILD_TEMPLATE: Generate a complete domain template as JSON
- GENERATE_SKILLS: Generate the domain skill list
- GENERATE_CAPABILITIES: Generate unique domain capability keys
- FINAL_ANSWER: Compile all generated content into the final deliverable

## CRITICAL RULES
1. CREATE CONTENT, NOT PLANS
2. Be DETAILED and COMPREHENSIVE in your GENERATE actions
3. FINAL_ANSWER compiles everything into the user's requested format`

// Executor runs the bounded thought/action/observation loop that turns an
// approved plan into an artifact.
type Executor struct {
	llm            CompletionClient
	retriever      Retriever
	memory         MemoryWriter
	logger         *slog.Logger
	iterationFloor int
	capability     string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorRetriever wires the retrieval store for the SEARCH action.
func WithExecutorRetriever(r Retriever) ExecutorOption {
	return func(e *Executor) { e.retriever = r }
}

// WithExecutorMemory wires the memory store for the REMEMBER action.
func WithExecutorMemory(m MemoryWriter) ExecutorOption {
	return func(e *Executor) { e.memory = m }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithIterationFloor sets the minimum iteration budget.
func WithIterationFloor(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.iterationFloor = n
		}
	}
}

// NewExecutor creates an execution loop backed by the given LLM client.
func NewExecutor(client CompletionClient, opts ...ExecutorOption) *Executor {
	e := &Executor{
		llm:            client,
		logger:         slog.Default(),
		iterationFloor: DefaultIterationFloor,
		capability:     model.CapabilityForAgent(string(AgentExecutor)).String(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxIterations returns the iteration budget for a plan with stepCount
// steps: twice the step count plus three, never below the configured floor.
func (e *Executor) MaxIterations(stepCount int) int {
	if stepCount == 0 {
		stepCount = 3
	}
	if n := stepCount*2 + 3; n > e.iterationFloor {
		return n
	}
	return e.iterationFloor
}

// Run executes the loop for the context's plan and returns the final
// artifact. The loop always terminates within MaxIterations and always
// yields a non-empty artifact; errors are returned only when every fallback
// LLM call fails too.
func (e *Executor) Run(ctx context.Context, tc *Context, emit Emitter) (string, error) {
	emit.Emit(ctx, NewEvent(AgentExecutor, EventStatus, "Starting interactive reasoning loop..."))

	var steps []ReasoningStep
	if tc.Plan != nil {
		steps = tc.Plan.Steps
	}
	numSteps := len(steps)
	if numSteps == 0 {
		numSteps = 3
	}
	maxIterations := e.MaxIterations(len(steps))

	emit.Emit(ctx, NewEvent(AgentExecutor, EventThought,
		fmt.Sprintf("Task: %s\nFollowing plan with %d steps...", tc.Query, len(steps))))
	emit.Emit(ctx, NewEvent(AgentExecutor, EventStatus,
		fmt.Sprintf("Plan has %d steps, allowing up to %d iterations", numSteps, maxIterations)))

	taskContext := buildTaskContext(tc)

	var history []string
	var finalOutput string
	completedSteps := 0
	iteration := 0

	for iteration < maxIterations {
		iteration++
		tc.CurrentStepIndex = completedSteps

		emit.Emit(ctx, NewEvent(AgentExecutor, EventStatus,
			fmt.Sprintf("Iteration %d/%d (steps completed: %d/%d)", iteration, maxIterations, completedSteps, numSteps)))

		prompt := buildIterationPrompt(taskContext, history, completedSteps, numSteps)
		resp, err := e.llm.Complete(ctx, llm.Request{
			Capability: e.capability,
			Messages: []llm.Message{
				{Role: "system", Content: executorSystemPrompt},
				{Role: "user", Content: prompt},
			},
			Temperature: llm.Temp(0.7),
		})
		if err != nil {
			return "", fmt.Errorf("execution call failed at iteration %d: %w", iteration, err)
		}
		response := resp.Content

		thought, action, actionInput := parseThoughtAction(response)

		if thought != "" {
			emit.Emit(ctx, NewEvent(AgentExecutor, EventThought, thought))
			history = append(history, "THOUGHT: "+thought)
		}

		if strings.EqualFold(action, ActionFinalAnswer) {
			finalOutput = actionInput
			if finalOutput == "" {
				finalOutput = response
			}
			emit.Emit(ctx, NewEvent(AgentExecutor, EventAction, "FINAL_ANSWER reached").
				WithPayload(ActionPayload{Iteration: iteration, Action: ActionFinalAnswer}))
			e.emitArtifactChunks(ctx, emit, finalOutput)
			break
		}

		if action != "" {
			emit.Emit(ctx, NewEvent(AgentExecutor, EventAction,
				fmt.Sprintf("%s - %s", strings.ToUpper(action), truncate(actionInput, 100))).
				WithPayload(ActionPayload{Iteration: iteration, Action: strings.ToUpper(action), Input: actionInput}))
			history = append(history, fmt.Sprintf("ACTION: %s - %s", action, actionInput))

			observation := e.executeAction(ctx, action, actionInput, tc, emit)

			if strings.EqualFold(action, ActionGenerate) {
				completedSteps++
				emit.Emit(ctx, NewEvent(AgentExecutor, EventStatus,
					fmt.Sprintf("Step %d/%d completed", completedSteps, numSteps)))
			}

			emit.Emit(ctx, NewEvent(AgentExecutor, EventObservation, truncate(observation, 300)).
				WithPayload(ObservationPayload{Action: strings.ToUpper(action), Result: observation}))
			history = append(history, "OBSERVATION: "+observation)
		} else {
			// No parseable action; keep the text as loose progress.
			history = append(history, "RESPONSE: "+truncate(response, 500))
			finalOutput += response
		}
	}

	if finalOutput == "" {
		emit.Emit(ctx, NewEvent(AgentExecutor, EventStatus, "No explicit FINAL_ANSWER, using fallback compilation..."))

		if len(tc.State.GeneratedContent) > 0 {
			finalOutput = strings.Join(tc.State.GeneratedContent, "\n\n")
			e.emitArtifactChunks(ctx, emit, finalOutput)
		} else {
			emit.Emit(ctx, NewEvent(AgentExecutor, EventStatus, "Generating direct response..."))
			direct, streamed, err := e.directAnswer(ctx, tc, emit)
			if err != nil {
				return "", fmt.Errorf("fallback generation failed: %w", err)
			}
			finalOutput = direct
			if !streamed {
				e.emitArtifactChunks(ctx, emit, finalOutput)
			}
		}
	}

	tc.Artifact = finalOutput
	tc.State.ExecutorOutput = finalOutput
	tc.State.Iterations = iteration

	e.remember(ctx, tc, emit,
		fmt.Sprintf("Execution completed in %d iterations", iteration),
		"execution_result", []string{"executor", "reasoning", tc.EffectiveDomain()})

	emit.Emit(ctx, NewEvent(AgentExecutor, EventComplete,
		fmt.Sprintf("Execution complete after %d iterations (%d chars)", iteration, len(finalOutput))).
		WithPayload(CompletePayload{
			Iterations:   iteration,
			OutputLength: len(finalOutput),
			Domain:       tc.EffectiveDomain(),
			Skills:       tc.State.GeneratedSkills,
		}))

	return finalOutput, nil
}

var (
	thoughtPattern      = regexp.MustCompile(`(?is)THOUGHT:\s*(.+?)(?:ACTION:|$)`)
	actionStrictPattern = regexp.MustCompile(`(?is)ACTION:\s*(\w+)\s*[-:]\s*(.+?)(?:THOUGHT:|OBSERVATION:|$)`)
	actionLoosePattern  = regexp.MustCompile(`(?i)ACTION:\s*(\w+)`)
)

// parseThoughtAction extracts the thought, action name and action input from
// a loop response. The strict pattern requires a separator after the action
// name; the loose variant salvages just the name.
func parseThoughtAction(response string) (thought, action, actionInput string) {
	if m := thoughtPattern.FindStringSubmatch(response); m != nil {
		thought = strings.TrimSpace(m[1])
	}

	if m := actionStrictPattern.FindStringSubmatch(response); m != nil {
		action = strings.TrimSpace(m[1])
		actionInput = strings.TrimSpace(m[2])
		return thought, action, actionInput
	}

	if m := actionLoosePattern.FindStringSubmatchIndex(response); m != nil {
		action = response[m[2]:m[3]]
		rest := response[m[1]:]
		if i := strings.Index(strings.ToUpper(rest), "THOUGHT"); i >= 0 {
			rest = rest[:i]
		}
		if i := strings.Index(strings.ToUpper(rest), "OBSERVATION"); i >= 0 {
			rest = rest[:i]
		}
		actionInput = strings.Trim(rest, " -:\n")
	}
	return thought, action, actionInput
}

// buildTaskContext renders the plan into the framing section of every loop
// prompt.
func buildTaskContext(tc *Context) string {
	var b strings.Builder

	var plan ReasoningPlan
	if tc.Plan != nil {
		plan = *tc.Plan
	}

	fmt.Fprintf(&b, "## TASK\nDomain: %s\nRequest: %s\n\n", tc.EffectiveDomain(), tc.Query)
	understanding := plan.TaskUnderstanding
	if understanding == "" {
		understanding = tc.Query
	}
	approach := plan.Approach
	if approach == "" {
		approach = "Step-by-step reasoning"
	}
	fmt.Fprintf(&b, "## PLAN\nUnderstanding: %s\nApproach: %s\n\n", understanding, approach)

	b.WriteString("## STEPS TO FOLLOW\n")
	if len(plan.Steps) == 0 {
		b.WriteString("- Complete the requested task step by step\n")
	}
	for _, step := range plan.Steps {
		fmt.Fprintf(&b, "- Step %d: %s\n  Expected output: %s\n", step.StepNumber, step.Title, step.ExpectedOutput)
	}

	constraints := plan.Constraints
	if len(constraints) == 0 {
		constraints = []string{"Stay accurate", "Be thorough"}
	}
	b.WriteString("\n## CONSTRAINTS\n")
	for _, c := range constraints {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	criteria := plan.SuccessCriteria
	if len(criteria) == 0 {
		criteria = []string{"Task fully completed"}
	}
	b.WriteString("\n## SUCCESS CRITERIA\n")
	for _, c := range criteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	if isTemplateTask(tc.Query) {
		skills := plan.DomainSkills
		if len(skills) == 0 {
			skills = []string{LeadSkill}
		}
		templateID := plan.TemplateID
		if templateID == "" {
			templateID = uuid.NewString()
		}
		b.WriteString("\n## TEMPLATE GENERATION REQUIREMENTS\n### Skills (must include in template):\n")
		for _, s := range skills {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("### Capability Keys (must generate unique keys):\n")
		for _, c := range plan.DomainCapabilities {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		fmt.Fprintf(&b, "\n## TEMPLATE SCHEMA\nYour final output must follow this structure:\n{\n  %q: {\n    \"id\": %q,\n    \"domain\": %q,\n    \"skills\": [%q, ...],\n    \"capabilities\": {...unique domain-specific keys...}\n  }\n}\n",
			tc.EffectiveDomain(), templateID, tc.EffectiveDomain(), LeadSkill)
	} else {
		b.WriteString(contentGuidance(tc.Query))
	}
	return b.String()
}

var templateKeywords = []string{
	"template", "json template", "domain template", "generate template",
	"create template", "build template", "schema", "json schema",
}

func isTemplateTask(query string) bool {
	return containsAny(strings.ToLower(query), templateKeywords)
}

func contentGuidance(query string) string {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, []string{"course", "curriculum", "lesson", "module", "training"}):
		return `
## YOUR TASK: CREATE ACTUAL COURSE CONTENT
You are NOT planning. For each step, use GENERATE to write full lesson
content, code examples with explanations if technical, practice exercises
with solutions, and key takeaways. FINAL_ANSWER must contain the complete
course with all lessons written out.
`
	case containsAny(q, []string{"analysis", "analyze", "research", "study"}):
		return `
## YOUR TASK: CREATE ACTUAL ANALYSIS
You are NOT planning. For each step, use GENERATE to write actual findings,
data interpretations, specific insights with supporting evidence and concrete
recommendations. FINAL_ANSWER must contain the complete analysis document.
`
	default:
		return `
## YOUR TASK: CREATE ACTUAL CONTENT
You are the EXECUTOR. For each step, use GENERATE to create real, usable
content: detailed explanations, examples, actionable recommendations,
professional formatting. Do NOT create another plan.
`
	}
}

// buildIterationPrompt appends the rolling history window and a progress
// banner to the task framing.
func buildIterationPrompt(taskContext string, history []string, completedSteps, totalSteps int) string {
	window := history
	if len(window) > 8 {
		window = window[len(window)-8:]
	}
	historyText := "No previous steps yet."
	if len(window) > 0 {
		historyText = strings.Join(window, "\n")
	}

	remaining := totalSteps - completedSteps
	var progress string
	if remaining > 0 {
		progress = fmt.Sprintf(`## PROGRESS
Steps completed: %d/%d
NEXT: Execute Step %d

REMINDER: You are CREATING CONTENT, not planning.
Use ACTION: GENERATE to write the ACTUAL content for Step %d.
Be detailed and comprehensive in your generation.`, completedSteps, totalSteps, completedSteps+1, completedSteps+1)
	} else {
		progress = fmt.Sprintf(`## PROGRESS
All %d steps completed!

NOW: Use ACTION: FINAL_ANSWER to compile ALL your generated content into the
final deliverable. Include ALL the content you created and format it
professionally with headings and sections.`, totalSteps)
	}

	return fmt.Sprintf("%s\n## EXECUTION HISTORY\n%s\n\n%s\n\n## YOUR TURN (THOUGHT then ACTION):", taskContext, historyText, progress)
}

// executeAction dispatches one action and returns its observation. Action
// failures become observations, never errors; the loop must keep going.
func (e *Executor) executeAction(ctx context.Context, action, input string, tc *Context, emit Emitter) string {
	switch strings.ToUpper(action) {
	case ActionSearch:
		return e.actionSearch(ctx, input, tc, emit)
	case ActionGenerate:
		return e.actionGenerate(ctx, input, tc, emit)
	case ActionAnalyze:
		return e.actionAnalyze(ctx, input)
	case ActionRemember:
		return e.actionRemember(ctx, input, tc, emit)
	case ActionBuildTemplate:
		return e.actionBuildTemplate(ctx, input, tc)
	case ActionGenerateSkills:
		return e.actionGenerateSkills(ctx, input, tc)
	case ActionGenerateCapabilities:
		return e.actionGenerateCapabilities(ctx, input, tc)
	default:
		return fmt.Sprintf("Unknown action '%s'. Available: SEARCH, GENERATE, ANALYZE, REMEMBER, BUILD_TEMPLATE, GENERATE_SKILLS, GENERATE_CAPABILITIES, FINAL_ANSWER", action)
	}
}

func (e *Executor) actionSearch(ctx context.Context, query string, tc *Context, emit Emitter) string {
	if e.retriever == nil {
		return "No relevant results found."
	}
	results, err := e.retriever.Search(ctx, query, tc.EffectiveDomain(), 3)
	if err != nil {
		return "Search error: " + truncate(err.Error(), 100)
	}
	if len(results) == 0 {
		return "No relevant results found."
	}

	sources := make([]string, 0, len(results))
	var b strings.Builder
	b.WriteString("Search results:\n")
	for _, r := range results {
		sources = append(sources, r.Source)
		fmt.Fprintf(&b, "- %s...\n", truncate(r.Content, 200))
	}
	emit.Emit(ctx, NewEvent(AgentExecutor, EventRetrievalResult,
		fmt.Sprintf("Found %d relevant sources", len(results))).
		WithPayload(RetrievalPayload{Query: query, Sources: sources}))
	return b.String()
}

func (e *Executor) actionGenerate(ctx context.Context, instruction string, tc *Context, emit Emitter) string {
	prompt := generatePrompt(instruction, tc)
	resp, _, err := e.generate(ctx, llm.Request{
		Capability:  e.capability,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: llm.Temp(0.7),
		MaxTokens:   4000,
	}, emit)
	if err != nil {
		return "Generation error: " + truncate(err.Error(), 100)
	}

	tc.State.GeneratedContent = append(tc.State.GeneratedContent, resp.Content)
	return fmt.Sprintf("Generated content (%d chars):\n%s...", len(resp.Content), truncate(resp.Content, 800))
}

// generatePrompt tailors the GENERATE instruction to the content type hinted
// at by the original query. The classification is a best-effort heuristic
// only; the generic branch works for everything.
func generatePrompt(instruction string, tc *Context) string {
	q := strings.ToLower(tc.Query)
	switch {
	case containsAny(q, []string{"course", "curriculum", "lesson", "module", "training", "tutorial"}):
		return fmt.Sprintf(`CREATE ACTUAL COURSE CONTENT for: %s

Original Request: %s

You are now WRITING THE ACTUAL CONTENT, not planning. Generate detailed
lesson content with explanations, code examples if technical, practice
exercises, and key learning points. Do NOT write another plan or outline.

Generate the complete content now:`, instruction, tc.Query)
	case containsAny(q, []string{"analysis", "analyze", "compare", "evaluate", "assess"}):
		return fmt.Sprintf(`WRITE ACTUAL ANALYSIS for: %s

Original Request: %s

Produce a comprehensive analysis including data and findings, insights and
interpretations, recommendations, and supporting evidence.

Write the complete analysis:`, instruction, tc.Query)
	case containsAny(q, []string{"guide", "how to", "steps", "process", "procedure"}):
		return fmt.Sprintf(`WRITE ACTUAL GUIDE CONTENT for: %s

Original Request: %s

Create detailed guide content with step-by-step instructions, examples and
explanations, tips and best practices, and common pitfalls to avoid.

Write the complete guide:`, instruction, tc.Query)
	default:
		return fmt.Sprintf(`CREATE ACTUAL CONTENT for: %s

Original Request: %s
Domain: %s

IMPORTANT: You are CREATING the final content, not planning.
Write comprehensive, detailed content that directly addresses the request.
Include examples, explanations, and actionable information.

Generate the complete content:`, instruction, tc.Query, tc.EffectiveDomain())
	}
}

func (e *Executor) actionAnalyze(ctx context.Context, subject string) string {
	resp, err := e.llm.Complete(ctx, llm.Request{
		Capability: string(model.CapabilityFast),
		Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf(`Analyze: %s

Provide a brief analysis considering key points, patterns or trends, and
important insights.

Analysis:`, subject)}},
		Temperature: llm.Temp(0.5),
	})
	if err != nil {
		return "Analysis error: " + truncate(err.Error(), 100)
	}
	return "Analysis:\n" + truncate(resp.Content, 400) + "..."
}

func (e *Executor) actionRemember(ctx context.Context, content string, tc *Context, emit Emitter) string {
	if e.memory == nil {
		return "Memory unavailable."
	}
	if err := e.memory.Remember(ctx, tc.SessionID, content, "loop_memory", []string{"executor", "remembered"}); err != nil {
		return "Memory error: " + truncate(err.Error(), 100)
	}
	emit.Emit(ctx, NewEvent(AgentExecutor, EventMemoryUpdate, "Stored fact in session memory").
		WithPayload(MemoryPayload{Kind: "loop_memory", Tags: []string{"executor", "remembered"}}))
	return "Stored in memory: " + truncate(content, 100) + "..."
}

func (e *Executor) actionBuildTemplate(ctx context.Context, instruction string, tc *Context) string {
	var plan ReasoningPlan
	if tc.Plan != nil {
		plan = *tc.Plan
	}
	skills := ensureLeadSkill(plan.DomainSkills)
	templateID := plan.TemplateID
	if templateID == "" {
		templateID = uuid.NewString()
	}

	prompt := fmt.Sprintf(`Build a complete domain template for: %s

Domain: %s
Template ID: %s
Required Skills: %s
Capability Keys: %s

Generate a complete template JSON with:
1. All metadata (created_at, generated_by, session_id)
2. Skills array (MUST include %q)
3. Capabilities object with unique domain-specific keys
4. Templates object with instructional content

Output ONLY valid JSON:`, instruction, tc.EffectiveDomain(), templateID, jsonList(skills), jsonList(plan.DomainCapabilities), LeadSkill)

	resp, err := e.llm.Complete(ctx, llm.Request{
		Capability:  e.capability,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: llm.Temp(0.7),
	})
	if err != nil {
		return "Template error: " + truncate(err.Error(), 100)
	}

	if raw := llm.ExtractJSON(resp.Content); raw != "" {
		var template map[string]any
		if err := json.Unmarshal([]byte(raw), &template); err == nil {
			tc.State.DomainTemplate = template
			tc.State.TemplateParsed = true
			return "Template built successfully:\n" + truncate(raw, 1000) + "..."
		}
	}

	tc.State.TemplateParsed = false
	tc.State.DomainTemplateRaw = resp.Content
	tc.State.GeneratedContent = append(tc.State.GeneratedContent, resp.Content)
	return "Template generated (raw):\n" + truncate(resp.Content, 500) + "..."
}

func (e *Executor) actionGenerateSkills(ctx context.Context, instruction string, tc *Context) string {
	var base []string
	if tc.Plan != nil {
		base = tc.Plan.DomainSkills
	}

	prompt := fmt.Sprintf(`Generate a comprehensive skills list for %s domain.

Instruction: %s

MANDATORY: The first skill MUST be %q

Base skills to include: %s

Generate 5-8 domain-specific skills. Output as JSON array:`, tc.EffectiveDomain(), instruction, LeadSkill, jsonList(base))

	resp, err := e.llm.Complete(ctx, llm.Request{
		Capability:  e.capability,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: llm.Temp(0.7),
	})
	if err != nil {
		return "Skills error: " + truncate(err.Error(), 100)
	}

	if raw := llm.ExtractJSONArray(resp.Content); raw != "" {
		var skills []string
		if err := json.Unmarshal([]byte(raw), &skills); err == nil {
			skills = ensureLeadSkill(skills)
			tc.State.GeneratedSkills = skills
			return "Skills generated:\n" + jsonList(skills)
		}
	}

	skills := ensureLeadSkill(base)
	tc.State.GeneratedSkills = skills
	return "Skills (using base):\n" + jsonList(skills)
}

func (e *Executor) actionGenerateCapabilities(ctx context.Context, instruction string, tc *Context) string {
	var base []string
	if tc.Plan != nil {
		base = tc.Plan.DomainCapabilities
	}

	prompt := fmt.Sprintf(`Generate unique capability keys for %s domain.

Instruction: %s

Base capability keys: %s

Requirements:
1. Keys must be unique to this domain (no generic keys)
2. Keys should use snake_case
3. Each key should have a meaningful value describing the capability
4. Generate 4-6 capability key-value pairs

Output as JSON object with capability keys and descriptions:`, tc.EffectiveDomain(), instruction, jsonList(base))

	resp, err := e.llm.Complete(ctx, llm.Request{
		Capability:  e.capability,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: llm.Temp(0.7),
	})
	if err != nil {
		return "Capabilities error: " + truncate(err.Error(), 100)
	}

	if raw := llm.ExtractJSON(resp.Content); raw != "" {
		var capabilities map[string]string
		if err := json.Unmarshal([]byte(raw), &capabilities); err == nil {
			tc.State.GeneratedCapabilities = capabilities
			return "Capabilities generated:\n" + raw
		}
	}

	capabilities := make(map[string]string, len(base))
	for _, c := range base {
		capabilities[c] = fmt.Sprintf("Domain-specific %s for %s", c, tc.EffectiveDomain())
	}
	tc.State.GeneratedCapabilities = capabilities
	return "Capabilities (using base):\n" + jsonList(base)
}

// generate issues one content-producing LLM call, streaming chunk events
// live when the client supports it. The second return reports whether any
// chunks already reached the emitter.
func (e *Executor) generate(ctx context.Context, req llm.Request, emit Emitter) (*llm.Response, bool, error) {
	streamer, ok := e.llm.(StreamingClient)
	if !ok || emit == nil {
		resp, err := e.llm.Complete(ctx, req)
		return resp, false, err
	}

	index := 0
	resp, err := streamer.Stream(ctx, req, func(chunk string) {
		emit.Emit(ctx, NewEvent(AgentExecutor, EventArtifactChunk,
			fmt.Sprintf("Streaming chunk %d", index+1)).
			WithPayload(ArtifactChunkPayload{Index: index, Content: chunk}))
		index++
	})
	if err != nil {
		return nil, index > 0, err
	}
	return resp, index > 0, nil
}

// directAnswer is the last fallback: one LLM call answering the request
// directly. The second return reports whether the answer was already
// streamed as chunk events.
func (e *Executor) directAnswer(ctx context.Context, tc *Context, emit Emitter) (string, bool, error) {
	var plan ReasoningPlan
	if tc.Plan != nil {
		plan = *tc.Plan
	}
	understanding := plan.TaskUnderstanding
	if understanding == "" {
		understanding = "Address the user request directly"
	}
	approach := plan.Approach
	if approach == "" {
		approach = "Provide helpful, accurate information"
	}

	prompt := fmt.Sprintf(`Generate a comprehensive response for this request.

## USER REQUEST
%s

## PLAN UNDERSTANDING
%s

## APPROACH
%s

## CONSTRAINTS
- Be accurate and helpful
- Use clear formatting with headings and bullet points
- Address all aspects of the request
- Provide actionable insights

Generate your response:`, tc.Query, understanding, approach)

	resp, streamed, err := e.generate(ctx, llm.Request{
		Capability:  e.capability,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: llm.Temp(0.7),
	}, emit)
	if err != nil {
		return "", streamed, err
	}
	return resp.Content, streamed, nil
}

// artifactChunkSize bounds the size of artifact_chunk event payloads.
const artifactChunkSize = 4096

// emitArtifactChunks streams the artifact to clients in fixed-size chunks.
func (e *Executor) emitArtifactChunks(ctx context.Context, emit Emitter, artifact string) {
	if artifact == "" {
		return
	}
	total := (len(artifact) + artifactChunkSize - 1) / artifactChunkSize
	for i := 0; i < total; i++ {
		start := i * artifactChunkSize
		end := start + artifactChunkSize
		if end > len(artifact) {
			end = len(artifact)
		}
		emit.Emit(ctx, NewEvent(AgentExecutor, EventArtifactChunk,
			fmt.Sprintf("Artifact chunk %d/%d", i+1, total)).
			WithPayload(ArtifactChunkPayload{Index: i, Total: total, Content: artifact[start:end]}))
	}
}

func (e *Executor) remember(ctx context.Context, tc *Context, emit Emitter, content, kind string, tags []string) {
	if e.memory == nil {
		return
	}
	if err := e.memory.Remember(ctx, tc.SessionID, content, kind, tags); err != nil {
		e.logger.Warn("Failed to store execution memory", "error", err)
		return
	}
	emit.Emit(ctx, NewEvent(AgentExecutor, EventMemoryUpdate, "Saved reasoning results to memory").
		WithPayload(MemoryPayload{Kind: kind, Tags: tags}))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
