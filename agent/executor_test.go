package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/thinker/llm"
	"github.com/c360studio/thinker/llm/testutil"
	"github.com/c360studio/thinker/model"
)

// eventRecorder captures emitted events for assertions.
type eventRecorder struct {
	events []*Event
}

func (r *eventRecorder) Emit(_ context.Context, ev *Event) {
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *eventRecorder) find(kind EventKind) *Event {
	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev
		}
	}
	return nil
}

func responses(contents ...string) []*llm.Response {
	out := make([]*llm.Response, len(contents))
	for i, c := range contents {
		out[i] = &llm.Response{Content: c, Model: "test-model"}
	}
	return out
}

func TestParseThoughtAction(t *testing.T) {
	tests := []struct {
		name     string
		response string
		thought  string
		action   string
		input    string
	}{
		{
			name:     "strict pattern",
			response: "THOUGHT: working on step 1\nACTION: GENERATE - write the intro lesson",
			thought:  "working on step 1",
			action:   "GENERATE",
			input:    "write the intro lesson",
		},
		{
			name:     "strict stops at next marker",
			response: "ACTION: SEARCH - find best practices\nTHOUGHT: then I will write",
			action:   "SEARCH",
			input:    "find best practices",
		},
		{
			name:     "loose fallback without separator",
			response: "ACTION: FINAL_ANSWER\nHere is the complete deliverable",
			action:   "FINAL_ANSWER",
			input:    "Here is the complete deliverable",
		},
		{
			name:     "no action at all",
			response: "I believe the content should cover three topics.",
		},
		{
			name:     "thought only",
			response: "THOUGHT: still considering the approach",
			thought:  "still considering the approach",
		},
		{
			name:     "lowercase markers",
			response: "thought: step two\naction: generate - the body section",
			thought:  "step two",
			action:   "generate",
			input:    "the body section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thought, action, input := parseThoughtAction(tt.response)
			assert.Equal(t, tt.thought, thought)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.input, input)
		})
	}
}

func TestMaxIterations(t *testing.T) {
	e := NewExecutor(&testutil.MockLLMClient{})

	tests := []struct {
		steps    int
		expected int
	}{
		{0, 10},  // No steps assumes 3, 2*3+3=9 < floor 10
		{3, 10},  // 9 < floor
		{4, 11},  // 2*4+3
		{10, 23}, // 2*10+3
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, e.MaxIterations(tt.steps), "steps=%d", tt.steps)
	}
}

func TestRunFinalAnswer(t *testing.T) {
	// Call order: iteration 1 (GENERATE), the GENERATE action's own call,
	// iteration 2 (FINAL_ANSWER).
	mock := &testutil.MockLLMClient{Responses: responses(
		"THOUGHT: creating step 1 content\nACTION: GENERATE - write the introduction",
		"# Introduction\nGenerated lesson body.",
		"THOUGHT: all steps done\nACTION: FINAL_ANSWER - # Course\nFull compiled content",
	)}
	e := NewExecutor(mock)
	rec := &eventRecorder{}

	tc := NewContext("s1", "education", "Create a short course")
	tc.Plan = &ReasoningPlan{
		Title: "Course Plan",
		Steps: []ReasoningStep{{StepNumber: 1, Title: "Introduction", ExpectedOutput: "Intro lesson"}},
	}

	artifact, err := e.Run(context.Background(), tc, rec)
	require.NoError(t, err)

	assert.Equal(t, "# Course\nFull compiled content", artifact)
	assert.Equal(t, artifact, tc.Artifact)
	assert.Equal(t, 2, tc.State.Iterations)
	require.Len(t, tc.State.GeneratedContent, 1)
	assert.Contains(t, tc.State.GeneratedContent[0], "Generated lesson body")

	// The artifact is streamed as chunks and the phase completes.
	assert.NotNil(t, rec.find(EventArtifactChunk))
	complete := rec.find(EventComplete)
	require.NotNil(t, complete)
	assert.Equal(t, AgentExecutor, complete.Agent)
}

func TestRunTerminatesWithoutFinalAnswer(t *testing.T) {
	// Every loop response is empty: no thought, no action, nothing to
	// accumulate. The loop must stop at the iteration ceiling and the direct
	// fallback must still produce an artifact.
	script := make([]string, 0, 8)
	for i := 0; i < 7; i++ {
		script = append(script, "")
	}
	script = append(script, "Direct fallback answer.")
	mock := &testutil.MockLLMClient{Responses: responses(script...)}
	e := NewExecutor(mock, WithIterationFloor(2))
	rec := &eventRecorder{}

	tc := NewContext("s1", "default", "Do something")
	tc.Plan = &ReasoningPlan{Steps: []ReasoningStep{
		{StepNumber: 1, Title: "a"},
		{StepNumber: 2, Title: "b"},
	}}

	artifact, err := e.Run(context.Background(), tc, rec)
	require.NoError(t, err)

	// 2 steps: max iterations = 2*2+3 = 7, plus one fallback call.
	assert.Equal(t, 8, mock.CallCount())
	assert.Equal(t, 7, tc.State.Iterations)
	assert.Equal(t, "Direct fallback answer.", artifact)
}

func TestRunCompilesGeneratedContentFallback(t *testing.T) {
	// GENERATE actions fire but FINAL_ANSWER never arrives; the fallback
	// concatenates the generated fragments.
	mock := &testutil.MockLLMClient{Responses: responses(
		"THOUGHT: step 1\nACTION: GENERATE - part one",
		"Part one body",
		"THOUGHT: step 2\nACTION: GENERATE - part two",
		"Part two body",
		"", "", "",
	)}
	e := NewExecutor(mock, WithIterationFloor(2))
	rec := &eventRecorder{}

	tc := NewContext("s1", "default", "Write both parts")
	tc.Plan = &ReasoningPlan{Steps: []ReasoningStep{
		{StepNumber: 1, Title: "one"},
		{StepNumber: 2, Title: "two"},
	}}

	artifact, err := e.Run(context.Background(), tc, rec)
	require.NoError(t, err)

	assert.Equal(t, "Part one body\n\nPart two body", artifact)
	// 7 loop iterations + 2 generate calls, no direct-answer call.
	assert.Equal(t, 9, mock.CallCount())
}

func TestRunUnknownAction(t *testing.T) {
	mock := &testutil.MockLLMClient{Responses: responses(
		"THOUGHT: trying something\nACTION: FLY - to the moon",
		"THOUGHT: done\nACTION: FINAL_ANSWER - result text",
	)}
	e := NewExecutor(mock)
	rec := &eventRecorder{}

	tc := NewContext("s1", "default", "Task")

	artifact, err := e.Run(context.Background(), tc, rec)
	require.NoError(t, err)
	assert.Equal(t, "result text", artifact)

	obs := rec.find(EventObservation)
	require.NotNil(t, obs)
	assert.Contains(t, obs.Content, "Unknown action 'FLY'")
	assert.Contains(t, obs.Content, "BUILD_TEMPLATE")
}

func TestRunGenerateTracksStepCompletion(t *testing.T) {
	mock := &testutil.MockLLMClient{Responses: responses(
		"ACTION: GENERATE - first",
		"body one",
		"ACTION: FINAL_ANSWER - done",
	)}
	e := NewExecutor(mock)
	rec := &eventRecorder{}

	tc := NewContext("s1", "default", "Task")
	tc.Plan = &ReasoningPlan{Steps: []ReasoningStep{{StepNumber: 1, Title: "only"}}}

	_, err := e.Run(context.Background(), tc, rec)
	require.NoError(t, err)

	found := false
	for _, ev := range rec.events {
		if ev.Kind == EventStatus && strings.Contains(ev.Content, "Step 1/1 completed") {
			found = true
		}
	}
	assert.True(t, found, "expected step completion status event, got %v", rec.kinds())
}

func TestBuildIterationPromptWindowsHistory(t *testing.T) {
	history := make([]string, 12)
	for i := range history {
		history[i] = strings.Repeat("x", 3)
	}
	history[3] = "OLD ENTRY"
	history[11] = "NEW ENTRY"

	prompt := buildIterationPrompt("CTX", history, 1, 3)

	assert.NotContains(t, prompt, "OLD ENTRY")
	assert.Contains(t, prompt, "NEW ENTRY")
	assert.Contains(t, prompt, "Steps completed: 1/3")
	assert.Contains(t, prompt, "Execute Step 2")
}

func TestBuildIterationPromptAllStepsDone(t *testing.T) {
	prompt := buildIterationPrompt("CTX", nil, 3, 3)
	assert.Contains(t, prompt, "All 3 steps completed")
	assert.Contains(t, prompt, "FINAL_ANSWER")
	assert.Contains(t, prompt, "No previous steps yet.")
}

func TestBuildTaskContextTemplateSchema(t *testing.T) {
	tc := NewContext("s1", "default", "Generate a domain template for healthcare")
	tc.State.DetectedDomain = "healthcare"
	tc.Plan = &ReasoningPlan{
		TemplateID:         "abc-123",
		DomainSkills:       []string{LeadSkill, "Clinical Trainer"},
		DomainCapabilities: []string{"clinical_protocols"},
	}

	got := buildTaskContext(tc)
	assert.Contains(t, got, "TEMPLATE GENERATION REQUIREMENTS")
	assert.Contains(t, got, "abc-123")
	assert.Contains(t, got, "clinical_protocols")
}

func TestBuildTaskContextContentGuidance(t *testing.T) {
	tc := NewContext("s1", "default", "Create a course on Go")
	got := buildTaskContext(tc)
	assert.Contains(t, got, "COURSE CONTENT")
	assert.NotContains(t, got, "TEMPLATE GENERATION REQUIREMENTS")
}

func TestRunStreamsGeneratedContent(t *testing.T) {
	// A streaming-capable client delivers GENERATE output incrementally;
	// each increment becomes a chunk event with no total yet.
	mock := &testutil.MockLLMClient{
		StreamChunkSize: 5,
		Responses: responses(
			"THOUGHT: step 1\nACTION: GENERATE - write it",
			"alpha beta gamma",
			"ACTION: FINAL_ANSWER - done",
		),
	}
	e := NewExecutor(mock)
	rec := &eventRecorder{}

	tc := NewContext("s1", "default", "Task")
	tc.Plan = &ReasoningPlan{Steps: []ReasoningStep{{StepNumber: 1, Title: "only"}}}

	_, err := e.Run(context.Background(), tc, rec)
	require.NoError(t, err)

	var streamed strings.Builder
	live := 0
	for _, ev := range rec.events {
		if ev.Kind != EventArtifactChunk {
			continue
		}
		payload, ok := ev.Payload.(ArtifactChunkPayload)
		require.True(t, ok)
		if payload.Total == 0 {
			streamed.WriteString(payload.Content)
			live++
		}
	}
	assert.Equal(t, "alpha beta gamma", streamed.String())
	assert.GreaterOrEqual(t, live, 2)
}

func TestRunUsesExecutorCapability(t *testing.T) {
	mock := &testutil.MockLLMClient{Responses: responses(
		"ACTION: FINAL_ANSWER - result text",
	)}
	e := NewExecutor(mock)

	tc := NewContext("s1", "default", "Task")
	_, err := e.Run(context.Background(), tc, &eventRecorder{})
	require.NoError(t, err)

	want := model.CapabilityForAgent(string(AgentExecutor)).String()
	assert.Equal(t, want, mock.LastRequest().Capability)
}
