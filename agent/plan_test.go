package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	response := "Here is the plan:\n```json\n" + `{
  "title": "Python Basics Course",
  "detected_domain": "education",
  "task_understanding": "Create an introductory Python course",
  "approach": "Progressive lessons",
  "domain_skills": ["Curriculum Designer"],
  "domain_capabilities": ["learning_objectives", "assessment_criteria"],
  "steps": [
    {"step_number": 1, "title": "Outline", "description": "Outline the course", "expected_output": "Course outline", "estimated_effort": "30min", "priority": "critical"},
    {"title": "Write lessons", "description": "Write the lessons", "expected_output": "Lesson content"}
  ],
  "constraints": ["Keep it beginner friendly"],
  "success_criteria": ["Course is complete"],
  "estimated_complexity": "moderate",
  "clarification_questions": [
    {"id": "q1", "question": "Include exercises?", "type": "boolean", "default": "yes", "priority": "low"},
    {"question": "Target length?", "type": "text", "priority": "high"}
  ]
}` + "\n```"

	plan, ok := ParsePlan(response, "default")
	require.True(t, ok)

	assert.Equal(t, "Python Basics Course", plan.Title)
	assert.Equal(t, "education", plan.Domain)
	require.Len(t, plan.Steps, 2)

	// Missing step fields get defaults.
	assert.Equal(t, 2, plan.Steps[1].StepNumber)
	assert.Equal(t, Effort15Min, plan.Steps[1].EstimatedEffort)
	assert.Equal(t, PriorityImportant, plan.Steps[1].Priority)

	// Questions are priority-sorted: high before low.
	require.Len(t, plan.ClarificationQuestions, 2)
	assert.Equal(t, "high", plan.ClarificationQuestions[0].Priority)
	assert.Equal(t, "q2", plan.ClarificationQuestions[0].ID)
	assert.Equal(t, "boolean", plan.ClarificationQuestions[1].Type)
}

func TestParsePlanCapsQuestionsAtFive(t *testing.T) {
	response := `{
  "title": "T",
  "steps": [{"step_number": 1, "title": "s", "description": "d", "expected_output": "o"}],
  "clarification_questions": [
    {"id": "a", "question": "1", "priority": "low"},
    {"id": "b", "question": "2", "priority": "high"},
    {"id": "c", "question": "3", "priority": "medium"},
    {"id": "d", "question": "4", "priority": "high"},
    {"id": "e", "question": "5", "priority": "low"},
    {"id": "f", "question": "6", "priority": "medium"}
  ]
}`
	plan, ok := ParsePlan(response, "default")
	require.True(t, ok)
	require.Len(t, plan.ClarificationQuestions, 5)
	assert.Equal(t, "b", plan.ClarificationQuestions[0].ID)
	assert.Equal(t, "d", plan.ClarificationQuestions[1].ID)
}

func TestParsePlanFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no json", "I cannot produce a plan right now."},
		{"malformed", `{"title": "broken`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParsePlan(tt.input, "default")
			assert.False(t, ok)
		})
	}
}

func TestEnsureLeadSkill(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"missing", []string{"Medical Writer"}, []string{LeadSkill, "Medical Writer"}},
		{"already first", []string{LeadSkill, "Medical Writer"}, []string{LeadSkill, "Medical Writer"}},
		{"present later", []string{"Medical Writer", LeadSkill}, []string{LeadSkill, "Medical Writer"}},
		{"empty", nil, []string{LeadSkill}},
		{"duplicates", []string{"A", "A", LeadSkill}, []string{LeadSkill, "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &ReasoningPlan{DomainSkills: tt.input}
			plan.EnsureLeadSkill()
			assert.Equal(t, tt.expected, plan.DomainSkills)
		})
	}
}

func TestTotalEffort(t *testing.T) {
	steps := func(efforts ...string) []ReasoningStep {
		out := make([]ReasoningStep, len(efforts))
		for i, e := range efforts {
			out[i] = ReasoningStep{EstimatedEffort: e}
		}
		return out
	}

	tests := []struct {
		name     string
		steps    []ReasoningStep
		expected string
	}{
		{"under an hour", steps("5min", "15min", "30min"), "50min"},
		{"one to two hours", steps("30min", "30min"), "1-2 hours"},
		{"many hours", steps("2hr+", "1hr"), "3+ hours"},
		{"unknown counts as 15", steps("", "unknown"), "30min"},
		{"no steps", nil, "0min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TotalEffort(tt.steps))
		})
	}
}

func TestFallbackPlan(t *testing.T) {
	tc := NewContext("s1", "default", "Create a compliance template for banks")
	tc.State.DetectedDomain = "finance"
	tc.State.DomainSkills = DomainSkills("finance")
	tc.State.DomainCapabilities = DomainCapabilities("finance")

	plan := FallbackPlan(tc, "no structure here at all")

	assert.Equal(t, "Finance Template Generation", plan.Title)
	assert.Len(t, plan.Steps, 5)
	assert.Equal(t, LeadSkill, plan.DomainSkills[0])
	assert.NotEmpty(t, plan.TemplateID)
	assert.NotEmpty(t, plan.EstimatedTotalEffort)
	assert.Equal(t, "finance", plan.Domain)

	// Step numbers are sequential and dependencies point backwards.
	for i, step := range plan.Steps {
		assert.Equal(t, i+1, step.StepNumber)
		for _, dep := range step.Dependencies {
			assert.Less(t, dep, step.StepNumber)
		}
	}
}

func TestFallbackPlanSalvagesNumberedLines(t *testing.T) {
	tc := NewContext("s1", "default", "Write a guide")
	raw := "Here is what I would do:\n1. Research the topic\n2. Draft the outline\n3. Write the content\n"

	plan := FallbackPlan(tc, raw)

	require.Len(t, plan.Steps, 3)
	assert.Contains(t, plan.Steps[0].Description, "Research the topic")
	assert.Equal(t, 2, plan.Steps[1].StepNumber)
}

func TestFinalizeIdempotentTemplateID(t *testing.T) {
	plan := &ReasoningPlan{Title: "T", Steps: []ReasoningStep{{StepNumber: 1}}}
	plan.Finalize()
	id := plan.TemplateID
	plan.Finalize()
	assert.Equal(t, id, plan.TemplateID)
}
