package agent

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryPlan() *ReasoningPlan {
	return &ReasoningPlan{
		TemplateID:         "tmpl-1",
		Title:              "Course Plan",
		TaskUnderstanding:  "Build a course",
		Approach:           "Step by step",
		Domain:             "education",
		DomainSkills:       []string{LeadSkill, "Curriculum Designer"},
		DomainCapabilities: []string{"learning_objectives"},
		Steps: []ReasoningStep{
			{StepNumber: 1, Title: "Outline", Description: "d", ExpectedOutput: "o", EstimatedEffort: "30min", Priority: "critical"},
			{StepNumber: 2, Title: "Write", Description: "d", ExpectedOutput: "o", Dependencies: []int{1}},
			{StepNumber: 3, Title: "Review", Description: "d", ExpectedOutput: "o"},
		},
		Constraints:          []string{"Beginner friendly"},
		SuccessCriteria:      []string{"Complete course"},
		EstimatedComplexity:  "moderate",
		EstimatedTotalEffort: "1-2 hours",
	}
}

func TestMermaid(t *testing.T) {
	out := Mermaid(summaryPlan())

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `subgraph Plan["Course Plan"]`)
	assert.Contains(t, out, "UNDERSTAND --> STEP1")
	// Declared dependency replaces the sequential edge.
	assert.Contains(t, out, "STEP1 --> STEP2")
	// No dependency: link from the previous node.
	assert.Contains(t, out, "STEP2 --> STEP3")
	assert.Contains(t, out, `STEP3 --> OUTPUT["Final Output"]`)
}

func TestMermaidEscapesLabels(t *testing.T) {
	plan := &ReasoningPlan{
		Title: `A "quoted" [bracketed] title`,
		Steps: []ReasoningStep{{StepNumber: 1, Title: "Step\nwith newline"}},
	}
	out := Mermaid(plan)

	assert.Contains(t, out, "A 'quoted' (bracketed) title")
	assert.Contains(t, out, "Step with newline")
	assert.NotContains(t, out, `"quoted"`)
}

func TestMermaidTruncatesLongTitles(t *testing.T) {
	plan := &ReasoningPlan{
		Steps: []ReasoningStep{{StepNumber: 1, Title: strings.Repeat("a", 40)}},
	}
	out := Mermaid(plan)
	assert.Contains(t, out, strings.Repeat("a", 25)+"...")
}

func TestPlanSummary(t *testing.T) {
	out := PlanSummary(summaryPlan())

	assert.Contains(t, out, "# Reasoning Plan: Course Plan")
	assert.Contains(t, out, "**Domain:** education")
	assert.Contains(t, out, "**Template ID:** tmpl-1")
	// The lead skill is starred, others dashed.
	assert.Contains(t, out, "* "+LeadSkill)
	assert.Contains(t, out, "- Curriculum Designer")
	assert.Contains(t, out, "- `learning_objectives`")
	assert.Contains(t, out, "### Step 2: Write (depends on: 1)")
	assert.Contains(t, out, "**Effort:** 30min | **Priority:** critical")
	assert.Contains(t, out, "## Complexity: MODERATE")
	assert.Contains(t, out, "**Estimated total effort:** 1-2 hours")

	require.True(t, strings.Index(out, "## Constraints") < strings.Index(out, "## Success Criteria"))
}

func TestPlanSummaryOmitsEmptyLists(t *testing.T) {
	plan := summaryPlan()
	plan.Constraints = nil
	plan.SuccessCriteria = nil
	out := PlanSummary(plan)
	assert.NotContains(t, out, "## Constraints")
	assert.NotContains(t, out, "## Success Criteria")
}

func TestExtractSections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		count   int
		first   string
	}{
		{
			name:    "section keyword",
			content: "Section 1: Introduction\nbody\nSection 2: Advanced Topics\nbody",
			count:   2,
			first:   "Introduction",
		},
		{
			name:    "numbered bold",
			content: "1. **Getting Started**\ntext\n2. **Going Deeper**\ntext",
			count:   2,
			first:   "Getting Started",
		},
		{
			name:    "markdown heading",
			content: "### 1. Overview\ntext\n### 2. Details\ntext",
			count:   2,
			first:   "Overview",
		},
		{
			name:    "no sections",
			content: "Just plain prose without structure.",
			count:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sections := ExtractSections(tt.content)
			require.Len(t, sections, tt.count)
			if tt.count > 0 {
				assert.Equal(t, 1, sections[0].Number)
				assert.Equal(t, tt.first, sections[0].Title)
				assert.Equal(t, "Content for "+tt.first, sections[0].Description)
			}
		})
	}
}

func TestExtractSectionsCapsAtTen(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&b, "Section %d: Title\n", i)
	}
	sections := ExtractSections(b.String())
	assert.Len(t, sections, 10)
}
