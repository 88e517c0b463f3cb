package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// planningSystemPrompt instructs the model to emit a plan as strict JSON.
const planningSystemPrompt = `You are a planning agent. Create an execution plan in JSON.

CRITICAL:
1. Include "Instructional Designer" in domain_skills
2. Generate 5-7 steps with sub_steps, validation_criteria
3. Every capability key must be unique to the domain
4. Always include 2-3 clarification_questions
5. Output ONLY valid JSON

JSON format:
{
  "title": "...",
  "detected_domain": "...",
  "task_understanding": "...",
  "approach": "...",
  "domain_skills": ["Instructional Designer", "..."],
  "domain_capabilities": ["..."],
  "steps": [{"step_number": 1, "title": "...", "description": "...", "expected_output": "...", "sub_steps": ["..."], "estimated_effort": "15min", "validation_criteria": ["..."], "priority": "important"}],
  "constraints": ["..."],
  "success_criteria": ["..."],
  "estimated_complexity": "moderate",
  "clarification_questions": [{"id": "q1", "question": "...", "type": "boolean|choice|text", "options": ["..."], "default": "...", "priority": "high|medium|low", "reason": "..."}]
}`

// buildPlanningPrompt assembles the user prompt for the planning call.
func buildPlanningPrompt(tc *Context, analysis *DeepAnalysis, retrievalContext string) string {
	var b strings.Builder

	query := tc.Query
	if len(query) > 300 {
		query = query[:300]
	}

	fmt.Fprintf(&b, "Domain: %s\n", tc.State.DetectedDomain)
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	fmt.Fprintf(&b, "Audience: %s (%s)\n", analysis.Audience.Primary, analysis.Audience.SkillLevel)
	fmt.Fprintf(&b, "Requirements: %s\n\n", jsonList(firstN(analysis.Requirements.Explicit, 2)))
	fmt.Fprintf(&b, "Domain Skills (MUST include): %s\n", jsonList(firstN(tc.State.DomainSkills, 4)))
	fmt.Fprintf(&b, "Capabilities: %s\n\n", jsonList(firstN(tc.State.DomainCapabilities, 4)))

	if retrievalContext == "" {
		retrievalContext = "No additional context"
	} else if len(retrievalContext) > 200 {
		retrievalContext = retrievalContext[:200]
	}
	fmt.Fprintf(&b, "Context: %s\n\n", retrievalContext)
	b.WriteString("Create a 5-7 step execution plan. Output ONLY JSON as specified.")
	return b.String()
}

// refineSystemPrompt instructs the model to update an existing plan rather
// than produce a new one.
const refineSystemPrompt = `You are a planning agent refining an existing execution plan.

You will receive the original plan, the user's clarification responses, and
optionally additional instructions. Update the plan to incorporate them.

CRITICAL:
1. Keep "Instructional Designer" in domain_skills
2. Preserve what the user did not ask to change
3. Apply every clarification response and instruction
4. Keep the same JSON format as the original plan
5. Output ONLY valid JSON`

// buildRefinementPrompt assembles the refinement prompt: serialized original
// plan, the user's responses, free-form instructions and the last five chat
// turns.
func buildRefinementPrompt(plan *ReasoningPlan, responses map[string]string, chatMessage string) string {
	var b strings.Builder

	b.WriteString("## ORIGINAL PLAN\n")
	if raw, err := json.MarshalIndent(plan, "", "  "); err == nil {
		b.Write(raw)
	}
	b.WriteString("\n\n## USER CLARIFICATION RESPONSES\n")
	if len(responses) == 0 {
		b.WriteString("(none)\n")
	}
	for _, q := range plan.ClarificationQuestions {
		if resp, ok := responses[q.ID]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", q.ID, resp)
		}
	}
	extra := make([]string, 0, len(responses))
	for id := range responses {
		if !planHasQuestion(plan, id) {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		fmt.Fprintf(&b, "- %s: %s\n", id, responses[id])
	}

	if chatMessage != "" {
		b.WriteString("\n## ADDITIONAL USER INSTRUCTIONS\n")
		b.WriteString(chatMessage)
		b.WriteString("\n")
	}

	history := plan.ChatHistory
	if len(history) > 5 {
		history = history[len(history)-5:]
	}
	if len(history) > 0 {
		b.WriteString("\n## CHAT HISTORY\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", titleCase(turn.Role), turn.Content)
		}
	}

	b.WriteString("\n## YOUR TASK\n")
	b.WriteString("Update the plan above to reflect the responses and instructions. Output the complete updated plan as JSON.")
	return b.String()
}

func planHasQuestion(plan *ReasoningPlan, id string) bool {
	for _, q := range plan.ClarificationQuestions {
		if q.ID == id {
			return true
		}
	}
	return false
}

func jsonList(items []string) string {
	raw, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
