package agent

import (
	"fmt"
	"strings"
)

// Mermaid renders the plan's step graph as a Mermaid flowchart. Steps with
// declared dependencies link from those steps; steps without link from the
// previous node.
func Mermaid(plan *ReasoningPlan) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	fmt.Fprintf(&b, "    subgraph Plan[\"%s\"]\n", mermaidLabel(plan.Title, 60))
	fmt.Fprintf(&b, "        UNDERSTAND[\"Understanding: %s\"]\n", mermaidLabel(plan.TaskUnderstanding, 30))

	prev := "UNDERSTAND"
	for _, step := range plan.Steps {
		node := fmt.Sprintf("STEP%d", step.StepNumber)
		fmt.Fprintf(&b, "        %s[\"%d. %s\"]\n", node, step.StepNumber, mermaidLabel(step.Title, 25))
		if len(step.Dependencies) > 0 {
			for _, dep := range step.Dependencies {
				fmt.Fprintf(&b, "        STEP%d --> %s\n", dep, node)
			}
		} else {
			fmt.Fprintf(&b, "        %s --> %s\n", prev, node)
		}
		prev = node
	}

	fmt.Fprintf(&b, "        %s --> OUTPUT[\"Final Output\"]\n", prev)
	b.WriteString("    end\n")
	return b.String()
}

func mermaidLabel(s string, max int) string {
	s = strings.NewReplacer("\"", "'", "\n", " ", "[", "(", "]", ")").Replace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// PlanSummary renders a plan as a human-readable markdown document.
func PlanSummary(plan *ReasoningPlan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Reasoning Plan: %s\n\n", plan.Title)
	fmt.Fprintf(&b, "**Domain:** %s\n", plan.Domain)
	fmt.Fprintf(&b, "**Template ID:** %s\n\n", plan.TemplateID)
	fmt.Fprintf(&b, "## Understanding\n%s\n\n", plan.TaskUnderstanding)
	fmt.Fprintf(&b, "## Approach\n%s\n\n", plan.Approach)

	b.WriteString("## Domain Skills\n")
	for _, skill := range plan.DomainSkills {
		marker := "-"
		if skill == LeadSkill {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s\n", marker, skill)
	}

	b.WriteString("\n## Domain Capabilities\n")
	for _, cap := range plan.DomainCapabilities {
		fmt.Fprintf(&b, "- `%s`\n", cap)
	}

	b.WriteString("\n## Execution Steps\n")
	for _, step := range plan.Steps {
		deps := ""
		if len(step.Dependencies) > 0 {
			parts := make([]string, len(step.Dependencies))
			for i, d := range step.Dependencies {
				parts[i] = fmt.Sprintf("%d", d)
			}
			deps = fmt.Sprintf(" (depends on: %s)", strings.Join(parts, ", "))
		}
		fmt.Fprintf(&b, "\n### Step %d: %s%s\n", step.StepNumber, step.Title, deps)
		fmt.Fprintf(&b, "%s\n", step.Description)
		fmt.Fprintf(&b, "**Expected output:** %s\n", step.ExpectedOutput)
		if step.EstimatedEffort != "" {
			fmt.Fprintf(&b, "**Effort:** %s | **Priority:** %s\n", step.EstimatedEffort, step.Priority)
		}
		for _, sub := range step.SubSteps {
			fmt.Fprintf(&b, "- %s\n", sub)
		}
	}

	if len(plan.Constraints) > 0 {
		b.WriteString("\n## Constraints\n")
		for _, c := range plan.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(plan.SuccessCriteria) > 0 {
		b.WriteString("\n## Success Criteria\n")
		for _, c := range plan.SuccessCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	fmt.Fprintf(&b, "\n## Complexity: %s\n", strings.ToUpper(plan.EstimatedComplexity))
	fmt.Fprintf(&b, "**Estimated total effort:** %s\n", plan.EstimatedTotalEffort)
	return b.String()
}
