package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/thinker/llm"
)

// LeadSkill is the skill every plan must carry at index 0 of its skill list.
const LeadSkill = "Instructional Designer"

// Step effort buckets.
const (
	Effort5Min  = "5min"
	Effort15Min = "15min"
	Effort30Min = "30min"
	Effort1Hr   = "1hr"
	Effort2HrUp = "2hr+"
)

// Step priorities.
const (
	PriorityCritical  = "critical"
	PriorityImportant = "important"
	PriorityOptional  = "optional"
)

// ReasoningStep is one step of a reasoning plan.
type ReasoningStep struct {
	StepNumber         int      `json:"step_number"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	ExpectedOutput     string   `json:"expected_output"`
	Dependencies       []int    `json:"dependencies,omitempty"`
	SubSteps           []string `json:"sub_steps,omitempty"`
	EstimatedEffort    string   `json:"estimated_effort,omitempty"`
	ValidationCriteria []string `json:"validation_criteria,omitempty"`
	Priority           string   `json:"priority,omitempty"`
}

// ClarificationQuestion is a question surfaced to the user before execution.
type ClarificationQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Default  string   `json:"default,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// ChatTurn is one refinement conversation turn kept on the plan.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReasoningPlan is the planner's output: the structured plan presented for
// approval and later driven by the execution loop.
type ReasoningPlan struct {
	TemplateID             string                  `json:"template_id"`
	CreatedAt              time.Time               `json:"created_at"`
	Title                  string                  `json:"title"`
	TaskUnderstanding      string                  `json:"task_understanding"`
	Approach               string                  `json:"approach"`
	EstimatedComplexity    string                  `json:"estimated_complexity"`
	EstimatedTotalEffort   string                  `json:"estimated_total_effort"`
	Steps                  []ReasoningStep         `json:"steps"`
	Constraints            []string                `json:"constraints,omitempty"`
	SuccessCriteria        []string                `json:"success_criteria,omitempty"`
	Domain                 string                  `json:"domain"`
	DomainSkills           []string                `json:"domain_skills"`
	DomainCapabilities     []string                `json:"domain_capabilities,omitempty"`
	ClarificationQuestions []ClarificationQuestion `json:"clarification_questions,omitempty"`
	Analysis               *DeepAnalysis           `json:"deep_analysis,omitempty"`
	ChatHistory            []ChatTurn              `json:"chat_history,omitempty"`
}

// EnsureLeadSkill forces the lead skill to index 0 of the plan's skill list,
// deduplicating while preserving the order of the rest.
func (p *ReasoningPlan) EnsureLeadSkill() {
	p.DomainSkills = ensureLeadSkill(p.DomainSkills)
}

func ensureLeadSkill(skills []string) []string {
	out := make([]string, 0, len(skills)+1)
	out = append(out, LeadSkill)
	seen := map[string]bool{LeadSkill: true}
	for _, s := range skills {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

var effortMinutes = map[string]int{
	Effort5Min:  5,
	Effort15Min: 15,
	Effort30Min: 30,
	Effort1Hr:   60,
	Effort2HrUp: 120,
}

// TotalEffort sums per-step effort estimates into a human-readable total.
// Unknown effort labels count as 15 minutes.
func TotalEffort(steps []ReasoningStep) string {
	total := 0
	for _, s := range steps {
		m, ok := effortMinutes[s.EstimatedEffort]
		if !ok {
			m = 15
		}
		total += m
	}
	switch {
	case total < 60:
		return fmt.Sprintf("%dmin", total)
	case total < 120:
		return "1-2 hours"
	default:
		return fmt.Sprintf("%d+ hours", total/60)
	}
}

// Finalize fills derived fields: template id, creation time, total effort,
// lead skill placement and complexity default.
func (p *ReasoningPlan) Finalize() {
	if p.TemplateID == "" {
		p.TemplateID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.EstimatedComplexity == "" {
		p.EstimatedComplexity = "moderate"
	}
	p.EnsureLeadSkill()
	p.EstimatedTotalEffort = TotalEffort(p.Steps)
}

// planDocument mirrors the JSON shape the model is asked to produce. Domain
// arrives as either "domain" or "detected_domain" depending on the model.
type planDocument struct {
	Title                  string            `json:"title"`
	Domain                 string            `json:"domain"`
	DetectedDomain         string            `json:"detected_domain"`
	TaskUnderstanding      string            `json:"task_understanding"`
	Approach               string            `json:"approach"`
	DomainSkills           []string          `json:"domain_skills"`
	DomainCapabilities     []string          `json:"domain_capabilities"`
	Steps                  []stepDocument    `json:"steps"`
	Constraints            []string          `json:"constraints"`
	SuccessCriteria        []string          `json:"success_criteria"`
	EstimatedComplexity    string            `json:"estimated_complexity"`
	ClarificationQuestions []json.RawMessage `json:"clarification_questions"`
}

type stepDocument struct {
	StepNumber         int      `json:"step_number"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	ExpectedOutput     string   `json:"expected_output"`
	Dependencies       []int    `json:"dependencies"`
	SubSteps           []string `json:"sub_steps"`
	EstimatedEffort    string   `json:"estimated_effort"`
	ValidationCriteria []string `json:"validation_criteria"`
	Priority           string   `json:"priority"`
}

type questionDocument struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Options  []string `json:"options"`
	Default  string   `json:"default"`
	Priority string   `json:"priority"`
	Reason   string   `json:"reason"`
}

// ParsePlan extracts a reasoning plan from raw model output. Returns
// ok=false when no usable JSON object is present; callers fall back to a
// deterministic plan.
func ParsePlan(response string, fallbackDomain string) (*ReasoningPlan, bool) {
	raw := llm.ExtractJSON(response)
	if raw == "" {
		return nil, false
	}

	var doc planDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false
	}
	if doc.Title == "" && len(doc.Steps) == 0 {
		return nil, false
	}

	domain := doc.Domain
	if domain == "" {
		domain = doc.DetectedDomain
	}
	if domain == "" {
		domain = fallbackDomain
	}

	plan := &ReasoningPlan{
		Title:               doc.Title,
		TaskUnderstanding:   doc.TaskUnderstanding,
		Approach:            doc.Approach,
		EstimatedComplexity: doc.EstimatedComplexity,
		Constraints:         doc.Constraints,
		SuccessCriteria:     doc.SuccessCriteria,
		Domain:              domain,
		DomainSkills:        doc.DomainSkills,
		DomainCapabilities:  doc.DomainCapabilities,
	}
	for _, s := range doc.Steps {
		step := ReasoningStep{
			StepNumber:         s.StepNumber,
			Title:              s.Title,
			Description:        s.Description,
			ExpectedOutput:     s.ExpectedOutput,
			Dependencies:       s.Dependencies,
			SubSteps:           s.SubSteps,
			EstimatedEffort:    s.EstimatedEffort,
			ValidationCriteria: s.ValidationCriteria,
			Priority:           s.Priority,
		}
		if step.StepNumber == 0 {
			step.StepNumber = len(plan.Steps) + 1
		}
		if step.EstimatedEffort == "" {
			step.EstimatedEffort = Effort15Min
		}
		if step.Priority == "" {
			step.Priority = PriorityImportant
		}
		plan.Steps = append(plan.Steps, step)
	}
	for i, rawQ := range doc.ClarificationQuestions {
		var q questionDocument
		if err := json.Unmarshal(rawQ, &q); err != nil {
			continue
		}
		cq := ClarificationQuestion{
			ID:       q.ID,
			Question: q.Question,
			Type:     q.Type,
			Options:  q.Options,
			Default:  q.Default,
			Priority: q.Priority,
			Reason:   q.Reason,
		}
		if cq.ID == "" {
			cq.ID = fmt.Sprintf("q%d", i+1)
		}
		if cq.Type == "" {
			cq.Type = "boolean"
		}
		if cq.Priority == "" {
			cq.Priority = "medium"
		}
		if cq.Reason == "" {
			cq.Reason = "Helps clarify requirements"
		}
		plan.ClarificationQuestions = append(plan.ClarificationQuestions, cq)
	}
	plan.ClarificationQuestions = capQuestions(plan.ClarificationQuestions)
	return plan, true
}

var questionPriorityRank = map[string]int{"high": 0, "medium": 1, "low": 2}

// capQuestions sorts questions by priority (high, medium, low; stable within
// a rank) and keeps at most five.
func capQuestions(qs []ClarificationQuestion) []ClarificationQuestion {
	sort.SliceStable(qs, func(i, j int) bool {
		ri, ok := questionPriorityRank[qs[i].Priority]
		if !ok {
			ri = 1
		}
		rj, ok := questionPriorityRank[qs[j].Priority]
		if !ok {
			rj = 1
		}
		return ri < rj
	})
	if len(qs) > 5 {
		qs = qs[:5]
	}
	return qs
}

var numberedStepPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(?:step\s*)?(\d+)[.:\s]+(.+?)(?:\n|$)`),
	regexp.MustCompile(`(?is)(\d+)\)\s*(.+?)(?:\n|$)`),
}

// extractNumberedSteps scrapes up to eight numbered lines out of free text,
// used when the model ignored the JSON contract.
func extractNumberedSteps(text string) []ReasoningStep {
	for _, pat := range numberedStepPatterns {
		matches := pat.FindAllStringSubmatch(text, 8)
		if len(matches) == 0 {
			continue
		}
		steps := make([]ReasoningStep, 0, len(matches))
		for _, m := range matches {
			num, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			content := strings.TrimSpace(m[2])
			if content == "" {
				continue
			}
			title := content
			if len(title) > 50 {
				title = title[:50]
			}
			steps = append(steps, ReasoningStep{
				StepNumber:      num,
				Title:           title,
				Description:     content,
				ExpectedOutput:  "Completed step output",
				EstimatedEffort: Effort15Min,
				Priority:        PriorityImportant,
			})
		}
		if len(steps) > 0 {
			return steps
		}
	}
	return nil
}

// FallbackPlan builds the deterministic plan used when the model's response
// cannot be parsed. Any numbered lines salvageable from the raw response
// become steps; otherwise a fixed domain-aware sequence is used.
func FallbackPlan(tc *Context, rawResponse string) *ReasoningPlan {
	domain := tc.State.DetectedDomain
	if domain == "" {
		domain = "default"
	}
	skills := tc.State.DomainSkills
	if len(skills) == 0 {
		skills = DomainSkills(domain)
	}
	capabilities := tc.State.DomainCapabilities
	if len(capabilities) == 0 {
		capabilities = DomainCapabilities(domain)
	}

	steps := extractNumberedSteps(rawResponse)
	if len(steps) == 0 {
		steps = defaultSteps(tc.Query, domain, skills, capabilities)
	}

	plan := &ReasoningPlan{
		Title:             fmt.Sprintf("%s Template Generation", titleCase(domain)),
		TaskUnderstanding: tc.Query,
		Approach:          fmt.Sprintf("Systematic %s domain template generation with %s skill", domain, LeadSkill),
		Steps:             steps,
		Constraints: []string{
			LeadSkill + " skill must be included",
			"All capability keys must be unique to this domain",
			"Follow domain-specific best practices",
			"Ensure accuracy and relevance",
		},
		SuccessCriteria: []string{
			"Request fully addressed",
			LeadSkill + " skill present",
			"All capability keys are unique",
			"Output follows required schema",
		},
		EstimatedComplexity: "moderate",
		Domain:              domain,
		DomainSkills:        skills,
		DomainCapabilities:  capabilities,
	}
	plan.Finalize()
	return plan
}

func defaultSteps(query, domain string, skills, capabilities []string) []ReasoningStep {
	return []ReasoningStep{
		{
			StepNumber:      1,
			Title:           "Analyze request and domain context",
			Description:     fmt.Sprintf("Analyze: %s in %s domain", query, domain),
			ExpectedOutput:  "Clear understanding of requirements and domain context",
			EstimatedEffort: Effort15Min,
			Priority:        PriorityCritical,
		},
		{
			StepNumber:      2,
			Title:           "Identify domain-specific skills",
			Description:     fmt.Sprintf("Identify required skills including: %s", strings.Join(firstN(skills, 3), ", ")),
			ExpectedOutput:  "List of applicable skills for this domain",
			Dependencies:    []int{1},
			EstimatedEffort: Effort15Min,
			Priority:        PriorityImportant,
		},
		{
			StepNumber:      3,
			Title:           "Generate domain capabilities",
			Description:     fmt.Sprintf("Generate unique capability keys: %s", strings.Join(firstN(capabilities, 3), ", ")),
			ExpectedOutput:  "Domain-specific capability structure",
			Dependencies:    []int{2},
			EstimatedEffort: Effort15Min,
			Priority:        PriorityImportant,
		},
		{
			StepNumber:      4,
			Title:           "Create instructional templates",
			Description:     fmt.Sprintf("Generate instructional content using %s skill", LeadSkill),
			ExpectedOutput:  "Domain-specific instructional templates",
			Dependencies:    []int{3},
			EstimatedEffort: Effort30Min,
			Priority:        PriorityCritical,
		},
		{
			StepNumber:      5,
			Title:           "Compile and validate",
			Description:     "Compile all components into final template structure",
			ExpectedOutput:  "Complete domain template ready for validation",
			Dependencies:    []int{4},
			EstimatedEffort: Effort15Min,
			Priority:        PriorityImportant,
		},
	}
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func titleCase(s string) string {
	parts := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
