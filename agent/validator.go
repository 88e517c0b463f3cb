package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/c360studio/thinker/llm"
	"github.com/c360studio/thinker/model"
)

const critiquePrompt = `You are a critical reviewer. Evaluate this content thoroughly.

## CONTENT TO REVIEW
%s

## ORIGINAL REQUEST
%s

## CRITIQUE CHECKLIST
Rate each aspect (1-10) and explain:

1. ACCURACY: Is the information correct? Any hallucinations?
   Score: [1-10]
   Issues: [list any inaccuracies]

2. COMPLETENESS: Does it fully address the request?
   Score: [1-10]
   Missing: [list missing elements]

3. COHERENCE: Does it flow logically?
   Score: [1-10]
   Problems: [list flow issues]

4. QUALITY: Is it well-written and polished?
   Score: [1-10]
   Weaknesses: [list writing issues]

5. RELEVANCE: Does it stay on topic?
   Score: [1-10]
   Off-topic: [list irrelevant parts]

## OVERALL ASSESSMENT
Overall Score: [average of above]
Needs Improvement: [yes/no]
Priority Fixes: [top 3 things to fix]

Provide your critique:`

const improvePrompt = `You are an expert editor. Improve this content based on the critique.

## ORIGINAL CONTENT
%s

## CRITIQUE
%s

## IMPROVEMENT INSTRUCTIONS
1. Fix all accuracy issues (NO hallucinations)
2. Add any missing elements mentioned in the critique
3. Improve flow and coherence
4. Polish the writing, keeping it clear and professional
5. Keep what's already good
6. Use proper headings, bullet points, and paragraphs
7. Do NOT output raw JSON unless the original request asked for JSON

## IMPROVED VERSION
Rewrite the content, addressing ALL issues from the critique:`

// CritiqueScores holds the rubric scores parsed from a critique.
type CritiqueScores struct {
	Accuracy         int  `json:"accuracy"`
	Completeness     int  `json:"completeness"`
	Coherence        int  `json:"coherence"`
	Quality          int  `json:"quality"`
	Relevance        int  `json:"relevance"`
	Overall          int  `json:"overall"`
	NeedsImprovement bool `json:"needs_improvement"`
}

// TemplateValidation is the result of the programmatic template check.
type TemplateValidation struct {
	IsValid              bool     `json:"is_valid"`
	LeadSkillPresent     bool     `json:"lead_skill_present"`
	SkillsPresent        []string `json:"skills_present,omitempty"`
	SkillsMissing        []string `json:"skills_missing,omitempty"`
	HasUniqueKeys        bool     `json:"has_unique_keys"`
	DuplicateKeys        []string `json:"duplicate_keys,omitempty"`
	SchemaValid          bool     `json:"schema_valid"`
	SchemaIssues         []string `json:"schema_issues,omitempty"`
	OverallScore         int      `json:"overall_score"`
	CriticalIssues       []string `json:"critical_issues,omitempty"`
}

// Validator critiques the execution artifact, optionally rewrites it, and
// runs a programmatic structural check when a template was generated.
type Validator struct {
	llm        CompletionClient
	memory     MemoryWriter
	logger     *slog.Logger
	capability string
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithValidatorMemory wires the memory store for post-validation summaries.
func WithValidatorMemory(m MemoryWriter) ValidatorOption {
	return func(v *Validator) { v.memory = m }
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = l }
}

// NewValidator creates a validation engine backed by the given LLM client.
func NewValidator(client CompletionClient, opts ...ValidatorOption) *Validator {
	v := &Validator{
		llm:        client,
		logger:     slog.Default(),
		capability: model.CapabilityForAgent(string(AgentValidator)).String(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run validates the context's artifact through all stages. Every stage
// degrades on failure; the returned output is never empty when the input
// artifact was non-empty.
func (v *Validator) Run(ctx context.Context, tc *Context, emit Emitter) (string, error) {
	emit.Emit(ctx, NewEvent(AgentValidator, EventStatus, "Starting self-reflection and validation..."))

	artifact := tc.State.ExecutorOutput
	if artifact == "" {
		artifact = tc.Artifact
	}
	if artifact == "" {
		emit.Emit(ctx, NewEvent(AgentValidator, EventThought, "No content from executor. Nothing to validate."))
		return "", nil
	}

	emit.Emit(ctx, NewEvent(AgentValidator, EventThought,
		fmt.Sprintf("Reviewing %d characters of content (domain: %s)", len(artifact), tc.EffectiveDomain())))

	// Stage 0: programmatic template validation.
	var templateValidation *TemplateValidation
	if len(tc.State.DomainTemplate) > 0 {
		emit.Emit(ctx, NewEvent(AgentValidator, EventStatus, "Stage 0: checking template structure..."))

		var expectedSkills []string
		if tc.Plan != nil {
			expectedSkills = tc.Plan.DomainSkills
		}
		templateValidation = ValidateTemplateStructure(tc.State.DomainTemplate, expectedSkills)
		tc.State.TemplateValidation = templateValidation

		emit.Emit(ctx, NewEvent(AgentValidator, EventObservation,
			fmt.Sprintf("Template validation: valid=%v score=%d/10 (lead skill=%v, unique keys=%v, schema=%v)",
				templateValidation.IsValid, templateValidation.OverallScore,
				templateValidation.LeadSkillPresent, templateValidation.HasUniqueKeys, templateValidation.SchemaValid)).
			WithPayload(ValidationPayload{TemplateValidation: templateValidation}))

		if len(templateValidation.CriticalIssues) > 0 {
			emit.Emit(ctx, NewEvent(AgentValidator, EventThought,
				"Critical issues:\n- "+strings.Join(templateValidation.CriticalIssues, "\n- ")))
		}
	}

	// Stage 1: critique.
	emit.Emit(ctx, NewEvent(AgentValidator, EventStatus, "Stage 1: critiquing output..."))

	critique, scores := v.critique(ctx, tc, artifact, templateValidation)
	tc.State.Critique = truncate(critique, 1000)
	tc.State.Scores = scores

	emit.Emit(ctx, NewEvent(AgentValidator, EventObservation,
		fmt.Sprintf("Critique: accuracy=%d completeness=%d coherence=%d quality=%d relevance=%d overall=%d needs_improvement=%v",
			scores.Accuracy, scores.Completeness, scores.Coherence, scores.Quality, scores.Relevance,
			scores.Overall, scores.NeedsImprovement)).
		WithPayload(ValidationPayload{Scores: scores}))

	fixes := extractPriorityFixes(critique)
	if len(fixes) > 0 {
		emit.Emit(ctx, NewEvent(AgentValidator, EventThought,
			"Priority fixes:\n- "+strings.Join(fixes, "\n- ")))
	}

	// Stage 2: improve when warranted.
	finalOutput := artifact
	if scores.NeedsImprovement || scores.Overall < 8 {
		emit.Emit(ctx, NewEvent(AgentValidator, EventStatus, "Stage 2: rewriting based on critique..."))

		improved := v.improve(ctx, artifact, critique)
		if improved != "" && len(improved) >= len(artifact)/2 {
			finalOutput = improved
			emit.Emit(ctx, NewEvent(AgentValidator, EventAction,
				fmt.Sprintf("Content improved (%d -> %d chars)", len(artifact), len(improved))))
		} else {
			emit.Emit(ctx, NewEvent(AgentValidator, EventThought, "Original content retained (improvement not substantial)"))
		}
	} else {
		emit.Emit(ctx, NewEvent(AgentValidator, EventThought,
			fmt.Sprintf("Content quality is good (score %d/10), minimal changes needed", scores.Overall)))
	}

	// Stage 3: finalize.
	emit.Emit(ctx, NewEvent(AgentValidator, EventStatus, "Stage 3: preparing final output..."))

	tc.State.FinalOutput = finalOutput
	tc.Artifact = finalOutput
	tc.State.Sections = ExtractSections(finalOutput)

	v.remember(ctx, tc, emit,
		fmt.Sprintf("Validation score: %d/10. Fixes: %s", scores.Overall, strings.Join(firstN(fixes, 3), ", ")),
		"validation_result", []string{"validator", "quality", strconv.Itoa(scores.Overall)})

	emit.Emit(ctx, NewEvent(AgentValidator, EventComplete,
		fmt.Sprintf("Validation complete: score %d/10, %d chars, %d sections",
			scores.Overall, len(finalOutput), len(tc.State.Sections))).
		WithPayload(CompletePayload{
			QualityScore: scores.Overall,
			OutputLength: len(finalOutput),
			Domain:       tc.EffectiveDomain(),
			FinalOutput:  finalOutput,
			Sections:     len(tc.State.Sections),
		}))

	return finalOutput, nil
}

func (v *Validator) critique(ctx context.Context, tc *Context, artifact string, tv *TemplateValidation) (string, *CritiqueScores) {
	prompt := fmt.Sprintf(critiquePrompt, truncate(artifact, 3000), tc.Query)
	if tv != nil {
		prompt += fmt.Sprintf(`

## TEMPLATE VALIDATION CONTEXT
The output is a domain template. Consider also:
- Domain: %s
- %s Present: %v
- Unique Keys: %v
- Schema Valid: %v
- Critical Issues: %s`,
			tc.EffectiveDomain(), LeadSkill, tv.LeadSkillPresent, tv.HasUniqueKeys, tv.SchemaValid,
			strings.Join(tv.CriticalIssues, "; "))
	}

	resp, err := v.llm.Complete(ctx, llm.Request{
		Capability:  v.capability,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: llm.Temp(0.3),
	})
	if err != nil {
		v.logger.Warn("Critique call failed, using neutral scores", "error", err)
		return "", defaultScores()
	}
	return resp.Content, ParseCritiqueScores(resp.Content)
}

func (v *Validator) improve(ctx context.Context, artifact, critique string) string {
	resp, err := v.llm.Complete(ctx, llm.Request{
		Capability:  v.capability,
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(improvePrompt, truncate(artifact, 2500), truncate(critique, 1500))}},
		Temperature: llm.Temp(0.7),
	})
	if err != nil {
		v.logger.Warn("Improvement call failed, keeping original", "error", err)
		return ""
	}
	return resp.Content
}

func (v *Validator) remember(ctx context.Context, tc *Context, emit Emitter, content, kind string, tags []string) {
	if v.memory == nil {
		return
	}
	if err := v.memory.Remember(ctx, tc.SessionID, content, kind, tags); err != nil {
		v.logger.Warn("Failed to store validation memory", "error", err)
		return
	}
	emit.Emit(ctx, NewEvent(AgentValidator, EventMemoryUpdate, "Saved reflection results to memory").
		WithPayload(MemoryPayload{Kind: kind, Tags: tags}))
}

// ValidateTemplateStructure runs the programmatic template check: lead skill
// presence, capability-key uniqueness, required fields and UUID validity.
// Scoring starts at 10 with fixed penalties and floors at 0; validity is the
// conjunction of all checks.
func ValidateTemplateStructure(template map[string]any, expectedSkills []string) *TemplateValidation {
	tv := &TemplateValidation{
		HasUniqueKeys: true,
		SchemaValid:   true,
		OverallScore:  10,
	}

	if len(template) == 0 {
		tv.IsValid = false
		tv.SchemaValid = false
		tv.CriticalIssues = append(tv.CriticalIssues, "Template is empty")
		tv.OverallScore = 0
		return tv
	}

	// The template may be wrapped in a single domain key.
	domainTemplate := template
	if len(template) == 1 {
		for _, v := range template {
			if inner, ok := v.(map[string]any); ok {
				domainTemplate = inner
			}
		}
	}

	// Lead skill check.
	if skills, ok := domainTemplate["skills"].([]any); ok {
		for _, s := range skills {
			str, _ := s.(string)
			tv.SkillsPresent = append(tv.SkillsPresent, str)
			if str == LeadSkill {
				tv.LeadSkillPresent = true
			}
		}
		if !tv.LeadSkillPresent {
			tv.CriticalIssues = append(tv.CriticalIssues, fmt.Sprintf("%q skill is MISSING", LeadSkill))
			tv.OverallScore -= 3
		}
	} else {
		tv.SchemaIssues = append(tv.SchemaIssues, "skills is not an array")
		tv.OverallScore -= 2
	}
	for _, skill := range expectedSkills {
		if !containsString(tv.SkillsPresent, skill) {
			tv.SkillsMissing = append(tv.SkillsMissing, skill)
		}
	}

	// Capability key uniqueness. JSON objects cannot hold duplicate keys, so
	// the check also accepts a list of {key: ...} entries.
	switch caps := domainTemplate["capabilities"].(type) {
	case map[string]any:
		// Keys are unique by construction.
	case []any:
		seen := make(map[string]bool)
		for _, entry := range caps {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			key, _ := m["key"].(string)
			if key == "" {
				continue
			}
			if seen[key] {
				tv.DuplicateKeys = append(tv.DuplicateKeys, key)
				tv.HasUniqueKeys = false
			}
			seen[key] = true
		}
		if len(tv.DuplicateKeys) > 0 {
			tv.CriticalIssues = append(tv.CriticalIssues,
				"Duplicate keys found: "+strings.Join(tv.DuplicateKeys, ", "))
			tv.OverallScore -= 2
		}
	default:
		tv.SchemaIssues = append(tv.SchemaIssues, "capabilities is not an object")
		tv.OverallScore -= 2
	}

	// Required fields.
	for _, field := range []string{"id", "domain", "metadata", "skills", "capabilities"} {
		if _, ok := domainTemplate[field]; !ok {
			tv.SchemaIssues = append(tv.SchemaIssues, "Missing required field: "+field)
			tv.SchemaValid = false
			tv.OverallScore--
		}
	}

	if metadata, ok := domainTemplate["metadata"].(map[string]any); ok {
		if _, ok := metadata["created_at"]; !ok {
			tv.SchemaIssues = append(tv.SchemaIssues, "metadata missing 'created_at'")
		}
		if _, ok := metadata["generated_by"]; !ok {
			tv.SchemaIssues = append(tv.SchemaIssues, "metadata missing 'generated_by'")
		}
	}

	// UUID check.
	id, _ := domainTemplate["id"].(string)
	if _, err := uuid.Parse(id); err != nil {
		tv.SchemaIssues = append(tv.SchemaIssues, "id is not a valid UUID")
		tv.OverallScore--
	}

	tv.IsValid = tv.LeadSkillPresent && tv.HasUniqueKeys && tv.SchemaValid && len(tv.CriticalIssues) == 0
	if tv.OverallScore < 0 {
		tv.OverallScore = 0
	}
	return tv
}

var critiqueScorePatterns = map[string]*regexp.Regexp{
	"accuracy":     regexp.MustCompile(`(?is)ACCURACY[:\s]+.*?(\d+)\s*/?\s*10`),
	"completeness": regexp.MustCompile(`(?is)COMPLETENESS[:\s]+.*?(\d+)\s*/?\s*10`),
	"coherence":    regexp.MustCompile(`(?is)COHERENCE[:\s]+.*?(\d+)\s*/?\s*10`),
	"quality":      regexp.MustCompile(`(?is)QUALITY[:\s]+.*?(\d+)\s*/?\s*10`),
	"relevance":    regexp.MustCompile(`(?is)RELEVANCE[:\s]+.*?(\d+)\s*/?\s*10`),
}

var (
	overallScorePattern     = regexp.MustCompile(`(?i)Overall\s*Score[:\s]+(\d+)`)
	needsImprovementPattern = regexp.MustCompile(`(?i)Needs\s*Improvement[:\s]+(yes|no)`)
)

// ParseCritiqueScores extracts rubric scores from a critique. Missing
// dimensions default to 7; a missing overall becomes the rounded mean of the
// five dimensions; a missing needs-improvement flag derives from overall < 8.
func ParseCritiqueScores(critique string) *CritiqueScores {
	scores := defaultScores()

	get := func(key string, fallback int) int {
		if m := critiqueScorePatterns[key].FindStringSubmatch(critique); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
		return fallback
	}
	scores.Accuracy = get("accuracy", 7)
	scores.Completeness = get("completeness", 7)
	scores.Coherence = get("coherence", 7)
	scores.Quality = get("quality", 7)
	scores.Relevance = get("relevance", 7)

	if m := overallScorePattern.FindStringSubmatch(critique); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			scores.Overall = n
		}
	}
	if scores.Overall == 7 {
		sum := scores.Accuracy + scores.Completeness + scores.Coherence + scores.Quality + scores.Relevance
		scores.Overall = (sum + 2) / 5 // Round to nearest
	}

	if m := needsImprovementPattern.FindStringSubmatch(critique); m != nil {
		scores.NeedsImprovement = strings.EqualFold(m[1], "yes")
	} else {
		scores.NeedsImprovement = scores.Overall < 8
	}
	return scores
}

func defaultScores() *CritiqueScores {
	return &CritiqueScores{
		Accuracy: 7, Completeness: 7, Coherence: 7, Quality: 7, Relevance: 7,
		Overall: 7, NeedsImprovement: true,
	}
}

var (
	priorityFixesPattern = regexp.MustCompile(`(?is)Priority\s*Fixes[:\s]+(.+?)(?:\n\n|$)`)
	fixItemPattern       = regexp.MustCompile(`(?m)^\s*[-*\x{2022}\d.]+\s*(.+)$`)
	issuesPattern        = regexp.MustCompile(`(?im)Issues?:\s*(.+)$`)
)

// extractPriorityFixes pulls up to five fix items out of a critique.
func extractPriorityFixes(critique string) []string {
	var fixes []string

	if m := priorityFixesPattern.FindStringSubmatch(critique); m != nil {
		for _, item := range fixItemPattern.FindAllStringSubmatch(m[1], 5) {
			if fix := strings.TrimSpace(item[1]); fix != "" {
				fixes = append(fixes, fix)
			}
		}
		if len(fixes) == 0 {
			if line := strings.TrimSpace(strings.SplitN(m[1], "\n", 2)[0]); line != "" {
				fixes = append(fixes, line)
			}
		}
	}

	if len(fixes) == 0 {
		for _, item := range issuesPattern.FindAllStringSubmatch(critique, 5) {
			fix := strings.TrimSpace(item[1])
			if fix != "" && !strings.EqualFold(fix, "none") {
				fixes = append(fixes, fix)
			}
		}
	}

	if len(fixes) > 5 {
		fixes = fixes[:5]
	}
	return fixes
}

func containsString(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}
