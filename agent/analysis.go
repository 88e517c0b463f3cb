package agent

import (
	"strings"
)

// AudienceProfile describes who the output is for.
type AudienceProfile struct {
	Primary       string   `json:"primary"`
	SkillLevel    string   `json:"skill_level"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Goals         []string `json:"goals,omitempty"`
}

// RequirementSet splits requirements into what was asked for and what is
// implied.
type RequirementSet struct {
	Explicit   []string `json:"explicit"`
	Implicit   []string `json:"implicit,omitempty"`
	OutOfScope []string `json:"out_of_scope,omitempty"`
}

// RiskAssessment captures assumptions and risks with their mitigations.
type RiskAssessment struct {
	Assumptions []string `json:"assumptions,omitempty"`
	Risks       []string `json:"risks,omitempty"`
	Mitigations []string `json:"mitigations,omitempty"`
}

// StrategyChoice records the recommended approach.
type StrategyChoice struct {
	Alternatives []string `json:"alternatives,omitempty"`
	Recommended  string   `json:"recommended"`
	Rationale    string   `json:"rationale,omitempty"`
}

// DeepAnalysis is the pre-planning assessment of a request.
type DeepAnalysis struct {
	Audience            AudienceProfile `json:"audience"`
	Stakeholders        []string        `json:"stakeholders,omitempty"`
	ContextOfUse        string          `json:"context_of_use,omitempty"`
	Motivation          string          `json:"motivation,omitempty"`
	Requirements        RequirementSet  `json:"requirements"`
	RisksAndAssumptions RiskAssessment  `json:"risks_and_assumptions"`
	Strategy            StrategyChoice  `json:"strategy"`
	ComplexityFactors   []string        `json:"complexity_factors,omitempty"`
	EstimatedEffort     string          `json:"estimated_effort,omitempty"`
}

var skillLevelIndicators = []struct {
	level    string
	keywords []string
}{
	{"beginner", []string{"beginner", "intro", "basics", "simple", "basic", "new to", "getting started"}},
	{"advanced", []string{"advanced", "complex", "sophisticated", "enterprise", "expert", "deep dive"}},
}

var audienceIndicators = []struct {
	audience string
	keywords []string
}{
	{"technical", []string{"developer", "engineer", "technical", "programmer", "coder"}},
	{"business", []string{"manager", "executive", "business", "stakeholder", "leader"}},
}

var complexityIndicators = []string{"comprehensive", "detailed", "thorough", "complete", "full"}

// HeuristicAnalysis derives a deterministic analysis from keyword signals in
// the query. Used directly for speed and as the fallback when the model's
// analysis cannot be parsed.
func HeuristicAnalysis(query string) *DeepAnalysis {
	q := strings.ToLower(query)

	skillLevel := "intermediate"
	for _, ind := range skillLevelIndicators {
		if containsAny(q, ind.keywords) {
			skillLevel = ind.level
			break
		}
	}

	audience := "general"
	for _, ind := range audienceIndicators {
		if containsAny(q, ind.keywords) {
			audience = ind.audience
			break
		}
	}

	effort := "30min-1hr"
	if containsAny(q, complexityIndicators) {
		effort = "1-2hr"
	}

	explicit := query
	if len(explicit) > 100 {
		explicit = explicit[:100]
	}

	var prerequisites []string
	if skillLevel != "beginner" {
		prerequisites = []string{"Basic understanding"}
	}

	return &DeepAnalysis{
		Audience: AudienceProfile{
			Primary:       titleCase(audience) + " users",
			SkillLevel:    skillLevel,
			Prerequisites: prerequisites,
			Goals:         []string{"Complete task successfully"},
		},
		Stakeholders: []string{"Primary user", "End users"},
		ContextOfUse: "Professional/educational context",
		Motivation:   "Task completion and learning",
		Requirements: RequirementSet{
			Explicit: []string{explicit},
			Implicit: []string{"Quality output", "Clear structure", "Accuracy"},
		},
		RisksAndAssumptions: RiskAssessment{
			Assumptions: []string{"User has " + skillLevel + " knowledge", "Standard tools available"},
			Risks:       []string{"Scope ambiguity", "Resource constraints"},
			Mitigations: []string{"Clarify with questions", "Iterative approach"},
		},
		Strategy: StrategyChoice{
			Recommended: "Systematic step-by-step execution",
			Rationale:   "Best for clear, quality output",
		},
		ComplexityFactors: []string{"Domain expertise required", "Multiple steps needed"},
		EstimatedEffort:   effort,
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
