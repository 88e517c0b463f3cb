package agent

import "strings"

// DefaultDomain is used when no lexicon matches the query.
const DefaultDomain = "default"

type domainLexicon struct {
	name     string
	keywords []string
}

// domainLexicons is ordered; ties in keyword hit counts resolve to the
// earlier entry.
var domainLexicons = []domainLexicon{
	{"healthcare", []string{"medical", "health", "clinical", "patient", "hospital", "doctor", "nurse", "diagnosis", "treatment", "pharma", "drug"}},
	{"finance", []string{"finance", "banking", "investment", "stock", "trading", "loan", "credit", "insurance", "accounting", "budget", "revenue"}},
	{"hr", []string{"hr", "human resources", "employee", "hiring", "recruitment", "onboarding", "payroll", "benefits", "performance review", "talent"}},
	{"cloud", []string{"cloud", "aws", "azure", "gcp", "kubernetes", "docker", "devops", "infrastructure", "serverless", "microservices"}},
	{"software", []string{"software", "development", "programming", "code", "api", "database", "testing", "agile", "scrum", "deployment"}},
	{"sales", []string{"sales", "crm", "lead", "pipeline", "prospect", "deal", "quota", "revenue", "customer", "conversion"}},
	{"education", []string{"education", "learning", "teaching", "course", "curriculum", "student", "training", "tutorial", "lesson", "classroom"}},
	{"marketing", []string{"marketing", "campaign", "brand", "advertising", "social media", "seo", "content", "promotion", "audience", "engagement"}},
	{"legal", []string{"legal", "law", "contract", "compliance", "regulation", "litigation", "attorney", "court", "rights", "policy"}},
	{"manufacturing", []string{"manufacturing", "production", "factory", "assembly", "quality control", "supply chain", "inventory", "lean", "six sigma"}},
}

var domainSkills = map[string][]string{
	"healthcare":    {"Clinical Trainer", "Medical Writer", "Patient Educator", "Compliance Specialist"},
	"finance":       {"Financial Analyst", "Risk Assessor", "Compliance Officer", "Investment Advisor"},
	"hr":            {"Talent Developer", "Policy Writer", "Employee Relations Specialist", "Compensation Analyst"},
	"cloud":         {"Solutions Architect", "DevOps Engineer", "Security Specialist", "Cost Optimizer"},
	"software":      {"Technical Writer", "Code Reviewer", "Architecture Designer", "QA Specialist"},
	"sales":         {"Sales Trainer", "CRM Specialist", "Negotiation Coach", "Pipeline Analyst"},
	"education":     {"Curriculum Designer", "Assessment Developer", "Learning Technologist", "Subject Expert"},
	"marketing":     {"Content Strategist", "Brand Manager", "Analytics Expert", "Campaign Designer"},
	"legal":         {"Legal Writer", "Contract Analyst", "Compliance Trainer", "Policy Developer"},
	"manufacturing": {"Process Engineer", "Quality Trainer", "Safety Specialist", "Lean Consultant"},
	DefaultDomain:   {"Content Creator", "Process Designer", "Quality Analyst", "Documentation Specialist"},
}

var domainCapabilities = map[string][]string{
	"healthcare":    {"clinical_protocols", "patient_safety_guidelines", "hipaa_compliance", "medical_terminology"},
	"finance":       {"risk_assessment_framework", "regulatory_compliance", "financial_modeling", "audit_procedures"},
	"hr":            {"policy_framework", "employee_lifecycle", "performance_metrics", "benefits_administration"},
	"cloud":         {"infrastructure_patterns", "security_protocols", "cost_optimization", "disaster_recovery"},
	"software":      {"development_standards", "code_quality_metrics", "api_documentation", "testing_frameworks"},
	"sales":         {"sales_methodology", "pipeline_management", "objection_handling", "closing_techniques"},
	"education":     {"learning_objectives", "assessment_criteria", "engagement_strategies", "progression_paths"},
	"marketing":     {"brand_guidelines", "content_strategy", "audience_targeting", "campaign_metrics"},
	"legal":         {"contract_templates", "compliance_checklist", "risk_mitigation", "regulatory_mapping"},
	"manufacturing": {"process_workflows", "quality_standards", "safety_protocols", "efficiency_metrics"},
	DefaultDomain:   {"content_structure", "quality_guidelines", "process_flow", "output_standards"},
}

// DetectDomain scores each lexicon by case-insensitive keyword hits in the
// query and returns the highest scorer. Ties resolve to the lexicon declared
// first; no hits at all returns the default domain.
func DetectDomain(query string) string {
	q := strings.ToLower(query)

	best := DefaultDomain
	bestScore := 0
	for _, lex := range domainLexicons {
		score := 0
		for _, kw := range lex.keywords {
			if strings.Contains(q, kw) {
				score++
			}
		}
		if score > bestScore {
			best = lex.name
			bestScore = score
		}
	}
	return best
}

// DomainSkills returns the skill list for a domain with the lead skill
// prepended. Unknown domains get the default list.
func DomainSkills(domain string) []string {
	base, ok := domainSkills[domain]
	if !ok {
		base = domainSkills[DefaultDomain]
	}
	return ensureLeadSkill(base)
}

// DomainCapabilities returns the capability keys for a domain. Unknown
// domains get the default list.
func DomainCapabilities(domain string) []string {
	caps, ok := domainCapabilities[domain]
	if !ok {
		caps = domainCapabilities[DefaultDomain]
	}
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}

// Domains lists the known domain names in lexicon order, ending with the
// default domain.
func Domains() []string {
	names := make([]string, 0, len(domainLexicons)+1)
	for _, lex := range domainLexicons {
		names = append(names, lex.name)
	}
	return append(names, DefaultDomain)
}
