package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDomain(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{"healthcare", "Create a patient intake training for hospital nurses", "healthcare"},
		{"finance", "Build an investment and banking compliance course", "finance"},
		{"cloud", "Design a kubernetes and docker devops curriculum", "cloud"},
		{"education keywords", "Create a course curriculum with lessons for students", "education"},
		{"no match", "Tell me something interesting", "default"},
		{"empty query", "", "default"},
		{"case insensitive", "KUBERNETES and DOCKER infrastructure", "cloud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectDomain(tt.query))
		})
	}
}

func TestDetectDomainDeterministic(t *testing.T) {
	query := "Build a comprehensive training program for medical cloud infrastructure"
	first := DetectDomain(query)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, DetectDomain(query))
	}
}

func TestDetectDomainTieBreak(t *testing.T) {
	// "revenue" appears in both the finance and sales lexicons; the earlier
	// declared lexicon wins the tie.
	assert.Equal(t, "finance", DetectDomain("grow revenue"))
}

func TestDomainSkills(t *testing.T) {
	skills := DomainSkills("healthcare")
	assert.Equal(t, LeadSkill, skills[0])
	assert.Contains(t, skills, "Clinical Trainer")

	// Unknown domain falls back to the default list, still led by the lead
	// skill.
	skills = DomainSkills("astrology")
	assert.Equal(t, LeadSkill, skills[0])
	assert.Contains(t, skills, "Content Creator")
}

func TestDomainSkillsNoDuplicates(t *testing.T) {
	for _, domain := range Domains() {
		skills := DomainSkills(domain)
		seen := make(map[string]bool)
		for _, s := range skills {
			assert.False(t, seen[s], "duplicate skill %q in domain %q", s, domain)
			seen[s] = true
		}
	}
}

func TestDomainCapabilities(t *testing.T) {
	caps := DomainCapabilities("software")
	assert.Contains(t, caps, "development_standards")

	assert.Equal(t, DomainCapabilities("default"), DomainCapabilities("unknown"))
}

func TestDomains(t *testing.T) {
	names := Domains()
	assert.Len(t, names, 11)
	assert.Equal(t, "healthcare", names[0])
	assert.Equal(t, DefaultDomain, names[len(names)-1])
}
