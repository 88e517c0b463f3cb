// Package model provides capability-based model selection for the agent
// pipeline. Agents specify capabilities (planning, generation, critique)
// instead of hardcoded model names, and the registry resolves them to
// available endpoints with fallback chains.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityPlanning is for deep analysis and reasoning plan generation.
	CapabilityPlanning Capability = "planning"

	// CapabilityGeneration is for content and template generation during
	// execution.
	CapabilityGeneration Capability = "generation"

	// CapabilityCritique is for validation critique and improvement passes.
	CapabilityCritique Capability = "critique"

	// CapabilityFast is for quick responses and simple tasks.
	CapabilityFast Capability = "fast"

	// CapabilityEmbedding is for embedding vectors used by memory and
	// retrieval ranking.
	CapabilityEmbedding Capability = "embedding"
)

// AgentCapabilities maps pipeline agents to their default capability.
var AgentCapabilities = map[string]Capability{
	"planner":   CapabilityPlanning,
	"executor":  CapabilityGeneration,
	"validator": CapabilityCritique,
}

// CapabilityForAgent returns the default capability for a pipeline agent.
// Unknown agents fall back to CapabilityFast.
func CapabilityForAgent(agent string) Capability {
	if cap, ok := AgentCapabilities[agent]; ok {
		return cap
	}
	return CapabilityFast
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityPlanning, CapabilityGeneration, CapabilityCritique, CapabilityFast, CapabilityEmbedding:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
