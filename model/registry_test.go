package model

import "testing"

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	caps := r.ListCapabilities()
	if len(caps) != 5 {
		t.Errorf("expected 5 capabilities, got %d", len(caps))
	}

	endpoints := r.ListEndpoints()
	if len(endpoints) < 3 {
		t.Errorf("expected at least 3 endpoints, got %d", len(endpoints))
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		capability Capability
		expected   string
	}{
		{CapabilityPlanning, "claude-opus"},
		{CapabilityGeneration, "claude-sonnet"},
		{CapabilityCritique, "claude-sonnet"},
		{CapabilityFast, "claude-haiku"},
		{CapabilityEmbedding, "nomic-embed"},
		{Capability("unknown"), "qwen"}, // Falls back to default
	}

	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			got := r.Resolve(tt.capability)
			if got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.capability, got, tt.expected)
			}
		})
	}
}

func TestFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	chain := r.FallbackChain(CapabilityPlanning)
	if len(chain) != 4 {
		t.Fatalf("expected 4 models in planning chain, got %d: %v", len(chain), chain)
	}
	if chain[0] != "claude-opus" {
		t.Errorf("expected preferred model first, got %q", chain[0])
	}
	if chain[len(chain)-1] != "llama3.2" {
		t.Errorf("expected fallback model last, got %q", chain[len(chain)-1])
	}

	// Unknown capability returns only the default
	chain = r.FallbackChain(Capability("unknown"))
	if len(chain) != 1 || chain[0] != "qwen" {
		t.Errorf("expected [qwen], got %v", chain)
	}
}

func TestAvailableChain_FiltersOpenCircuits(t *testing.T) {
	r := NewDefaultRegistry()

	// Open the circuit on the preferred planning model
	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("claude-opus")
	}

	chain := r.AvailableChain(CapabilityPlanning)
	for _, name := range chain {
		if name == "claude-opus" {
			t.Error("expected claude-opus to be filtered out while circuit is open")
		}
	}
}

func TestAvailableChain_AllUnavailableReturnsFull(t *testing.T) {
	r := NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityFast: {Preferred: []string{"only"}},
		},
		map[string]*EndpointConfig{
			"only": {Provider: "ollama", Model: "only"},
		},
	)

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("only")
	}

	chain := r.AvailableChain(CapabilityFast)
	if len(chain) != 1 {
		t.Errorf("expected full chain when everything is unavailable, got %v", chain)
	}
}

func TestRegistryMerge(t *testing.T) {
	r := NewDefaultRegistry()

	r.Merge(&RegistryConfig{
		Capabilities: map[string]*CapabilityConfig{
			"planning": {Preferred: []string{"local-only"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"local-only": {Provider: "ollama", Model: "local-only"},
		},
		Default: "local-only",
	})

	if got := r.Resolve(CapabilityPlanning); got != "local-only" {
		t.Errorf("expected merged preference, got %q", got)
	}
	if r.Endpoint("local-only") == nil {
		t.Error("expected merged endpoint")
	}
	// Untouched capabilities survive the merge
	if got := r.Resolve(CapabilityCritique); got != "claude-sonnet" {
		t.Errorf("expected critique preference untouched, got %q", got)
	}
}

func TestFromConfig(t *testing.T) {
	r := FromConfig(&RegistryConfig{
		Capabilities: map[string]*CapabilityConfig{
			"fast": {Preferred: []string{"m1"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"m1": {Provider: "ollama", Model: "m1"},
		},
	})

	if got := r.Resolve(CapabilityFast); got != "m1" {
		t.Errorf("expected m1, got %q", got)
	}
}
