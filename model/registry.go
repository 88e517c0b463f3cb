package model

import "sync"

// Registry maps capabilities to preferred models with fallback chains and
// tracks endpoint health for circuit breaking. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaultModel string
	health       map[string]*EndpointHealth
	healthConfig HealthConfig
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Description explains what this capability is for.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Preferred lists models in order of preference.
	Preferred []string `json:"preferred" yaml:"preferred"`

	// Fallback lists backup models if all preferred fail.
	Fallback []string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the model provider (anthropic, openai, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL (for non-Anthropic providers).
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// RegistryConfig is the serializable form of a registry, used by the config
// package and for hot-reload merges.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities" yaml:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints" yaml:"endpoints"`
	Default      string                       `json:"default,omitempty" yaml:"default,omitempty"`
}

// NewRegistry creates a registry with the given configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	if caps == nil {
		caps = make(map[Capability]*CapabilityConfig)
	}
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaultModel: "default",
		health:       make(map[string]*EndpointHealth),
		healthConfig: DefaultHealthConfig(),
	}
}

// NewDefaultRegistry creates a registry with sensible defaults for a local
// Ollama setup with Anthropic preferred where keys are configured.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityPlanning: {
				Description: "Deep analysis, reasoning plan generation",
				Preferred:   []string{"claude-opus", "claude-sonnet"},
				Fallback:    []string{"qwen", "llama3.2"},
			},
			CapabilityGeneration: {
				Description: "Content and template generation",
				Preferred:   []string{"claude-sonnet"},
				Fallback:    []string{"qwen", "llama3.2"},
			},
			CapabilityCritique: {
				Description: "Validation critique, improvement passes",
				Preferred:   []string{"claude-sonnet"},
				Fallback:    []string{"claude-haiku", "qwen"},
			},
			CapabilityFast: {
				Description: "Quick responses, simple tasks",
				Preferred:   []string{"claude-haiku"},
				Fallback:    []string{"llama3.2"},
			},
			CapabilityEmbedding: {
				Description: "Embedding vectors for memory and retrieval",
				Preferred:   []string{"nomic-embed"},
			},
		},
		map[string]*EndpointConfig{
			"claude-opus": {
				Provider:  "anthropic",
				Model:     "claude-opus-4-5-20251101",
				MaxTokens: 200000,
			},
			"claude-sonnet": {
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 200000,
			},
			"claude-haiku": {
				Provider:  "anthropic",
				Model:     "claude-haiku-3-5-20241022",
				MaxTokens: 200000,
			},
			"qwen": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "qwen2.5:14b",
				MaxTokens: 128000,
			},
			"llama3.2": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "llama3.2",
				MaxTokens: 128000,
			},
			"nomic-embed": {
				Provider: "ollama",
				URL:      "http://localhost:11434/v1",
				Model:    "nomic-embed-text",
			},
		},
	)
	r.defaultModel = "qwen"
	return r
}

// FromConfig builds a registry from its serializable form.
func FromConfig(cfg *RegistryConfig) *Registry {
	r := NewRegistry(nil, nil)
	r.Merge(cfg)
	if r.defaultModel == "" {
		r.defaultModel = "default"
	}
	return r
}

// Merge overlays cfg onto the registry. Existing entries are overwritten;
// entries absent from cfg are kept. Used by config hot-reload.
func (r *Registry) Merge(cfg *RegistryConfig) {
	if cfg == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range cfg.Capabilities {
		cap := ParseCapability(k)
		if cap == "" {
			cap = Capability(k)
		}
		r.capabilities[cap] = v
	}
	for k, v := range cfg.Endpoints {
		r.endpoints[k] = v
	}
	if cfg.Default != "" {
		r.defaultModel = cfg.Default
	}
}

// Resolve returns the preferred model for a capability.
func (r *Registry) Resolve(cap Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaultModel
}

// FallbackChain returns all models for a capability in preference order.
func (r *Registry) FallbackChain(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaultModel}
}

// AvailableChain returns the fallback chain filtered to endpoints whose
// circuit is closed. When everything is unavailable the full chain is
// returned, since trying something beats trying nothing.
func (r *Registry) AvailableChain(cap Capability) []string {
	chain := r.FallbackChain(cap)
	available := make([]string, 0, len(chain))

	for _, name := range chain {
		if r.IsEndpointAvailable(name) {
			available = append(available, name)
		}
	}

	if len(available) == 0 {
		return chain
	}
	return available
}

// Endpoint returns the endpoint configuration for a model name, or nil.
func (r *Registry) Endpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(cap Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[cap] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = cfg
}

// SetDefault sets the default model used when no capability matches.
func (r *Registry) SetDefault(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultModel = model
}

// ListCapabilities returns all configured capabilities.
func (r *Registry) ListCapabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]Capability, 0, len(r.capabilities))
	for cap := range r.capabilities {
		caps = append(caps, cap)
	}
	return caps
}

// ListEndpoints returns all configured endpoint names.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	return names
}
