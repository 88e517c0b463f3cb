package llm

import (
	"net/http"
	"sync"
)

// Provider adapts a model API (anthropic, openai, ollama) to the client.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// BuildURL constructs the completion endpoint URL.
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific headers to the request.
	SetHeaders(req *http.Request)

	// BuildRequestBody creates the JSON request body.
	// temperature is nil to use the provider default.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse extracts the completion from provider-specific JSON.
	ParseResponse(body []byte, model string) (*Response, error)
}

// StreamingProvider is implemented by providers whose API can stream
// completions over server-sent events. Client.Stream serves endpoints
// without it through a regular completion delivered as a single chunk.
type StreamingProvider interface {
	// BuildStreamBody creates the JSON request body for a streamed call.
	BuildStreamBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseStreamChunk decodes one SSE data payload. Events that carry no
	// text yield an empty Content.
	ParseStreamChunk(data []byte) (StreamChunk, error)
}

// EmbeddingProvider is implemented by providers that expose an embeddings
// endpoint. Providers without one are skipped by Client.Embed.
type EmbeddingProvider interface {
	// BuildEmbeddingURL constructs the embeddings endpoint URL.
	BuildEmbeddingURL(baseURL string) string

	// BuildEmbeddingBody creates the JSON request body for an embedding call.
	BuildEmbeddingBody(model, input string) ([]byte, error)

	// ParseEmbedding extracts the vector from provider-specific JSON.
	ParseEmbedding(body []byte) ([]float64, error)
}

var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry. Called from provider
// package init functions.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name, or nil if unregistered.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	return names
}
