// Package llm provides a provider-agnostic LLM client with retry and
// fallback support. Model selection is capability-based through the
// model.Registry rather than hardcoded model names.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/thinker/metrics"
	"github.com/c360studio/thinker/model"
)

// maxResponseSize limits the response body read to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an LLM completion request.
type Request struct {
	// Capability selects the model class ("planning", "generation",
	// "critique", "fast"). The registry resolves it to concrete endpoints.
	Capability string

	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// Temp returns a pointer to a temperature value for use in Request.
func Temp(v float64) *float64 { return &v }

// TokenUsage reports token consumption for a call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the completion result.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the model that actually served the request.
	Model string

	// Usage contains token consumption metrics when the provider reports them.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Client calls LLM endpoints with retry, fallback chains, and circuit
// breaking driven by endpoint health in the registry.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client backed by the given model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for slow completions
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request, walking the capability's fallback
// chain until an endpoint succeeds or a fatal error is hit.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Capability == "" {
		return nil, fmt.Errorf("capability is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	start := time.Now()
	defer func() {
		metrics.LLMCallDuration.WithLabelValues(req.Capability).Observe(time.Since(start).Seconds())
	}()

	capVal := model.ParseCapability(req.Capability)
	if capVal == "" {
		capVal = model.CapabilityFast
	}
	chain := c.registry.AvailableChain(capVal)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured for capability %s", req.Capability)
	}

	var lastErr error
	for _, modelName := range chain {
		endpoint := c.registry.Endpoint(modelName)
		if endpoint == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", modelName)
			continue
		}

		resp, err := c.tryEndpoint(ctx, endpoint, modelName, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		c.logger.Warn("Endpoint failed, trying fallback",
			"model", modelName,
			"provider", endpoint.Provider,
			"error", err)

		if IsFatal(err) {
			c.logger.Warn("Fatal error, not trying fallbacks", "error", err)
			return nil, err
		}
	}

	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// Embed computes an embedding vector for the given text using the embedding
// capability's chain. Endpoints whose provider has no embeddings API are
// skipped.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	chain := c.registry.AvailableChain(model.CapabilityEmbedding)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured for capability embedding")
	}

	var lastErr error
	for _, modelName := range chain {
		endpoint := c.registry.Endpoint(modelName)
		if endpoint == nil {
			continue
		}
		provider := GetProvider(endpoint.Provider)
		embedder, ok := provider.(EmbeddingProvider)
		if !ok {
			c.logger.Debug("Provider has no embeddings API, skipping",
				"provider", endpoint.Provider)
			continue
		}

		vec, err := c.doEmbed(ctx, provider, embedder, endpoint, text)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return vec, nil
		}
		lastErr = err
		if IsFatal(err) {
			return nil, err
		}
		c.registry.MarkEndpointFailure(modelName)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no embedding-capable endpoints available")
	}
	return nil, fmt.Errorf("embed failed: %w", lastErr)
}

// tryEndpoint attempts a request against one endpoint with retry.
func (c *Client) tryEndpoint(ctx context.Context, ep *model.EndpointConfig, modelName string, req Request) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return resp, nil
		}

		lastErr = err

		// Fatal errors indicate config problems, not endpoint health.
		if IsFatal(err) {
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.retryConfig.backoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(modelName)
	return nil, lastErr
}

// doRequest executes a single HTTP request to the endpoint.
func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)
	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages))

	respBody, err := c.post(ctx, url, body, provider.SetHeaders)
	if err != nil {
		return nil, err
	}

	return provider.ParseResponse(respBody, ep.Model)
}

// doEmbed executes a single embedding request.
func (c *Client) doEmbed(ctx context.Context, provider Provider, embedder EmbeddingProvider, ep *model.EndpointConfig, input string) ([]float64, error) {
	url := embedder.BuildEmbeddingURL(ep.URL)
	body, err := embedder.BuildEmbeddingBody(ep.Model, input)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build embedding body: %w", err))
	}

	respBody, err := c.post(ctx, url, body, provider.SetHeaders)
	if err != nil {
		return nil, err
	}

	return embedder.ParseEmbedding(respBody)
}

// post sends a JSON POST and returns the response body, classifying
// transport and HTTP errors as transient or fatal.
func (c *Client) post(ctx context.Context, url string, body []byte, setHeaders func(*http.Request)) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}
