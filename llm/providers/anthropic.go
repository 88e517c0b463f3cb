// Package providers implements LLM provider adapters.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/thinker/llm"
)

// AnthropicProvider implements the Anthropic Messages API.
// Anthropic exposes no embeddings endpoint, so this provider does not
// implement llm.EmbeddingProvider.
type AnthropicProvider struct{}

// anthropicVersion is the API version to use.
const anthropicVersion = "2023-06-01"

func init() {
	llm.RegisterProvider(&AnthropicProvider{})
}

// Name returns the provider identifier.
func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

// BuildURL constructs the Anthropic messages endpoint.
func (a *AnthropicProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return baseURL + "/v1/messages"
}

// SetHeaders adds Anthropic authentication headers.
func (a *AnthropicProvider) SetHeaders(req *http.Request) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	req.Header.Set("anthropic-version", anthropicVersion)
}

// anthropicRequest is the Anthropic API request format.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildAnthropicRequest(model string, messages []llm.Message, temperature *float64, maxTokens int) anthropicRequest {
	var systemPrompt string
	var apiMessages []anthropicMessage

	for _, msg := range messages {
		if msg.Role == "system" {
			systemPrompt = msg.Content
		} else {
			apiMessages = append(apiMessages, anthropicMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}

	// max_tokens is required by the API
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    apiMessages,
		System:      systemPrompt,
		Temperature: temperature,
	}
}

// BuildRequestBody creates the Anthropic API request body.
// The system message is lifted out of the message list into the top-level
// system field as the API requires.
func (a *AnthropicProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(buildAnthropicRequest(model, messages, temperature, maxTokens))
}

// anthropicStreamRequest is the messages request with streaming enabled.
type anthropicStreamRequest struct {
	anthropicRequest
	Stream bool `json:"stream"`
}

// BuildStreamBody creates the request body for a streamed completion.
func (a *AnthropicProvider) BuildStreamBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(anthropicStreamRequest{
		anthropicRequest: buildAnthropicRequest(model, messages, temperature, maxTokens),
		Stream:           true,
	})
}

// anthropicStreamEvent is one SSE data payload of a streamed message. Text
// arrives in content_block_delta events; the stop reason in message_delta;
// message_stop ends the stream.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}

// ParseStreamChunk extracts the text delta from a streamed event.
func (a *AnthropicProvider) ParseStreamChunk(data []byte) (llm.StreamChunk, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return llm.StreamChunk{}, fmt.Errorf("parse anthropic stream event: %w", err)
	}

	switch ev.Type {
	case "content_block_delta":
		return llm.StreamChunk{Content: ev.Delta.Text}, nil
	case "message_delta":
		return llm.StreamChunk{FinishReason: ev.Delta.StopReason}, nil
	case "message_stop":
		return llm.StreamChunk{Done: true}, nil
	default:
		// Ping, message_start and content_block boundaries carry no text.
		return llm.StreamChunk{}, nil
	}
}

// anthropicResponse is the Anthropic API response format.
type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason"`
	StopSequence string `json:"stop_sequence,omitempty"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts content from an Anthropic response.
func (a *AnthropicProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	totalTokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	return &llm.Response{
		Content: content,
		Model:   resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      totalTokens,
		},
		FinishReason: resp.StopReason,
	}, nil
}
