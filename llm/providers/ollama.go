package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/thinker/llm"
)

// OllamaProvider implements the OpenAI-compatible API used by Ollama, vLLM,
// and similar local runtimes. It also serves embeddings through the
// OpenAI-compatible /embeddings endpoint.
type OllamaProvider struct{}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildURL constructs the chat completions endpoint.
func (o *OllamaProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}

	return baseURL + "/chat/completions"
}

// SetHeaders adds OpenAI-compatible headers.
func (o *OllamaProvider) SetHeaders(req *http.Request) {
	// API key for OpenRouter, vLLM, etc. Plain Ollama ignores it.
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// openAIRequest is the OpenAI-compatible request format.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildOpenAIRequest(model string, messages []llm.Message, temperature *float64, maxTokens int) openAIRequest {
	apiMessages := make([]openAIMessage, len(messages))
	for i, msg := range messages {
		apiMessages[i] = openAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openAIRequest{
		Model:       model,
		Messages:    apiMessages,
		Temperature: temperature, // nil = use default, 0 = deterministic
	}

	// Only set max_tokens if explicitly provided
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return req
}

// BuildRequestBody creates the OpenAI-compatible request body.
func (o *OllamaProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(buildOpenAIRequest(model, messages, temperature, maxTokens))
}

// openAIStreamRequest is the chat request with streaming enabled.
type openAIStreamRequest struct {
	openAIRequest
	Stream bool `json:"stream"`
}

// BuildStreamBody creates the request body for a streamed completion.
func (o *OllamaProvider) BuildStreamBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(openAIStreamRequest{
		openAIRequest: buildOpenAIRequest(model, messages, temperature, maxTokens),
		Stream:        true,
	})
}

// openAIStreamChunk is one SSE data payload of a streamed completion.
type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ParseStreamChunk extracts the text delta from a streamed chunk. The stream
// ends when a choice carries a finish reason; the "[DONE]" sentinel is
// handled by the client.
func (o *OllamaProvider) ParseStreamChunk(data []byte) (llm.StreamChunk, error) {
	var chunk openAIStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return llm.StreamChunk{}, fmt.Errorf("parse openai stream chunk: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return llm.StreamChunk{}, nil
	}

	choice := chunk.Choices[0]
	return llm.StreamChunk{
		Content:      choice.Delta.Content,
		FinishReason: choice.FinishReason,
		Done:         choice.FinishReason != "",
	}, nil
}

// openAIResponse is the OpenAI-compatible response format.
type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts content from an OpenAI-compatible response.
func (o *OllamaProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}

// BuildEmbeddingURL constructs the OpenAI-compatible embeddings endpoint.
func (o *OllamaProvider) BuildEmbeddingURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/chat/completions")

	return baseURL + "/embeddings"
}

// embeddingRequest is the OpenAI-compatible embeddings request format.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// BuildEmbeddingBody creates the embeddings request body.
func (o *OllamaProvider) BuildEmbeddingBody(model, input string) ([]byte, error) {
	return json.Marshal(embeddingRequest{Model: model, Input: input})
}

// embeddingResponse is the OpenAI-compatible embeddings response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// ParseEmbedding extracts the vector from an embeddings response.
func (o *OllamaProvider) ParseEmbedding(body []byte) ([]float64, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}
	return resp.Data[0].Embedding, nil
}
