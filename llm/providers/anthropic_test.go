package providers

import (
	"encoding/json"
	"testing"

	"github.com/c360studio/thinker/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_BuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "https://api.anthropic.com/v1/messages",
		},
		{
			name:    "custom base URL",
			baseURL: "https://custom.api.com",
			want:    "https://custom.api.com/v1/messages",
		},
		{
			name:    "trailing slash handled",
			baseURL: "https://api.anthropic.com/",
			want:    "https://api.anthropic.com/v1/messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestAnthropicProvider_BuildRequestBody(t *testing.T) {
	p := &AnthropicProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there!"},
		{Role: "user", Content: "How are you?"},
	}

	temp := 0.7
	body, err := p.BuildRequestBody("claude-sonnet", messages, &temp, 2048)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))

	// System message is lifted out of the message list
	assert.Equal(t, "You are helpful.", req["system"])
	assert.Len(t, req["messages"], 3)
	assert.Equal(t, float64(2048), req["max_tokens"])
}

func TestAnthropicProvider_BuildRequestBody_DefaultMaxTokens(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-sonnet", []llm.Message{{Role: "user", Content: "hi"}}, nil, 0)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, float64(4096), req["max_tokens"], "max_tokens is required by the API")
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	body := []byte(`{
		"content": [{"type": "text", "text": "Part one. "}, {"type": "text", "text": "Part two."}],
		"model": "claude-sonnet",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 12, "output_tokens": 6}
	}`)

	resp, err := p.ParseResponse(body, "claude-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "Part one. Part two.", resp.Content)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)
}

func TestAnthropicProvider_NoEmbeddings(t *testing.T) {
	var p any = &AnthropicProvider{}
	_, ok := p.(llm.EmbeddingProvider)
	assert.False(t, ok, "anthropic has no embeddings API")
}
