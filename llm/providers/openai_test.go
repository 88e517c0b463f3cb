package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenAIProvider_Name(t *testing.T) {
	p := &OpenAIProvider{}
	assert.Equal(t, "openai", p.Name())
}

func TestOpenAIProvider_BuildURL(t *testing.T) {
	p := &OpenAIProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "https://api.openai.com/v1/chat/completions",
		},
		{
			name:    "custom base URL (OpenRouter)",
			baseURL: "https://openrouter.ai/api/v1",
			want:    "https://openrouter.ai/api/v1/chat/completions",
		},
		{
			name:    "trailing slash handled",
			baseURL: "https://api.openai.com/v1/",
			want:    "https://api.openai.com/v1/chat/completions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestOpenAIProvider_BuildEmbeddingURL_Default(t *testing.T) {
	p := &OpenAIProvider{}
	assert.Equal(t, "https://api.openai.com/v1/embeddings", p.BuildEmbeddingURL(""))
}
