// Package testutil provides test doubles for the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/thinker/llm"
)

// MockLLMClient is a thread-safe scripted LLM client for tests. Responses
// are returned in sequence; Err takes precedence when set.
//
// Usage:
//
//	mock := &testutil.MockLLMClient{
//	    Responses: []*llm.Response{
//	        {Content: `{"result": "success"}`, Model: "test-model"},
//	    },
//	}
type MockLLMClient struct {
	mu              sync.Mutex
	Responses       []*llm.Response // Responses to return in sequence
	Err             error           // Error to return (takes precedence over Responses)
	Embedding       []float64       // Vector returned by Embed
	EmbedErr        error           // Error returned by Embed
	StreamChunkSize int             // Chunk size for Stream; 0 delivers one chunk
	requests        []llm.Request
	callCount       int
	responseIndex   int
}

// Complete returns the next scripted response, or Err if set.
// When the script runs out, an empty response is returned.
func (m *MockLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	m.callCount++

	if m.Err != nil {
		return nil, m.Err
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// Stream returns the next scripted response, delivering its content through
// onChunk split at StreamChunkSize (the whole content as one chunk when
// unset) so streaming code paths are exercised in tests.
func (m *MockLLMClient) Stream(ctx context.Context, req llm.Request, onChunk func(string)) (*llm.Response, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	size := m.StreamChunkSize
	m.mu.Unlock()
	if size <= 0 {
		size = len(resp.Content)
	}

	if onChunk != nil {
		for start := 0; start < len(resp.Content); start += size {
			end := start + size
			if end > len(resp.Content) {
				end = len(resp.Content)
			}
			onChunk(resp.Content[start:end])
		}
	}
	return resp, nil
}

// Embed returns the configured embedding, or a fixed small vector when none
// is configured so ranking code has something to work with.
func (m *MockLLMClient) Embed(_ context.Context, _ string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	if m.Embedding != nil {
		return m.Embedding, nil
	}
	return []float64{1, 0, 0}, nil
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of all captured Complete requests.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// LastRequest returns the most recent Complete request, or a zero Request.
func (m *MockLLMClient) LastRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return llm.Request{}
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears captured state so the mock can be reused across cases.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.responseIndex = 0
	m.requests = nil
}
