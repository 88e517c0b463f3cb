package main

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(fixtures map[string][]string) *mockBackend {
	return &mockBackend{fixtures: fixtures, calls: map[string]int{}}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func chatContent(t *testing.T, resp map[string]any) string {
	t.Helper()
	choices := resp["choices"].([]any)
	require.NotEmpty(t, choices)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	return msg["content"].(string)
}

func TestChatServesSequencedFixtures(t *testing.T) {
	b := newTestBackend(map[string][]string{
		"planner": {"first", "second"},
	})

	req := chatRequest{Model: "planner", Messages: []chatMessage{{Role: "user", Content: "hi"}}}
	assert.Equal(t, "first", chatContent(t, postJSON(t, b.handleChat, req)))
	assert.Equal(t, "second", chatContent(t, postJSON(t, b.handleChat, req)))
	// Sequence exhausted, last entry repeats.
	assert.Equal(t, "second", chatContent(t, postJSON(t, b.handleChat, req)))
}

func TestChatStreamsSSE(t *testing.T) {
	long := strings.Repeat("stream me ", 20) // forces more than one delta
	b := newTestBackend(map[string][]string{"planner": {long}})

	raw, err := json.Marshal(chatRequest{Model: "planner", Stream: true})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	b.handleChat(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var assembled strings.Builder
	deltas := 0
	sawStop := false
	sawDone := false
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			sawDone = true
			continue
		}
		var chunk map[string]any
		require.NoError(t, json.Unmarshal([]byte(data), &chunk))
		choice := chunk["choices"].([]any)[0].(map[string]any)
		if fr, ok := choice["finish_reason"].(string); ok && fr == "stop" {
			sawStop = true
		}
		if content, ok := choice["delta"].(map[string]any)["content"].(string); ok {
			assembled.WriteString(content)
			deltas++
		}
	}

	assert.Equal(t, long, assembled.String())
	assert.Greater(t, deltas, 1)
	assert.True(t, sawStop)
	assert.True(t, sawDone)
}

func TestChatFallbackTerminatesLoop(t *testing.T) {
	b := newTestBackend(nil)
	resp := postJSON(t, b.handleChat, chatRequest{Model: "unknown"})
	assert.Contains(t, chatContent(t, resp), "FINAL_ANSWER")
}

func TestEmbeddingsDeterministic(t *testing.T) {
	b := newTestBackend(nil)

	first := postJSON(t, b.handleEmbeddings, embedRequest{Model: "embed", Input: "plan the course"})
	second := postJSON(t, b.handleEmbeddings, embedRequest{Model: "embed", Input: "plan the course"})
	assert.Equal(t, first["data"], second["data"])

	vec := first["data"].([]any)[0].(map[string]any)["embedding"].([]any)
	require.Len(t, vec, 64)

	var norm float64
	for _, v := range vec {
		norm += v.(float64) * v.(float64)
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestPseudoEmbeddingEmptyInput(t *testing.T) {
	vec := pseudoEmbedding("", 8)
	require.Len(t, vec, 8)
	assert.Equal(t, 1.0, vec[0])
	assert.False(t, math.IsNaN(vec[1]))
}

func TestLoadFixturesOrdersNumberedBeforeBase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewer.2.txt"), []byte("two"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewer.1.txt"), []byte("one"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewer.txt"), []byte("tail"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.log"), []byte("skip"), 0644))

	fixtures, err := loadFixtures(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "tail"}, fixtures["reviewer"])
	assert.NotContains(t, fixtures, "notes")
}
