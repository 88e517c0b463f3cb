// Package main implements a mock LLM backend for offline development.
// It serves OpenAI-compatible /v1/chat/completions and /v1/embeddings so the
// whole pipeline (planning, execution, validation, memory, retrieval) can run
// against the "ollama" provider without a real model.
//
// Usage:
//
//	mock-llm -fixtures ./fixtures -port 11434
//
// Fixture files are markdown or text named by model ("planner.txt" answers
// model "planner"). Numbered files ("planner.1.txt", "planner.2.txt") are
// served in order per model, with the base file repeating once the sequence
// is exhausted. Without a fixture for the requested model the server echoes a
// canned FINAL_ANSWER so the execution loop still terminates.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const fallbackAnswer = "THOUGHT: No fixture configured for this model.\n" +
	"ACTION: FINAL_ANSWER - # Mock Output\nThis response came from the mock LLM backend."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type mockBackend struct {
	fixtures map[string][]string

	mu    sync.Mutex
	calls map[string]int
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory of fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	b := &mockBackend{
		fixtures: map[string][]string{},
		calls:    map[string]int{},
	}
	if *fixtureDir != "" {
		fixtures, err := loadFixtures(*fixtureDir)
		if err != nil {
			log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
		}
		b.fixtures = fixtures
		for model, seq := range fixtures {
			log.Printf("fixture model %s: %d response(s)", model, len(seq))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", b.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", b.handleChat)
	mux.HandleFunc("POST /v1/embeddings", b.handleEmbeddings)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock LLM backend listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (b *mockBackend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (b *mockBackend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	content := b.nextResponse(req.Model)
	log.Printf("chat model=%s messages=%d bytes=%d stream=%v", req.Model, len(req.Messages), len(content), req.Stream)

	if req.Stream {
		writeChatStream(w, req.Model, content)
		return
	}

	writeJSON(w, map[string]any{
		"id":      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       chatMessage{Role: "assistant", Content: content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     len(content) / 4,
			"completion_tokens": len(content) / 4,
			"total_tokens":      len(content) / 2,
		},
	})
}

// handleEmbeddings returns a deterministic unit vector derived from the input
// text, so equal texts embed identically and cosine ranking behaves sanely.
func (b *mockBackend) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"object": "list",
		"model":  req.Model,
		"data": []map[string]any{{
			"object":    "embedding",
			"index":     0,
			"embedding": pseudoEmbedding(req.Input, 64),
		}},
	})
}

// nextResponse picks the fixture for the model's Nth call, repeating the last
// entry once the sequence runs out.
func (b *mockBackend) nextResponse(model string) string {
	b.mu.Lock()
	n := b.calls[model]
	b.calls[model] = n + 1
	b.mu.Unlock()

	seq, ok := b.fixtures[model]
	if !ok || len(seq) == 0 {
		return fallbackAnswer
	}
	if n >= len(seq) {
		n = len(seq) - 1
	}
	return seq[n]
}

// pseudoEmbedding hashes overlapping trigrams of the text into a fixed-size
// vector and normalizes it.
func pseudoEmbedding(text string, dim int) []float64 {
	vec := make([]float64, dim)
	words := strings.Fields(strings.ToLower(text))
	for _, word := range words {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[int(h.Sum32())%dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.(txt|md|json)$`)

// loadFixtures maps model names to ordered response sequences. Numbered files
// come first in numeric order, then the base file as the repeating tail.
func loadFixtures(dir string) (map[string][]string, error) {
	base := map[string]string{}
	numbered := map[string]map[int]string{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".txt" && ext != ".md" && ext != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		if m := numberedFileRe.FindStringSubmatch(name); m != nil {
			idx, _ := strconv.Atoi(m[2])
			if numbered[m[1]] == nil {
				numbered[m[1]] = map[int]string{}
			}
			numbered[m[1]][idx] = string(data)
			continue
		}
		base[strings.TrimSuffix(name, ext)] = string(data)
	}

	fixtures := map[string][]string{}
	for model, byIndex := range numbered {
		indices := make([]int, 0, len(byIndex))
		for i := range byIndex {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			fixtures[model] = append(fixtures[model], byIndex[i])
		}
	}
	for model, content := range base {
		fixtures[model] = append(fixtures[model], content)
	}
	return fixtures, nil
}

// streamChunkSize is how much fixture text each SSE delta carries.
const streamChunkSize = 64

// writeChatStream serves the content as OpenAI-compatible SSE deltas ending
// with a finish_reason chunk and the [DONE] sentinel.
func writeChatStream(w http.ResponseWriter, model, content string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	writeDelta := func(delta map[string]any, finish any) {
		data, _ := json.Marshal(map[string]any{
			"id":      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   model,
			"choices": []map[string]any{{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	for start := 0; start < len(content); start += streamChunkSize {
		end := start + streamChunkSize
		if end > len(content) {
			end = len(content)
		}
		writeDelta(map[string]any{"content": content[start:end]}, nil)
	}
	writeDelta(map[string]any{}, "stop")
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
