package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/thinker/metrics"
	"github.com/c360studio/thinker/model"
)

// maxStreamLineSize bounds a single SSE line from a streaming endpoint.
const maxStreamLineSize = 1024 * 1024

// StreamChunk is one increment of a streamed completion.
type StreamChunk struct {
	Content      string
	FinishReason string
	Done         bool
}

// Stream sends a completion request and delivers generated text
// incrementally through onChunk, returning the assembled response. The
// fallback chain is walked like Complete; endpoints whose provider cannot
// stream are served with a regular completion delivered as one chunk. Once
// any text has been delivered, a failure is returned rather than retried so
// the caller never sees duplicated chunks.
func (c *Client) Stream(ctx context.Context, req Request, onChunk func(string)) (*Response, error) {
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

		provider := GetProvider(endpoint.Provider)
		if provider == nil {
			return nil, NewFatalError(fmt.Errorf("unknown provider: %s", endpoint.Provider))
		}

		streamer, ok := provider.(StreamingProvider)
		if !ok {
			resp, err := c.tryEndpoint(ctx, endpoint, modelName, req)
			if err == nil {
				if onChunk != nil && resp.Content != "" {
					onChunk(resp.Content)
				}
				return resp, nil
			}
			lastErr = err
			if IsFatal(err) {
				return nil, err
			}
			continue
		}

		resp, delivered, err := c.doStream(ctx, provider, streamer, endpoint, req, onChunk)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return resp, nil
		}
		c.registry.MarkEndpointFailure(modelName)
		if delivered || IsFatal(err) {
			return nil, err
		}
		lastErr = err

		c.logger.Warn("Stream endpoint failed, trying fallback",
			"model", modelName,
			"provider", endpoint.Provider,
			"error", err)
	}

	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// doStream executes one streamed request, feeding decoded chunks to onChunk.
// The second return reports whether any text reached the caller before the
// error, which forbids falling over to another endpoint.
func (c *Client) doStream(ctx context.Context, provider Provider, streamer StreamingProvider, ep *model.EndpointConfig, req Request, onChunk func(string)) (*Response, bool, error) {
	url := provider.BuildURL(ep.URL)
	body, err := streamer.BuildStreamBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, false, NewFatalError(fmt.Errorf("build stream body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, false, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
		return nil, false, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	var content strings.Builder
	finish := ""
	delivered := false

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		chunk, err := streamer.ParseStreamChunk([]byte(data))
		if err != nil {
			return nil, delivered, NewTransientError(fmt.Errorf("parse stream chunk: %w", err))
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if onChunk != nil {
				onChunk(chunk.Content)
			}
			delivered = true
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, delivered, NewTransientError(fmt.Errorf("read stream: %w", err))
	}

	return &Response{
		Content:      content.String(),
		Model:        ep.Model,
		FinishReason: finish,
	}, delivered, nil
}
