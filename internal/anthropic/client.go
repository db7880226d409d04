// Package anthropic implements a minimal Anthropic Messages API client:
// one streaming call for chat turns and one non-streaming call for file
// analysis. Wire events are translated into the closed Event union at this
// boundary; nothing downstream sees raw SSE payloads.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noesis-labs/noesis/internal/config"
	"github.com/noesis-labs/noesis/pkg/schema"
)

const apiVersion = "2023-06-01"

// Sentinel errors for upstream failure classes.
var (
	ErrUnauthorized = errors.New("anthropic: unauthorized")
	ErrRateLimited  = errors.New("anthropic: rate limited")
	ErrUnavailable  = errors.New("anthropic: service unavailable")
)

// Client calls the Anthropic Messages API.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewClient builds a Client from upstream configuration.
func NewClient(cfg config.AnthropicConfig) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// Configured reports whether the client has an API key.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// StreamMessages starts one streaming model turn and returns a channel of
// decoded events. The channel is closed after message_stop, after a
// stream_error event, or when ctx is cancelled. The returned error covers
// request setup and non-2xx responses only; mid-stream failures arrive as
// a stream_error event.
func (c *Client) StreamMessages(ctx context.Context, req MessageRequest) (<-chan Event, error) {
	resp, err := c.post(ctx, c.buildPayload(req, true))
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		c.scanStream(ctx, resp.Body, events)
	}()
	return events, nil
}

// Complete issues one non-streaming model turn and returns the concatenated
// text content plus token usage.
func (c *Client) Complete(ctx context.Context, req MessageRequest) (string, schema.Usage, error) {
	resp, err := c.post(ctx, c.buildPayload(req, false))
	if err != nil {
		return "", schema.Usage{}, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage wireUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", schema.Usage{}, fmt.Errorf("decode response: %w", err)
	}

	var buf strings.Builder
	for _, item := range envelope.Content {
		if item.Type == "text" {
			buf.WriteString(item.Text)
		}
	}
	if buf.Len() == 0 {
		return "", schema.Usage{}, errors.New("anthropic empty response")
	}
	usage := schema.Usage{InputTokens: envelope.Usage.InputTokens, OutputTokens: envelope.Usage.OutputTokens}
	return buf.String(), usage, nil
}

func (c *Client) buildPayload(req MessageRequest, stream bool) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, map[string]any{
			"role":    strings.ToLower(strings.TrimSpace(msg.Role)),
			"content": msg.Content,
		})
	}
	payload := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"messages":    messages,
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	if len(req.Tools) > 0 {
		payload["tools"] = req.Tools
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

func (c *Client) post(ctx context.Context, payload map[string]any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic error: %s - %s", resp.Status, string(errorBody))
	}
	return resp, nil
}

// wire structures for SSE payload decoding.

type wireUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type wireEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage wireUsage `json:"usage"`
	} `json:"message,omitempty"`
	ContentBlock *struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"content_block,omitempty"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta,omitempty"`
	Usage *wireUsage `json:"usage,omitempty"`
}

// scanStream reads the SSE body line by line and pushes decoded events.
// Input token usage arrives on message_start and output tokens on
// message_delta; both are folded into the final message_stop event so
// consumers see usage exactly once.
func (c *Client) scanStream(ctx context.Context, body io.Reader, events chan<- Event) {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 2*1024*1024)

	var usage schema.Usage
	sawUsage := false

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var ev wireEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}

		var out Event
		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				usage.InputTokens = ev.Message.Usage.InputTokens
				sawUsage = true
			}
			continue
		case "content_block_start":
			out = Event{Kind: KindBlockStart, Block: BlockOther}
			if ev.ContentBlock != nil {
				switch ev.ContentBlock.Type {
				case "text":
					out.Block = BlockText
				case "tool_use":
					out.Block = BlockToolUse
					out.ToolName = ev.ContentBlock.Name
				}
			}
		case "content_block_delta":
			out = Event{Kind: KindBlockDelta}
			if ev.Delta != nil {
				out.Text = ev.Delta.Text
				out.PartialJSON = ev.Delta.PartialJSON
			}
		case "content_block_stop":
			out = Event{Kind: KindBlockStop}
		case "message_delta":
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
				sawUsage = true
			}
			continue
		case "message_stop":
			out = Event{Kind: KindMessageStop}
			if sawUsage {
				u := usage
				out.Usage = &u
			}
		default:
			// ping and future event kinds are dropped here.
			continue
		}

		select {
		case events <- out:
		case <-ctx.Done():
			return
		}
		if out.Kind == KindMessageStop {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case events <- Event{Kind: KindStreamError, Err: err}:
		case <-ctx.Done():
		}
	}
}
