// Package usage records per-turn token consumption and cost estimates.
// Recording is best-effort: a failed write is logged and discarded, never
// surfaced to the request that produced it.
package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Entry is one recorded model turn.
type Entry struct {
	Identity     string    `json:"identity"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	CostEstimate float64   `json:"cost_estimate"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ledger persists usage entries.
type Ledger interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// NopLedger drops every entry. Used when accounting is disabled.
type NopLedger struct{}

func (NopLedger) Record(context.Context, *Entry) error { return nil }
func (NopLedger) Close() error                         { return nil }

// HTTPLedger posts entries to an external accounting endpoint.
type HTTPLedger struct {
	endpoint string
	client   *http.Client
}

// NewHTTPLedger builds a ledger that POSTs to the given endpoint.
func NewHTTPLedger(endpoint string) *HTTPLedger {
	return &HTTPLedger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (l *HTTPLedger) Record(ctx context.Context, entry *Entry) error {
	body, err := json.Marshal(map[string]any{
		"identity":      entry.Identity,
		"total_tokens":  entry.TotalTokens,
		"cost_estimate": entry.CostEstimate,
	})
	if err != nil {
		return fmt.Errorf("marshal usage entry: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("post usage entry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("usage endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (l *HTTPLedger) Close() error { return nil }
