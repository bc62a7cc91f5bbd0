// Package fal is a minimal client for the fal.ai synchronous inference
// endpoint (https://fal.run/{model}). Requests and responses are loosely
// typed JSON; the caller interprets the payload.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultBaseURL = "https://fal.run"

// maxErrorBody caps how much of an error response lands in logs.
const maxErrorBody = 512

// APIError is a non-2xx response from the fal endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fal: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Categorical reports whether the error indicates misconfiguration of the
// credential or model, as opposed to a transient failure. Categorical
// errors justify taking the provider out of rotation.
func (e *APIError) Categorical() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// Client calls the fal.run synchronous API with a single credential.
type Client struct {
	apiKey  string
	baseURL string
	hc      *http.Client
}

// New creates a Client for the given API key. The per-call deadline comes
// from the caller's context, not the embedded http.Client.
func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		hc:      &http.Client{Timeout: 5 * time.Minute},
	}
}

// SetBaseURL overrides the endpoint root. Used by tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// Run submits args to the model and returns the decoded JSON response.
func (c *Client) Run(ctx context.Context, model string, args map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("fal: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("fal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fal: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("fal: decode response: %w", err)
	}

	slog.Debug("fal request complete", "model", model, "duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}
