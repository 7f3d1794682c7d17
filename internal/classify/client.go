// Package classify wraps the external natural-language classification
// service used for severity and category signals.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"travelriskbackend/internal/alerts"
)

// ErrServiceUnavailable signals the classification service could not be
// reached; callers fall back to the keyword heuristic.
var ErrServiceUnavailable = errors.New("classify: service unavailable")

const defaultBaseURL = "https://classify.internal/v1"

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Category string             `json:"category"`
	Country  string             `json:"country"`
	Region   string             `json:"region"`
	Signals  map[string]float64 `json:"signals"`
}

// Client is a thin wrapper around the classification REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client with sane defaults.
func NewClient(apiKey string, opts ...func(*Client)) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(url string) func(*Client) {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// Classify sends the text to the service and maps the response onto the
// pipeline's classification type. Transport and server failures come back as
// ErrServiceUnavailable so the scorer can fall back instead of blocking.
func (c *Client) Classify(ctx context.Context, text string) (alerts.Classification, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return alerts.Classification{}, fmt.Errorf("classify: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return alerts.Classification{}, fmt.Errorf("classify: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return alerts.Classification{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return alerts.Classification{}, fmt.Errorf("%w: status %d: %s", ErrServiceUnavailable, resp.StatusCode, string(data))
	}

	var payload classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return alerts.Classification{}, fmt.Errorf("%w: decode response: %v", ErrServiceUnavailable, err)
	}

	classification := alerts.Classification{
		Country: payload.Country,
		Region:  payload.Region,
		Signals: payload.Signals,
	}
	if category, ok := alerts.ParseCategory(payload.Category); ok {
		classification.Category = category
	}
	return classification, nil
}
