package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production content API endpoint.
	DefaultBaseURL = "https://api.notion.com"
	// APIVersion is the version header value sent on every request.
	APIVersion = "2022-06-28"

	// defaultRateLimitWait is used when a 429 response carries no
	// Retry-After header.
	defaultRateLimitWait = time.Second
)

// Source is the content source consumed by the extractor. Query returns one
// page of records for a logical database; cursor is opaque and empty for
// the first page.
type Source interface {
	Query(ctx context.Context, databaseID, cursor string, filter *Filter) (*Page, error)
	// Ping verifies the source is reachable with the configured credentials.
	Ping(ctx context.Context) error
}

// Client is the HTTP content source client.
type Client struct {
	token      string
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a custom endpoint (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithPageSize sets the requested page size (default 100, the API maximum).
func WithPageSize(n int) ClientOption {
	return func(c *Client) { c.pageSize = n }
}

// NewClient creates a content source client.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("content source token is required")
	}
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		pageSize:   100,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// queryRequest is the body for the database query endpoint.
type queryRequest struct {
	StartCursor string          `json:"start_cursor,omitempty"`
	PageSize    int             `json:"page_size,omitempty"`
	Filter      json.RawMessage `json:"filter,omitempty"`
}

// modifiedAfterFilter builds the source's timestamp filter clause.
func modifiedAfterFilter(t time.Time) json.RawMessage {
	clause := map[string]any{
		"timestamp": "last_edited_time",
		"last_edited_time": map[string]string{
			"after": t.UTC().Format(time.RFC3339),
		},
	}
	raw, _ := json.Marshal(clause)
	return raw
}

// Query fetches one page of records from a logical database.
func (c *Client) Query(ctx context.Context, databaseID, cursor string, filter *Filter) (*Page, error) {
	req := queryRequest{
		StartCursor: cursor,
		PageSize:    c.pageSize,
	}
	if filter != nil && !filter.ModifiedAfter.IsZero() {
		req.Filter = modifiedAfterFilter(filter.ModifiedAfter)
	}

	url := fmt.Sprintf("%s/v1/databases/%s/query", c.baseURL, databaseID)
	var page Page
	if err := c.makeRequest(ctx, http.MethodPost, url, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Ping verifies reachability by fetching the integration's own user record.
func (c *Client) Ping(ctx context.Context) error {
	url := c.baseURL + "/v1/users/me"
	return c.makeRequest(ctx, http.MethodGet, url, nil, nil)
}

// makeRequest performs one HTTP call against the source API. A 429 response
// is surfaced as *RateLimitError carrying the Retry-After duration.
func (c *Client) makeRequest(ctx context.Context, method, url string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Wait: retryAfterDuration(resp)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("source API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// retryAfterDuration parses the Retry-After header, in seconds.
func retryAfterDuration(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultRateLimitWait
}
