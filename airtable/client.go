package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/liamcoop/formsync/internal/logger"
	"github.com/liamcoop/formsync/metrics"
)

const DefaultAPIURL = "https://api.airtable.com"

// ErrTableNotFound is returned when a base has no table with the requested ID
var ErrTableNotFound = errors.New("table not found")

// Base is an Airtable base visible to the token
type Base struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel,omitempty"`
}

// Table is a table in a base, with its field schema
type Table struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	PrimaryFieldID string  `json:"primaryFieldId,omitempty"`
	Description    string  `json:"description,omitempty"`
	Fields         []Field `json:"fields"`
}

// Field is a column of a table
type Field struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// Choices returns the option names of a select field
func (f Field) Choices() []string {
	raw, ok := f.Options["choices"].([]any)
	if !ok {
		return nil
	}

	names := make([]string, 0, len(raw))
	for _, c := range raw {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := choice["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// Record is a created or fetched table row
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// WhoAmI identifies the user behind a token
type WhoAmI struct {
	ID     string   `json:"id"`
	Email  string   `json:"email,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another API host
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithMetrics records request latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRetry overrides the retry policy
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// Client talks to the Airtable Web API. Every call takes the caller's OAuth
// access token; the client itself holds no credentials.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	metrics *metrics.Metrics
}

// NewClient creates a client that retries 429 and 5xx responses with backoff
func NewClient(opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	// Hand the final response back so its error body can be decoded
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		http:    rc,
		baseURL: DefaultAPIURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListBases returns every base the token can see
func (c *Client) ListBases(ctx context.Context, token string) ([]Base, error) {
	var bases []Base
	offset := ""

	for {
		query := url.Values{}
		if offset != "" {
			query.Set("offset", offset)
		}

		var page struct {
			Bases  []Base `json:"bases"`
			Offset string `json:"offset"`
		}
		if err := c.do(ctx, "list_bases", http.MethodGet, "/v0/meta/bases", query, token, nil, &page); err != nil {
			return nil, err
		}

		bases = append(bases, page.Bases...)
		if page.Offset == "" {
			return bases, nil
		}
		offset = page.Offset
	}
}

// ListTables returns the tables of a base with their fields
func (c *Client) ListTables(ctx context.Context, token, baseID string) ([]Table, error) {
	var resp struct {
		Tables []Table `json:"tables"`
	}
	path := "/v0/meta/bases/" + url.PathEscape(baseID) + "/tables"
	if err := c.do(ctx, "list_tables", http.MethodGet, path, nil, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

// ListSupportedFields returns the fields of a table that can back a question
func (c *Client) ListSupportedFields(ctx context.Context, token, baseID, tableID string) ([]Field, error) {
	tables, err := c.ListTables(ctx, token, baseID)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if t.ID != tableID {
			continue
		}

		fields := make([]Field, 0, len(t.Fields))
		for _, f := range t.Fields {
			if IsSupportedFieldType(f.Type) {
				fields = append(fields, f)
			}
		}
		return fields, nil
	}

	return nil, fmt.Errorf("table %s in base %s: %w", tableID, baseID, ErrTableNotFound)
}

// CreateRecord inserts one row. table may be a table ID or name.
func (c *Client) CreateRecord(ctx context.Context, token, baseID, table string, fields map[string]any) (*Record, error) {
	body := map[string]any{"fields": fields}
	path := "/v0/" + url.PathEscape(baseID) + "/" + url.PathEscape(table)

	var record Record
	if err := c.do(ctx, "create_record", http.MethodPost, path, nil, token, body, &record); err != nil {
		return nil, err
	}

	logger.Debug("airtable record created", "base_id", baseID, "table", table, "record_id", record.ID)
	return &record, nil
}

// WhoAmI returns the user the token belongs to
func (c *Client) WhoAmI(ctx context.Context, token string) (*WhoAmI, error) {
	var who WhoAmI
	if err := c.do(ctx, "whoami", http.MethodGet, "/v0/meta/whoami", nil, token, nil, &who); err != nil {
		return nil, err
	}
	return &who, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
		reader = bytes.NewReader(raw)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveAirtable(operation, 0, time.Since(start))
		return fmt.Errorf("airtable %s failed: %w", operation, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveAirtable(operation, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, data)
		logger.Warn("airtable request rejected",
			"operation", operation,
			"status", resp.StatusCode,
			"type", apiErr.Type,
			"message", apiErr.Message)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}
