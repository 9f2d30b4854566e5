// Package pinecone provides a client for the Pinecone vector index data
// plane (query and upsert against one index host).
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const apiVersion = "2024-07"

// Client defines the Pinecone data plane operations.
type Client interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	Upsert(ctx context.Context, req UpsertRequest) (*UpsertResponse, error)
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

// QueryResponse is the parsed /query response.
type QueryResponse struct {
	Namespace string  `json:"namespace"`
	Matches   []Match `json:"matches"`
}

// Match is one scored vector. Metadata carries the example's prompt and code.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MetadataString returns a string metadata field, or "".
func (m Match) MetadataString(key string) string {
	s, _ := m.Metadata[key].(string)
	return s
}

// Vector is one record written by Upsert.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpsertRequest is the body of POST /vectors/upsert.
type UpsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

// UpsertResponse is the parsed /vectors/upsert response.
type UpsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// StatusError is a non-200 response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pinecone: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the Pinecone client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey string
	host   string
	http   *http.Client
}

// NewClient creates a client for the index served at host, e.g.
// "https://examples-abc123.svc.us-east1-gcp.pinecone.io".
func NewClient(apiKey, host string, opts ...Option) Client {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	c := &httpClient{
		apiKey: apiKey,
		host:   strings.TrimRight(host, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "pinecone: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "pinecone: create request")
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Pinecone-API-Version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "pinecone: %s request failed", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "pinecone: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "pinecone: unmarshal %s response", path)
	}
	return nil
}

func (c *httpClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var out QueryResponse
	if err := c.post(ctx, "/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Upsert(ctx context.Context, req UpsertRequest) (*UpsertResponse, error) {
	if len(req.Vectors) == 0 {
		return &UpsertResponse{}, nil
	}
	var out UpsertResponse
	if err := c.post(ctx, "/vectors/upsert", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
