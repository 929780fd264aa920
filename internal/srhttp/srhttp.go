// Package srhttp implements registrycache.Fetcher against a
// Confluent-compatible schema registry HTTP API, using the same
// request/response shapes and route layout as riferrei-srclient's
// SchemaRegistryClient. This is ambient wiring around the core, not the
// core itself: the registry's wire protocol is explicitly out of scope for
// internal/registrycache, which only ever depends on the Fetcher interface.
package srhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/registrycache"
)

const (
	pathSchemaByID       = "/schemas/ids/%d"
	pathSubjectLatest    = "/subjects/%s/versions/latest"
	contentType          = "application/vnd.schemaregistry.v1+json"
	confluentCloudMarker = "confluent.cloud"
)

// Client fetches schemas over HTTP from a Confluent-compatible registry.
type Client struct {
	baseURL     string
	username    string
	password    string
	bearerToken string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth sets username/password basic auth credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithBearerToken sets a bearer (or Confluent Cloud basic) auth token.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.bearerToken = token
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// New creates a Client against baseURL (no trailing slash).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type schemaReference struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

type schemaResponse struct {
	Subject    string            `json:"subject"`
	Version    int               `json:"version"`
	Schema     string            `json:"schema"`
	ID         uint32            `json:"id"`
	References []schemaReference `json:"references"`
}

// GetBySubject implements registrycache.Fetcher.
func (c *Client) GetBySubject(ctx context.Context, subject string) (registrycache.RegisteredSchema, error) {
	return c.fetch(ctx, fmt.Sprintf(pathSubjectLatest, subject))
}

// GetByID implements registrycache.Fetcher.
func (c *Client) GetByID(ctx context.Context, id uint32) (registrycache.RegisteredSchema, error) {
	return c.fetch(ctx, fmt.Sprintf(pathSchemaByID, id))
}

// GetReferenced implements registrycache.Fetcher.
func (c *Client) GetReferenced(ctx context.Context, ref registrycache.Reference) (registrycache.RegisteredSchema, error) {
	if ref.Version > 0 {
		return c.fetch(ctx, fmt.Sprintf("/subjects/%s/versions/%d", ref.Subject, ref.Version))
	}
	return c.fetch(ctx, fmt.Sprintf(pathSubjectLatest, ref.Subject))
}

func (c *Client) fetch(ctx context.Context, path string) (registrycache.RegisteredSchema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return registrycache.RegisteredSchema{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return registrycache.RegisteredSchema{}, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return registrycache.RegisteredSchema{}, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return registrycache.RegisteredSchema{}, fmt.Errorf("registry returned status %d for %s: %s", resp.StatusCode, path, string(body))
	}

	var parsed schemaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return registrycache.RegisteredSchema{}, fmt.Errorf("decoding response for %s: %w", path, err)
	}

	refs := make([]registrycache.Reference, 0, len(parsed.References))
	for _, r := range parsed.References {
		refs = append(refs, registrycache.Reference{Name: r.Name, Subject: r.Subject, Version: r.Version})
	}

	return registrycache.RegisteredSchema{
		ID:         parsed.ID,
		Schema:     parsed.Schema,
		References: refs,
	}, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
		return
	}
	if c.bearerToken != "" {
		if strings.Contains(strings.ToLower(c.baseURL), confluentCloudMarker) {
			req.Header.Set("Authorization", "Basic "+c.bearerToken)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}
	}
}

var _ registrycache.Fetcher = (*Client)(nil)
