// Package pods is a client for the provider's pod management REST API.
// It creates, inspects and terminates pods and lists serverless endpoints.
package pods

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/podexec/pkg/debug"
	"github.com/rhuss/podexec/pkg/observability"
)

// DefaultBaseURL is the management API root.
const DefaultBaseURL = "https://rest.runpod.io/v1"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 64 << 10

// APIError is returned when the API answers with an unexpected status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("management API returned status %d: %s", e.StatusCode, e.Body)
}

// Config holds client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // default: 30s
}

// Client calls the management API. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatePod creates a pod from spec.
func (c *Client) CreatePod(ctx context.Context, spec PodSpec) (*Pod, error) {
	var pod Pod
	if err := c.do(ctx, "create", http.MethodPost, "/pods", spec, http.StatusCreated, &pod); err != nil {
		return nil, err
	}
	slog.Info("pod created", "pod_id", pod.ID, "name", pod.Name)
	return &pod, nil
}

// GetPod returns the current state of a pod.
func (c *Client) GetPod(ctx context.Context, id string) (*Pod, error) {
	var pod Pod
	if err := c.do(ctx, "get", http.MethodGet, "/pods/"+url.PathEscape(id), nil, http.StatusOK, &pod); err != nil {
		return nil, err
	}
	return &pod, nil
}

// TerminatePod deletes a pod.
func (c *Client) TerminatePod(ctx context.Context, id string) error {
	if err := c.do(ctx, "terminate", http.MethodDelete, "/pods/"+url.PathEscape(id), nil, http.StatusOK, nil); err != nil {
		return err
	}
	slog.Info("pod terminated", "pod_id", id)
	return nil
}

// ListEndpoints returns the account's serverless endpoints.
func (c *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var endpoints []Endpoint
	if err := c.do(ctx, "list_endpoints", http.MethodGet, "/endpoints", nil, http.StatusOK, &endpoints); err != nil {
		return nil, err
	}
	return endpoints, nil
}

// do sends one request and decodes the body into out when the response
// status equals want.
func (c *Client) do(ctx context.Context, op, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	debug.Log("pods", "request", "operation", op, "method", method, "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		observability.PodOperationsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()
	observability.PodOperationsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != want {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Warn("management API call failed", "operation", op, "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}
