// Package dispatcher submits code to a remote serverless endpoint and turns
// the outcome into a report for the tool caller.
//
// Run and Health return typed results and a *Error on failure. Execute and
// CheckStatus wrap them for the tool boundary: they always return a string
// and never an error.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/debug"
	"github.com/rhuss/podexec/pkg/observability"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultBaseURL          = "https://api.runpod.ai/v2"
	DefaultMaxExecutionTime = 30 * time.Second
	DefaultTimeoutMargin    = 5 * time.Second
	DefaultHealthTimeout    = 10 * time.Second
)

// UnknownStatus is reported when the health document carries no status.
const UnknownStatus = "Unknown"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// Config is the immutable dispatcher configuration, built once at startup.
type Config struct {
	BaseURL    string
	EndpointID string
	APIKey     string

	// MaxExecutionTime is the execution budget quoted to callers.
	MaxExecutionTime time.Duration

	// TimeoutMargin is added to MaxExecutionTime to bound the whole
	// round trip.
	TimeoutMargin time.Duration

	// HealthTimeout bounds a health check independently of the budget.
	HealthTimeout time.Duration
}

// WaitBound returns the total time a runsync round trip may take.
func (c Config) WaitBound() time.Duration {
	return c.MaxExecutionTime + c.TimeoutMargin
}

// Dispatcher talks to one serverless endpoint. It holds no mutable state
// and is safe for concurrent use.
type Dispatcher struct {
	cfg          Config
	execClient   *http.Client
	healthClient *http.Client
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTransport sets the round tripper used by both HTTP clients.
func WithTransport(rt http.RoundTripper) Option {
	return func(d *Dispatcher) {
		d.execClient.Transport = rt
		d.healthClient.Transport = rt
	}
}

// New creates a Dispatcher. Zero durations and an empty base URL take the
// package defaults.
func New(cfg Config, opts ...Option) *Dispatcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxExecutionTime <= 0 {
		cfg.MaxExecutionTime = DefaultMaxExecutionTime
	}
	if cfg.TimeoutMargin <= 0 {
		cfg.TimeoutMargin = DefaultTimeoutMargin
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}

	d := &Dispatcher{
		cfg:          cfg,
		execClient:   &http.Client{Timeout: cfg.WaitBound()},
		healthClient: &http.Client{Timeout: cfg.HealthTimeout},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// runsyncResponse is the body of a successful runsync call. Times are
// milliseconds and may be fractional.
type runsyncResponse struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	DelayTime     float64         `json:"delayTime"`
	ExecutionTime float64         `json:"executionTime"`
	Output        json.RawMessage `json:"output"`
	Error         string          `json:"error"`
}

// Run submits code as a synchronous job and waits for its result, bounded
// by MaxExecutionTime plus TimeoutMargin. Every error is a *Error.
func (d *Dispatcher) Run(ctx context.Context, code string) (*api.Job, error) {
	start := time.Now()
	job, err := d.run(ctx, code)
	d.record("execute", start, err)
	if err != nil {
		e := Classify(err)
		slog.Error("code execution failed",
			"endpoint", d.cfg.EndpointID,
			"kind", e.Kind.String(),
			"error", e,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, e
	}
	slog.Info("code execution completed",
		"endpoint", d.cfg.EndpointID,
		"status", job.Status,
		"execution_ms", job.ExecutionTime,
		"delay_ms", job.DelayTime,
	)
	return job, nil
}

func (d *Dispatcher) run(ctx context.Context, code string) (*api.Job, error) {
	if d.cfg.APIKey == "" {
		return nil, &Error{Kind: KindConfig, Err: ErrMissingAPIKey}
	}

	slog.Info("executing code", "endpoint", d.cfg.EndpointID, "code_len", len(code))
	debug.Trace("dispatch", "runsync payload", "code", debug.Truncate(code, 500))

	payload, err := json.Marshal(api.JobRequest{Input: api.JobInput{Code: code}})
	if err != nil {
		return nil, fmt.Errorf("encoding job: %w", err)
	}

	url := d.cfg.BaseURL + "/" + d.cfg.EndpointID + "/runsync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)

	body, status, err := d.do(d.execClient, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &Error{Kind: KindTransport, StatusCode: status, Body: string(body)}
	}

	return decodeJob(body)
}

// decodeJob converts a runsync body into a Job. A failure reported by the
// remote side, either in output.error or in the top-level error field,
// becomes a KindExecution error.
func decodeJob(body []byte) (*api.Job, error) {
	var resp runsyncResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Kind: KindParse, Body: string(body), Err: err}
	}

	if resp.Error != "" {
		return nil, &Error{Kind: KindExecution, Body: string(body), Err: errors.New(resp.Error)}
	}

	out := api.Completed("", "", api.MissingReturnCode)
	hasOutput := len(resp.Output) > 0 && string(resp.Output) != "null"
	if hasOutput {
		if err := json.Unmarshal(resp.Output, &out); err != nil {
			return nil, &Error{Kind: KindParse, Body: string(body), Err: err}
		}
		if !out.IsCompleted() {
			return nil, &Error{Kind: KindExecution, Body: string(body), Err: errors.New(out.Error)}
		}
	}

	status := api.JobStatus(resp.Status)
	if !hasOutput && (status == api.JobStatusInQueue || status == api.JobStatusInProgress) {
		return nil, &Error{
			Kind: KindExecution,
			Body: string(body),
			Err:  fmt.Errorf("job %s still %s when the synchronous wait ended", resp.ID, resp.Status),
		}
	}

	return &api.Job{
		ID:            resp.ID,
		Status:        status,
		DelayTime:     int64(math.Round(resp.DelayTime)),
		ExecutionTime: int64(math.Round(resp.ExecutionTime)),
		Output:        &out,
	}, nil
}

// Health fetches the endpoint's health document, bounded by HealthTimeout.
func (d *Dispatcher) Health(ctx context.Context) (*api.HealthResponse, error) {
	start := time.Now()
	health, err := d.health(ctx)
	d.record("health", start, err)
	if err != nil {
		e := Classify(err)
		slog.Error("health check failed", "endpoint", d.cfg.EndpointID, "kind", e.Kind.String(), "error", e)
		return nil, e
	}
	debug.Log("dispatch", "health check succeeded", "endpoint", d.cfg.EndpointID, "status", health.Status)
	return health, nil
}

func (d *Dispatcher) health(ctx context.Context) (*api.HealthResponse, error) {
	if d.cfg.APIKey == "" {
		return nil, &Error{Kind: KindConfig, Err: ErrMissingAPIKey}
	}

	url := d.cfg.BaseURL + "/" + d.cfg.EndpointID + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)

	body, status, err := d.do(d.healthClient, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &Error{Kind: KindTransport, StatusCode: status, Body: string(body)}
	}

	var health api.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, &Error{Kind: KindParse, Body: string(body), Err: err}
	}
	// An empty status is reported as sent; only a missing one is Unknown.
	var raw struct {
		Status *string `json:"status"`
	}
	if err := json.Unmarshal(body, &raw); err == nil && raw.Status == nil {
		health.Status = UnknownStatus
	}
	return &health, nil
}

// Execute runs code and returns the report for the tool caller.
func (d *Dispatcher) Execute(ctx context.Context, code string) string {
	job, err := d.Run(ctx, code)
	if err != nil {
		return FormatError(err, d.cfg.MaxExecutionTime)
	}
	return FormatExecution(job)
}

// CheckStatus checks endpoint health and returns the report for the tool
// caller.
func (d *Dispatcher) CheckStatus(ctx context.Context) string {
	health, err := d.Health(ctx)
	if err != nil {
		return FormatHealthError(err)
	}
	return FormatHealth(d.cfg.EndpointID, health, d.cfg.MaxExecutionTime)
}

// do sends req and reads the whole body. Transport and body read failures
// are classified; the status code is returned for the caller to check.
func (d *Dispatcher) do(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, Classify(err)
	}
	debug.Log("dispatch", "response received", "url", req.URL.String(), "status", resp.StatusCode, "body_len", len(body))
	return body, resp.StatusCode, nil
}

func (d *Dispatcher) record(operation string, start time.Time, err error) {
	kind := "ok"
	if err != nil {
		kind = Classify(err).Kind.String()
	}
	observability.DispatchTotal.WithLabelValues(operation, kind).Inc()
	observability.DispatchDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
