// Package executor runs submitted code and reports its outcome.
//
// A Runner executes one code string under a wall-clock limit and returns an
// api.ExecutionResult: Completed with captured output and exit code, TimedOut
// when the limit was hit, or Failed when the code could not be run at all.
// Every call gets its own process (or container), buffers and deadline.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/debug"
	"github.com/rhuss/podexec/pkg/observability"
)

// DefaultTimeout is the wall-clock limit applied to one execution.
const DefaultTimeout = 5 * time.Second

// DefaultInterpreter is the argv prefix the code string is appended to.
var DefaultInterpreter = []string{"python3", "-c"}

// Runner executes a code string. Implementations never return an error:
// every failure is encoded in the result.
type Runner interface {
	// Name identifies the runner in logs and metrics.
	Name() string

	// Run executes code and blocks until it exits or its deadline passes.
	Run(ctx context.Context, code string) api.ExecutionResult
}

// Handler is the job entry point. It unwraps the job payload, delegates to
// the configured Runner and records the outcome.
type Handler struct {
	runner Runner
}

// NewHandler creates a Handler backed by runner.
func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

// Runner returns the underlying runner.
func (h *Handler) Runner() Runner {
	return h.runner
}

// Handle runs the code carried by req. A job without a code field runs the
// empty program.
func (h *Handler) Handle(ctx context.Context, req api.JobRequest) api.ExecutionResult {
	code := req.Input.Code
	debug.Log("executor", "execution starting", "runner", h.runner.Name(), "code_len", len(code))
	debug.Trace("executor", "execution code", "code", debug.Truncate(code, 500))

	start := time.Now()
	result := h.runner.Run(ctx, code)
	elapsed := time.Since(start)

	observability.ExecutionsTotal.WithLabelValues(h.runner.Name(), result.Outcome.String()).Inc()
	observability.ExecutionDuration.WithLabelValues(h.runner.Name()).Observe(elapsed.Seconds())

	switch result.Outcome {
	case api.OutcomeCompleted:
		slog.Info("execution completed",
			"runner", h.runner.Name(),
			"exit_code", result.ExitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stdout_len", len(result.Stdout),
			"stderr_len", len(result.Stderr),
		)
	default:
		slog.Warn("execution did not complete",
			"runner", h.runner.Name(),
			"outcome", result.Outcome.String(),
			"error", result.Error,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return result
}
