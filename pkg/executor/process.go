package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"slices"
	"time"

	"github.com/rhuss/podexec/pkg/api"
)

// defaultWaitDelay bounds how long Run waits for I/O after the interpreter
// exits or is killed.
const defaultWaitDelay = 500 * time.Millisecond

// ProcessRunner runs code in a freshly spawned interpreter process:
// interpreter[0] interpreter[1:]... code.
type ProcessRunner struct {
	interpreter []string
	timeout     time.Duration
	waitDelay   time.Duration
	env         []string
}

// ProcessOption configures a ProcessRunner.
type ProcessOption func(*ProcessRunner)

// WithEnv sets the child environment. By default the child inherits the
// environment of the current process.
func WithEnv(env []string) ProcessOption {
	return func(r *ProcessRunner) { r.env = env }
}

// WithWaitDelay overrides how long Run waits on output pipes once the
// interpreter has exited or been killed.
func WithWaitDelay(d time.Duration) ProcessOption {
	return func(r *ProcessRunner) { r.waitDelay = d }
}

// NewProcessRunner creates a runner for the given interpreter argv prefix.
// An empty interpreter falls back to DefaultInterpreter and a non-positive
// timeout to DefaultTimeout.
func NewProcessRunner(interpreter []string, timeout time.Duration, opts ...ProcessOption) *ProcessRunner {
	if len(interpreter) == 0 {
		interpreter = DefaultInterpreter
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &ProcessRunner{
		interpreter: slices.Clone(interpreter),
		timeout:     timeout,
		waitDelay:   defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements Runner.
func (r *ProcessRunner) Name() string { return "process" }

// Timeout returns the wall-clock limit of one execution.
func (r *ProcessRunner) Timeout() time.Duration { return r.timeout }

// Run implements Runner. At the deadline the whole process group is
// killed and output produced so far is discarded.
func (r *ProcessRunner) Run(ctx context.Context, code string) api.ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(slices.Clone(r.interpreter[1:]), code)
	cmd := exec.CommandContext(ctx, r.interpreter[0], args...)
	if r.env != nil {
		cmd.Env = r.env
	}
	cmd.WaitDelay = r.waitDelay
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return api.Completed(stdout.String(), stderr.String(), 0)
	}

	// The deadline takes precedence over the exit status of a killed process.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return api.TimedOut()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return api.Completed(stdout.String(), stderr.String(), exitErr.ExitCode())
	}

	// The interpreter exited but a descendant kept the pipes open.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return api.Completed(stdout.String(), stderr.String(), cmd.ProcessState.ExitCode())
	}

	return api.Failed(err)
}
