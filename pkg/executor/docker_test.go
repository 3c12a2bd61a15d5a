package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/rhuss/podexec/pkg/api"
)

type fakeDocker struct {
	mu        sync.Mutex
	created   []*container.Config
	hostCfgs  []*container.HostConfig
	removed   []string
	pulls     []string
	createErr error
	wait      *container.WaitResponse
	waitErr   error
	block     bool
	startWait time.Duration
	logs      []byte
	closed    bool
}

func (f *fakeDocker) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	f.pulls = append(f.pulls, ref)
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader([]byte(`{"status":"done"}`))), nil
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, hostCfg *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.created = append(f.created, cfg)
	f.hostCfgs = append(f.hostCfgs, hostCfg)
	return container.CreateResponse{ID: "c1"}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, _ string, _ container.StartOptions) error {
	if f.startWait > 0 {
		select {
		case <-time.After(f.startWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeDocker) ContainerWait(context.Context, string, container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.block {
		return statusCh, errCh
	}
	if f.wait != nil {
		statusCh <- *f.wait
	}
	if f.waitErr != nil {
		errCh <- f.waitErr
	}
	return statusCh, errCh
}

func (f *fakeDocker) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.logs)), nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, opts container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !opts.Force {
		return errors.New("removal must be forced")
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDocker) Close() error {
	f.closed = true
	return nil
}

func muxLogs(stdout, stderr string) []byte {
	var buf bytes.Buffer
	if stdout != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
	}
	if stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
	}
	return buf.Bytes()
}

func TestDockerRunner_Completed(t *testing.T) {
	fake := &fakeDocker{
		wait: &container.WaitResponse{StatusCode: 2},
		logs: muxLogs("hi\n", "warn\n"),
	}
	r := newDockerRunner(fake, DockerOptions{Image: "python:3.12-slim", MemoryMB: 128, CPUs: 0.5})

	res := r.Run(context.Background(), "print('hi')")

	if !res.IsCompleted() {
		t.Fatalf("outcome = %s, want completed (error %q)", res.Outcome, res.Error)
	}
	if res.Stdout != "hi\n" || res.Stderr != "warn\n" || res.ExitCode != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	if len(fake.created) != 1 {
		t.Fatalf("created %d containers, want 1", len(fake.created))
	}
	cmd := fake.created[0].Cmd
	if len(cmd) != 3 || cmd[0] != "python3" || cmd[1] != "-c" || cmd[2] != "print('hi')" {
		t.Errorf("cmd = %v, want [python3 -c print('hi')]", cmd)
	}
	if !fake.created[0].NetworkDisabled {
		t.Error("network should be disabled by default")
	}
	if fake.hostCfgs[0].Resources.Memory != 128<<20 {
		t.Errorf("memory = %d, want %d", fake.hostCfgs[0].Resources.Memory, 128<<20)
	}
	if fake.hostCfgs[0].Resources.NanoCPUs != 500_000_000 {
		t.Errorf("nano cpus = %d, want 5e8", fake.hostCfgs[0].Resources.NanoCPUs)
	}
	if len(fake.removed) != 1 || fake.removed[0] != "c1" {
		t.Errorf("removed = %v, want [c1]", fake.removed)
	}
}

func TestDockerRunner_TimesOut(t *testing.T) {
	fake := &fakeDocker{block: true}
	r := newDockerRunner(fake, DockerOptions{Image: "python:3.12-slim", Timeout: 50 * time.Millisecond})

	start := time.Now()
	res := r.Run(context.Background(), "while True: pass")
	elapsed := time.Since(start)

	if res.Outcome != api.OutcomeTimedOut {
		t.Fatalf("outcome = %s, want timed_out", res.Outcome)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("timed out after %v, before the 50ms limit", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("timeout took %v, want it bounded near the 50ms limit", elapsed)
	}
	if len(fake.removed) != 1 {
		t.Errorf("container should be force-removed after timeout, removed = %v", fake.removed)
	}
}

func TestDockerRunner_SlowStartNotCountedAsExecution(t *testing.T) {
	fake := &fakeDocker{
		startWait: 150 * time.Millisecond,
		wait:      &container.WaitResponse{StatusCode: 0},
		logs:      muxLogs("ok\n", ""),
	}
	r := newDockerRunner(fake, DockerOptions{Image: "python:3.12-slim", Timeout: 50 * time.Millisecond})

	res := r.Run(context.Background(), "print('ok')")

	if !res.IsCompleted() {
		t.Fatalf("outcome = %s, want completed (error %q)", res.Outcome, res.Error)
	}
	if res.Stdout != "ok\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "ok\n")
	}
}

func TestDockerRunner_CreateFails(t *testing.T) {
	fake := &fakeDocker{createErr: errors.New("no such image")}
	r := newDockerRunner(fake, DockerOptions{Image: "missing"})

	res := r.Run(context.Background(), "print(1)")

	if res.Outcome != api.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}
	if res.Error != "creating container: no such image" {
		t.Errorf("error = %q", res.Error)
	}
}

func TestDockerRunner_WaitError(t *testing.T) {
	fake := &fakeDocker{waitErr: errors.New("daemon gone")}
	r := newDockerRunner(fake, DockerOptions{Image: "python:3.12-slim"})

	res := r.Run(context.Background(), "print(1)")

	if res.Outcome != api.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}
}

func TestDockerRunner_ExitError(t *testing.T) {
	fake := &fakeDocker{wait: &container.WaitResponse{Error: &container.WaitExitError{Message: "oom"}}}
	r := newDockerRunner(fake, DockerOptions{Image: "python:3.12-slim"})

	res := r.Run(context.Background(), "print(1)")

	if res.Outcome != api.OutcomeFailed || res.Error != "oom" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestDockerRunner_Prepare(t *testing.T) {
	fake := &fakeDocker{}
	r := newDockerRunner(fake, DockerOptions{Image: "python:3.12-slim"})
	if err := r.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if len(fake.pulls) != 0 {
		t.Errorf("image pulled without PullImage: %v", fake.pulls)
	}

	r = newDockerRunner(fake, DockerOptions{Image: "python:3.12-slim", PullImage: true})
	if err := r.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if len(fake.pulls) != 1 || fake.pulls[0] != "python:3.12-slim" {
		t.Errorf("pulls = %v", fake.pulls)
	}

	if err := r.Close(); err != nil || !fake.closed {
		t.Errorf("Close() = %v, closed = %v", err, fake.closed)
	}
}
