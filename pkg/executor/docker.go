package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/debug"
)

// cleanupTimeout bounds log collection and container removal, which run
// after the execution deadline may already have passed.
const cleanupTimeout = 10 * time.Second

// startupTimeout bounds container create and start. The execution timeout
// only begins once the container is running.
const startupTimeout = 30 * time.Second

// dockerAPI is the subset of the Docker Engine client used by DockerRunner.
type dockerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// DockerOptions configures a DockerRunner.
type DockerOptions struct {
	Image       string
	Interpreter []string
	Timeout     time.Duration
	MemoryMB    int64
	CPUs        float64
	Network     string
	PullImage   bool
}

// DockerRunner runs each execution in a throwaway container. A container
// never hosts more than one execution.
type DockerRunner struct {
	cli  dockerAPI
	opts DockerOptions
}

// NewDockerRunner connects to the Docker daemon configured by the
// environment (DOCKER_HOST and friends).
func NewDockerRunner(opts DockerOptions) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return newDockerRunner(cli, opts), nil
}

func newDockerRunner(cli dockerAPI, opts DockerOptions) *DockerRunner {
	if len(opts.Interpreter) == 0 {
		opts.Interpreter = DefaultInterpreter
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Network == "" {
		opts.Network = "none"
	}
	return &DockerRunner{cli: cli, opts: opts}
}

// Name implements Runner.
func (r *DockerRunner) Name() string { return "docker" }

// Prepare pulls the execution image when PullImage is set.
func (r *DockerRunner) Prepare(ctx context.Context) error {
	if !r.opts.PullImage {
		return nil
	}
	rc, err := r.cli.ImagePull(ctx, r.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", r.opts.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pulling image %s: %w", r.opts.Image, err)
	}
	slog.Info("execution image ready", "image", r.opts.Image)
	return nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

// Run implements Runner. The execution timeout covers the wait for the
// container to exit, not image or container setup.
func (r *DockerRunner) Run(ctx context.Context, code string) api.ExecutionResult {
	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	cfg := &container.Config{
		Image:           r.opts.Image,
		Cmd:             append(slices.Clone(r.opts.Interpreter), code),
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: r.opts.Network == "none",
	}
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(r.opts.Network),
	}
	if r.opts.MemoryMB > 0 {
		hostCfg.Resources.Memory = r.opts.MemoryMB << 20
	}
	if r.opts.CPUs > 0 {
		hostCfg.Resources.NanoCPUs = int64(r.opts.CPUs * 1e9)
	}

	created, err := r.cli.ContainerCreate(startCtx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return api.Failed(fmt.Errorf("creating container: %w", err))
	}
	defer r.remove(ctx, created.ID)

	debug.Log("executor", "container created", "id", created.ID, "image", r.opts.Image)

	if err := r.cli.ContainerStart(startCtx, created.ID, container.StartOptions{}); err != nil {
		return api.Failed(fmt.Errorf("starting container: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	statusCh, errCh := r.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case st := <-statusCh:
		if st.Error != nil {
			return api.Failed(errors.New(st.Error.Message))
		}
		exitCode = st.StatusCode
	case err := <-errCh:
		return r.failure(ctx, fmt.Errorf("waiting for container: %w", err))
	case <-ctx.Done():
		return r.failure(ctx, ctx.Err())
	}

	stdout, stderr, err := r.logs(ctx, created.ID)
	if err != nil {
		return api.Failed(fmt.Errorf("reading container logs: %w", err))
	}
	return api.Completed(stdout, stderr, int(exitCode))
}

// failure maps err to TimedOut when the execution deadline has passed and
// to Failed otherwise.
func (r *DockerRunner) failure(ctx context.Context, err error) api.ExecutionResult {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return api.TimedOut()
	}
	return api.Failed(err)
}

func (r *DockerRunner) logs(ctx context.Context, id string) (string, string, error) {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	rc, err := r.cli.ContainerLogs(logCtx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

// remove force-removes the container, killing it if it is still running.
func (r *DockerRunner) remove(ctx context.Context, id string) {
	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := r.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil {
		slog.Warn("container removal failed", "id", id, "error", err)
	}
}
