package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sony/gobreaker"

	"github.com/jobshepherd/core/pkg/logger"
)

// Status is the probed state of a job's container. Present=false means the
// runtime has no container under that name, which is a normal outcome, not
// an error.
type Status struct {
	Present  bool
	Running  bool
	ExitCode int
	Cmd      []string
	Image    string
}

// CreateSpec describes the container a job is backed by.
type CreateSpec struct {
	Name  string
	Cmd   []string
	Image string
	Env   []string
}

// API is the subset of the Docker client the daemon uses. Narrowing the
// surface keeps tests to a small fake.
type API interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform,
		containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
}

// Client wraps the Docker daemon connection shared by every reconciler. A
// circuit breaker fronts the short calls so a dead daemon fails fast instead
// of queueing probes; errors still propagate to the caller unretried.
type Client struct {
	api     API
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logger.Logger
}

// New connects to the Docker daemon. An empty host means DOCKER_HOST or the
// library default socket.
func New(host string, requestTimeout time.Duration) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime client: %w", err)
	}
	return NewWithAPI(api, requestTimeout), nil
}

// NewWithAPI wraps an existing API implementation. Used by New and by tests.
func NewWithAPI(api API, requestTimeout time.Duration) *Client {
	return &Client{
		api: api,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "container-runtime",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		timeout: requestTimeout,
		logger:  logger.New("runtime"),
	}
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Probe looks up a container by name. A not-found answer maps to an absent
// Status; any other failure propagates so callers never mistake "could not
// ask" for "does not exist".
func (c *Client) Probe(ctx context.Context, name string) (Status, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := c.callCtx(ctx)
		defer cancel()

		info, err := c.api.ContainerInspect(callCtx, name)
		if err != nil {
			if client.IsErrNotFound(err) {
				return Status{}, nil
			}
			return nil, err
		}

		// A container without state has no trustworthy exit code; -1 makes
		// the eventual reap record the run as failed instead of clean.
		st := Status{Present: true, ExitCode: -1}
		if info.State != nil {
			st.Running = info.State.Running
			st.ExitCode = info.State.ExitCode
		}
		if info.Config != nil {
			st.Cmd = []string(info.Config.Cmd)
			st.Image = info.Config.Image
		}
		return st, nil
	})
	c.logger.LogRuntimeCall("inspect", name, time.Since(start), err)
	if err != nil {
		return Status{}, fmt.Errorf("failed to probe container %s: %w", name, err)
	}
	return res.(Status), nil
}

// Create makes a stopped container: streams attached for interactive
// inspection, no published ports, no volumes, not privileged.
func (c *Client) Create(ctx context.Context, spec CreateSpec) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := c.callCtx(ctx)
		defer cancel()

		cfg := &container.Config{
			Cmd:          strslice.StrSlice(spec.Cmd),
			Image:        spec.Image,
			Env:          spec.Env,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
			Tty:          true,
			OpenStdin:    false,
			StdinOnce:    false,
		}
		// No binds, no port bindings, no links, not privileged.
		hostCfg := &container.HostConfig{}

		_, err := c.api.ContainerCreate(callCtx, cfg, hostCfg, nil, nil, spec.Name)
		return nil, err
	})
	c.logger.LogRuntimeCall("create", spec.Name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	return nil
}

// Start launches an existing stopped container.
func (c *Client) Start(ctx context.Context, name string) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := c.callCtx(ctx)
		defer cancel()
		return nil, c.api.ContainerStart(callCtx, name, container.StartOptions{})
	})
	c.logger.LogRuntimeCall("start", name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return nil
}

// Remove deletes a container by name.
func (c *Client) Remove(ctx context.Context, name string) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := c.callCtx(ctx)
		defer cancel()
		return nil, c.api.ContainerRemove(callCtx, name, container.RemoveOptions{})
	})
	c.logger.LogRuntimeCall("remove", name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// Wait suspends until the container exits and returns its exit code. This is
// the one runtime call with no timeout and it deliberately bypasses the
// breaker: a long-running execution is not a daemon failure.
func (c *Client) Wait(ctx context.Context, name string) (int, error) {
	waitCh, errCh := c.api.ContainerWait(ctx, name, container.WaitConditionNotRunning)
	select {
	case res := <-waitCh:
		if res.Error != nil {
			return 0, fmt.Errorf("runtime reported wait error for container %s: %s", name, res.Error.Message)
		}
		return int(res.StatusCode), nil
	case err := <-errCh:
		return 0, fmt.Errorf("failed to wait for container %s: %w", name, err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
