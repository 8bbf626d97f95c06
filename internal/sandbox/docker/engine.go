package docker

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// EngineConfig is the configuration for the Docker engine.
type EngineConfig struct {
	Client DockerClient
	Logger log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sandbox.Docker"})
	return nil
}

// Engine is the Docker implementation of the sandbox.Engine interface.
type Engine struct {
	client DockerClient
	logger log.Logger
}

// NewEngine creates a new Docker engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		client: cfg.Client,
		logger: cfg.Logger,
	}, nil
}

// Check performs Docker preflight checks.
func (e *Engine) Check(ctx context.Context) []model.CheckResult {
	var results []model.CheckResult

	_, err := e.client.Ping(ctx)
	if err != nil {
		results = append(results, model.CheckResult{
			ID:      "docker_available",
			Message: fmt.Sprintf("Docker daemon is not reachable: %s", err),
			Status:  model.CheckStatusError,
		})
		return results
	}
	results = append(results, model.CheckResult{
		ID:      "docker_available",
		Message: "Docker daemon is reachable",
		Status:  model.CheckStatusOK,
	})

	if _, err := exec.LookPath("docker"); err != nil {
		results = append(results, model.CheckResult{
			ID:      "docker_cli",
			Message: "docker CLI not found in PATH (required for command execution)",
			Status:  model.CheckStatusError,
		})
	} else {
		results = append(results, model.CheckResult{
			ID:      "docker_cli",
			Message: "docker CLI found in PATH",
			Status:  model.CheckStatusOK,
		})
	}

	return results
}

// Provision creates and starts a new Docker container sandbox.
func (e *Engine) Provision(ctx context.Context, cfg model.SandboxConfig) (*model.Sandbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sandbox config: %w", err)
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	containerName := containerName(id)

	// Pull the workspace image.
	e.logger.Infof("Pulling image: %s", cfg.Image)
	pullResp, err := e.client.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not pull image %s: %w", cfg.Image, err)
	}
	// Consume the pull response to ensure it completes.
	_, _ = io.Copy(io.Discard, pullResp)
	pullResp.Close()

	// Create the container.
	e.logger.Infof("Creating container: %s", containerName)

	var envVars []string
	for k, v := range cfg.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image:      cfg.Image,
		Env:        envVars,
		WorkingDir: cfg.WorkDir,
		Cmd:        []string{"tail", "-f", "/dev/null"}, // Keep container running.
		Labels: map[string]string{
			"agentbox.task-id": cfg.TaskID,
		},
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: int64(cfg.Resources.VCPUs * 1e9),
			Memory:   int64(cfg.Resources.MemoryMB) * 1024 * 1024,
		},
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("could not create container: %w", err)
	}

	// Start the container.
	e.logger.Infof("Starting container: %s", resp.ID)
	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Don't leak the created container.
		_ = e.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("could not start container: %w", err)
	}

	now := time.Now().UTC()
	sandbox := &model.Sandbox{
		ID:          id,
		TaskID:      cfg.TaskID,
		Status:      model.SandboxStatusRunning,
		Config:      cfg,
		ContainerID: resp.ID,
		CreatedAt:   now,
		StartedAt:   &now,
	}

	e.logger.Infof("Provisioned Docker sandbox: %s (container: %s)", id, resp.ID)

	return sandbox, nil
}

// Exec executes a command inside a running Docker container sandbox.
func (e *Engine) Exec(ctx context.Context, id string, command []string, opts model.ExecOpts) (*model.ExecResult, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("command cannot be empty: %w", model.ErrNotValid)
	}

	containerName := containerName(id)

	// Build docker exec command.
	args := []string{"exec"}

	if opts.Tty {
		args = append(args, "-it")
	}
	if opts.WorkingDir != "" {
		args = append(args, "-w", opts.WorkingDir)
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}

	args = append(args, containerName)
	args = append(args, command...)

	e.logger.Debugf("Executing command in container %s: docker exec %s", containerName, command[0])

	cmd := exec.CommandContext(ctx, "docker", args...)

	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	}

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			e.logger.Debugf("Command exited with code %d", exitCode)
		} else {
			if strings.Contains(err.Error(), "No such container") {
				return nil, fmt.Errorf("container %s: %w", containerName, model.ErrNotFound)
			}
			if strings.Contains(err.Error(), "is not running") {
				return nil, fmt.Errorf("container %s is not running: %w", containerName, model.ErrNotValid)
			}
			return nil, fmt.Errorf("could not execute command: %w", err)
		}
	}

	return &model.ExecResult{
		ExitCode: exitCode,
	}, nil
}

// Stop stops a running Docker container sandbox.
func (e *Engine) Stop(ctx context.Context, id string) error {
	containerName := containerName(id)

	e.logger.Infof("Stopping container: %s", containerName)
	timeout := 10 // Seconds for graceful shutdown.
	if err := e.client.ContainerStop(ctx, containerName, container.StopOptions{Timeout: &timeout}); err != nil {
		// Already stopped is idempotent.
		if strings.Contains(err.Error(), "is already stopped") || strings.Contains(err.Error(), "is not running") {
			e.logger.Debugf("Container %s is already stopped", containerName)
			return nil
		}
		if strings.Contains(err.Error(), "No such container") {
			return fmt.Errorf("container %s: %w", containerName, model.ErrNotFound)
		}
		return fmt.Errorf("could not stop container %s: %w", containerName, err)
	}

	e.logger.Infof("Stopped Docker sandbox: %s", id)
	return nil
}

// Remove removes a Docker container sandbox.
func (e *Engine) Remove(ctx context.Context, id string) error {
	containerName := containerName(id)

	e.logger.Infof("Removing container: %s", containerName)
	if err := e.client.ContainerRemove(ctx, containerName, container.RemoveOptions{
		Force: true, // Force removal even if running.
	}); err != nil {
		// Already removed is idempotent.
		if strings.Contains(err.Error(), "No such container") {
			e.logger.Debugf("Container %s already removed", containerName)
			return nil
		}
		return fmt.Errorf("could not remove container %s: %w", containerName, err)
	}

	e.logger.Infof("Removed Docker sandbox: %s", id)
	return nil
}

func containerName(id string) string {
	return conventions.ContainerNamePrefix + strings.ToLower(id)
}
