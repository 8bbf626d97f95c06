package model

import (
	"fmt"
	"time"
)

// SandboxStatus represents the status of a sandbox.
type SandboxStatus string

const (
	// SandboxStatusPending indicates the sandbox is being created.
	SandboxStatusPending SandboxStatus = "pending"
	// SandboxStatusRunning indicates the sandbox is running.
	SandboxStatusRunning SandboxStatus = "running"
	// SandboxStatusStopped indicates the sandbox is stopped.
	SandboxStatusStopped SandboxStatus = "stopped"
	// SandboxStatusFailed indicates the sandbox failed.
	SandboxStatusFailed SandboxStatus = "failed"
)

// Sandbox represents an ephemeral isolated execution environment bound to
// one task. It is the execution handle the orchestrator owns for the
// duration of a run.
type Sandbox struct {
	ID          string
	TaskID      string
	Status      SandboxStatus
	Config      SandboxConfig
	ContainerID string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	StoppedAt   *time.Time
}

// SandboxConfig is the static configuration for provisioning a sandbox.
type SandboxConfig struct {
	// TaskID is the owning task, used to name the backing container.
	TaskID string
	// Image is the workspace container image the agent runs in.
	Image string
	// Env contains environment variables provided to the sandbox. Values
	// may be credentials; they are never persisted nor logged.
	Env map[string]string
	// WorkDir is the directory inside the sandbox where the repository is
	// cloned and the agent executes.
	WorkDir string
	// Resources defines the compute resources for the sandbox.
	Resources Resources
}

// Resources defines the compute resources for a sandbox.
type Resources struct {
	VCPUs    float64
	MemoryMB int
}

// Validate validates the sandbox configuration.
func (c *SandboxConfig) Validate() error {
	if c.TaskID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if c.Image == "" {
		return fmt.Errorf("image is required: %w", ErrNotValid)
	}
	if c.Resources.VCPUs < 0 {
		return fmt.Errorf("vcpus must not be negative: %w", ErrNotValid)
	}
	if c.Resources.MemoryMB < 0 {
		return fmt.Errorf("memory_mb must not be negative: %w", ErrNotValid)
	}
	return nil
}
