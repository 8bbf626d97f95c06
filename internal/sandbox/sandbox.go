package sandbox

import (
	"context"

	"github.com/slok/agentbox/internal/model"
)

// Engine is the interface for sandbox lifecycle management. It is the
// opaque remote provisioning capability the orchestrator builds on: it
// knows how to create an isolated execution environment, run commands in
// it and destroy it, nothing else.
type Engine interface {
	// Check performs preflight checks and returns the results.
	// Checks verify that the engine has all required dependencies and permissions.
	Check(ctx context.Context) []model.CheckResult

	// Provision creates and starts a new sandbox for a task.
	Provision(ctx context.Context, cfg model.SandboxConfig) (*model.Sandbox, error)

	// Exec executes a command inside a running sandbox.
	Exec(ctx context.Context, id string, command []string, opts model.ExecOpts) (*model.ExecResult, error)

	// Stop stops a running sandbox.
	Stop(ctx context.Context, id string) error

	// Remove destroys a sandbox, stopping it first if needed.
	Remove(ctx context.Context, id string) error
}
