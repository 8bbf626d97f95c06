// Package agent contains the pluggable coding agent backends.
//
// Every backend drives an agent CLI inside a task's sandbox and satisfies
// the same input/output contract. Selection is by string key through the
// Registry, never by type.
package agent

import (
	"context"
	"fmt"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
)

// ExecuteRequest is the common input contract for all backends.
type ExecuteRequest struct {
	// SandboxID is the sandbox the agent runs in.
	SandboxID string
	// Instruction is the natural language coding instruction.
	Instruction string
	// Model is an optional model identifier, backend specific.
	Model string
	// WorkDir is the repository checkout directory inside the sandbox.
	WorkDir string
	// APIKey is the backend's API key, injected as an env var, never logged.
	APIKey string
	// MCPServers are optional MCP server addresses passed to backends that
	// support them.
	MCPServers []string
	// Events receives liveness and sub-agent activity while the agent runs.
	Events Events
}

func (r *ExecuteRequest) defaults() error {
	if r.SandboxID == "" {
		return fmt.Errorf("sandbox id is required: %w", model.ErrNotValid)
	}
	if r.Instruction == "" {
		return fmt.Errorf("instruction is required: %w", model.ErrNotValid)
	}
	if r.Events == nil {
		r.Events = NopEvents
	}
	return nil
}

// Events is how a running backend reports liveness, progress and sub-agent
// activity. Implementations must never fail the agent run.
type Events interface {
	// Heartbeat signals any liveness-producing agent output.
	Heartbeat(ctx context.Context)
	// Info logs an informational agent message.
	Info(ctx context.Context, msg string, src *model.AgentSource)
	// SubAgentStarted records a new sub-agent and returns its ID.
	SubAgentStarted(ctx context.Context, name, description string) string
	// SubAgentRunning marks a sub-agent as running.
	SubAgentRunning(ctx context.Context, id string)
	// SubAgentFinished marks a sub-agent as finished.
	SubAgentFinished(ctx context.Context, id string, success bool)
}

// NopEvents discards all events.
const NopEvents = nopEvents(0)

type nopEvents int

func (nopEvents) Heartbeat(context.Context)                              {}
func (nopEvents) Info(context.Context, string, *model.AgentSource)       {}
func (nopEvents) SubAgentStarted(context.Context, string, string) string { return "" }
func (nopEvents) SubAgentRunning(context.Context, string)                {}
func (nopEvents) SubAgentFinished(context.Context, string, bool)         {}

// Backend executes one agent run inside a sandbox. All backends share this
// contract regardless of implementation.
type Backend interface {
	Execute(ctx context.Context, req ExecuteRequest) (*model.AgentResult, error)
}

// RegistryConfig is the configuration for the backend registry.
type RegistryConfig struct {
	Engine sandbox.Engine
	Logger log.Logger
}

func (c *RegistryConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// Registry maps agent type keys to backends.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry creates a registry with all the supported backends wired to
// the given sandbox engine.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Registry{
		backends: map[string]Backend{
			model.AgentTypeClaude:   NewClaudeBackend(cfg.Engine, cfg.Logger),
			model.AgentTypeCodex:    NewCodexBackend(cfg.Engine, cfg.Logger),
			model.AgentTypeOpencode: NewOpencodeBackend(cfg.Engine, cfg.Logger),
			model.AgentTypeFake:     NewFakeBackend(),
		},
	}, nil
}

// NewRegistryWithBackends creates a registry from an explicit backend map.
func NewRegistryWithBackends(backends map[string]Backend) *Registry {
	return &Registry{backends: backends}
}

// Get returns the backend registered for the given agent type key.
func (r *Registry) Get(agentType string) (Backend, error) {
	b, ok := r.backends[agentType]
	if !ok {
		return nil, fmt.Errorf("unknown agent type %q: %w", agentType, model.ErrNotValid)
	}
	return b, nil
}

// Types returns the registered agent type keys.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.backends))
	for k := range r.backends {
		types = append(types, k)
	}
	return types
}
