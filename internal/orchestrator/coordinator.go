package orchestrator

import (
	"context"
	"fmt"

	"github.com/slok/agentbox/internal/agent"
	"github.com/slok/agentbox/internal/git"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
	"github.com/slok/agentbox/internal/taskstate"
	"github.com/slok/agentbox/internal/tasklog"
)

// DefaultWorkDir is where the repository is cloned inside the sandbox.
const DefaultWorkDir = "/workspace/repo"

// CoordinatorConfig is the configuration for the sandbox lifecycle
// coordinator.
type CoordinatorConfig struct {
	Engine      sandbox.Engine
	Registry    *agent.Registry
	Publisher   git.Publisher
	Machine     *taskstate.Machine
	LogRecorder *tasklog.Recorder
	// Image is the workspace container image agents run in.
	Image string
	// WorkDir is the repository checkout directory inside the sandbox.
	WorkDir string
	// Env are extra environment variables injected into every sandbox.
	Env map[string]string
	// MCPServers are optional MCP server addresses handed to agent
	// backends that support them.
	MCPServers []string
	// Resources are the compute resources given to every sandbox.
	Resources model.Resources
	Logger    log.Logger
}

func (c *CoordinatorConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("agent registry is required")
	}
	if c.Publisher == nil {
		return fmt.Errorf("git publisher is required")
	}
	if c.Machine == nil {
		return fmt.Errorf("state machine is required")
	}
	if c.LogRecorder == nil {
		return fmt.Errorf("log recorder is required")
	}
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Coordinator"})
	return nil
}

// CreateResult is the outcome of provisioning a sandbox for a task. When
// Cancelled is set the task was stopped during provisioning, no live
// sandbox was leaked and Sandbox is nil.
type CreateResult struct {
	Sandbox   *model.Sandbox
	Cancelled bool
}

// Coordinator owns the sandbox lifecycle of a task run: provisioning,
// repository checkout, agent execution, publication and teardown.
type Coordinator struct {
	engine     sandbox.Engine
	registry   *agent.Registry
	publisher  git.Publisher
	machine    *taskstate.Machine
	logRec     *tasklog.Recorder
	image      string
	workDir    string
	env        map[string]string
	mcpServers []string
	resources  model.Resources
	logger     log.Logger
}

// NewCoordinator creates a new coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Coordinator{
		engine:     cfg.Engine,
		registry:   cfg.Registry,
		publisher:  cfg.Publisher,
		machine:    cfg.Machine,
		logRec:     cfg.LogRecorder,
		image:      cfg.Image,
		workDir:    cfg.WorkDir,
		env:        cfg.Env,
		mcpServers: cfg.MCPServers,
		resources:  cfg.Resources,
		logger:     cfg.Logger,
	}, nil
}

// Create provisions a sandbox for the task. The stopped check runs before
// provisioning and again after it, so a cancellation arriving mid-provision
// tears the fresh sandbox down instead of leaking it.
func (c *Coordinator) Create(ctx context.Context, task *model.Task) (*CreateResult, error) {
	stopped, err := c.machine.IsStopped(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not check cancellation: %w", err)
	}
	if stopped {
		return &CreateResult{Cancelled: true}, nil
	}

	sb, err := c.engine.Provision(ctx, model.SandboxConfig{
		TaskID:    task.ID,
		Image:     c.image,
		Env:       c.env,
		WorkDir:   c.workDir,
		Resources: c.resources,
	})
	if err != nil {
		return nil, fmt.Errorf("could not provision sandbox: %w", err)
	}

	stopped, err = c.machine.IsStopped(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not check cancellation: %w", err)
	}
	if stopped {
		c.logger.WithCtxValues(ctx).Infof("Task %s stopped during provisioning, tearing sandbox down", task.ID)
		if err := c.Teardown(ctx, sb.ID, false); err != nil {
			c.logger.Warningf("Could not tear down sandbox %s: %s", sb.ID, err)
		}
		return &CreateResult{Cancelled: true}, nil
	}

	return &CreateResult{Sandbox: sb}, nil
}

// CloneRepo clones the task's repository into the sandbox work dir.
func (c *Coordinator) CloneRepo(ctx context.Context, task *model.Task, sandboxID string, creds model.Credentials) error {
	c.logRec.AppendProgress(ctx, task.ID, 20, fmt.Sprintf("Cloning repository %s", task.Repo))

	if err := c.publisher.Clone(ctx, sandboxID, task.Repo, c.workDir, creds.RepoToken); err != nil {
		return fmt.Errorf("could not clone repository: %w", err)
	}

	return nil
}

// ExecuteAgent runs the task's agent backend inside the sandbox, streaming
// liveness and sub-agent activity into the task log.
func (c *Coordinator) ExecuteAgent(ctx context.Context, task *model.Task, sandboxID string, creds model.Credentials) (*model.AgentResult, error) {
	backend, err := c.registry.Get(task.AgentType)
	if err != nil {
		return nil, fmt.Errorf("could not get agent backend: %w", err)
	}

	c.logRec.AppendProgress(ctx, task.ID, 40, fmt.Sprintf("Running %s agent", task.AgentType))

	res, err := backend.Execute(ctx, agent.ExecuteRequest{
		SandboxID:   sandboxID,
		Instruction: task.Instruction,
		Model:       task.Model,
		WorkDir:     c.workDir,
		APIKey:      creds.AgentAPIKey,
		MCPServers:  c.mcpServers,
		Events: logEvents{
			rec:         c.logRec,
			taskID:      task.ID,
			parentAgent: task.AgentType,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("agent execution failed: %w", err)
	}

	return res, nil
}

// Publish commits and pushes the sandbox's changes as the task branch.
// A true pushFailed return means the work exists but could not be
// published, which still fails the task.
func (c *Coordinator) Publish(ctx context.Context, task *model.Task, sandboxID string, creds model.Credentials) (pushFailed bool, err error) {
	c.logRec.AppendProgress(ctx, task.ID, 90, fmt.Sprintf("Publishing branch %s", task.Branch))

	err = c.publisher.Publish(ctx, git.PublishRequest{
		SandboxID:     sandboxID,
		WorkDir:       c.workDir,
		Repo:          task.Repo,
		Branch:        task.Branch,
		CommitMessage: commitMessage(task),
		Token:         creds.RepoToken,
	})
	if err != nil {
		return true, fmt.Errorf("could not publish branch: %w", err)
	}

	return false, nil
}

// Teardown stops and removes the sandbox. When keepAlive is set the
// sandbox is deliberately orphaned for a later run to reuse.
func (c *Coordinator) Teardown(ctx context.Context, sandboxID string, keepAlive bool) error {
	if sandboxID == "" {
		return nil
	}
	if keepAlive {
		c.logger.Infof("Keeping sandbox %s alive", sandboxID)
		return nil
	}

	if err := c.engine.Stop(ctx, sandboxID); err != nil {
		c.logger.Warningf("Could not stop sandbox %s, force removing: %s", sandboxID, err)
		if err := c.engine.Remove(ctx, sandboxID); err != nil {
			return fmt.Errorf("could not remove sandbox: %w", err)
		}
		return nil
	}

	if err := c.engine.Remove(ctx, sandboxID); err != nil {
		return fmt.Errorf("could not remove sandbox: %w", err)
	}

	return nil
}

func commitMessage(task *model.Task) string {
	msg := task.Instruction
	if len(msg) > 72 {
		msg = msg[:69] + "..."
	}
	return msg
}

// logEvents bridges agent backend events into the task log recorder.
type logEvents struct {
	rec         *tasklog.Recorder
	taskID      string
	parentAgent string
}

func (e logEvents) Heartbeat(ctx context.Context) {
	e.rec.Heartbeat(ctx, e.taskID)
}

func (e logEvents) Info(ctx context.Context, msg string, src *model.AgentSource) {
	e.rec.Append(ctx, e.taskID, model.LogEntryInfo, msg, src)
}

func (e logEvents) SubAgentStarted(ctx context.Context, name, description string) string {
	return e.rec.StartSubAgent(ctx, e.taskID, name, description, e.parentAgent)
}

func (e logEvents) SubAgentRunning(ctx context.Context, id string) {
	e.rec.MarkSubAgentRunning(ctx, e.taskID, id)
}

func (e logEvents) SubAgentFinished(ctx context.Context, id string, success bool) {
	e.rec.CompleteSubAgent(ctx, e.taskID, id, success)
}
