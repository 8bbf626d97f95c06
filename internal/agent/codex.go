package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
)

// CodexBackend drives the codex CLI in non-interactive mode. Codex emits
// plain text, so every output line counts as liveness and the tail of the
// output becomes the response text.
type CodexBackend struct {
	engine sandbox.Engine
	logger log.Logger
}

// NewCodexBackend creates a new codex backend.
func NewCodexBackend(engine sandbox.Engine, logger log.Logger) *CodexBackend {
	return &CodexBackend{
		engine: engine,
		logger: logger.WithValues(log.Kv{"svc": "agent.Codex"}),
	}
}

// Execute runs the codex CLI inside the sandbox until it finishes.
func (b *CodexBackend) Execute(ctx context.Context, req ExecuteRequest) (*model.AgentResult, error) {
	if err := req.defaults(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	command := []string{"codex", "exec", "--full-auto"}
	if req.Model != "" {
		command = append(command, "--model", req.Model)
	}
	command = append(command, req.Instruction)

	out := newTailBuffer(8192)
	stdout := newLineWriter(func(line string) {
		req.Events.Heartbeat(ctx)
		if line != "" {
			out.Write([]byte(line + "\n"))
		}
	})
	stderr := newTailBuffer(4096)

	res, err := b.engine.Exec(ctx, req.SandboxID, command, model.ExecOpts{
		WorkingDir: req.WorkDir,
		Env:        map[string]string{"OPENAI_API_KEY": req.APIKey},
		Stdout:     stdout,
		Stderr:     stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("could not execute codex: %w", err)
	}
	stdout.Flush()

	result := &model.AgentResult{
		Success:      res.ExitCode == 0,
		ResponseText: strings.TrimSpace(out.String()),
	}
	if !result.Success {
		result.ErrorDetail = fmt.Sprintf("codex exited with code %d: %s", res.ExitCode, stderr.String())
	}

	return result, nil
}
