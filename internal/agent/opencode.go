package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
)

// OpencodeBackend drives the opencode CLI in one-shot mode.
type OpencodeBackend struct {
	engine sandbox.Engine
	logger log.Logger
}

// NewOpencodeBackend creates a new opencode backend.
func NewOpencodeBackend(engine sandbox.Engine, logger log.Logger) *OpencodeBackend {
	return &OpencodeBackend{
		engine: engine,
		logger: logger.WithValues(log.Kv{"svc": "agent.Opencode"}),
	}
}

// Execute runs the opencode CLI inside the sandbox until it finishes.
func (b *OpencodeBackend) Execute(ctx context.Context, req ExecuteRequest) (*model.AgentResult, error) {
	if err := req.defaults(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	command := []string{"opencode", "run"}
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
		Env:        map[string]string{"OPENCODE_API_KEY": req.APIKey},
		Stdout:     stdout,
		Stderr:     stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("could not execute opencode: %w", err)
	}
	stdout.Flush()

	result := &model.AgentResult{
		Success:      res.ExitCode == 0,
		ResponseText: strings.TrimSpace(out.String()),
	}
	if !result.Success {
		result.ErrorDetail = fmt.Sprintf("opencode exited with code %d: %s", res.ExitCode, stderr.String())
	}

	return result, nil
}
