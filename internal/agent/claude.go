package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
)

// ClaudeBackend drives the claude CLI in headless mode, parsing its
// stream-json output for liveness, sub-agent (Task tool) activity and the
// final result.
type ClaudeBackend struct {
	engine sandbox.Engine
	logger log.Logger
}

// NewClaudeBackend creates a new claude backend.
func NewClaudeBackend(engine sandbox.Engine, logger log.Logger) *ClaudeBackend {
	return &ClaudeBackend{
		engine: engine,
		logger: logger.WithValues(log.Kv{"svc": "agent.Claude"}),
	}
}

// Execute runs the claude CLI inside the sandbox until it finishes.
func (b *ClaudeBackend) Execute(ctx context.Context, req ExecuteRequest) (*model.AgentResult, error) {
	if err := req.defaults(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	command := []string{
		"claude",
		"-p", req.Instruction,
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if req.Model != "" {
		command = append(command, "--model", req.Model)
	}
	if len(req.MCPServers) > 0 {
		mcpCfg, err := mcpConfigJSON(req.MCPServers)
		if err != nil {
			return nil, fmt.Errorf("could not build mcp config: %w", err)
		}
		command = append(command, "--mcp-config", mcpCfg)
	}

	parser := newClaudeStreamParser(ctx, req.Events, b.logger)
	stdout := newLineWriter(parser.parseLine)
	stderr := newTailBuffer(4096)

	res, err := b.engine.Exec(ctx, req.SandboxID, command, model.ExecOpts{
		WorkingDir: req.WorkDir,
		Env:        map[string]string{"ANTHROPIC_API_KEY": req.APIKey},
		Stdout:     stdout,
		Stderr:     stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("could not execute claude: %w", err)
	}
	stdout.Flush()

	result := parser.result()
	if res.ExitCode != 0 && result.Success {
		result.Success = false
		if result.ErrorDetail == "" {
			result.ErrorDetail = fmt.Sprintf("claude exited with code %d: %s", res.ExitCode, stderr.String())
		}
	}

	return result, nil
}

// mcpConfigJSON renders the inline MCP server configuration the claude CLI
// accepts.
func mcpConfigJSON(servers []string) (string, error) {
	cfg := map[string]map[string]map[string]string{"mcpServers": {}}
	for i, url := range servers {
		cfg["mcpServers"][fmt.Sprintf("server%d", i)] = map[string]string{
			"type": "http",
			"url":  url,
		}
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stream event shapes, only the fields we consume.

type claudeStreamEvent struct {
	Type      string               `json:"type"`
	Subtype   string               `json:"subtype"`
	SessionID string               `json:"session_id"`
	IsError   bool                 `json:"is_error"`
	Result    string               `json:"result"`
	Message   *claudeStreamMessage `json:"message"`
}

type claudeStreamMessage struct {
	Content []claudeContentBlock `json:"content"`
}

type claudeContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	IsError   bool            `json:"is_error"`
}

type claudeTaskInput struct {
	Description  string `json:"description"`
	SubagentType string `json:"subagent_type"`
}

// claudeStreamParser consumes stream-json lines, forwarding liveness and
// sub-agent activity to the Events sink. Sub-agents are claude's Task tool
// invocations: tool_use starts one, the matching tool_result finishes it.
type claudeStreamParser struct {
	ctx    context.Context
	events Events
	logger log.Logger

	// toolUse id -> tracked sub-agent id.
	subAgents map[string]string

	sessionID   string
	resultText  string
	resultError string
	failed      bool
	sawResult   bool
}

func newClaudeStreamParser(ctx context.Context, events Events, logger log.Logger) *claudeStreamParser {
	return &claudeStreamParser{
		ctx:       ctx,
		events:    events,
		logger:    logger,
		subAgents: map[string]string{},
	}
}

func (p *claudeStreamParser) parseLine(line string) {
	var ev claudeStreamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		// Not an event, plain output still counts as liveness.
		p.events.Heartbeat(p.ctx)
		return
	}

	if ev.SessionID != "" {
		p.sessionID = ev.SessionID
	}

	switch ev.Type {
	case "assistant":
		p.events.Heartbeat(p.ctx)
		if ev.Message == nil {
			return
		}
		for _, block := range ev.Message.Content {
			if block.Type != "tool_use" || block.Name != "Task" {
				continue
			}

			var input claudeTaskInput
			_ = json.Unmarshal(block.Input, &input)
			name := input.SubagentType
			if name == "" {
				name = "subagent"
			}

			id := p.events.SubAgentStarted(p.ctx, name, input.Description)
			p.events.SubAgentRunning(p.ctx, id)
			p.subAgents[block.ID] = id
		}

	case "user":
		p.events.Heartbeat(p.ctx)
		if ev.Message == nil {
			return
		}
		for _, block := range ev.Message.Content {
			if block.Type != "tool_result" {
				continue
			}
			id, ok := p.subAgents[block.ToolUseID]
			if !ok {
				continue
			}
			p.events.SubAgentFinished(p.ctx, id, !block.IsError)
			delete(p.subAgents, block.ToolUseID)
		}

	case "result":
		p.sawResult = true
		p.resultText = ev.Result
		if ev.IsError || ev.Subtype != "success" {
			p.failed = true
			p.resultError = ev.Result
			if p.resultError == "" {
				p.resultError = fmt.Sprintf("claude finished with %q", ev.Subtype)
			}
		}

	default:
		p.events.Heartbeat(p.ctx)
	}
}

func (p *claudeStreamParser) result() *model.AgentResult {
	// Any Task tool still open when the stream ends did not finish cleanly.
	for _, id := range p.subAgents {
		p.events.SubAgentFinished(p.ctx, id, false)
	}

	res := &model.AgentResult{
		Success:      p.sawResult && !p.failed,
		ResponseText: p.resultText,
		SessionID:    p.sessionID,
	}
	if p.failed {
		res.ErrorDetail = p.resultError
	} else if !p.sawResult {
		res.Success = false
		res.ErrorDetail = "claude stream ended without a result event"
	}

	return res
}
