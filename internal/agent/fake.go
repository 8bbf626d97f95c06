package agent

import (
	"context"
	"fmt"

	"github.com/slok/agentbox/internal/model"
)

// FakeBackend is an agent backend that fakes a run without any external
// CLI, used by the fake agent type and on tests.
type FakeBackend struct {
	// Result is returned from every execution. When nil a successful result
	// is returned.
	Result *model.AgentResult
	// WithSubAgent makes the fake spawn a single sub-agent during the run.
	WithSubAgent bool
}

// NewFakeBackend creates a new fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

// Execute fakes an agent run, emitting liveness and optional sub-agent
// activity on the events sink.
func (b *FakeBackend) Execute(ctx context.Context, req ExecuteRequest) (*model.AgentResult, error) {
	if err := req.defaults(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	req.Events.Heartbeat(ctx)
	req.Events.Info(ctx, fmt.Sprintf("fake agent received instruction: %s", req.Instruction), nil)

	if b.WithSubAgent {
		id := req.Events.SubAgentStarted(ctx, "fake-worker", "fake sub-agent task")
		req.Events.SubAgentRunning(ctx, id)
		req.Events.SubAgentFinished(ctx, id, true)
	}

	req.Events.Heartbeat(ctx)

	if b.Result != nil {
		res := *b.Result
		return &res, nil
	}

	return &model.AgentResult{
		Success:      true,
		ResponseText: "fake agent run completed",
		SessionID:    "fake-session",
	}, nil
}
