package orchestrator_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/agent"
	"github.com/slok/agentbox/internal/agent/agentmock"
	"github.com/slok/agentbox/internal/git"
	"github.com/slok/agentbox/internal/git/gitmock"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/orchestrator"
	"github.com/slok/agentbox/internal/sandbox"
	"github.com/slok/agentbox/internal/sandbox/fake"
	"github.com/slok/agentbox/internal/storage"
	"github.com/slok/agentbox/internal/storage/memory"
	"github.com/slok/agentbox/internal/taskstate"
	"github.com/slok/agentbox/internal/tasklog"
)

type orchestratorDeps struct {
	repo      storage.Repository
	machine   *taskstate.Machine
	logRec    *tasklog.Recorder
	engine    *fake.Engine
	publisher *gitmock.MockPublisher
	backends  map[string]agent.Backend
}

func newOrchestratorDeps(t *testing.T) *orchestratorDeps {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	logRec, err := tasklog.NewRecorder(tasklog.RecorderConfig{Repository: repo})
	require.NoError(t, err)
	machine, err := taskstate.NewMachine(taskstate.MachineConfig{Repository: repo, LogRecorder: logRec})
	require.NoError(t, err)
	engine, err := fake.NewEngine(fake.EngineConfig{})
	require.NoError(t, err)

	return &orchestratorDeps{
		repo:      repo,
		machine:   machine,
		logRec:    logRec,
		engine:    engine,
		publisher: &gitmock.MockPublisher{},
		backends: map[string]agent.Backend{
			model.AgentTypeFake: agent.NewFakeBackend(),
		},
	}
}

func (d *orchestratorDeps) orchestrator(t *testing.T, engine sandbox.Engine) *orchestrator.Orchestrator {
	t.Helper()

	coord, err := orchestrator.NewCoordinator(orchestrator.CoordinatorConfig{
		Engine:      engine,
		Registry:    agent.NewRegistryWithBackends(d.backends),
		Publisher:   d.publisher,
		Machine:     d.machine,
		LogRecorder: d.logRec,
		Image:       "agentbox-workspace:latest",
	})
	require.NoError(t, err)

	sup, err := orchestrator.NewSupervisor(orchestrator.SupervisorConfig{
		Repository:  d.repo,
		Machine:     d.machine,
		LogRecorder: d.logRec,
		Coordinator: coord,
	})
	require.NoError(t, err)

	orch, err := orchestrator.New(orchestrator.Config{
		Repository:  d.repo,
		Machine:     d.machine,
		Coordinator: coord,
		Supervisor:  sup,
		LogRecorder: d.logRec,
	})
	require.NoError(t, err)

	return orch
}

func newPendingTask(id string) model.Task {
	now := time.Now().UTC()
	return model.Task{
		ID:            id,
		Instruction:   "add a health endpoint",
		Repo:          "https://github.com/org/repo.git",
		AgentType:     model.AgentTypeFake,
		BudgetMinutes: 5,
		Status:        model.TaskStatusPending,
		CreatedAt:     now,
	}
}

func TestOrchestratorExecuteSuccess(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	deps := newOrchestratorDeps(t)
	ctx := context.Background()

	deps.publisher.On("Clone", mock.Anything, mock.Anything, "https://github.com/org/repo.git", orchestrator.DefaultWorkDir, "repo-token").Return(nil)
	deps.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	require.NoError(deps.repo.CreateTask(ctx, newPendingTask("TASK1")))

	orch := deps.orchestrator(t, deps.engine)
	err := orch.Execute(ctx, "TASK1", model.Credentials{AgentAPIKey: "key", RepoToken: "repo-token"})
	require.NoError(err)

	stored, err := deps.repo.GetTask(ctx, "TASK1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, stored.Status)
	assert.Equal(100, stored.Progress)
	assert.Equal("agentbox/task1", stored.Branch)
	assert.NotEmpty(stored.SandboxID)
	assert.NotNil(stored.CompletedAt)

	// The sandbox was torn down after publication.
	_, ok := deps.engine.Sandbox(stored.SandboxID)
	assert.False(ok)

	// The branch the publisher received matches the recorded one.
	publishReq := deps.publisher.Calls[1].Arguments.Get(1).(git.PublishRequest)
	assert.Equal("agentbox/task1", publishReq.Branch)
	assert.Equal("repo-token", publishReq.Token)

	deps.publisher.AssertExpectations(t)
}

func TestOrchestratorExecuteKeepSandboxAlive(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	deps := newOrchestratorDeps(t)
	ctx := context.Background()

	deps.publisher.On("Clone", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	deps.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	task := newPendingTask("TASK1")
	task.KeepSandboxAlive = true
	require.NoError(deps.repo.CreateTask(ctx, task))

	orch := deps.orchestrator(t, deps.engine)
	require.NoError(orch.Execute(ctx, "TASK1", model.Credentials{AgentAPIKey: "key"}))

	stored, err := deps.repo.GetTask(ctx, "TASK1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, stored.Status)

	// The sandbox was deliberately orphaned.
	sb, ok := deps.engine.Sandbox(stored.SandboxID)
	require.True(ok)
	assert.Equal(model.SandboxStatusRunning, sb.Status)
}

func TestOrchestratorExecuteValidation(t *testing.T) {
	tests := map[string]struct {
		task  func() model.Task
		creds model.Credentials
	}{
		"A malformed repository reference should fail before provisioning.": {
			task: func() model.Task {
				task := newPendingTask("TASK1")
				task.Repo = "not-a-repo"
				return task
			},
			creds: model.Credentials{AgentAPIKey: "key"},
		},

		"Missing credentials should fail before provisioning.": {
			task: func() model.Task {
				task := newPendingTask("TASK1")
				task.AgentType = model.AgentTypeClaude
				return task
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			deps := newOrchestratorDeps(t)
			ctx := context.Background()

			require.NoError(deps.repo.CreateTask(ctx, test.task()))

			orch := deps.orchestrator(t, deps.engine)
			require.NoError(orch.Execute(ctx, "TASK1", test.creds))

			stored, err := deps.repo.GetTask(ctx, "TASK1")
			require.NoError(err)
			assert.Equal(model.TaskStatusError, stored.Status)
			assert.NotEmpty(stored.ErrorDetail)

			// No sandbox was ever provisioned.
			assert.Empty(stored.SandboxID)
		})
	}
}

func TestOrchestratorExecuteAlreadyStopped(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	deps := newOrchestratorDeps(t)
	ctx := context.Background()

	task := newPendingTask("TASK1")
	task.Status = model.TaskStatusStopped
	require.NoError(deps.repo.CreateTask(ctx, task))

	orch := deps.orchestrator(t, deps.engine)
	require.NoError(orch.Execute(ctx, "TASK1", model.Credentials{AgentAPIKey: "key"}))

	stored, err := deps.repo.GetTask(ctx, "TASK1")
	require.NoError(err)
	assert.Equal(model.TaskStatusStopped, stored.Status)
	assert.Empty(stored.SandboxID)
}

// stoppingEngine provisions through the wrapped fake engine and then stops
// the task, simulating a cancellation arriving mid-provision.
type stoppingEngine struct {
	*fake.Engine
	repo   storage.Repository
	taskID string
}

func (e *stoppingEngine) Provision(ctx context.Context, cfg model.SandboxConfig) (*model.Sandbox, error) {
	sb, err := e.Engine.Provision(ctx, cfg)
	if err != nil {
		return nil, err
	}

	task, err := e.repo.GetTask(ctx, e.taskID)
	if err != nil {
		return nil, err
	}
	task.Status = model.TaskStatusStopped
	if err := e.repo.UpdateTask(ctx, *task); err != nil {
		return nil, err
	}

	return sb, nil
}

func TestOrchestratorExecuteStoppedDuringProvisioning(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	deps := newOrchestratorDeps(t)
	ctx := context.Background()

	// The agent backend must never run.
	backend := &agentmock.MockBackend{}
	deps.backends[model.AgentTypeFake] = backend

	require.NoError(deps.repo.CreateTask(ctx, newPendingTask("TASK1")))

	engine := &stoppingEngine{Engine: deps.engine, repo: deps.repo, taskID: "TASK1"}
	orch := deps.orchestrator(t, engine)
	require.NoError(orch.Execute(ctx, "TASK1", model.Credentials{AgentAPIKey: "key"}))

	stored, err := deps.repo.GetTask(ctx, "TASK1")
	require.NoError(err)
	assert.Equal(model.TaskStatusStopped, stored.Status)

	backend.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	deps.publisher.AssertNotCalled(t, "Clone", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestratorExecuteAgentFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	deps := newOrchestratorDeps(t)
	ctx := context.Background()

	deps.publisher.On("Clone", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	deps.backends[model.AgentTypeFake] = &agent.FakeBackend{
		Result: &model.AgentResult{Success: false, ErrorDetail: "the agent hit its context limit"},
	}

	require.NoError(deps.repo.CreateTask(ctx, newPendingTask("TASK1")))

	orch := deps.orchestrator(t, deps.engine)
	require.NoError(orch.Execute(ctx, "TASK1", model.Credentials{AgentAPIKey: "key"}))

	stored, err := deps.repo.GetTask(ctx, "TASK1")
	require.NoError(err)
	assert.Equal(model.TaskStatusError, stored.Status)
	assert.Contains(stored.ErrorDetail, "the agent hit its context limit")

	// The sandbox was torn down.
	_, ok := deps.engine.Sandbox(stored.SandboxID)
	assert.False(ok)

	deps.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestCoordinatorExecuteAgentMCPServers(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	deps := newOrchestratorDeps(t)
	ctx := context.Background()

	var gotReq agent.ExecuteRequest
	backend := &agentmock.MockBackend{}
	backend.On("Execute", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		gotReq = args.Get(1).(agent.ExecuteRequest)
	}).Return(&model.AgentResult{Success: true}, nil)
	deps.backends[model.AgentTypeFake] = backend

	coord, err := orchestrator.NewCoordinator(orchestrator.CoordinatorConfig{
		Engine:      deps.engine,
		Registry:    agent.NewRegistryWithBackends(deps.backends),
		Publisher:   deps.publisher,
		Machine:     deps.machine,
		LogRecorder: deps.logRec,
		Image:       "agentbox-workspace:latest",
		MCPServers:  []string{"http://localhost:9000/sse"},
	})
	require.NoError(err)

	task := newPendingTask("TASK1")
	require.NoError(deps.repo.CreateTask(ctx, task))

	res, err := coord.ExecuteAgent(ctx, &task, "SBOX1", model.Credentials{AgentAPIKey: "key"})
	require.NoError(err)
	assert.True(res.Success)

	assert.Equal([]string{"http://localhost:9000/sse"}, gotReq.MCPServers)
	assert.Equal("key", gotReq.APIKey)
	backend.AssertExpectations(t)
}

func TestOrchestratorExecutePushFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	deps := newOrchestratorDeps(t)
	ctx := context.Background()

	deps.publisher.On("Clone", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	deps.publisher.On("Publish", mock.Anything, mock.Anything).Return(fmt.Errorf("remote rejected the push"))

	require.NoError(deps.repo.CreateTask(ctx, newPendingTask("TASK1")))

	orch := deps.orchestrator(t, deps.engine)
	require.NoError(orch.Execute(ctx, "TASK1", model.Credentials{AgentAPIKey: "key"}))

	stored, err := deps.repo.GetTask(ctx, "TASK1")
	require.NoError(err)
	assert.Equal(model.TaskStatusError, stored.Status)
	assert.Contains(stored.ErrorDetail, "remote rejected the push")
}

func TestOrchestratorRun(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	deps := newOrchestratorDeps(t)
	ctx := context.Background()

	deps.publisher.On("Clone", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	deps.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	require.NoError(deps.repo.CreateTask(ctx, newPendingTask("TASK1")))

	orch := deps.orchestrator(t, deps.engine)
	require.NoError(orch.Run(ctx, "TASK1", model.Credentials{AgentAPIKey: "key"}))

	stored, err := deps.repo.GetTask(ctx, "TASK1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, stored.Status)
}
