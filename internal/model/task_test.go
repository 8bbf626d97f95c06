package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/agentbox/internal/model"
)

func TestTaskConfigValidate(t *testing.T) {
	tests := map[string]struct {
		config func() model.TaskConfig
		expErr bool
	}{
		"A valid config should not fail.": {
			config: func() model.TaskConfig {
				return model.TaskConfig{
					Instruction:   "Add a health endpoint",
					Repo:          "https://github.com/slok/agentbox-demo",
					AgentType:     model.AgentTypeClaude,
					BudgetMinutes: 30,
				}
			},
			expErr: false,
		},

		"A valid ssh repository reference should not fail.": {
			config: func() model.TaskConfig {
				return model.TaskConfig{
					Instruction: "Fix the flaky test",
					Repo:        "git@github.com:slok/agentbox-demo.git",
					AgentType:   model.AgentTypeCodex,
				}
			},
			expErr: false,
		},

		"Missing instruction should fail.": {
			config: func() model.TaskConfig {
				return model.TaskConfig{
					Repo:      "https://github.com/slok/agentbox-demo",
					AgentType: model.AgentTypeClaude,
				}
			},
			expErr: true,
		},

		"Missing repository should fail.": {
			config: func() model.TaskConfig {
				return model.TaskConfig{
					Instruction: "Add a health endpoint",
					AgentType:   model.AgentTypeClaude,
				}
			},
			expErr: true,
		},

		"A malformed repository reference should fail.": {
			config: func() model.TaskConfig {
				return model.TaskConfig{
					Instruction: "Add a health endpoint",
					Repo:        "not a repo at all",
					AgentType:   model.AgentTypeClaude,
				}
			},
			expErr: true,
		},

		"Missing agent type should fail.": {
			config: func() model.TaskConfig {
				return model.TaskConfig{
					Instruction: "Add a health endpoint",
					Repo:        "https://github.com/slok/agentbox-demo",
				}
			},
			expErr: true,
		},

		"A negative budget should fail.": {
			config: func() model.TaskConfig {
				return model.TaskConfig{
					Instruction:   "Add a health endpoint",
					Repo:          "https://github.com/slok/agentbox-demo",
					AgentType:     model.AgentTypeClaude,
					BudgetMinutes: -5,
				}
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := test.config()
			err := cfg.Validate()

			if test.expErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, model.ErrNotValid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	tests := map[string]struct {
		status model.TaskStatus
		exp    bool
	}{
		"Pending is not terminal.":    {status: model.TaskStatusPending, exp: false},
		"Processing is not terminal.": {status: model.TaskStatusProcessing, exp: false},
		"Completed is terminal.":      {status: model.TaskStatusCompleted, exp: true},
		"Error is terminal.":          {status: model.TaskStatusError, exp: true},
		"Stopped is terminal.":        {status: model.TaskStatusStopped, exp: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.status.IsTerminal())
		})
	}
}

func TestTaskHasActiveSubAgents(t *testing.T) {
	now := time.Now().UTC()

	tests := map[string]struct {
		subAgents []model.SubAgent
		exp       bool
	}{
		"No sub-agents means no activity.": {
			subAgents: nil,
			exp:       false,
		},

		"A running sub-agent counts as active.": {
			subAgents: []model.SubAgent{
				{ID: "sa1", Name: "explorer", Status: model.SubAgentStatusRunning, StartedAt: now.Add(-20 * time.Minute)},
			},
			exp: true,
		},

		"A recently started sub-agent counts as active.": {
			subAgents: []model.SubAgent{
				{ID: "sa1", Name: "explorer", Status: model.SubAgentStatusStarting, StartedAt: now.Add(-1 * time.Minute)},
			},
			exp: true,
		},

		"A sub-agent stuck in starting for 6 minutes does not count as active.": {
			subAgents: []model.SubAgent{
				{ID: "sa1", Name: "explorer", Status: model.SubAgentStatusStarting, StartedAt: now.Add(-6 * time.Minute)},
			},
			exp: false,
		},

		"Completed and failed sub-agents do not count as active.": {
			subAgents: []model.SubAgent{
				{ID: "sa1", Name: "explorer", Status: model.SubAgentStatusCompleted, StartedAt: now.Add(-10 * time.Minute)},
				{ID: "sa2", Name: "tester", Status: model.SubAgentStatusError, StartedAt: now.Add(-8 * time.Minute)},
			},
			exp: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			task := &model.Task{SubAgents: test.subAgents}
			assert.Equal(t, test.exp, task.HasActiveSubAgents(now))
		})
	}
}

func TestTaskActiveSubAgent(t *testing.T) {
	now := time.Now().UTC()

	task := &model.Task{SubAgents: []model.SubAgent{
		{ID: "sa1", Name: "explorer", Status: model.SubAgentStatusCompleted, StartedAt: now.Add(-15 * time.Minute)},
		{ID: "sa2", Name: "tester", Status: model.SubAgentStatusRunning, StartedAt: now.Add(-10 * time.Minute)},
		{ID: "sa3", Name: "refactorer", Status: model.SubAgentStatusRunning, StartedAt: now.Add(-2 * time.Minute)},
	}}

	active := task.ActiveSubAgent(now)
	assert.NotNil(t, active)
	assert.Equal(t, "refactorer", active.Name)

	// No alive sub-agents.
	empty := &model.Task{SubAgents: []model.SubAgent{
		{ID: "sa1", Name: "explorer", Status: model.SubAgentStatusError, StartedAt: now.Add(-15 * time.Minute)},
	}}
	assert.Nil(t, empty.ActiveSubAgent(now))
}
