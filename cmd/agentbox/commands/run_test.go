package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/model"
)

func TestRunCommandTaskConfig(t *testing.T) {
	taskYAML := `
instruction: "Fix the login bug"
repo: "https://github.com/org/app.git"
agent: codex
model: gpt-5
budgetMinutes: 45
keepSandbox: true
image: ghcr.io/org/workspace:dev
env:
  FOO: from-file
  BAR: kept
`

	tests := map[string]struct {
		cmd      func(file string) RunCommand
		expCfg   model.TaskConfig
		expImage string
		expEnv   map[string]string
		expErr   bool
	}{
		"Flags alone should build the config with defaults.": {
			cmd: func(_ string) RunCommand {
				return RunCommand{
					instruction: "Add retries",
					repo:        "https://github.com/org/app.git",
				}
			},
			expCfg: model.TaskConfig{
				Instruction: "Add retries",
				Repo:        "https://github.com/org/app.git",
				AgentType:   model.AgentTypeClaude,
			},
			expImage: conventions.DefaultWorkspaceImage,
			expEnv:   map[string]string{},
		},

		"A task file should provide every value.": {
			cmd: func(file string) RunCommand {
				return RunCommand{file: file}
			},
			expCfg: model.TaskConfig{
				Instruction:      "Fix the login bug",
				Repo:             "https://github.com/org/app.git",
				AgentType:        model.AgentTypeCodex,
				Model:            "gpt-5",
				BudgetMinutes:    45,
				KeepSandboxAlive: true,
			},
			expImage: "ghcr.io/org/workspace:dev",
			expEnv:   map[string]string{"FOO": "from-file", "BAR": "kept"},
		},

		"Flags should override the task file.": {
			cmd: func(file string) RunCommand {
				return RunCommand{
					file:        file,
					instruction: "Different instruction",
					agentType:   model.AgentTypeClaude,
					budget:      10,
					image:       "ghcr.io/org/other:latest",
					envSpecs:    []string{"FOO=from-flag"},
				}
			},
			expCfg: model.TaskConfig{
				Instruction:      "Different instruction",
				Repo:             "https://github.com/org/app.git",
				AgentType:        model.AgentTypeClaude,
				Model:            "gpt-5",
				BudgetMinutes:    10,
				KeepSandboxAlive: true,
			},
			expImage: "ghcr.io/org/other:latest",
			expEnv:   map[string]string{"FOO": "from-flag", "BAR": "kept"},
		},

		"An invalid env spec should fail.": {
			cmd: func(_ string) RunCommand {
				return RunCommand{
					instruction: "Add retries",
					envSpecs:    []string{"1BAD=value"},
				}
			},
			expErr: true,
		},

		"A missing task file should fail.": {
			cmd: func(_ string) RunCommand {
				return RunCommand{file: "/does/not/exist.yaml"}
			},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "task.yaml")
			err := os.WriteFile(file, []byte(taskYAML), 0o600)
			require.NoError(t, err)

			cmd := tc.cmd(file)
			cfg, image, env, err := cmd.taskConfig()

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expCfg, cfg)
			assert.Equal(t, tc.expImage, image)
			assert.Equal(t, tc.expEnv, env)
		})
	}
}

func TestAgentAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("OPENCODE_API_KEY", "opencode-key")

	tests := map[string]struct {
		agentType string
		expKey    string
	}{
		"Claude resolves its conventional env var.":   {agentType: model.AgentTypeClaude, expKey: "anthropic-key"},
		"Codex resolves its conventional env var.":    {agentType: model.AgentTypeCodex, expKey: "openai-key"},
		"Opencode resolves its conventional env var.": {agentType: model.AgentTypeOpencode, expKey: "opencode-key"},
		"The fake agent needs no credentials.":        {agentType: model.AgentTypeFake, expKey: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expKey, agentAPIKeyFromEnv(tc.agentType))
		})
	}
}
