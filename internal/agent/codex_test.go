package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/agent"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox/sandboxmock"
)

func TestCodexBackendExecute(t *testing.T) {
	tests := map[string]struct {
		model      string
		stdout     string
		stderr     string
		exitCode   int
		expCommand []string
		expResult  *model.AgentResult
		expBeats   int
	}{
		"A successful run should return the output text.": {
			stdout:     "analyzing repo\napplied the change\n",
			expCommand: []string{"codex", "exec", "--full-auto", "tidy the readme"},
			expResult: &model.AgentResult{
				Success:      true,
				ResponseText: "analyzing repo\napplied the change",
			},
			expBeats: 2,
		},

		"A model flag should be forwarded to the CLI.": {
			model:      "o4-mini",
			stdout:     "done\n",
			expCommand: []string{"codex", "exec", "--full-auto", "--model", "o4-mini", "tidy the readme"},
			expResult: &model.AgentResult{
				Success:      true,
				ResponseText: "done",
			},
			expBeats: 1,
		},

		"A non zero exit code should fail the run with the stderr tail.": {
			stdout:     "starting\n",
			stderr:     "auth failed",
			exitCode:   2,
			expCommand: []string{"codex", "exec", "--full-auto", "tidy the readme"},
			expResult: &model.AgentResult{
				Success:      false,
				ResponseText: "starting",
				ErrorDetail:  "codex exited with code 2: auth failed",
			},
			expBeats: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var gotCommand []string
			engine := &sandboxmock.MockEngine{}
			engine.On("Exec", mock.Anything, "sbx1", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
				gotCommand = args.Get(2).([]string)
				opts := args.Get(3).(model.ExecOpts)
				_, _ = opts.Stdout.Write([]byte(test.stdout))
				_, _ = opts.Stderr.Write([]byte(test.stderr))
			}).Return(&model.ExecResult{ExitCode: test.exitCode}, nil)

			events := newRecordEvents()
			backend := agent.NewCodexBackend(engine, log.Noop)
			res, err := backend.Execute(context.TODO(), agent.ExecuteRequest{
				SandboxID:   "sbx1",
				Instruction: "tidy the readme",
				Model:       test.model,
				Events:      events,
			})
			require.NoError(err)

			assert.Equal(test.expCommand, gotCommand)
			assert.Equal(test.expResult, res)
			assert.Equal(test.expBeats, events.heartbeats)
		})
	}
}
