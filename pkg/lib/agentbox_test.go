package lib_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/pkg/lib"
)

// newTestClient creates a client with a temp SQLite DB for test isolation.
func newTestClient(t *testing.T) *lib.Client {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	client, err := lib.New(ctx, lib.Config{
		DBPath:  dbPath,
		DataDir: t.TempDir(),
		Engine:  lib.EngineFake,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func runFakeTask(ctx context.Context, t *testing.T, client *lib.Client) *lib.Task {
	t.Helper()

	task, err := client.RunTask(ctx, lib.RunTaskOpts{
		Instruction: "Add a health endpoint",
		Repo:        "https://github.com/org/app.git",
		Agent:       lib.AgentFake,
	})
	require.NoError(t, err)

	return task
}

func TestRunTask(t *testing.T) {
	tests := map[string]struct {
		opts      lib.RunTaskOpts
		expErr    bool
		expIs     error
		expStatus lib.TaskStatus
	}{
		"Running a task with the fake agent should complete.": {
			opts: lib.RunTaskOpts{
				Instruction: "Add a health endpoint",
				Repo:        "https://github.com/org/app.git",
				Agent:       lib.AgentFake,
			},
			expStatus: lib.TaskStatusCompleted,
		},

		"Running a task without an instruction should fail.": {
			opts: lib.RunTaskOpts{
				Repo:  "https://github.com/org/app.git",
				Agent: lib.AgentFake,
			},
			expErr: true,
			expIs:  lib.ErrNotValid,
		},

		"Running a task without a repository should fail.": {
			opts: lib.RunTaskOpts{
				Instruction: "Add a health endpoint",
				Agent:       lib.AgentFake,
			},
			expErr: true,
			expIs:  lib.ErrNotValid,
		},

		"Running a task with a malformed repository should fail.": {
			opts: lib.RunTaskOpts{
				Instruction: "Add a health endpoint",
				Repo:        "not a repo url",
				Agent:       lib.AgentFake,
			},
			expErr: true,
			expIs:  lib.ErrNotValid,
		},

		"A real agent without credentials should end in error status, not an SDK error.": {
			opts: lib.RunTaskOpts{
				Instruction: "Add a health endpoint",
				Repo:        "https://github.com/org/app.git",
				Agent:       lib.AgentClaude,
			},
			expStatus: lib.TaskStatusError,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			client := newTestClient(t)
			ctx := context.Background()

			task, err := client.RunTask(ctx, test.opts)

			if test.expErr {
				assert.Error(err)
				if test.expIs != nil {
					assert.True(errors.Is(err, test.expIs), "expected error %v, got: %v", test.expIs, err)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(test.expStatus, task.Status)

			if test.expStatus == lib.TaskStatusCompleted {
				assert.Equal(100, task.Progress)
				assert.True(strings.HasPrefix(task.Branch, "agentbox/"), "unexpected branch: %s", task.Branch)
				assert.NotEmpty(task.Log)
				assert.NotNil(task.CompletedAt)
			} else {
				assert.NotEmpty(task.ErrorDetail)
			}
		})
	}
}

func TestGetTask(t *testing.T) {
	assert := assert.New(t)
	client := newTestClient(t)
	ctx := context.Background()

	task := runFakeTask(ctx, t, client)

	got, err := client.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(task.ID, got.ID)
	assert.Equal(lib.TaskStatusCompleted, got.Status)

	_, err = client.GetTask(ctx, "01JTCD2NV3Z6W7X8Y9ABCDEF00")
	assert.True(errors.Is(err, lib.ErrNotFound))
}

func TestListTasks(t *testing.T) {
	assert := assert.New(t)
	client := newTestClient(t)
	ctx := context.Background()

	runFakeTask(ctx, t, client)
	runFakeTask(ctx, t, client)

	// All tasks.
	tasks, err := client.ListTasks(ctx, nil)
	require.NoError(t, err)
	assert.Len(tasks, 2)

	// Filtered: no stopped tasks exist.
	stopped := lib.TaskStatusStopped
	tasks, err = client.ListTasks(ctx, &lib.ListTasksOpts{Status: &stopped})
	require.NoError(t, err)
	assert.Empty(tasks)
}

func TestTaskLogs(t *testing.T) {
	assert := assert.New(t)
	client := newTestClient(t)
	ctx := context.Background()

	task := runFakeTask(ctx, t, client)

	logs, err := client.TaskLogs(ctx, task.ID)
	require.NoError(t, err)
	assert.NotEmpty(logs)

	// The log ends with the completion entry.
	last := logs[len(logs)-1]
	assert.Equal(lib.LogEntrySuccess, last.Type)

	_, err = client.TaskLogs(ctx, "01JTCD2NV3Z6W7X8Y9ABCDEF00")
	assert.True(errors.Is(err, lib.ErrNotFound))
}

func TestStopTask(t *testing.T) {
	assert := assert.New(t)
	client := newTestClient(t)
	ctx := context.Background()

	task := runFakeTask(ctx, t, client)

	// Stopping a finished task is not valid.
	_, err := client.StopTask(ctx, task.ID)
	assert.True(errors.Is(err, lib.ErrNotValid))

	_, err = client.StopTask(ctx, "01JTCD2NV3Z6W7X8Y9ABCDEF00")
	assert.True(errors.Is(err, lib.ErrNotFound))
}

func TestRemoveTask(t *testing.T) {
	assert := assert.New(t)
	client := newTestClient(t)
	ctx := context.Background()

	task := runFakeTask(ctx, t, client)

	err := client.RemoveTask(ctx, task.ID, false)
	require.NoError(t, err)

	_, err = client.GetTask(ctx, task.ID)
	assert.True(errors.Is(err, lib.ErrNotFound))

	err = client.RemoveTask(ctx, "01JTCD2NV3Z6W7X8Y9ABCDEF00", false)
	assert.True(errors.Is(err, lib.ErrNotFound))
}

func TestDoctor(t *testing.T) {
	assert := assert.New(t)
	client := newTestClient(t)
	ctx := context.Background()

	results, err := client.Doctor(ctx)
	require.NoError(t, err)

	for _, r := range results {
		assert.Equal(lib.CheckStatusOK, r.Status)
	}
}
