package integration_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox/docker"
)

// integrationImage returns the container image used for sandbox tests,
// skipping when integration tests are not enabled.
func integrationImage(t *testing.T) string {
	t.Helper()

	if os.Getenv("AGENTBOX_INTEGRATION") != "true" {
		t.Skip("Skipping integration test: AGENTBOX_INTEGRATION is not set to 'true'")
	}

	image := os.Getenv("AGENTBOX_INTEGRATION_IMAGE")
	if image == "" {
		image = "alpine:3.20"
	}

	return image
}

func uniqueTaskID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestDockerEngineCheck(t *testing.T) {
	_ = integrationImage(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	eng, err := docker.NewEngine(docker.EngineConfig{})
	require.NoError(t, err)

	results := eng.Check(ctx)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, model.CheckStatusError, r.Status, "check %s failed: %s", r.ID, r.Message)
	}
}

func TestDockerEngineSandboxLifecycle(t *testing.T) {
	image := integrationImage(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	eng, err := docker.NewEngine(docker.EngineConfig{})
	require.NoError(t, err)

	taskID := uniqueTaskID("engine-lifecycle")

	sb, err := eng.Provision(ctx, model.SandboxConfig{
		TaskID:  taskID,
		Image:   image,
		WorkDir: "/workspace",
		Env:     map[string]string{"AGENTBOX_TEST_VAR": "test-value"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sb.ID)

	// Teardown best effort, the happy path removes it before this runs.
	t.Cleanup(func() {
		cleanCtx, cleanCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cleanCancel()
		_ = eng.Remove(cleanCtx, sb.ID)
	})

	// Exec a command and capture output.
	var stdout bytes.Buffer
	result, err := eng.Exec(ctx, sb.ID, []string{"sh", "-c", "echo hello from $AGENTBOX_TEST_VAR"}, model.ExecOpts{
		Stdout: &stdout,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, stdout.String(), "hello from test-value")

	// Non-zero exit codes are reported, not errors.
	result, err = eng.Exec(ctx, sb.ID, []string{"sh", "-c", "exit 3"}, model.ExecOpts{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)

	// Stop and remove.
	require.NoError(t, eng.Stop(ctx, sb.ID))
	require.NoError(t, eng.Remove(ctx, sb.ID))

	// Remove is idempotent.
	require.NoError(t, eng.Remove(ctx, sb.ID))
}

func TestDockerEngineWorkDir(t *testing.T) {
	image := integrationImage(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	eng, err := docker.NewEngine(docker.EngineConfig{})
	require.NoError(t, err)

	sb, err := eng.Provision(ctx, model.SandboxConfig{
		TaskID:  uniqueTaskID("engine-workdir"),
		Image:   image,
		WorkDir: "/workspace",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanCtx, cleanCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cleanCancel()
		_ = eng.Remove(cleanCtx, sb.ID)
	})

	var stdout bytes.Buffer
	result, err := eng.Exec(ctx, sb.ID, []string{"pwd"}, model.ExecOpts{
		WorkingDir: "/workspace",
		Stdout:     &stdout,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "/workspace", strings.TrimSpace(stdout.String()))
}
