// Package agentbox holds helpers to drive the compiled agentbox binary in
// integration tests.
package agentbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/agentbox/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "agentbox"
	}

	// If relative, the caller should pass an absolute path via the env var,
	// because go test changes the CWD to the test package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("AGENTBOX_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("agentbox binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "AGENTBOX_INTEGRATION"
		envBinary     = "AGENTBOX_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary: os.Getenv(envBinary),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// RunRun executes `agentbox run` with the fake engine and agent.
func RunRun(ctx context.Context, config Config, dbPath, instruction, repo string) (stdout, stderr []byte, err error) {
	args := []string{
		"--db-path", dbPath,
		"run", instruction,
		"--repo", repo,
		"--agent", "fake",
		"--engine", "fake",
	}
	return testutils.RunAgentboxArgs(ctx, nil, config.Binary, args, true)
}

// RunList executes `agentbox list --format json`.
func RunList(ctx context.Context, config Config, dbPath string) (stdout, stderr []byte, err error) {
	return testutils.RunAgentbox(ctx, nil, config.Binary, fmt.Sprintf("--db-path %s list --format json", dbPath), true)
}

// RunStatus executes `agentbox status --format json`.
func RunStatus(ctx context.Context, config Config, dbPath, taskID string) (stdout, stderr []byte, err error) {
	return testutils.RunAgentbox(ctx, nil, config.Binary, fmt.Sprintf("--db-path %s status %s --format json", dbPath, taskID), true)
}

// RunLogs executes `agentbox logs`.
func RunLogs(ctx context.Context, config Config, dbPath, taskID string) (stdout, stderr []byte, err error) {
	return testutils.RunAgentbox(ctx, nil, config.Binary, fmt.Sprintf("--db-path %s logs %s", dbPath, taskID), true)
}

// RunRm executes `agentbox rm` with the fake engine.
func RunRm(ctx context.Context, config Config, dbPath, taskID string) (stdout, stderr []byte, err error) {
	return testutils.RunAgentbox(ctx, nil, config.Binary, fmt.Sprintf("--db-path %s rm %s --engine fake --force", dbPath, taskID), true)
}

// RunDoctor executes `agentbox doctor` with the fake engine.
func RunDoctor(ctx context.Context, config Config, dbPath string) (stdout, stderr []byte, err error) {
	return testutils.RunAgentbox(ctx, nil, config.Binary, fmt.Sprintf("--db-path %s doctor --engine fake", dbPath), true)
}
