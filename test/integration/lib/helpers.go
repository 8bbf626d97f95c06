// Package lib holds helpers for SDK integration tests against a real
// Docker daemon.
package lib

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	sdklib "github.com/slok/agentbox/pkg/lib"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	// Image is the workspace container image used for tasks. It needs git
	// installed for the full pipeline test.
	Image string
	// Repo is a git repository the integration run may clone and push to.
	// Empty skips the full pipeline test.
	Repo string
	// RepoToken authenticates clone and push for Repo.
	RepoToken string
}

// NewConfig loads integration test configuration from environment variables.
// If the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "AGENTBOX_INTEGRATION"
		envImage      = "AGENTBOX_INTEGRATION_IMAGE"
		envRepo       = "AGENTBOX_INTEGRATION_REPO"
		envRepoToken  = "AGENTBOX_INTEGRATION_REPO_TOKEN"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	return Config{
		Image:     os.Getenv(envImage),
		Repo:      os.Getenv(envRepo),
		RepoToken: os.Getenv(envRepoToken),
	}
}

// NewDockerClient creates an SDK client with a temp SQLite DB and the Docker
// engine for test isolation.
func NewDockerClient(t *testing.T, config Config) *sdklib.Client {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	client, err := sdklib.New(ctx, sdklib.Config{
		DBPath:  dbPath,
		DataDir: t.TempDir(),
		Engine:  sdklib.EngineDocker,
		Image:   config.Image,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
