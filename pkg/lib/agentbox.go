package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/sandbox"
	"github.com/slok/agentbox/internal/sandbox/docker"
	"github.com/slok/agentbox/internal/sandbox/fake"
	"github.com/slok/agentbox/internal/storage"
	"github.com/slok/agentbox/internal/storage/sqlite"
)

// Config configures the SDK client.
//
// All fields are optional and have sensible defaults. At minimum, an empty
// Config{} will use ~/.agentbox/agentbox.db for storage and the Docker engine.
type Config struct {
	// DBPath is the SQLite database path.
	// Default: ~/.agentbox/agentbox.db.
	DBPath string

	// DataDir is the base directory for agentbox data.
	// Default: ~/.agentbox.
	DataDir string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// Engine selects the sandbox engine for all task operations.
	// Default: [EngineDocker].
	//
	// Set this to [EngineFake] for testing without real infrastructure.
	Engine EngineType

	// Image is the default workspace container image tasks run in.
	// Default: the agentbox workspace image.
	Image string
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.Engine == "" {
		c.Engine = EngineDocker
	}

	if c.Image == "" {
		c.Image = conventions.DefaultWorkspaceImage
	}

	return nil
}

// Client is the main SDK entry point for running coding tasks programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	repo       storage.Repository
	logger     log.Logger
	engineType EngineType
	image      string
	closeFn    func() error
}

// New creates a new SDK client backed by a SQLite database.
//
// The caller must call [Client.Close] when done to release the database
// connection. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	return &Client{
		repo:       repo,
		logger:     cfg.Logger,
		engineType: cfg.Engine,
		image:      cfg.Image,
		closeFn:    repo.Close,
	}, nil
}

// Close releases resources held by the client, including the database connection.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// newEngine creates the sandbox engine for an operation. Engines are created
// per-operation so the Docker client is only dialed when needed.
func (c *Client) newEngine() (sandbox.Engine, error) {
	switch c.engineType {
	case EngineDocker:
		return docker.NewEngine(docker.EngineConfig{
			Logger: c.logger,
		})
	case EngineFake:
		return fake.NewEngine(fake.EngineConfig{
			Logger: c.logger,
		})
	default:
		return nil, fmt.Errorf("unsupported engine type: %s: %w", c.engineType, ErrNotValid)
	}
}

// Doctor runs preflight health checks for the configured engine.
//
// For [EngineDocker], this checks the Docker daemon connection and the
// availability of the docker CLI. For [EngineFake], every check passes.
//
// Returns a slice of [CheckResult] describing each check's outcome.
func (c *Client) Doctor(ctx context.Context) ([]CheckResult, error) {
	eng, err := c.newEngine()
	if err != nil {
		return nil, mapError(fmt.Errorf("could not create engine: %w", err))
	}

	results := eng.Check(ctx)
	return fromInternalCheckResults(results), nil
}
