package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/sandbox"
	"github.com/slok/agentbox/internal/sandbox/docker"
	"github.com/slok/agentbox/internal/sandbox/fake"
	"github.com/slok/agentbox/internal/storage"
	"github.com/slok/agentbox/internal/storage/sqlite"
	utilsenv "github.com/slok/agentbox/internal/utils/env"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	// EngineTypeDocker runs sandboxes as Docker containers.
	EngineTypeDocker = "docker"
	// EngineTypeFake runs in-memory sandboxes, useful for development.
	EngineTypeFake = "fake"
)

const (
	// OutputTable prints human readable tables.
	OutputTable = "table"
	// OutputJSON prints machine readable JSON.
	OutputJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DBPath     string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir, conventions.DBFile)
	app.Flag("db-path", "Path to the SQLite database file.").Envar("AGENTBOX_DB_PATH").Default(defaultDBPath).StringVar(&c.DBPath)

	return c
}

// newRepository opens the task repository every command shares.
func (c *RootCommand) newRepository(ctx context.Context) (storage.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.DBPath,
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	return repo, nil
}

// newEngine creates the sandbox engine selected by the command flags.
func (c *RootCommand) newEngine(engineType string) (sandbox.Engine, error) {
	switch engineType {
	case EngineTypeDocker:
		eng, err := docker.NewEngine(docker.EngineConfig{
			Logger: c.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create docker engine: %w", err)
		}
		return eng, nil
	case EngineTypeFake:
		eng, err := fake.NewEngine(fake.EngineConfig{
			Logger: c.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create fake engine: %w", err)
		}
		return eng, nil
	}

	return nil, fmt.Errorf("unknown engine type %q", engineType)
}

// parseEnvSpecs parses `--env` values (KEY=VALUE pairs or bare KEY names
// inherited from the current environment) into an environment map.
func parseEnvSpecs(specs []string) (map[string]string, error) {
	return utilsenv.ParseSpecs(specs)
}
