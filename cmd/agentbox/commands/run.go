package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	"github.com/slok/agentbox/internal/agent"
	apprun "github.com/slok/agentbox/internal/app/run"
	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/git"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/orchestrator"
	"github.com/slok/agentbox/internal/tasklog"
	"github.com/slok/agentbox/internal/taskstate"
	utilsenv "github.com/slok/agentbox/internal/utils/env"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	instruction string
	file        string

	repo        string
	agentType   string
	modelName   string
	budget      int
	keepSandbox bool

	engine     string
	image      string
	envSpecs   []string
	mcpServers []string

	cpu float64
	mem int

	agentAPIKey string
	repoToken   string
}

// taskFile is the YAML task definition accepted by `run -f`.
type taskFile struct {
	Instruction   string            `yaml:"instruction"`
	Repo          string            `yaml:"repo"`
	Agent         string            `yaml:"agent"`
	Model         string            `yaml:"model"`
	BudgetMinutes int               `yaml:"budgetMinutes"`
	KeepSandbox   bool              `yaml:"keepSandbox"`
	Image         string            `yaml:"image"`
	Env           map[string]string `yaml:"env"`
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a coding task to completion.")

	c.Cmd.Arg("instruction", "Natural language instruction for the agent.").StringVar(&c.instruction)
	c.Cmd.Flag("file", "YAML task definition file (flags override its values).").Short('f').StringVar(&c.file)

	c.Cmd.Flag("repo", "Git repository URL to work on.").StringVar(&c.repo)
	c.Cmd.Flag("agent", "Agent backend type (claude, codex, opencode, fake).").StringVar(&c.agentType)
	c.Cmd.Flag("model", "Model override passed to the agent.").StringVar(&c.modelName)
	c.Cmd.Flag("budget", "Task duration budget in minutes.").IntVar(&c.budget)
	c.Cmd.Flag("keep-sandbox", "Keep the sandbox alive after the task finishes.").BoolVar(&c.keepSandbox)

	c.Cmd.Flag("engine", "Sandbox engine type (docker, fake).").Default(EngineTypeDocker).EnumVar(&c.engine, EngineTypeDocker, EngineTypeFake)
	c.Cmd.Flag("image", "Workspace container image the agent runs in.").StringVar(&c.image)
	c.Cmd.Flag("env", "Extra sandbox environment variables (KEY=VALUE or KEY from current environment). Can be repeated.").Short('e').StringsVar(&c.envSpecs)
	c.Cmd.Flag("mcp-server", "MCP server address handed to agents that support them. Can be repeated.").StringsVar(&c.mcpServers)

	c.Cmd.Flag("cpu", "Number of VCPUs for the sandbox (can be fractional, e.g., 0.5, 1.5).").Default("2").Float64Var(&c.cpu)
	c.Cmd.Flag("mem", "Sandbox memory in MB.").Default("2048").IntVar(&c.mem)

	c.Cmd.Flag("agent-api-key", "API key for the agent backend (defaults to the agent's own env var, e.g. ANTHROPIC_API_KEY).").Envar("AGENTBOX_AGENT_API_KEY").StringVar(&c.agentAPIKey)
	c.Cmd.Flag("repo-token", "Token used to clone and push the repository.").Envar("AGENTBOX_REPO_TOKEN").StringVar(&c.repoToken)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cfg, image, env, err := c.taskConfig()
	if err != nil {
		return err
	}

	creds := model.Credentials{
		AgentAPIKey: c.agentAPIKey,
		RepoToken:   c.repoToken,
	}
	if creds.AgentAPIKey == "" {
		creds.AgentAPIKey = agentAPIKeyFromEnv(cfg.AgentType)
	}
	if creds.RepoToken == "" {
		creds.RepoToken = os.Getenv("GITHUB_TOKEN")
	}

	// Initialize storage (SQLite).
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}

	// Initialize sandbox engine.
	eng, err := c.rootCmd.newEngine(c.engine)
	if err != nil {
		return err
	}

	// Progress log and state machine, shared by executor and supervisor.
	recorder, err := tasklog.NewRecorder(tasklog.RecorderConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create log recorder: %w", err)
	}

	machine, err := taskstate.NewMachine(taskstate.MachineConfig{
		Repository:  repo,
		LogRecorder: recorder,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create state machine: %w", err)
	}

	registry, err := agent.NewRegistry(agent.RegistryConfig{
		Engine: eng,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create agent registry: %w", err)
	}

	publisher, err := git.NewExecPublisher(git.ExecPublisherConfig{
		Engine: eng,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create git publisher: %w", err)
	}

	coordinator, err := orchestrator.NewCoordinator(orchestrator.CoordinatorConfig{
		Engine:      eng,
		Registry:    registry,
		Publisher:   publisher,
		Machine:     machine,
		LogRecorder: recorder,
		Image:       image,
		Env:         env,
		MCPServers:  c.mcpServers,
		Resources: model.Resources{
			VCPUs:    c.cpu,
			MemoryMB: c.mem,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create sandbox coordinator: %w", err)
	}

	supervisor, err := orchestrator.NewSupervisor(orchestrator.SupervisorConfig{
		Repository:  repo,
		Machine:     machine,
		LogRecorder: recorder,
		Coordinator: coordinator,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create supervisor: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Repository:  repo,
		Machine:     machine,
		Coordinator: coordinator,
		Supervisor:  supervisor,
		LogRecorder: recorder,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create orchestrator: %w", err)
	}

	svc, err := apprun.NewService(apprun.ServiceConfig{
		Repository:   repo,
		Orchestrator: orch,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create run service: %w", err)
	}

	task, err := svc.Run(ctx, apprun.Request{
		Config:      cfg,
		Credentials: creds,
	})
	if err != nil {
		return fmt.Errorf("could not run task: %w", err)
	}

	// Output summary.
	fmt.Fprintf(c.rootCmd.Stdout, "Task %s finished\n", task.ID)
	fmt.Fprintf(c.rootCmd.Stdout, "  Status: %s\n", task.Status)
	if task.Branch != "" {
		fmt.Fprintf(c.rootCmd.Stdout, "  Branch: %s\n", task.Branch)
	}
	if task.SandboxID != "" && task.KeepSandboxAlive {
		fmt.Fprintf(c.rootCmd.Stdout, "  Sandbox: %s (kept alive)\n", task.SandboxID)
	}

	if task.Status != model.TaskStatusCompleted {
		return fmt.Errorf("task ended with status %s: %s", task.Status, task.ErrorDetail)
	}

	return nil
}

// taskConfig merges the task file (when given) with the CLI flags, flags win.
func (c RunCommand) taskConfig() (cfg model.TaskConfig, image string, env map[string]string, err error) {
	var tf taskFile
	if c.file != "" {
		data, err := os.ReadFile(c.file)
		if err != nil {
			return cfg, "", nil, fmt.Errorf("could not read task file: %w", err)
		}
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return cfg, "", nil, fmt.Errorf("could not parse task file: %w", err)
		}
	}

	cfg = model.TaskConfig{
		Instruction:      firstNonEmpty(c.instruction, tf.Instruction),
		Repo:             firstNonEmpty(c.repo, tf.Repo),
		AgentType:        firstNonEmpty(c.agentType, tf.Agent, model.AgentTypeClaude),
		Model:            firstNonEmpty(c.modelName, tf.Model),
		BudgetMinutes:    c.budget,
		KeepSandboxAlive: c.keepSandbox || tf.KeepSandbox,
	}
	if cfg.BudgetMinutes == 0 {
		cfg.BudgetMinutes = tf.BudgetMinutes
	}

	image = firstNonEmpty(c.image, tf.Image, conventions.DefaultWorkspaceImage)

	cliEnv, err := parseEnvSpecs(c.envSpecs)
	if err != nil {
		return cfg, "", nil, fmt.Errorf("invalid --env value: %w", err)
	}
	env = utilsenv.MergeMaps(tf.Env, cliEnv)

	return cfg, image, env, nil
}

// agentAPIKeyFromEnv resolves the conventional env var of each agent backend.
func agentAPIKeyFromEnv(agentType string) string {
	switch agentType {
	case model.AgentTypeClaude:
		return os.Getenv("ANTHROPIC_API_KEY")
	case model.AgentTypeCodex:
		return os.Getenv("OPENAI_API_KEY")
	case model.AgentTypeOpencode:
		return os.Getenv("OPENCODE_API_KEY")
	}

	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
