package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/agentbox/internal/app/stop"
	"github.com/slok/agentbox/internal/printer"
	"github.com/slok/agentbox/internal/tasklog"
	"github.com/slok/agentbox/internal/taskstate"
)

type StopCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	engine string
}

// NewStopCommand returns the stop command.
func NewStopCommand(rootCmd *RootCommand, app *kingpin.Application) *StopCommand {
	c := &StopCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("stop", "Stop a running task.")
	c.Cmd.Arg("task-id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("engine", "Sandbox engine type (docker, fake).").Default(EngineTypeDocker).EnumVar(&c.engine, EngineTypeDocker, EngineTypeFake)

	return c
}

func (c StopCommand) Name() string { return c.Cmd.FullCommand() }

func (c StopCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}

	eng, err := c.rootCmd.newEngine(c.engine)
	if err != nil {
		return err
	}

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

	svc, err := stop.NewService(stop.ServiceConfig{
		Repository: repo,
		Machine:    machine,
		Engine:     eng,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, stop.Request{TaskID: c.taskID})
	if err != nil {
		return fmt.Errorf("could not stop task: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	if err := p.PrintMessage(fmt.Sprintf("Stopped task: %s", task.ID)); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
