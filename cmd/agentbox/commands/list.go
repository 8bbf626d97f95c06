package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/agentbox/internal/app/list"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/printer"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	format       string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all tasks.")
	c.Cmd.Flag("status", "Filter by status (pending, processing, completed, error, stopped).").StringVar(&c.statusFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default(OutputTable).EnumVar(&c.format, OutputTable, OutputJSON)

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Parse status filter if provided.
	var statusFilter *model.TaskStatus
	if c.statusFilter != "" {
		status := model.TaskStatus(strings.ToLower(c.statusFilter))
		switch status {
		case model.TaskStatusPending, model.TaskStatusProcessing, model.TaskStatusCompleted, model.TaskStatusError, model.TaskStatusStopped:
			statusFilter = &status
		default:
			return fmt.Errorf("invalid status filter: %s (must be: pending, processing, completed, error, stopped)", c.statusFilter)
		}
	}

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}

	svc, err := list.NewService(list.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	tasks, err := svc.Run(ctx, list.Request{
		StatusFilter: statusFilter,
	})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	if err := c.printer().PrintList(tasks); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}

func (c ListCommand) printer() printer.Printer {
	if c.format == OutputJSON {
		return printer.NewJSONPrinter(c.rootCmd.Stdout)
	}

	return printer.NewTablePrinter(c.rootCmd.Stdout)
}
