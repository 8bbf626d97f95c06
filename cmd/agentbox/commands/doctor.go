package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/agentbox/internal/app/doctor"
	"github.com/slok/agentbox/internal/printer"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	engine string
	format string
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Check the host can run sandboxed tasks.")
	c.Cmd.Flag("engine", "Sandbox engine type (docker, fake).").Default(EngineTypeDocker).EnumVar(&c.engine, EngineTypeDocker, EngineTypeFake)
	c.Cmd.Flag("format", "Output format (table, json).").Default(OutputTable).EnumVar(&c.format, OutputTable, OutputJSON)

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	eng, err := c.rootCmd.newEngine(c.engine)
	if err != nil {
		return err
	}

	svc, err := doctor.NewService(doctor.ServiceConfig{
		Engine: eng,
		Logger: c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	results, runErr := svc.Run(ctx)

	var p printer.Printer
	switch c.format {
	case OutputJSON:
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default:
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintChecks(results); err != nil {
		return fmt.Errorf("could not print checks: %w", err)
	}

	return runErr
}
