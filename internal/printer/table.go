package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/slok/agentbox/internal/model"
)

// TablePrinter prints task information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints tasks in a table format.
func (t *TablePrinter) PrintList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tAGENT\tBRANCH\tCREATED")

	// Print rows.
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\t%s\n",
			task.ID,
			task.Status,
			task.Progress,
			task.AgentType,
			task.Branch,
			TimeAgo(task.CreatedAt),
		)
	}

	return nil
}

// PrintStatus prints detailed task status.
func (t *TablePrinter) PrintStatus(task model.Task) error {
	fmt.Fprintf(t.writer, "ID:           %s\n", task.ID)
	fmt.Fprintf(t.writer, "Status:       %s\n", task.Status)
	fmt.Fprintf(t.writer, "Progress:     %d%%\n", task.Progress)
	fmt.Fprintf(t.writer, "Agent:        %s\n", task.AgentType)
	if task.Model != "" {
		fmt.Fprintf(t.writer, "Model:        %s\n", task.Model)
	}
	fmt.Fprintf(t.writer, "Repository:   %s\n", task.Repo)
	fmt.Fprintf(t.writer, "Budget:       %d minutes\n", task.BudgetMinutes)
	fmt.Fprintf(t.writer, "Instruction:  %s\n", task.Instruction)

	if task.Branch != "" {
		fmt.Fprintf(t.writer, "Branch:       %s\n", task.Branch)
	}
	if task.SandboxID != "" {
		fmt.Fprintf(t.writer, "Sandbox:      %s\n", task.SandboxID)
	}
	if task.CurrentSubAgent != "" {
		fmt.Fprintf(t.writer, "Sub-agent:    %s\n", task.CurrentSubAgent)
	}
	if task.ErrorDetail != "" {
		fmt.Fprintf(t.writer, "Error:        %s\n", task.ErrorDetail)
	}

	fmt.Fprintf(t.writer, "Created:      %s\n", FormatTimestamp(task.CreatedAt))
	if !task.LastHeartbeat.IsZero() {
		fmt.Fprintf(t.writer, "Heartbeat:    %s\n", FormatTimestamp(task.LastHeartbeat))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(t.writer, "Completed:    %s\n", FormatTimestamp(*task.CompletedAt))
	}

	if len(task.SubAgents) > 0 {
		fmt.Fprintf(t.writer, "\nSub-agents:\n")
		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tSTATUS\tSTARTED")
		for _, sa := range task.SubAgents {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", sa.Name, sa.Status, TimeAgo(sa.StartedAt))
		}
		tw.Flush()
	}

	return nil
}

// PrintLogs prints the task's progress log, one line per entry.
func (t *TablePrinter) PrintLogs(task model.Task) error {
	for _, entry := range task.Log {
		source := ""
		if entry.Source != nil && entry.Source.IsSubAgent {
			source = fmt.Sprintf(" [%s]", entry.Source.Name)
		}
		fmt.Fprintf(t.writer, "%s %-8s%s %s\n",
			FormatTimestamp(entry.Timestamp),
			strings.ToUpper(string(entry.Type)),
			source,
			entry.Message,
		)
	}

	return nil
}

// PrintChecks prints preflight check results.
func (t *TablePrinter) PrintChecks(results []model.CheckResult) error {
	for _, r := range results {
		symbol := "✓"
		switch r.Status {
		case model.CheckStatusWarning:
			symbol = "!"
		case model.CheckStatusError:
			symbol = "✗"
		}
		fmt.Fprintf(t.writer, "%s %s: %s\n", symbol, r.ID, r.Message)
	}

	ok, warnings, errors := model.CountByStatus(results)
	fmt.Fprintf(t.writer, "\n%d ok, %d warnings, %d errors\n", ok, warnings, errors)

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
