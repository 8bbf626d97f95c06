package printer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/printer"
)

func taskFixture() model.Task {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	return model.Task{
		ID:            "01234567890ABCDEFGHIJKLMNOP",
		Instruction:   "add a health endpoint",
		Repo:          "https://github.com/org/repo.git",
		AgentType:     "claude",
		Model:         "claude-sonnet-4-5",
		BudgetMinutes: 30,
		Status:        model.TaskStatusProcessing,
		Progress:      40,
		Branch:        "agentbox/01234567890abcdefghijklmnop",
		SandboxID:     "SBX123",
		CreatedAt:     createdAt,
		LastHeartbeat: createdAt.Add(2 * time.Minute),
		SubAgents: []model.SubAgent{
			{ID: "SA1", Name: "tester", Status: model.SubAgentStatusRunning, StartedAt: createdAt.Add(time.Minute)},
		},
		Log: []model.LogEntry{
			{Type: model.LogEntryInfo, Message: "Task started", Timestamp: createdAt},
			{Type: model.LogEntrySubAgent, Message: `Sub-agent "tester" started`, Timestamp: createdAt.Add(time.Minute), Source: &model.AgentSource{Name: "tester", IsSubAgent: true}},
		},
	}
}

func TestTablePrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintStatus(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Status:       processing")
	assert.Contains(t, out, "Progress:     40%")
	assert.Contains(t, out, "Agent:        claude")
	assert.Contains(t, out, "Branch:       agentbox/01234567890abcdefghijklmnop")
	assert.Contains(t, out, "Sub-agents:")
	assert.Contains(t, out, "tester")
}

func TestTablePrinterPrintList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintList([]model.Task{taskFixture()})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "processing")
	assert.Contains(t, out, "40%")
}

func TestTablePrinterPrintLogs(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintLogs(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Task started")
	assert.Contains(t, out, "[tester]")
	assert.Contains(t, out, "SUBAGENT")
}

func TestJSONPrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintStatus(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"status": "processing"`)
	assert.Contains(t, out, `"agent_type": "claude"`)
	assert.Contains(t, out, `"branch": "agentbox/01234567890abcdefghijklmnop"`)
	assert.Contains(t, out, `"name": "tester"`)
}

func TestJSONPrinterPrintLogs(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintLogs(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"message": "Task started"`)
	assert.Contains(t, out, `"source": "tester"`)
}

func TestTablePrinterPrintChecks(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintChecks([]model.CheckResult{
		{ID: "docker_available", Message: "Docker daemon is reachable", Status: model.CheckStatusOK},
		{ID: "workspace_image", Message: "Workspace image not found", Status: model.CheckStatusError},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "docker_available")
	assert.Contains(t, out, "1 ok, 0 warnings, 1 errors")
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
