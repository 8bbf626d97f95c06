// Package lib provides a Go SDK for running agentbox coding tasks programmatically.
//
// This package allows applications to run, inspect, and manage AI coding
// tasks without shelling out to the agentbox CLI binary. It is useful for
// scripting, automation, and building tools on top of agentbox.
//
// # Quick Start
//
// Create a client, run a task, and inspect the result:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	task, err := client.RunTask(ctx, lib.RunTaskOpts{
//	    Instruction: "Add input validation to the signup handler",
//	    Repo:        "https://github.com/org/app.git",
//	    Agent:       lib.AgentClaude,
//	    AgentAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    RepoToken:   os.Getenv("GITHUB_TOKEN"),
//	})
//
//	if task.Status == lib.TaskStatusCompleted {
//	    fmt.Println("pushed branch:", task.Branch)
//	}
//
// RunTask blocks until the task reaches a terminal state: the agent runs in
// an ephemeral sandbox, its changes are committed and pushed to a new branch,
// and the sandbox is torn down.
//
// # Engines
//
// The SDK supports two engine types:
//
//   - [EngineDocker]: Real Docker containers. Requires a reachable Docker
//     daemon.
//   - [EngineFake]: In-memory fake engine for unit testing. No real
//     infrastructure needed. Set [Config].Engine to [EngineFake] to use it.
//
// # Agents
//
// Tasks are executed by an interchangeable coding agent selected with
// [RunTaskOpts].Agent: [AgentClaude], [AgentCodex], [AgentOpencode], or
// [AgentFake] for tests. Each agent needs its own API key.
//
// # Inspecting Tasks
//
// Every task keeps an append-only progress log with the agent's activity,
// including sub-agent lifecycles. Credentials never appear in the log, they
// are redacted before storage:
//
//	logs, _ := client.TaskLogs(ctx, task.ID)
//	for _, e := range logs {
//	    fmt.Printf("%s [%s] %s\n", e.Timestamp, e.Type, e.Message)
//	}
//
// # Health Checks
//
// Verify the host can run tasks:
//
//	results, _ := client.Doctor(ctx)
//	for _, r := range results {
//	    fmt.Printf("%s: %s (%s)\n", r.ID, r.Message, r.Status)
//	}
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Task does not exist.
//   - [ErrAlreadyExists]: Task with the same ID already exists.
//   - [ErrNotValid]: Invalid input or operation (e.g. stopping a finished task).
//
// Note that a task failing is not an SDK error: RunTask returns the task with
// [TaskStatusError] and an ErrorDetail instead.
//
// # Testing
//
// Use [EngineFake], [AgentFake] and a temporary database path to write tests
// without real infrastructure:
//
//	client, _ := lib.New(ctx, lib.Config{
//	    DBPath: filepath.Join(t.TempDir(), "test.db"),
//	    Engine: lib.EngineFake,
//	})
//	defer client.Close()
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. The underlying
// storage uses SQLite with WAL mode, and engines are created per-operation.
package lib
