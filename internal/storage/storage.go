package storage

import (
	"context"

	"github.com/slok/agentbox/internal/model"
)

// Repository is the interface for task persistence.
//
// The orchestrator and the timeout supervisor communicate exclusively
// through this record store, never through shared memory, so implementations
// must be safe for concurrent use.
type Repository interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id string) error
}
