package list_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/app/list"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage/memory"
)

func TestServiceRun(t *testing.T) {
	completed := model.TaskStatusCompleted

	tests := map[string]struct {
		tasks  []model.Task
		req    list.Request
		expIDs []string
	}{
		"Listing without filter should return all tasks.": {
			tasks: []model.Task{
				{ID: "T1", Status: model.TaskStatusProcessing, CreatedAt: time.Now().Add(-time.Hour)},
				{ID: "T2", Status: model.TaskStatusCompleted, CreatedAt: time.Now()},
			},
			req:    list.Request{},
			expIDs: []string{"T2", "T1"},
		},

		"Listing with a status filter should only return matching tasks.": {
			tasks: []model.Task{
				{ID: "T1", Status: model.TaskStatusProcessing, CreatedAt: time.Now().Add(-time.Hour)},
				{ID: "T2", Status: model.TaskStatusCompleted, CreatedAt: time.Now()},
			},
			req:    list.Request{StatusFilter: &completed},
			expIDs: []string{"T2"},
		},

		"Listing an empty store should return nothing.": {
			req:    list.Request{},
			expIDs: []string{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(err)
			for _, task := range test.tasks {
				require.NoError(repo.CreateTask(context.TODO(), task))
			}

			svc, err := list.NewService(list.ServiceConfig{Repository: repo})
			require.NoError(err)

			tasks, err := svc.Run(context.TODO(), test.req)
			require.NoError(err)

			ids := make([]string, 0, len(tasks))
			for _, task := range tasks {
				ids = append(ids, task.ID)
			}
			assert.Equal(test.expIDs, ids)
		})
	}
}
