package tasks

import (
	"context"
)

// Store persists personal task lists. Task ids are allocated by the store.
type Store interface {
	AddTask(ctx context.Context, task Task) (Task, error)
	// CompleteTask marks an open task of userID as done. It reports false
	// when the task does not exist, belongs to someone else or is already
	// complete.
	CompleteTask(ctx context.Context, userID string, taskID int64) (bool, error)
	ListTasks(ctx context.Context, userID string) ([]Task, error)
	Close() error
}
