package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Service is the personal task list behind the task_* commands.
type Service struct {
	store Store
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewService(store Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, now: time.Now, log: log.WithField("component", "tasks")}
}

func (s *Service) Add(ctx context.Context, userID, description string) (Task, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Task{}, ErrEmptyDescription
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return Task{}, fmt.Errorf("%w: max %d characters", ErrDescriptionLong, MaxDescriptionLength)
	}
	task, err := s.store.AddTask(ctx, Task{
		UserID:      userID,
		Description: description,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return Task{}, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "task_id": task.ID, "description": description}).Info("task added")
	return task, nil
}

// Complete reports false when the task is missing or already complete.
func (s *Service) Complete(ctx context.Context, userID string, taskID int64) (bool, error) {
	ok, err := s.store.CompleteTask(ctx, userID, taskID)
	if err != nil {
		return false, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "task_id": taskID, "completed": ok}).Info("task completion requested")
	return ok, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Task, error) {
	return s.store.ListTasks(ctx, userID)
}
