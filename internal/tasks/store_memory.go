package tasks

import (
	"context"
	"sync"
)

// InMemoryStore keeps task lists in process memory for local/dev use.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byUser map[string][]Task
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byUser: make(map[string][]Task)}
}

func (s *InMemoryStore) AddTask(_ context.Context, task Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	task.ID = s.nextID
	s.byUser[task.UserID] = append(s.byUser[task.UserID], task)
	return task, nil
}

func (s *InMemoryStore) CompleteTask(_ context.Context, userID string, taskID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byUser[userID]
	for i := range list {
		if list[i].ID != taskID {
			continue
		}
		if list[i].Completed {
			return false, nil
		}
		list[i].Completed = true
		return true, nil
	}
	return false, nil
}

func (s *InMemoryStore) ListTasks(_ context.Context, userID string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Task(nil), s.byUser[userID]...), nil
}

func (s *InMemoryStore) Close() error { return nil }
