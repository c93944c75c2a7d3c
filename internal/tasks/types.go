package tasks

import (
	"errors"
	"time"
)

var (
	ErrEmptyDescription = errors.New("task description is empty")
	ErrDescriptionLong  = errors.New("task description is too long")
)

// MaxDescriptionLength bounds a task description in runes.
const MaxDescriptionLength = 1000

// Task is one entry of a user's personal to-do list.
type Task struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t Task) Status() string {
	if t.Completed {
		return "Completed"
	}
	return "In Progress"
}
