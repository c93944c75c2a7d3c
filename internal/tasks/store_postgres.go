package tasks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists task lists in PostgreSQL. The pool is shared and
// owned by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initTaskSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initTaskSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			description TEXT NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks (user_id, id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) AddTask(ctx context.Context, task Task) (Task, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (user_id, description, completed, created_at)
		 VALUES ($1, $2, FALSE, $3) RETURNING id`,
		task.UserID,
		task.Description,
		task.CreatedAt,
	).Scan(&task.ID)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) CompleteTask(ctx context.Context, userID string, taskID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET completed = TRUE
		 WHERE id = $1 AND user_id = $2 AND completed = FALSE`,
		taskID,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, userID string) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, description, completed, created_at
		 FROM tasks WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Description, &t.Completed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error { return nil }
