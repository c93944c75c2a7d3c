package tasks

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/logger"
)

func TestServiceAddCompleteList(t *testing.T) {
	svc := NewService(NewInMemoryStore(), logger.Discard())
	ctx := context.Background()

	first, err := svc.Add(ctx, "u1", "  write report ")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if first.ID != 1 || first.Description != "write report" {
		t.Fatalf("Add() = %+v, want id 1 with trimmed description", first)
	}
	if _, err := svc.Add(ctx, "u2", "someone else's"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ok, err := svc.Complete(ctx, "u1", first.ID)
	if err != nil || !ok {
		t.Fatalf("Complete() = %v, %v; want true, nil", ok, err)
	}
	ok, err = svc.Complete(ctx, "u1", first.ID)
	if err != nil || ok {
		t.Fatalf("second Complete() = %v, %v; want false, nil", ok, err)
	}
	ok, _ = svc.Complete(ctx, "u1", 2)
	if ok {
		t.Fatal("Complete() of another user's task succeeded")
	}

	list, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Status() != "Completed" {
		t.Fatalf("List() = %+v, want one completed task", list)
	}
}

func TestServiceRejectsBadDescriptions(t *testing.T) {
	svc := NewService(NewInMemoryStore(), logger.Discard())

	if _, err := svc.Add(context.Background(), "u1", "   "); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("Add(blank) error = %v, want ErrEmptyDescription", err)
	}
	long := strings.Repeat("x", MaxDescriptionLength+1)
	if _, err := svc.Add(context.Background(), "u1", long); !errors.Is(err, ErrDescriptionLong) {
		t.Fatalf("Add(long) error = %v, want ErrDescriptionLong", err)
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	url := os.Getenv("CPO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CPO_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	defer pool.Close()

	store, err := NewStore(ctx, pool)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	user := "test-" + t.Name()
	task, err := store.AddTask(ctx, Task{UserID: user, Description: "postgres"})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM tasks WHERE user_id = $1`, user) })

	ok, err := store.CompleteTask(ctx, user, task.ID)
	if err != nil || !ok {
		t.Fatalf("CompleteTask() = %v, %v; want true, nil", ok, err)
	}
	list, err := store.ListTasks(ctx, user)
	if err != nil || len(list) != 1 || !list[0].Completed {
		t.Fatalf("ListTasks() = %+v, %v", list, err)
	}
}
