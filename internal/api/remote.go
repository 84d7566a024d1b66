// Package api provides the client surface for the Flow remote API.
package api

import (
	"context"

	"github.com/flowapp/flowsync/internal/models"
)

// RemoteStore defines the remote calls the sync engine dispatches queued
// actions to. Every mutating call carries the originating action ID as an
// idempotency key: delivering the same key twice must be a no-op on the
// server once the first delivery has been applied.
type RemoteStore interface {
	// CreateTask creates a task and returns it with its server-assigned ID.
	CreateTask(ctx context.Context, key models.ActionID, task *models.Task) (*models.Task, error)

	// UpdateTask applies a partial field update to a task.
	UpdateTask(ctx context.Context, key models.ActionID, id int64, fields map[string]interface{}) error

	// DeleteTask deletes a task.
	DeleteTask(ctx context.Context, key models.ActionID, id int64) error

	// CreateHabit creates a habit and returns it with its server-assigned ID.
	CreateHabit(ctx context.Context, key models.ActionID, habit *models.Habit) (*models.Habit, error)

	// UpdateHabit applies a partial field update to a habit.
	UpdateHabit(ctx context.Context, key models.ActionID, id int64, fields map[string]interface{}) error

	// DeleteHabit deletes a habit.
	DeleteHabit(ctx context.Context, key models.ActionID, id int64) error

	// CompleteHabit marks a habit completed for a date.
	CompleteHabit(ctx context.Context, key models.ActionID, id int64, date string) error

	// UncompleteHabit clears a habit completion for a date.
	UncompleteHabit(ctx context.Context, key models.ActionID, id int64, date string) error

	// FetchTasks loads the full task collection.
	FetchTasks(ctx context.Context) ([]*models.Task, error)

	// FetchHabits loads the full habit collection.
	FetchHabits(ctx context.Context) ([]*models.Habit, error)

	// Health probes whether the remote is reachable.
	Health(ctx context.Context) error
}
