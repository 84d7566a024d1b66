// Package models provides data model definitions for the Flow sync core.
package models

import (
	"strconv"
	"time"
)

// UndoKind identifies a reversible forward action.
type UndoKind string

const (
	UndoDeleteTask   UndoKind = "delete_task"
	UndoCompleteTask UndoKind = "complete_task"
	UndoDeleteHabit  UndoKind = "delete_habit"
	UndoMoveTask     UndoKind = "move_task"
	UndoBulkDelete   UndoKind = "bulk_delete"
)

// Message returns the user-facing notification text for the kind.
func (k UndoKind) Message(count int) string {
	switch k {
	case UndoDeleteTask:
		return "Task deleted"
	case UndoCompleteTask:
		return "Task completed"
	case UndoDeleteHabit:
		return "Habit deleted"
	case UndoMoveTask:
		return "Task moved"
	case UndoBulkDelete:
		return strconv.Itoa(count) + " items deleted"
	}
	return "Action completed"
}

// UndoableRecord holds the single currently-reversible action together
// with everything needed to invert it. Records are never persisted; the
// undo window does not survive a restart.
type UndoableRecord struct {
	Kind      UndoKind
	CreatedAt time.Time
	ExpiresAt time.Time

	// Inverse specs, one set per kind.
	Task          *Task    // UndoDeleteTask: full body to re-create
	Habit         *Habit   // UndoDeleteHabit: full body to re-create
	TaskID        int64    // UndoCompleteTask / UndoMoveTask target
	PrevDueDate   string   // UndoMoveTask: due date to restore
	PrevDueTime   string   // UndoMoveTask: due time to restore
	DeletedTasks  []*Task  // UndoBulkDelete: batch in original order
	DeletedHabits []*Habit // UndoBulkDelete: batch in original order
}

// Count returns the number of items the record covers.
func (r *UndoableRecord) Count() int {
	if r.Kind == UndoBulkDelete {
		return len(r.DeletedTasks) + len(r.DeletedHabits)
	}
	return 1
}

// Expired reports whether the record's undo window has closed at the
// given instant.
func (r *UndoableRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
