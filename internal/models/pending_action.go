// Package models provides data model definitions for the Flow sync core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ActionID is a wrapper around string for action UUID type safety.
type ActionID string

// Value implements driver.Valuer for ActionID.
func (a ActionID) Value() (driver.Value, error) {
	return string(a), nil
}

// Scan implements sql.Scanner for ActionID.
func (a *ActionID) Scan(value interface{}) error {
	if value == nil {
		*a = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*a = ActionID(v)
	case string:
		*a = ActionID(v)
	}
	return nil
}

// String returns the string representation of the action ID.
func (a ActionID) String() string {
	return string(a)
}

// ActionKind identifies the mutation a PendingAction carries.
type ActionKind string

const (
	ActionCreateTask      ActionKind = "create_task"
	ActionUpdateTask      ActionKind = "update_task"
	ActionDeleteTask      ActionKind = "delete_task"
	ActionCreateHabit     ActionKind = "create_habit"
	ActionUpdateHabit     ActionKind = "update_habit"
	ActionDeleteHabit     ActionKind = "delete_habit"
	ActionCompleteHabit   ActionKind = "complete_habit"
	ActionUncompleteHabit ActionKind = "uncomplete_habit"
)

// Valid reports whether the kind is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreateTask, ActionUpdateTask, ActionDeleteTask,
		ActionCreateHabit, ActionUpdateHabit, ActionDeleteHabit,
		ActionCompleteHabit, ActionUncompleteHabit:
		return true
	}
	return false
}

// IsCreate reports whether the kind creates a new entity (no target ID).
func (k ActionKind) IsCreate() bool {
	return k == ActionCreateTask || k == ActionCreateHabit
}

// PendingAction is one queued mutation awaiting confirmation from the
// remote store. The ID is assigned once at enqueue time and reused across
// retries so the server can deduplicate repeated delivery.
type PendingAction struct {
	ID         ActionID        `db:"id" json:"id"`
	Seq        int64           `db:"seq" json:"seq"`
	Kind       ActionKind      `db:"kind" json:"kind"`
	TargetID   int64           `db:"target_id" json:"target_id,omitempty"` // zero for creates
	Payload    json.RawMessage `db:"payload" json:"payload"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	Attempts   int             `db:"attempts" json:"attempts"`
}

// TableName returns the table name for PendingAction.
func (PendingAction) TableName() string {
	return "pending_actions"
}

// EnqueuedAtTime returns the EnqueuedAt as time.Time.
func (a *PendingAction) EnqueuedAtTime() time.Time {
	return time.Unix(a.EnqueuedAt, 0)
}

// CompleteHabitPayload is the payload for ActionCompleteHabit.
type CompleteHabitPayload struct {
	Date string `json:"date"`
}

// UpdateFields decodes the payload of an update action into a partial
// field map.
func (a *PendingAction) UpdateFields() (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(a.Payload, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
