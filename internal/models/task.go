// Package models provides data model definitions for the Flow sync core.
package models

import "time"

// Task represents a single task in the Flow domain.
//
// IDs are assigned by the server on create. Tasks created while offline
// carry a temporary negative LocalID-style identifier until the cache is
// overwritten after a successful drain and reload.
type Task struct {
	ID          int64    `db:"id" json:"id"`
	Title       string   `db:"title" json:"title"`
	Completed   bool     `db:"completed" json:"completed"`
	DueDate     string   `db:"due_date" json:"due_date,omitempty"`
	DueTime     string   `db:"due_time" json:"due_time,omitempty"`
	Priority    string   `db:"priority" json:"priority,omitempty"`
	Tags        []string `db:"tags" json:"tags,omitempty"`
	Description string   `db:"description" json:"description,omitempty"`
	Status      string   `db:"status" json:"status,omitempty"`
	CompletedAt string   `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   int64    `db:"created_at" json:"created_at,omitempty"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// IsLocal reports whether the task only exists locally (not yet
// confirmed by the server).
func (t *Task) IsLocal() bool {
	return t.ID < 0
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (t *Task) CreatedAtTime() time.Time {
	return time.Unix(t.CreatedAt, 0)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.Tags != nil {
		c.Tags = make([]string, len(t.Tags))
		copy(c.Tags, t.Tags)
	}
	return &c
}
