// Package models provides data model definitions for the Flow sync core.
package models

import "time"

// SnapshotCollection names a persisted cache collection.
type SnapshotCollection string

const (
	SnapshotTasks  SnapshotCollection = "tasks"
	SnapshotHabits SnapshotCollection = "habits"
)

// CacheSnapshot is one persisted collection blob of the local mirror.
// The mirror is overwritten wholesale after every successful drain and
// reload cycle.
type CacheSnapshot struct {
	Collection SnapshotCollection `db:"collection" json:"collection"`
	Data       []byte             `db:"data" json:"data"`
	UpdatedAt  int64              `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for CacheSnapshot.
func (CacheSnapshot) TableName() string {
	return "cache_snapshots"
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (s *CacheSnapshot) UpdatedAtTime() time.Time {
	return time.Unix(s.UpdatedAt, 0)
}
