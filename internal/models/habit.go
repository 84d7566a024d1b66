// Package models provides data model definitions for the Flow sync core.
package models

import "time"

// Habit represents a recurring habit with completion tracking.
type Habit struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Icon           string          `db:"icon" json:"icon,omitempty"`
	Streak         int             `db:"streak" json:"streak"`
	Completions    map[string]bool `db:"completions" json:"completions,omitempty"` // keyed by YYYY-MM-DD
	Frequency      string          `db:"frequency" json:"frequency,omitempty"`
	FrequencyCount int             `db:"frequency_count" json:"frequency_count,omitempty"`
	Category       string          `db:"category" json:"category,omitempty"`
	Archived       bool            `db:"archived" json:"archived"`
	CreatedAt      int64           `db:"created_at" json:"created_at,omitempty"`
}

// TableName returns the table name for Habit.
func (Habit) TableName() string {
	return "habits"
}

// IsLocal reports whether the habit only exists locally.
func (h *Habit) IsLocal() bool {
	return h.ID < 0
}

// CompletedOn reports whether the habit was completed on the given date.
func (h *Habit) CompletedOn(date string) bool {
	return h.Completions[date]
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (h *Habit) CreatedAtTime() time.Time {
	return time.Unix(h.CreatedAt, 0)
}

// Clone returns a deep copy of the habit.
func (h *Habit) Clone() *Habit {
	c := *h
	if h.Completions != nil {
		c.Completions = make(map[string]bool, len(h.Completions))
		for k, v := range h.Completions {
			c.Completions[k] = v
		}
	}
	return &c
}
