// Package cache maintains the local mirror of remote task and habit
// collections for offline reads.
//
// Mutations are applied optimistically as the user acts; the whole
// mirror is overwritten after every successful drain and reload cycle.
// Both collections are persisted so the UI has data immediately on cold
// start, before the remote is reachable.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	apperrors "github.com/flowapp/flowsync/internal/errors"
	"github.com/flowapp/flowsync/internal/logging"
	"github.com/flowapp/flowsync/internal/models"
)

// SnapshotStore is the persistence surface the cache needs. Satisfied by
// db.Repository.
type SnapshotStore interface {
	SaveSnapshot(collection models.SnapshotCollection, data []byte) error
	GetSnapshot(collection models.SnapshotCollection) (*models.CacheSnapshot, error)
}

// Cache is the in-memory snapshot of domain entities, persisted through
// a SnapshotStore.
type Cache struct {
	mu     sync.RWMutex
	store  SnapshotStore
	tasks  map[int64]*models.Task
	habits map[int64]*models.Habit

	// nextLocalID hands out temporary negative IDs for entities created
	// offline, replaced once the server assigns real identity.
	nextLocalID int64

	lastReload time.Time
}

// New creates an empty Cache backed by the given store.
func New(store SnapshotStore) *Cache {
	return &Cache{
		store:       store,
		tasks:       make(map[int64]*models.Task),
		habits:      make(map[int64]*models.Habit),
		nextLocalID: -1,
	}
}

// Load restores both collections from the store. A missing or corrupt
// snapshot falls back to an empty collection rather than failing startup.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tasks = loadCollection[models.Task](c.store, models.SnapshotTasks)
	c.habits = loadCollection[models.Habit](c.store, models.SnapshotHabits)

	logging.Info("Cache loaded", map[string]interface{}{
		"tasks":  len(c.tasks),
		"habits": len(c.habits),
	})
	return nil
}

type entity interface {
	models.Task | models.Habit
}

func loadCollection[E entity](store SnapshotStore, coll models.SnapshotCollection) map[int64]*E {
	out := make(map[int64]*E)

	snap, err := store.GetSnapshot(coll)
	if errors.Is(err, sql.ErrNoRows) {
		return out
	}
	if err != nil {
		logging.Error("Failed to load cache snapshot", err,
			map[string]interface{}{"collection": string(coll)})
		return out
	}

	var items []*E
	if err := json.Unmarshal(snap.Data, &items); err != nil {
		logging.ErrorWithCode("Corrupt cache snapshot, falling back to empty",
			string(apperrors.ErrCacheCorrupt), err,
			map[string]interface{}{"collection": string(coll)})
		return out
	}

	for _, item := range items {
		out[entityID(item)] = item
	}
	return out
}

func entityID[E entity](e *E) int64 {
	switch v := any(e).(type) {
	case *models.Task:
		return v.ID
	case *models.Habit:
		return v.ID
	}
	return 0
}

// NextLocalID returns a fresh temporary identifier for an entity created
// while offline. Local IDs are negative so they can never collide with
// server-assigned ones.
func (c *Cache) NextLocalID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextLocalID
	c.nextLocalID--
	return id
}

// Tasks returns all cached tasks ordered by ID.
func (c *Cache) Tasks() []*models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Habits returns all cached habits ordered by ID.
func (c *Cache) Habits() []*models.Habit {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.Habit, 0, len(c.habits))
	for _, h := range c.habits {
		out = append(out, h.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Task returns a copy of the cached task, or nil.
func (c *Cache) Task(id int64) *models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.tasks[id]; ok {
		return t.Clone()
	}
	return nil
}

// Habit returns a copy of the cached habit, or nil.
func (c *Cache) Habit(id int64) *models.Habit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h, ok := c.habits[id]; ok {
		return h.Clone()
	}
	return nil
}

// PutTask inserts or replaces a task and persists the collection.
func (c *Cache) PutTask(t *models.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[t.ID] = t.Clone()
	c.persistTasks()
}

// RemoveTask deletes a task and persists the collection.
func (c *Cache) RemoveTask(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, id)
	c.persistTasks()
}

// ApplyTaskFields merges a partial field map into a cached task.
// Unknown task IDs are ignored: the entity may have been removed by a
// reload between enqueue and apply.
func (c *Cache) ApplyTaskFields(id int64, fields map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return
	}
	merged := t.Clone()
	if data, err := json.Marshal(fields); err == nil {
		if err := json.Unmarshal(data, merged); err == nil {
			merged.ID = id // partial payloads never change identity
			c.tasks[id] = merged
		}
	}
	c.persistTasks()
}

// PutHabit inserts or replaces a habit and persists the collection.
func (c *Cache) PutHabit(h *models.Habit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.habits[h.ID] = h.Clone()
	c.persistHabits()
}

// RemoveHabit deletes a habit and persists the collection.
func (c *Cache) RemoveHabit(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.habits, id)
	c.persistHabits()
}

// ApplyHabitFields merges a partial field map into a cached habit.
func (c *Cache) ApplyHabitFields(id int64, fields map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.habits[id]
	if !ok {
		return
	}
	merged := h.Clone()
	if data, err := json.Marshal(fields); err == nil {
		if err := json.Unmarshal(data, merged); err == nil {
			merged.ID = id
			c.habits[id] = merged
		}
	}
	c.persistHabits()
}

// CompleteHabit marks a habit completed for the date in the local mirror.
func (c *Cache) CompleteHabit(id int64, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.habits[id]
	if !ok {
		return
	}
	if h.Completions == nil {
		h.Completions = make(map[string]bool)
	}
	if !h.Completions[date] {
		h.Completions[date] = true
		h.Streak++
	}
	c.persistHabits()
}

// UncompleteHabit clears a habit completion in the local mirror.
func (c *Cache) UncompleteHabit(id int64, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.habits[id]
	if !ok {
		return
	}
	if h.Completions[date] {
		delete(h.Completions, date)
		if h.Streak > 0 {
			h.Streak--
		}
	}
	c.persistHabits()
}

// ReplaceAll overwrites both collections wholesale after a successful
// drain and reload, and records the reload time.
func (c *Cache) ReplaceAll(tasks []*models.Task, habits []*models.Habit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tasks = make(map[int64]*models.Task, len(tasks))
	for _, t := range tasks {
		c.tasks[t.ID] = t.Clone()
	}
	c.habits = make(map[int64]*models.Habit, len(habits))
	for _, h := range habits {
		c.habits[h.ID] = h.Clone()
	}
	c.lastReload = time.Now()

	c.persistTasks()
	c.persistHabits()
}

// LastReload returns when the mirror was last overwritten from the
// remote, zero if never.
func (c *Cache) LastReload() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReload
}

// persistTasks writes the task collection blob. Callers hold the lock.
func (c *Cache) persistTasks() {
	items := make([]*models.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	persistCollection(c.store, models.SnapshotTasks, items)
}

// persistHabits writes the habit collection blob. Callers hold the lock.
func (c *Cache) persistHabits() {
	items := make([]*models.Habit, 0, len(c.habits))
	for _, h := range c.habits {
		items = append(items, h)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	persistCollection(c.store, models.SnapshotHabits, items)
}

func persistCollection[E entity](store SnapshotStore, coll models.SnapshotCollection, items []*E) {
	data, err := json.Marshal(items)
	if err != nil {
		logging.Error("Failed to encode cache snapshot", err,
			map[string]interface{}{"collection": string(coll)})
		return
	}
	if err := store.SaveSnapshot(coll, data); err != nil {
		logging.Error("Failed to persist cache snapshot", err,
			map[string]interface{}{"collection": string(coll)})
	}
}
