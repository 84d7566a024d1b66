// Package core wires the sync components behind the mutation entry
// points the UI layer is allowed to call.
//
// A Coordinator owns the action queue, the cache mirror, and the undo
// slot; callers never touch those directly. Every mutation applies
// optimistically to the cache, appends to the queue, registers an undo
// record when the action is reversible, and nudges the sync engine when
// online. Enqueueing cannot fail and remote errors never surface here.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowapp/flowsync/internal/cache"
	apperrors "github.com/flowapp/flowsync/internal/errors"
	"github.com/flowapp/flowsync/internal/logging"
	"github.com/flowapp/flowsync/internal/models"
	"github.com/flowapp/flowsync/internal/sync/queue"
	"github.com/flowapp/flowsync/internal/undo"
)

// DrainTrigger nudges the sync engine after a mutation while online.
// Satisfied by scheduler.Scheduler.
type DrainTrigger interface {
	TriggerDrain(ctx context.Context) bool
	IsOnline() bool
}

// SyncStatus is the read-only sync state exposed to the UI.
type SyncStatus struct {
	Online         bool       `json:"online"`
	PendingActions int        `json:"pending_actions"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	CanUndo        bool       `json:"can_undo"`
}

// Coordinator is the single entry point for domain mutations.
type Coordinator struct {
	cache   *cache.Cache
	queue   *queue.ActionQueue
	undo    *undo.Coordinator
	trigger DrainTrigger
	now     func() time.Time
}

// NewCoordinator creates a Coordinator and its undo slot. trigger may be
// nil (mutations then wait for the periodic drain); notifier may be nil
// for the logging default.
func NewCoordinator(c *cache.Cache, q *queue.ActionQueue, trigger DrainTrigger, notifier undo.Notifier, undoWindow time.Duration) *Coordinator {
	coord := &Coordinator{
		cache:   c,
		queue:   q,
		trigger: trigger,
		now:     time.Now,
	}
	coord.undo = undo.NewCoordinator(coord, notifier, undoWindow)
	return coord
}

// maybeDrain fires a background drain when the remote is reachable.
func (s *Coordinator) maybeDrain() {
	if s.trigger != nil && s.trigger.IsOnline() {
		s.trigger.TriggerDrain(context.Background())
	}
}

func (s *Coordinator) enqueue(kind models.ActionKind, targetID int64, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are built from our own models; this indicates a
		// programming error, not a runtime condition worth surfacing.
		logging.Error("Failed to encode action payload", err,
			map[string]interface{}{"kind": string(kind)})
		return
	}
	s.queue.Enqueue(kind, targetID, data)
}

// =====================================================
// Task Mutations
// =====================================================

// CreateTask applies a new task optimistically and queues its creation.
// Offline-created tasks carry a temporary negative ID until the next
// successful reload replaces the mirror with server state.
func (s *Coordinator) CreateTask(t *models.Task) (*models.Task, error) {
	if t == nil || t.Title == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "task title is required")
	}

	local := t.Clone()
	if local.ID == 0 {
		local.ID = s.cache.NextLocalID()
	}
	if local.CreatedAt == 0 {
		local.CreatedAt = s.now().Unix()
	}
	s.cache.PutTask(local)

	s.enqueue(models.ActionCreateTask, 0, local)
	s.maybeDrain()
	return local, nil
}

// UpdateTask merges a partial field set into a task and queues the
// update.
func (s *Coordinator) UpdateTask(id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return apperrors.New(apperrors.ErrValidation, "no fields to update")
	}

	s.cache.ApplyTaskFields(id, fields)
	s.enqueue(models.ActionUpdateTask, id, fields)
	s.maybeDrain()
	return nil
}

// DeleteTask removes a task and records it as reversible.
func (s *Coordinator) DeleteTask(id int64) error {
	t := s.cache.Task(id)
	if t == nil {
		return apperrors.New(apperrors.ErrNotFound, "task not found")
	}

	s.cache.RemoveTask(id)
	s.enqueue(models.ActionDeleteTask, id, nil)

	s.undo.Record(&models.UndoableRecord{
		Kind: models.UndoDeleteTask,
		Task: t,
	})
	s.maybeDrain()
	return nil
}

// CompleteTask marks a task completed and records the toggle as
// reversible. On the wire this is a partial update, matching the remote
// API surface.
func (s *Coordinator) CompleteTask(id int64) error {
	t := s.cache.Task(id)
	if t == nil {
		return apperrors.New(apperrors.ErrNotFound, "task not found")
	}

	fields := map[string]interface{}{"completed": true}
	s.cache.ApplyTaskFields(id, fields)
	s.enqueue(models.ActionUpdateTask, id, fields)

	s.undo.Record(&models.UndoableRecord{
		Kind:   models.UndoCompleteTask,
		TaskID: id,
	})
	s.maybeDrain()
	return nil
}

// MoveTask reschedules a task and records the prior date and time so the
// move can be reversed.
func (s *Coordinator) MoveTask(id int64, dueDate, dueTime string) error {
	t := s.cache.Task(id)
	if t == nil {
		return apperrors.New(apperrors.ErrNotFound, "task not found")
	}

	fields := map[string]interface{}{"due_date": dueDate, "due_time": dueTime}
	s.cache.ApplyTaskFields(id, fields)
	s.enqueue(models.ActionUpdateTask, id, fields)

	s.undo.Record(&models.UndoableRecord{
		Kind:        models.UndoMoveTask,
		TaskID:      id,
		PrevDueDate: t.DueDate,
		PrevDueTime: t.DueTime,
	})
	s.maybeDrain()
	return nil
}

// BulkDeleteTasks removes several tasks at once; a single undo restores
// the whole batch in its original order. IDs that are not in the cache
// are skipped.
func (s *Coordinator) BulkDeleteTasks(ids []int64) error {
	var snapshots []*models.Task
	for _, id := range ids {
		if t := s.cache.Task(id); t != nil {
			snapshots = append(snapshots, t)
		}
	}
	if len(snapshots) == 0 {
		return apperrors.New(apperrors.ErrNotFound, "no matching tasks")
	}

	for _, t := range snapshots {
		s.cache.RemoveTask(t.ID)
		s.enqueue(models.ActionDeleteTask, t.ID, nil)
	}

	s.undo.Record(&models.UndoableRecord{
		Kind:         models.UndoBulkDelete,
		DeletedTasks: snapshots,
	})
	s.maybeDrain()
	return nil
}

// =====================================================
// Habit Mutations
// =====================================================

// CreateHabit applies a new habit optimistically and queues its creation.
func (s *Coordinator) CreateHabit(h *models.Habit) (*models.Habit, error) {
	if h == nil || h.Name == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "habit name is required")
	}

	local := h.Clone()
	if local.ID == 0 {
		local.ID = s.cache.NextLocalID()
	}
	if local.CreatedAt == 0 {
		local.CreatedAt = s.now().Unix()
	}
	s.cache.PutHabit(local)

	s.enqueue(models.ActionCreateHabit, 0, local)
	s.maybeDrain()
	return local, nil
}

// UpdateHabit merges a partial field set into a habit and queues the
// update.
func (s *Coordinator) UpdateHabit(id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return apperrors.New(apperrors.ErrValidation, "no fields to update")
	}

	s.cache.ApplyHabitFields(id, fields)
	s.enqueue(models.ActionUpdateHabit, id, fields)
	s.maybeDrain()
	return nil
}

// DeleteHabit removes a habit and records it as reversible.
func (s *Coordinator) DeleteHabit(id int64) error {
	h := s.cache.Habit(id)
	if h == nil {
		return apperrors.New(apperrors.ErrNotFound, "habit not found")
	}

	s.cache.RemoveHabit(id)
	s.enqueue(models.ActionDeleteHabit, id, nil)

	s.undo.Record(&models.UndoableRecord{
		Kind:  models.UndoDeleteHabit,
		Habit: h,
	})
	s.maybeDrain()
	return nil
}

// CompleteHabit marks a habit completed for the given date (today when
// empty). Habit completions are not reversible through the undo slot.
func (s *Coordinator) CompleteHabit(id int64, date string) error {
	h := s.cache.Habit(id)
	if h == nil {
		return apperrors.New(apperrors.ErrNotFound, "habit not found")
	}
	if date == "" {
		date = s.now().Format("2006-01-02")
	}

	s.cache.CompleteHabit(id, date)
	s.enqueue(models.ActionCompleteHabit, id, models.CompleteHabitPayload{Date: date})
	s.maybeDrain()
	return nil
}

// UncompleteHabit clears a habit completion for the given date (today
// when empty). The explicit inverse call is why habit completions stay
// outside the undo slot.
func (s *Coordinator) UncompleteHabit(id int64, date string) error {
	h := s.cache.Habit(id)
	if h == nil {
		return apperrors.New(apperrors.ErrNotFound, "habit not found")
	}
	if date == "" {
		date = s.now().Format("2006-01-02")
	}

	s.cache.UncompleteHabit(id, date)
	s.enqueue(models.ActionUncompleteHabit, id, models.CompleteHabitPayload{Date: date})
	s.maybeDrain()
	return nil
}

// =====================================================
// Undo and Reads
// =====================================================

// Undo reverses the most recent reversible action if its window is still
// open.
func (s *Coordinator) Undo() error {
	return s.undo.Undo()
}

// CanUndo reports whether an undo is currently possible.
func (s *Coordinator) CanUndo() bool {
	return s.undo.CanUndo()
}

// Tasks returns the cached task collection.
func (s *Coordinator) Tasks() []*models.Task {
	return s.cache.Tasks()
}

// Task returns one cached task, or nil.
func (s *Coordinator) Task(id int64) *models.Task {
	return s.cache.Task(id)
}

// Habits returns the cached habit collection.
func (s *Coordinator) Habits() []*models.Habit {
	return s.cache.Habits()
}

// Habit returns one cached habit, or nil.
func (s *Coordinator) Habit(id int64) *models.Habit {
	return s.cache.Habit(id)
}

// Status reports the current sync state.
func (s *Coordinator) Status() SyncStatus {
	status := SyncStatus{
		PendingActions: s.queue.Depth(),
		CanUndo:        s.undo.CanUndo(),
	}
	if s.trigger != nil {
		status.Online = s.trigger.IsOnline()
	}
	if last := s.cache.LastReload(); !last.IsZero() {
		status.LastSync = &last
	}
	return status
}

// Coordinator is the forward path undo reversals are issued through.
var _ undo.Mutator = (*Coordinator)(nil)
