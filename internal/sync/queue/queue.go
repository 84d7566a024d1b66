// Package queue provides the durable FIFO log of pending mutations not
// yet confirmed against the remote store.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowapp/flowsync/internal/logging"
	"github.com/flowapp/flowsync/internal/models"
)

// Store is the persistence surface the queue needs. Satisfied by
// db.Repository.
type Store interface {
	InsertPendingAction(a *models.PendingAction) error
	RequeuePendingAction(a *models.PendingAction) error
	DeletePendingAction(id models.ActionID) error
	ListPendingActions() ([]*models.PendingAction, error)
}

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Total    int
	Applied  int
	Requeued int
}

// ActionQueue is an ordered log of pending mutations. Enqueue never
// rejects: the queue is unbounded and callers must not observe failures
// from the mutation entry points. Actions survive restart through the
// Store; a persistence failure degrades to in-memory operation rather
// than surfacing an error.
type ActionQueue struct {
	mu        sync.Mutex
	items     []*models.PendingAction
	store     Store
	nextSeq   int64
	warnAfter int
	now       func() time.Time
}

// NewActionQueue creates an empty ActionQueue. warnAfter is the attempt
// count past which repeated failures of a single action are logged as
// warnings (there is no retry cap and no dead-lettering).
func NewActionQueue(store Store, warnAfter int) *ActionQueue {
	if warnAfter <= 0 {
		warnAfter = 10
	}
	return &ActionQueue{
		store:     store,
		nextSeq:   1,
		warnAfter: warnAfter,
		now:       time.Now,
	}
}

// Load restores pending actions from the store in queue order. A corrupt
// row is skipped with a log entry; loading never fails startup.
func (q *ActionQueue) Load() {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.store.ListPendingActions()
	if err != nil {
		logging.Error("Failed to load pending actions, starting empty", err)
		return
	}

	for _, a := range stored {
		// Skipped rows still advance nextSeq: reusing a seq that is
		// persisted would make the next insert collide on UNIQUE(seq).
		if a.Seq >= q.nextSeq {
			q.nextSeq = a.Seq + 1
		}
		if !a.Kind.Valid() || !json.Valid(a.Payload) {
			logging.Warn("Skipping corrupt pending action",
				map[string]interface{}{"id": a.ID.String(), "kind": string(a.Kind)})
			continue
		}
		q.items = append(q.items, a)
	}

	logging.Info("Action queue loaded", map[string]interface{}{"pending": len(q.items)})
}

// Enqueue appends a mutation at the tail and assigns its stable ID.
// Payload-free kinds such as deletes pass nil; the payload is stored as
// JSON null so the row satisfies the NOT NULL column and round-trips
// through Load.
func (q *ActionQueue) Enqueue(kind models.ActionKind, targetID int64, payload json.RawMessage) *models.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	a := &models.PendingAction{
		ID:         models.ActionID(uuid.New().String()),
		Seq:        q.nextSeq,
		Kind:       kind,
		TargetID:   targetID,
		Payload:    payload,
		EnqueuedAt: q.now().Unix(),
	}
	q.nextSeq++
	q.items = append(q.items, a)

	if err := q.store.InsertPendingAction(a); err != nil {
		logging.Error("Failed to persist pending action", err,
			map[string]interface{}{"id": a.ID.String()})
	}

	logging.Debug("Enqueued action", map[string]interface{}{
		"id":        a.ID.String(),
		"kind":      string(kind),
		"target_id": targetID,
	})
	return a
}

// DrainInOrder takes a snapshot of the currently queued actions, clears
// them from the live queue, and invokes apply on each in original order.
// Actions enqueued while the drain runs are not part of the snapshot and
// wait for the next pass.
//
// A successful apply discards the action. A failed apply re-appends the
// action at the live tail, which places it behind anything enqueued since
// the snapshot was taken. The resulting reordering across retries is the
// intended behavior, not an accident; callers must not rely on strict
// total order across failures.
func (q *ActionQueue) DrainInOrder(apply func(a *models.PendingAction) error) DrainStats {
	q.mu.Lock()
	batch := q.items
	q.items = nil
	q.mu.Unlock()

	stats := DrainStats{Total: len(batch)}

	for _, a := range batch {
		if err := apply(a); err != nil {
			a.Attempts++
			q.requeue(a)
			stats.Requeued++

			ctx := map[string]interface{}{
				"id":       a.ID.String(),
				"kind":     string(a.Kind),
				"attempts": a.Attempts,
			}
			if a.Attempts >= q.warnAfter {
				logging.Warn("Action keeps failing, will retry indefinitely", ctx)
			} else {
				logging.Debug("Action failed, requeued", ctx)
			}
			continue
		}

		stats.Applied++
		if err := q.store.DeletePendingAction(a.ID); err != nil {
			logging.Error("Failed to remove applied action from store", err,
				map[string]interface{}{"id": a.ID.String()})
		}
	}

	return stats
}

// requeue appends a failed action at the live tail with a fresh position.
// The action keeps its ID so redelivery stays idempotent.
func (q *ActionQueue) requeue(a *models.PendingAction) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a.Seq = q.nextSeq
	q.nextSeq++
	q.items = append(q.items, a)

	if err := q.store.RequeuePendingAction(a); err != nil {
		logging.Error("Failed to persist requeued action", err,
			map[string]interface{}{"id": a.ID.String()})
	}
}

// Depth returns the number of queued actions.
func (q *ActionQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the queued actions in order.
func (q *ActionQueue) Pending() []*models.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.PendingAction, len(q.items))
	for i, a := range q.items {
		cp := *a
		out[i] = &cp
	}
	return out
}
