// Package sync drains the pending action queue against the Flow remote
// API and refreshes the local cache afterwards.
package sync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flowapp/flowsync/internal/api"
	"github.com/flowapp/flowsync/internal/cache"
	apperrors "github.com/flowapp/flowsync/internal/errors"
	"github.com/flowapp/flowsync/internal/logging"
	"github.com/flowapp/flowsync/internal/models"
	"github.com/flowapp/flowsync/internal/sync/queue"
)

// Status represents the current engine status.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusDraining Status = "draining"
	StatusFailed   Status = "failed"
)

// DrainResult represents the outcome of one drain pass.
type DrainResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Total     int
	Applied   int
	Requeued  int
	Reloaded  bool
}

// Engine submits queued actions to the remote store in order and
// overwrites the cache from the remote after each pass.
//
// Drains never overlap: a trigger that arrives while a drain is in
// flight is a no-op. Per-action failures requeue the action and the pass
// continues; remote errors never reach the caller of a mutation entry
// point.
type Engine struct {
	queue  *queue.ActionQueue
	remote api.RemoteStore
	cache  *cache.Cache

	mu        sync.Mutex
	draining  bool
	status    Status
	lastDrain *time.Time
	lastErr   error
}

// NewEngine creates an Engine.
func NewEngine(q *queue.ActionQueue, remote api.RemoteStore, c *cache.Cache) *Engine {
	return &Engine{
		queue:  q,
		remote: remote,
		cache:  c,
		status: StatusIdle,
	}
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// LastDrain returns the end time of the last completed drain, nil if none.
func (e *Engine) LastDrain() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDrain
}

// LastError returns the error recorded by the last drain, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// PendingChanges returns the number of actions awaiting submission.
func (e *Engine) PendingChanges() int {
	return e.queue.Depth()
}

// Drain performs one ordered pass over the queued actions, then reloads
// tasks and habits from the remote and overwrites the cache wholesale.
// Returns ErrSyncInProgress when a drain is already in flight.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "drain already in progress")
	}
	e.draining = true
	e.status = StatusDraining
	e.lastErr = nil
	e.mu.Unlock()

	result := &DrainResult{StartTime: time.Now()}

	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)

		e.mu.Lock()
		e.draining = false
		if e.lastErr != nil {
			e.status = StatusFailed
		} else {
			e.status = StatusIdle
		}
		e.lastDrain = &result.EndTime
		e.mu.Unlock()
	}()

	stats := e.queue.DrainInOrder(func(a *models.PendingAction) error {
		return e.apply(ctx, a)
	})
	result.Total = stats.Total
	result.Applied = stats.Applied
	result.Requeued = stats.Requeued

	// Reload even after a partial pass so the cache reflects whatever
	// the remote accepted.
	if err := e.reload(ctx); err != nil {
		e.mu.Lock()
		e.lastErr = apperrors.Wrap(apperrors.ErrSyncFailed, "cache reload failed", err)
		e.mu.Unlock()
		logging.ErrorWithCode("Cache reload after drain failed",
			string(apperrors.ErrSyncFailed), err)
		return result, nil
	}
	result.Reloaded = true

	logging.Info("Drain completed", map[string]interface{}{
		"total":    result.Total,
		"applied":  result.Applied,
		"requeued": result.Requeued,
	})
	return result, nil
}

// apply dispatches one action to the corresponding remote call. The
// action ID travels as the idempotency key so redelivery after a lost
// acknowledgement cannot duplicate an entity or double-toggle a
// completion.
func (e *Engine) apply(ctx context.Context, a *models.PendingAction) error {
	switch a.Kind {
	case models.ActionCreateTask:
		var t models.Task
		if err := json.Unmarshal(a.Payload, &t); err != nil {
			return e.dropCorrupt(a, err)
		}
		_, err := e.remote.CreateTask(ctx, a.ID, &t)
		return err

	case models.ActionUpdateTask:
		fields, err := a.UpdateFields()
		if err != nil {
			return e.dropCorrupt(a, err)
		}
		return e.remote.UpdateTask(ctx, a.ID, a.TargetID, fields)

	case models.ActionDeleteTask:
		return e.remote.DeleteTask(ctx, a.ID, a.TargetID)

	case models.ActionCreateHabit:
		var h models.Habit
		if err := json.Unmarshal(a.Payload, &h); err != nil {
			return e.dropCorrupt(a, err)
		}
		_, err := e.remote.CreateHabit(ctx, a.ID, &h)
		return err

	case models.ActionUpdateHabit:
		fields, err := a.UpdateFields()
		if err != nil {
			return e.dropCorrupt(a, err)
		}
		return e.remote.UpdateHabit(ctx, a.ID, a.TargetID, fields)

	case models.ActionDeleteHabit:
		return e.remote.DeleteHabit(ctx, a.ID, a.TargetID)

	case models.ActionCompleteHabit:
		var p models.CompleteHabitPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return e.dropCorrupt(a, err)
		}
		return e.remote.CompleteHabit(ctx, a.ID, a.TargetID, p.Date)

	case models.ActionUncompleteHabit:
		var p models.CompleteHabitPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return e.dropCorrupt(a, err)
		}
		return e.remote.UncompleteHabit(ctx, a.ID, a.TargetID, p.Date)
	}

	logging.Warn("Dropping action of unknown kind",
		map[string]interface{}{"id": a.ID.String(), "kind": string(a.Kind)})
	return nil
}

// dropCorrupt discards an action whose payload cannot be decoded.
// Requeueing it would retry forever without any chance of success.
func (e *Engine) dropCorrupt(a *models.PendingAction, err error) error {
	logging.ErrorWithCode("Dropping action with corrupt payload",
		string(apperrors.ErrQueueCorrupt), err,
		map[string]interface{}{"id": a.ID.String(), "kind": string(a.Kind)})
	return nil
}

// reload fetches both collections and overwrites the cache.
func (e *Engine) reload(ctx context.Context) error {
	tasks, err := e.remote.FetchTasks(ctx)
	if err != nil {
		return err
	}
	habits, err := e.remote.FetchHabits(ctx)
	if err != nil {
		return err
	}
	e.cache.ReplaceAll(tasks, habits)
	return nil
}
