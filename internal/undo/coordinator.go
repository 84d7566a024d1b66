// Package undo implements the single-slot reversible-action protocol.
//
// Exactly one action is reversible at a time, for a fixed window after
// it was recorded. Recording a new action supersedes the previous one
// without visiting its terminal states. A bounded history of recent
// records is retained, but only the newest entry can ever be undone.
package undo

import (
	"strconv"
	"sync"
	"time"

	apperrors "github.com/flowapp/flowsync/internal/errors"
	"github.com/flowapp/flowsync/internal/logging"
	"github.com/flowapp/flowsync/internal/models"
)

// DefaultWindow is how long a recorded action stays reversible.
const DefaultWindow = 5 * time.Second

// historyCapacity bounds the retained record history.
const historyCapacity = 50

// Mutator is the forward mutation path that inverse operations are
// issued through. Reversals go through the same optimistic-apply and
// enqueue route as any user mutation, so they obey the same offline
// queueing rules.
type Mutator interface {
	CreateTask(t *models.Task) (*models.Task, error)
	CreateHabit(h *models.Habit) (*models.Habit, error)
	UpdateTask(id int64, fields map[string]interface{}) error
}

// Coordinator owns the single live UndoableRecord and its expiry timer.
type Coordinator struct {
	mu       sync.Mutex
	mutator  Mutator
	notifier Notifier
	window   time.Duration
	now      func() time.Time

	current *models.UndoableRecord
	timer   *time.Timer
	history []*models.UndoableRecord
}

// NewCoordinator creates a Coordinator. A zero window means
// DefaultWindow; a nil notifier falls back to LogNotifier.
func NewCoordinator(mutator Mutator, notifier Notifier, window time.Duration) *Coordinator {
	if window <= 0 {
		window = DefaultWindow
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Coordinator{
		mutator:  mutator,
		notifier: notifier,
		window:   window,
		now:      time.Now,
	}
}

// Record registers a reversible forward action and (re)starts the expiry
// timer. Any previously live record is discarded immediately; it cannot
// be undone afterwards.
func (c *Coordinator) Record(rec *models.UndoableRecord) {
	c.mu.Lock()

	if c.timer != nil {
		c.timer.Stop()
	}

	rec.CreatedAt = c.now()
	rec.ExpiresAt = rec.CreatedAt.Add(c.window)
	c.current = rec

	c.history = append(c.history, rec)
	if len(c.history) > historyCapacity {
		c.history = c.history[1:]
	}

	c.timer = time.AfterFunc(c.window, func() { c.expire(rec) })
	message := rec.Kind.Message(rec.Count())
	c.mu.Unlock()

	logging.Debug("Reversible action recorded",
		map[string]interface{}{"kind": string(rec.Kind)})
	c.notifier.ShowUndo(message)
}

// CanUndo reports whether a live, unexpired record exists.
func (c *Coordinator) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.current.Expired(c.now())
}

// Undo reverses the live record if its window is still open. The record
// is consumed before the inverse runs: a failed inverse is reported but
// the undo opportunity is not restored.
func (c *Coordinator) Undo() error {
	c.mu.Lock()
	rec := c.current
	if rec == nil || rec.Expired(c.now()) {
		c.mu.Unlock()
		return apperrors.New(apperrors.ErrUndoExpired, "nothing to undo")
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = nil
	c.mu.Unlock()

	c.notifier.DismissUndo()

	if err := c.applyInverse(rec); err != nil {
		c.notifier.NotifyError("Could not undo action")
		return apperrors.Wrap(apperrors.ErrUndoFailed, "inverse operation failed", err)
	}

	c.notifier.Notify(restoreMessage(rec))
	return nil
}

// expire fires when the window elapses with no undo request. It clears
// the slot only if the record is still the live one; a newer record may
// have superseded it in the meantime.
func (c *Coordinator) expire(rec *models.UndoableRecord) {
	c.mu.Lock()
	if c.current != rec {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.timer = nil
	c.mu.Unlock()

	logging.Debug("Undo window expired",
		map[string]interface{}{"kind": string(rec.Kind)})
	c.notifier.DismissUndo()
}

// applyInverse issues the kind-specific compensating mutation.
func (c *Coordinator) applyInverse(rec *models.UndoableRecord) error {
	switch rec.Kind {
	case models.UndoDeleteTask:
		// Re-creation assigns a new server identity; that is accepted
		// behavior, not a true resurrection of the original row.
		_, err := c.mutator.CreateTask(rec.Task)
		return err

	case models.UndoCompleteTask:
		return c.mutator.UpdateTask(rec.TaskID, map[string]interface{}{
			"completed": false,
		})

	case models.UndoDeleteHabit:
		_, err := c.mutator.CreateHabit(rec.Habit)
		return err

	case models.UndoMoveTask:
		return c.mutator.UpdateTask(rec.TaskID, map[string]interface{}{
			"due_date": rec.PrevDueDate,
			"due_time": rec.PrevDueTime,
		})

	case models.UndoBulkDelete:
		for _, t := range rec.DeletedTasks {
			if _, err := c.mutator.CreateTask(t); err != nil {
				return err
			}
		}
		for _, h := range rec.DeletedHabits {
			if _, err := c.mutator.CreateHabit(h); err != nil {
				return err
			}
		}
		return nil
	}

	return apperrors.New(apperrors.ErrInvalid, "unknown undo kind "+string(rec.Kind))
}

// HistoryLen returns how many records the bounded history holds.
func (c *Coordinator) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

func restoreMessage(rec *models.UndoableRecord) string {
	switch rec.Kind {
	case models.UndoDeleteTask:
		return "Task restored"
	case models.UndoCompleteTask:
		return "Task uncompleted"
	case models.UndoDeleteHabit:
		return "Habit restored"
	case models.UndoMoveTask:
		return "Task moved back"
	case models.UndoBulkDelete:
		return strconv.Itoa(rec.Count()) + " items restored"
	}
	return "Action undone"
}
