package sync

import (
	"context"
	"time"
)

// EngineInterface abstracts the engine for the scheduler and tests.
type EngineInterface interface {
	// Drain performs one ordered submission pass plus cache reload.
	Drain(ctx context.Context) (*DrainResult, error)

	// Status returns the current engine status.
	Status() Status

	// PendingChanges returns the number of actions awaiting submission.
	PendingChanges() int

	// LastDrain returns the end time of the last completed drain.
	LastDrain() *time.Time

	// LastError returns the error recorded by the last drain.
	LastError() error
}

// Engine implements EngineInterface.
var _ EngineInterface = (*Engine)(nil)
