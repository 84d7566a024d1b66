// Package scheduler runs the periodic drain loop for the sync engine.
package scheduler

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/flowapp/flowsync/internal/errors"
	"github.com/flowapp/flowsync/internal/logging"
	syncpkg "github.com/flowapp/flowsync/internal/sync"
)

// Scheduler triggers engine drains on a fixed interval while online and
// once immediately on every offline-to-online transition. Overlap
// protection lives in the engine; a trigger during an in-flight drain is
// a recorded no-op.
type Scheduler struct {
	engine        syncpkg.EngineInterface
	drainInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex
	isRunning     bool
	isOnline      bool
}

// Config holds scheduler configuration.
type Config struct {
	DrainInterval time.Duration // How often to drain when online (default: 30 seconds)
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		DrainInterval: 30 * time.Second,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(engine syncpkg.EngineInterface, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DrainInterval <= 0 {
		config.DrainInterval = DefaultConfig().DrainInterval
	}

	return &Scheduler{
		engine:        engine,
		drainInterval: config.DrainInterval,
		stopCh:        make(chan struct{}),
		isOnline:      true, // Assume online initially
	}
}

// Start starts the drain loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.drainLoop(ctx)

	logging.Info("Sync scheduler started",
		map[string]interface{}{"interval_seconds": s.drainInterval.Seconds()})
}

// Stop stops the drain loop gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// SetOnlineStatus changes the online status. While offline the periodic
// loop suppresses drains; the transition back to online fires one drain
// immediately so queued work is not stuck waiting for the next tick.
func (s *Scheduler) SetOnlineStatus(ctx context.Context, isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	s.mu.Unlock()

	if wasOnline == isOnline {
		return
	}

	logging.Info("Online status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  isOnline,
	})

	if isOnline {
		s.TriggerDrain(ctx)
	}
}

// TriggerDrain fires one drain in the background. Returns false if the
// engine reported a drain already in flight.
func (s *Scheduler) TriggerDrain(ctx context.Context) bool {
	if s.engine.Status() == syncpkg.StatusDraining {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runDrain(ctx)
	}()
	return true
}

// drainLoop runs the periodic drain while online.
func (s *Scheduler) drainLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			s.runDrain(ctx)
		}
	}
}

// runDrain executes one drain pass.
func (s *Scheduler) runDrain(ctx context.Context) {
	if !s.IsOnline() {
		logging.Debug("Skipping drain - offline", nil)
		return
	}

	result, err := s.engine.Drain(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			logging.Debug("Drain already in progress, skipping", nil)
			return
		}
		logging.ErrorWithCode("Drain failed", string(apperrors.ErrSyncFailed), err)
		return
	}

	if result.Total > 0 || !result.Reloaded {
		logging.Info("Scheduled drain finished", map[string]interface{}{
			"applied":  result.Applied,
			"requeued": result.Requeued,
			"reloaded": result.Reloaded,
		})
	}
}

// DrainNow triggers an immediate drain and waits for completion.
func (s *Scheduler) DrainNow(ctx context.Context) (*syncpkg.DrainResult, error) {
	return s.engine.Drain(ctx)
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
