package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncpkg "github.com/flowapp/flowsync/internal/sync"
)

// fakeEngine counts drains and lets tests control the reported status.
type fakeEngine struct {
	mu     sync.Mutex
	drains int
	status syncpkg.Status
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{status: syncpkg.StatusIdle}
}

func (f *fakeEngine) Drain(ctx context.Context) (*syncpkg.DrainResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return &syncpkg.DrainResult{Reloaded: true}, nil
}

func (f *fakeEngine) Status() syncpkg.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) setStatus(s syncpkg.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeEngine) PendingChanges() int   { return 0 }
func (f *fakeEngine) LastDrain() *time.Time { return nil }
func (f *fakeEngine) LastError() error      { return nil }

func (f *fakeEngine) drainCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drains
}

func TestStartStop(t *testing.T) {
	sched := NewScheduler(newFakeEngine(), nil)

	if sched.IsRunning() {
		t.Fatal("expected not running before Start")
	}
	sched.Start(context.Background())
	if !sched.IsRunning() {
		t.Fatal("expected running after Start")
	}
	sched.Stop()
	if sched.IsRunning() {
		t.Fatal("expected not running after Stop")
	}
}

func TestPeriodicDrainWhileOnline(t *testing.T) {
	engine := newFakeEngine()
	sched := NewScheduler(engine, &Config{DrainInterval: 10 * time.Millisecond})
	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return engine.drainCount() >= 2
	}, time.Second, 5*time.Millisecond, "expected ticker to drain repeatedly")
}

func TestNoDrainsWhileOffline(t *testing.T) {
	engine := newFakeEngine()
	sched := NewScheduler(engine, &Config{DrainInterval: 10 * time.Millisecond})
	sched.SetOnlineStatus(context.Background(), false)
	sched.Start(context.Background())
	defer sched.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, engine.drainCount(), "offline scheduler must not drain")
}

func TestReconnectTriggersImmediateDrain(t *testing.T) {
	engine := newFakeEngine()
	// Long interval so only the transition can cause a drain.
	sched := NewScheduler(engine, &Config{DrainInterval: time.Hour})
	sched.Start(context.Background())
	defer sched.Stop()

	sched.SetOnlineStatus(context.Background(), false)
	sched.SetOnlineStatus(context.Background(), true)

	require.Eventually(t, func() bool {
		return engine.drainCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRepeatedOnlineStatusIsIdempotent(t *testing.T) {
	engine := newFakeEngine()
	sched := NewScheduler(engine, &Config{DrainInterval: time.Hour})
	sched.Start(context.Background())
	defer sched.Stop()

	// Already online: setting online again is not a transition.
	sched.SetOnlineStatus(context.Background(), true)
	sched.SetOnlineStatus(context.Background(), true)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, engine.drainCount())
}

func TestTriggerDrainSkipsWhileDraining(t *testing.T) {
	engine := newFakeEngine()
	engine.setStatus(syncpkg.StatusDraining)
	sched := NewScheduler(engine, nil)

	if sched.TriggerDrain(context.Background()) {
		t.Fatal("expected TriggerDrain to report a no-op while a drain is in flight")
	}
	assert.Zero(t, engine.drainCount())
}

func TestDrainNow(t *testing.T) {
	engine := newFakeEngine()
	sched := NewScheduler(engine, nil)

	result, err := sched.DrainNow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Reloaded)
	assert.Equal(t, 1, engine.drainCount())
}
