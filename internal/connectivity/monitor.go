// Package connectivity tracks online/offline transitions for the sync
// core.
//
// Two signal sources feed the monitor: a periodic health probe against
// the remote API, and an optional websocket watch whose connection state
// mirrors reachability. Explicit SetOnline calls cover platform signals
// and tests.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/flowapp/flowsync/internal/logging"
)

// ProbeFunc checks whether the remote is reachable.
type ProbeFunc func(ctx context.Context) error

// Monitor holds the current online state and notifies listeners on every
// transition, exactly once per transition.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	listeners []func(online bool)

	probe    ProbeFunc
	interval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a Monitor that starts in the offline state; the
// first successful probe flips it online.
func NewMonitor(probe ProbeFunc, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Online returns the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnChange registers a listener invoked on every state transition.
// Listeners must be registered before Start.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetOnline records an explicit state signal. A no-op unless the state
// actually changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if online {
		logging.Info("Connectivity restored", nil)
	} else {
		logging.Info("Connectivity lost, queueing actions locally", nil)
	}

	for _, fn := range listeners {
		fn(online)
	}
}

// Start begins the periodic probe loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.probe == nil {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop stops the probe loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	// Probe once up front so startup does not wait a full interval to
	// discover the remote.
	m.runProbe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runProbe(ctx)
		}
	}
}

func (m *Monitor) runProbe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	err := m.probe(probeCtx)
	m.SetOnline(err == nil)
}
