// Package connectivity translates the platform's binary online/offline
// signal into edge-triggered sync signals for the orchestrator. The
// platform signal is taken at face value; a false "online" reading just
// causes a sync attempt whose dispatches fail and are retried normally.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/simonmuehling/educafric-app-sub010/internal/logging"
)

// Reason says why a sync signal fired.
type Reason string

const (
	// ReasonReconnect fires on the offline-to-online edge.
	ReasonReconnect Reason = "reconnect"
	// ReasonInterval fires on the periodic timer while online.
	ReasonInterval Reason = "interval"
)

// Signal asks the orchestrator for a sync attempt.
type Signal struct {
	Reason Reason
	At     time.Time
}

// DefaultInterval is the periodic re-sync interval while online.
const DefaultInterval = 5 * time.Minute

// Monitor turns connectivity transitions into Signals. The periodic timer
// is armed only while online and disarmed on the transition to offline; a
// sync attempt already in flight is not interrupted.
type Monitor struct {
	interval    time.Duration
	signals     chan Signal
	transitions chan bool
	wg          sync.WaitGroup

	mu        sync.RWMutex
	stopCh    chan struct{}
	isRunning bool
	isOnline  bool
}

// NewMonitor creates a Monitor. A non-positive interval falls back to
// DefaultInterval.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval:    interval,
		signals:     make(chan Signal, 1),
		transitions: make(chan bool, 16),
		stopCh:      make(chan struct{}),
	}
}

// Signals is the channel the orchestrator subscribes to.
func (m *Monitor) Signals() <-chan Signal {
	return m.signals
}

// IsOnline returns the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOnline
}

// SetOnline feeds a platform connectivity reading into the monitor.
// Steady-state repeats are absorbed; only edges produce signals.
func (m *Monitor) SetOnline(online bool) {
	m.mu.RLock()
	stopCh := m.stopCh
	m.mu.RUnlock()

	select {
	case m.transitions <- online:
	case <-stopCh:
	}
}

// Start launches the monitor loop. Calling Start twice is a no-op; a
// stopped monitor can be started again.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, stopCh)

	logging.Info("connectivity monitor started", map[string]interface{}{
		"interval_seconds": m.interval.Seconds(),
	})
}

// Stop shuts the monitor down and waits for its loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	stopCh := m.stopCh
	m.mu.Unlock()

	close(stopCh)
	m.wg.Wait()

	logging.Info("connectivity monitor stopped", nil)
}

func (m *Monitor) run(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	var ticker *time.Ticker
	var tickC <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case online := <-m.transitions:
			m.mu.Lock()
			was := m.isOnline
			m.isOnline = online
			m.mu.Unlock()

			if online == was {
				continue
			}

			logging.Info("connectivity changed", map[string]interface{}{"online": online})

			if online {
				m.emit(ReasonReconnect)
				ticker = time.NewTicker(m.interval)
				tickC = ticker.C
			} else if ticker != nil {
				ticker.Stop()
				ticker = nil
				tickC = nil
			}
		case <-tickC:
			m.emit(ReasonInterval)
		}
	}
}

// emit delivers a signal without blocking the loop. The channel holds one
// pending signal; further ones coalesce with it, which is harmless because
// the orchestrator is single-flight anyway.
func (m *Monitor) emit(reason Reason) {
	select {
	case m.signals <- Signal{Reason: reason, At: time.Now()}:
	default:
	}
}
