package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"paperbot/internal/metrics"
)

// ErrAlreadyRunning is returned by Start when the worker is active.
var ErrAlreadyRunning = errors.New("worker already running")

// ErrNotRunning is returned by Stop when there is nothing to stop.
var ErrNotRunning = errors.New("worker not running")

// Manager owns the worker goroutine lifecycle. Start and Stop are safe for
// concurrent use from HTTP handlers.
type Manager struct {
	worker  *Worker
	metrics *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager wraps a worker for start/stop control.
func NewManager(w *Worker, m *metrics.Metrics) *Manager {
	return &Manager{worker: w, metrics: m}
}

func (m *Manager) running() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Start launches the worker loop. Returns ErrAlreadyRunning if active.
func (m *Manager) Start(parent context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	if m.metrics != nil {
		m.metrics.WorkerRunning.Set(1)
	}

	go func() {
		defer close(done)
		m.worker.Run(ctx)
		if m.metrics != nil {
			m.metrics.WorkerRunning.Set(0)
		}
	}()
	return nil
}

// Stop cancels the worker and waits up to timeout for the loop to exit.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	if !m.running() {
		m.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("worker did not stop in time")
	}
}

// Running reports whether the worker loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running()
}
