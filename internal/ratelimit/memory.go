package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local Limiter. Expired windows are swept
// periodically until Close is called.
type Memory struct {
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemory returns an in-process limiter. It starts a sweeper goroutine;
// call Close to stop it.
func NewMemory() *Memory {
	return newMemory(time.Now, 5*time.Minute)
}

func newMemory(now func() time.Time, sweep time.Duration) *Memory {
	m := &Memory{
		now:     now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.sweepLoop(sweep)
	return m
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string, p Policy) (Result, error) {
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(p.Window)}
		m.windows[key] = w
		return Result{Allowed: true, Remaining: p.Limit - 1, ResetAt: w.resetAt}, nil
	}
	if w.count >= p.Limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}
	w.count++
	return Result{Allowed: true, Remaining: p.Limit - w.count, ResetAt: w.resetAt}, nil
}

// Reset implements Limiter.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.windows, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Sweep drops every expired window.
func (m *Memory) Sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, w := range m.windows {
		if now.After(w.resetAt) {
			delete(m.windows, k)
		}
	}
}

// Close stops the sweeper and waits for it to exit.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *Memory) sweepLoop(every time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
