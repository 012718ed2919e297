package schedule

import (
	"sync"
	"time"
)

// Manual is a Ticker for tests: nothing runs until Fire is called.
type Manual struct {
	mu       sync.Mutex
	fn       func()
	interval time.Duration

	// Starts and Stops count calls.
	Starts int
	Stops  int
}

// NewManual creates a stopped Manual ticker.
func NewManual() *Manual {
	return &Manual{}
}

// Start records fn and interval.
func (m *Manual) Start(interval time.Duration, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	m.interval = interval
	m.Starts++
	return nil
}

// Stop forgets the scheduled function.
func (m *Manual) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = nil
	m.interval = 0
	m.Stops++
	return nil
}

// Fire runs the scheduled function once. It reports false when stopped.
func (m *Manual) Fire() bool {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Running reports whether a function is scheduled.
func (m *Manual) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fn != nil
}

// Interval returns the interval passed to the last Start.
func (m *Manual) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}
