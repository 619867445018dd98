package whatsapp

import (
	"sync"
	"sync/atomic"
	"time"
)

// Governor bounds reconnect attempts per instance. The delay between attempts is
// constant.
type Governor struct {
	maxAttempts int
	delay       time.Duration

	mu       sync.Mutex
	attempts map[string]int

	exhausted atomic.Uint64
}

func NewGovernor(maxAttempts int, delay time.Duration) *Governor {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &Governor{
		maxAttempts: maxAttempts,
		delay:       delay,
		attempts:    make(map[string]int),
	}
}

func (g *Governor) Reset(name string) {
	g.mu.Lock()
	delete(g.attempts, name)
	g.mu.Unlock()
}

func (g *Governor) ShouldRetry(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[name] < g.maxAttempts
}

// RecordAttempt increments the counter and returns the new value.
func (g *Governor) RecordAttempt(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts[name]++
	return g.attempts[name]
}

func (g *Governor) Attempts(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[name]
}

func (g *Governor) Delay() time.Duration {
	return g.delay
}

func (g *Governor) MaxAttempts() int {
	return g.maxAttempts
}

// Exhausted counts how many times an instance hit the cap and stopped retrying.
func (g *Governor) Exhausted() uint64 {
	return g.exhausted.Load()
}

func (g *Governor) giveUp() {
	g.exhausted.Add(1)
}
