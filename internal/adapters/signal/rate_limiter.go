package signal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dkeye/Hearing/internal/core"
)

// EventRateLimiter bounds client-originated events per connection over a
// sliding window.
type EventRateLimiter struct {
	mu       sync.Mutex
	history  map[core.ConnectionID][]time.Time
	limit    int
	interval time.Duration
	clock    clockwork.Clock
}

func NewEventRateLimiter(limit int, interval time.Duration, clock clockwork.Clock) *EventRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EventRateLimiter{
		history:  make(map[core.ConnectionID][]time.Time),
		limit:    limit,
		interval: interval,
		clock:    clock,
	}
}

func (rl *EventRateLimiter) Allow(id core.ConnectionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops the history of a closed connection.
func (rl *EventRateLimiter) Forget(id core.ConnectionID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
