// Package ratelimit gates expensive read actions per customer. One
// call is allowed per cooldown interval; a refused call reports when
// the customer becomes eligible again.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[int64]*rate.Limiter
}

func NewGate(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		limiters: make(map[int64]*rate.Limiter),
	}
}

// Allow consumes the customer's slot when one is available. When it is
// not, the reservation is cancelled and the next eligible time is
// returned instead.
func (g *Gate) Allow(customerID int64) (time.Time, bool) {
	g.mu.Lock()
	lim, ok := g.limiters[customerID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(g.interval), 1)
		g.limiters[customerID] = lim
	}
	g.mu.Unlock()

	res := lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return time.Now().Add(delay), false
	}
	return time.Time{}, true
}
