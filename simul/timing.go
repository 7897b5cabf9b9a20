package simul

import (
	"math/rand"
	"time"
)

// RateLimiter controls the pace of synthetic lines with optional jitter
type RateLimiter struct {
	linesPerSecond float64
	jitterPercent  float64
	random         *rand.Rand
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(linesPerSecond, jitterPercent float64) *RateLimiter {
	return &RateLimiter{
		linesPerSecond: linesPerSecond,
		jitterPercent:  jitterPercent,
		random:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextInterval returns the duration to wait before the next line
func (r *RateLimiter) NextInterval() time.Duration {
	if r.linesPerSecond <= 0 {
		return time.Second // Default to 1 per second if not set
	}

	baseInterval := time.Duration(float64(time.Second) / r.linesPerSecond)

	// Apply jitter if configured
	if r.jitterPercent > 0 {
		// Random value between -jitter% and +jitter%
		jitterFactor := (r.random.Float64()*2 - 1) * (r.jitterPercent / 100)
		jitterAmount := time.Duration(float64(baseInterval) * jitterFactor)
		return baseInterval + jitterAmount
	}

	return baseInterval
}

// Ticker creates a channel that sends at the configured rate with jitter
type Ticker struct {
	limiter *RateLimiter
	C       chan time.Time
	done    chan struct{}
}

// NewTicker creates a new ticker that fires at the rate limiter's interval
func NewTicker(limiter *RateLimiter) *Ticker {
	t := &Ticker{
		limiter: limiter,
		C:       make(chan time.Time, 1),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Ticker) run() {
	for {
		interval := t.limiter.NextInterval()
		select {
		case <-time.After(interval):
			select {
			case t.C <- time.Now():
			default:
				// Channel full, skip this tick
			}
		case <-t.done:
			return
		}
	}
}

// Stop stops the ticker
func (t *Ticker) Stop() {
	close(t.done)
}
