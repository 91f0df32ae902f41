package throttle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Limiter caps outbound operations at maxOps per rolling window. Starts are spaced
// window/maxOps apart with no burst, so any half-open window of the configured length
// sees at most maxOps starts. A tripped cooldown blocks every caller until it expires.
type Limiter struct {
	limiter *rate.Limiter
	maxOps  int
	window  time.Duration

	mu            sync.RWMutex
	cooldownUntil time.Time

	started atomic.Int64
}

func NewLimiter(maxOps int, window time.Duration) *Limiter {
	if maxOps < 1 {
		maxOps = 1
	}
	interval := window / time.Duration(maxOps)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		maxOps:  maxOps,
		window:  window,
	}
}

// Wait blocks until an operation may start or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	for {
		remaining := l.CooldownRemaining()
		if remaining <= 0 {
			break
		}
		log.Debugf("🚫 Limiter cooling down for %v", remaining.Round(time.Second))
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	l.started.Add(1)
	return nil
}

// Trip pauses all operations for d. A longer pending cooldown is kept.
func (l *Limiter) Trip(d time.Duration) {
	if l == nil || d <= 0 {
		return
	}
	until := time.Now().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
		log.Warnf("🚫 Rate limit hit, pausing outbound requests until %s", until.Format("15:04:05"))
	}
}

func (l *Limiter) CooldownRemaining() time.Duration {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	remaining := time.Until(l.cooldownUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Started returns how many operations have been admitted
func (l *Limiter) Started() int64 {
	if l == nil {
		return 0
	}
	return l.started.Load()
}

func (l *Limiter) Interval() time.Duration {
	return l.window / time.Duration(l.maxOps)
}
