// Package flood throttles profile writes per user handle.
package flood

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	window          = time.Minute
	idleTimeout     = 10 * time.Minute
	cleanupInterval = 10 * time.Minute
)

// Floodgate hands every key its own token bucket holding limitPerMinute
// tokens that refill evenly over a minute. Idle keys are forgotten.
type Floodgate struct {
	limitPerMinute int
	now            func() time.Time

	mutex   sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Stats is a point-in-time view used by the status endpoint.
type Stats struct {
	ActiveKeys     int `json:"activeKeys"`
	LimitPerMinute int `json:"limitPerMinute"`
	WindowSeconds  int `json:"windowSeconds"`
}

// New starts a Floodgate. A limit of zero or less blocks every request.
func New(limitPerMinute int) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		now:            time.Now,
		buckets:        make(map[string]*bucket),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go fg.sweepLoop()
	return fg
}

// Stop ends the sweeper and waits for it. Safe to call more than once.
func (fg *Floodgate) Stop() {
	fg.stopOnce.Do(func() { close(fg.stop) })
	<-fg.done
}

// Allow takes one token from key's bucket.
func (fg *Floodgate) Allow(key string) bool {
	if fg.limitPerMinute <= 0 {
		return false
	}

	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	b, ok := fg.buckets[key]
	if !ok {
		every := window / time.Duration(fg.limitPerMinute)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), fg.limitPerMinute)}
		fg.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (fg *Floodgate) sweepLoop() {
	defer close(fg.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.sweep()
		case <-fg.stop:
			return
		}
	}
}

// sweep drops buckets untouched for idleTimeout. A bucket idle that long is
// full again, so forgetting it changes nothing for the caller.
func (fg *Floodgate) sweep() {
	cutoff := fg.now().Add(-idleTimeout)

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	for key, b := range fg.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(fg.buckets, key)
		}
	}
}

func (fg *Floodgate) Stats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveKeys:     len(fg.buckets),
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(window.Seconds()),
	}
}
