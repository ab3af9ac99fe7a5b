package conference

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RestartLimiter enforces the per-participant restart-request throttle
// (§4.5, §6 conference.restart-request-rate-limits): a token bucket
// allowing maxRequests per interval, plus a hard minimum spacing between
// any two requests from the same participant.
type RestartLimiter struct {
	mu          sync.Mutex
	maxRequests int
	interval    time.Duration
	minInterval time.Duration

	buckets map[string]*rate.Limiter
	lastAt  map[string]time.Time
}

// NewRestartLimiter builds a limiter from the configured rates.
func NewRestartLimiter(maxRequests int, interval, minInterval time.Duration) *RestartLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &RestartLimiter{
		maxRequests: maxRequests,
		interval:    interval,
		minInterval: minInterval,
		buckets:     make(map[string]*rate.Limiter),
		lastAt:      make(map[string]time.Time),
	}
}

func (l *RestartLimiter) bucketFor(participantID string) *rate.Limiter {
	if b, ok := l.buckets[participantID]; ok {
		return b
	}
	b := rate.NewLimiter(rate.Limit(float64(l.maxRequests)/l.interval.Seconds()), l.maxRequests)
	l.buckets[participantID] = b
	return b
}

// Allow reports whether participantID may issue a restart request now,
// consuming a token if so.
func (l *RestartLimiter) Allow(participantID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.lastAt[participantID]; ok && l.minInterval > 0 && now.Sub(last) < l.minInterval {
		return false
	}
	if !l.bucketFor(participantID).Allow() {
		return false
	}
	l.lastAt[participantID] = now
	return true
}

// Forget drops a participant's bucket and last-request timestamp, e.g. on
// leave, so state doesn't grow unbounded across the conference's lifetime.
func (l *RestartLimiter) Forget(participantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, participantID)
	delete(l.lastAt, participantID)
}
