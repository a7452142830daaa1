package signal

import (
	"sync"
	"time"

	"github.com/maitrungduc1410/WebRTC-Demo/internal/domain"
)

// JoinRateLimiter caps join attempts per participant over a sliding window,
// so a misbehaving client cannot hammer the room table.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ParticipantID][]time.Time
	limit    int
	interval time.Duration
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[domain.ParticipantID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *JoinRateLimiter) Allow(pid domain.ParticipantID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[pid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[pid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[pid] = fresh
	return true
}

// Forget drops a participant's history, typically on disconnect.
func (rl *JoinRateLimiter) Forget(pid domain.ParticipantID) {
	rl.mu.Lock()
	delete(rl.history, pid)
	rl.mu.Unlock()
}
