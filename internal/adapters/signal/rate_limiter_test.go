package signal

import (
	"testing"
	"time"
)

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("attempt %d blocked inside the limit", i)
		}
	}
	if rl.Allow("alice") {
		t.Fatal("attempt over the limit allowed")
	}
	// Limits are per participant.
	if !rl.Allow("bob") {
		t.Fatal("unrelated participant blocked")
	}

	rl.Forget("alice")
	if !rl.Allow("alice") {
		t.Fatal("blocked after history was forgotten")
	}
}

func TestJoinRateLimiterWindowSlides(t *testing.T) {
	rl := NewJoinRateLimiter(2, 10*time.Millisecond)

	rl.Allow("alice")
	rl.Allow("alice")
	if rl.Allow("alice") {
		t.Fatal("limit not enforced")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("alice") {
		t.Fatal("old attempts still counted after the window passed")
	}
}
