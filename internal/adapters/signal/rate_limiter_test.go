package signal

import (
	"testing"
	"time"
)

func TestJoinRateLimiterEnforcesLimit(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("u1") {
			t.Fatalf("attempt %d denied within limit", i)
		}
	}
	if rl.Allow("u1") {
		t.Fatal("attempt over limit allowed")
	}
	// Independent users have independent budgets.
	if !rl.Allow("u2") {
		t.Fatal("unrelated user denied")
	}
}

func TestJoinRateLimiterSlidesWindow(t *testing.T) {
	rl := NewJoinRateLimiter(2, 30*time.Millisecond)

	rl.Allow("u1")
	rl.Allow("u1")
	if rl.Allow("u1") {
		t.Fatal("third attempt allowed inside window")
	}
	time.Sleep(50 * time.Millisecond)
	if !rl.Allow("u1") {
		t.Fatal("attempt denied after window slid past")
	}
}
