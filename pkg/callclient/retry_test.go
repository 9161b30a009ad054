package callclient

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: 500 * time.Millisecond}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	for i, w := range want {
		if got := b.Delay(i); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestBackoffExhausted(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Max: time.Second, MaxAttempts: 3}
	if b.Exhausted(2) {
		t.Fatal("attempt 2 within budget of 3")
	}
	if !b.Exhausted(3) {
		t.Fatal("attempt 3 should exhaust budget of 3")
	}

	unlimited := Backoff{Base: time.Millisecond, Max: time.Second}
	if unlimited.Exhausted(1 << 20) {
		t.Fatal("unlimited budget exhausted")
	}
}
