package callclient

import "time"

// Backoff is the bounded-retry policy shared by transport reconnects,
// recognizer restarts and negotiation retries. Explicit configuration
// instead of ad hoc timers.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int // 0 means unlimited
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 15 * time.Second, MaxAttempts: 0}
}

// RestartBackoff caps consecutive recognizer restarts so a persistent
// device failure is surfaced instead of masked.
func RestartBackoff() Backoff {
	return Backoff{Base: 300 * time.Millisecond, Max: 5 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before attempt n (0-based), doubling from Base
// and capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Exhausted reports whether attempt n (0-based) exceeds the budget.
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}
