// File: internal/delivery/retry.go
package delivery

import "time"

// retryState is the retry state machine for one trigger delivery. It owns
// the attempt count and the backoff schedule; the HTTP path stays outside.
type retryState struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	attempt int
}

func newRetryState(maxAttempts int, baseDelay, maxDelay time.Duration) *retryState {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &retryState{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// Next advances the state machine. It returns the delay to wait before the
// upcoming attempt (zero for the first) and false once attempts are
// exhausted. Backoff doubles per attempt, capped at maxDelay.
func (r *retryState) Next() (time.Duration, bool) {
	if r.attempt >= r.maxAttempts {
		return 0, false
	}
	r.attempt++

	if r.attempt == 1 {
		return 0, true
	}

	delay := r.baseDelay << (r.attempt - 2)
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	return delay, true
}

// Attempt returns the current attempt number, starting at 1 after the
// first call to Next.
func (r *retryState) Attempt() int {
	return r.attempt
}
