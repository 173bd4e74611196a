// Package breaker is a small consecutive-failure circuit breaker shared by the
// model clients.
package breaker

import (
	"sync/atomic"
	"time"
)

// Breaker opens after Threshold consecutive failures and stays open for Reset.
// After Reset elapses one request is let through (half-open); a success closes
// the circuit, a failure re-opens it. A Threshold <= 0 disables the breaker.
type Breaker struct {
	threshold int32
	reset     time.Duration
	now       func() time.Time

	failures  int32
	openUntil int64 // unix nano
}

func New(threshold int, reset time.Duration) *Breaker {
	return &Breaker{threshold: int32(threshold), reset: reset, now: time.Now}
}

// Allow reports whether a request may be attempted.
func (b *Breaker) Allow() bool {
	if b == nil || b.threshold <= 0 {
		return true
	}
	if atomic.LoadInt32(&b.failures) < b.threshold {
		return true
	}
	if b.now().UnixNano() < atomic.LoadInt64(&b.openUntil) {
		return false
	}

	// half-open: let one attempt through
	atomic.StoreInt32(&b.failures, b.threshold-1)
	return true
}

func (b *Breaker) Success() {
	if b == nil {
		return
	}
	atomic.StoreInt32(&b.failures, 0)
}

func (b *Breaker) Failure() {
	if b == nil || b.threshold <= 0 {
		return
	}
	if atomic.AddInt32(&b.failures, 1) >= b.threshold {
		atomic.StoreInt64(&b.openUntil, b.now().Add(b.reset).UnixNano())
	}
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	if b == nil {
		return 0
	}
	return int(atomic.LoadInt32(&b.failures))
}
