package source

import (
	"sync"
	"time"
)

const (
	seedBackoff = 30 * time.Second
	maxBackoff  = 10 * time.Minute
)

// Clock abstracts time.Now so backoff behaviour is testable without sleeps.
type Clock func() time.Time

// Health tracks the up/down state of one source. On each consecutive failure
// the backoff window doubles up to a cap; while the window is open Healthy
// reports false, bounding retry pressure on a failing upstream. Once the
// window elapses the source is offered a probe attempt; a success resets the
// backoff to its seed.
type Health struct {
	mu        sync.Mutex
	clock     Clock
	down      bool
	downSince time.Time
	backoff   time.Duration
	lastErr   error
}

// NewHealth builds a tracker. A nil clock falls back to time.Now.
func NewHealth(clock Clock) *Health {
	if clock == nil {
		clock = time.Now
	}
	return &Health{clock: clock, backoff: seedBackoff}
}

// Healthy reports whether the source may be dispatched to.
func (h *Health) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.down {
		return true
	}
	return h.clock().Sub(h.downSince) >= h.backoff
}

// Fail records a request failure and escalates the backoff window.
func (h *Health) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.down {
		h.backoff *= 2
		if h.backoff > maxBackoff {
			h.backoff = maxBackoff
		}
	} else {
		h.down = true
		h.backoff = seedBackoff
	}
	h.downSince = h.clock()
	h.lastErr = err
}

// OK records a request success and resets the tracker to its seed state.
func (h *Health) OK() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down = false
	h.backoff = seedBackoff
	h.lastErr = nil
}

// Backoff returns the current backoff window.
func (h *Health) Backoff() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backoff
}

// LastError returns the error that opened the current down window, if any.
func (h *Health) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}
