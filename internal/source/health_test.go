package source

import (
	"errors"
	"testing"
	"time"
)

func TestHealthBackoffMonotonicity(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealth(func() time.Time { return now })

	if !h.Healthy() {
		t.Fatal("fresh tracker should be healthy")
	}

	errUpstream := errors.New("boom")
	previous := time.Duration(0)
	for i := 0; i < 12; i++ {
		h.Fail(errUpstream)
		backoff := h.Backoff()
		if backoff < previous {
			t.Fatalf("backoff decreased: %s -> %s", previous, backoff)
		}
		if backoff > maxBackoff {
			t.Fatalf("backoff %s exceeds cap %s", backoff, maxBackoff)
		}
		previous = backoff
	}
	if previous != maxBackoff {
		t.Fatalf("repeated failures should reach the cap, got %s", previous)
	}

	h.OK()
	if h.Backoff() != seedBackoff {
		t.Fatalf("success should reset backoff to seed, got %s", h.Backoff())
	}
	if !h.Healthy() {
		t.Fatal("tracker should be healthy after success")
	}
}

func TestHealthProbeWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealth(func() time.Time { return now })

	h.Fail(errors.New("down"))
	if h.Healthy() {
		t.Fatal("tracker should be unhealthy right after a failure")
	}

	now = now.Add(seedBackoff - time.Second)
	if h.Healthy() {
		t.Fatal("tracker should stay unhealthy inside the backoff window")
	}

	now = now.Add(2 * time.Second)
	if !h.Healthy() {
		t.Fatal("tracker should allow a probe once the window elapsed")
	}

	// A failed probe re-opens the window with a doubled backoff.
	h.Fail(errors.New("still down"))
	if h.Healthy() {
		t.Fatal("failed probe should close the window again")
	}
	if h.Backoff() != 2*seedBackoff {
		t.Fatalf("failed probe should double the backoff, got %s", h.Backoff())
	}
}

func TestHealthLastError(t *testing.T) {
	h := NewHealth(nil)
	errUpstream := errors.New("timeout")
	h.Fail(errUpstream)
	if !errors.Is(h.LastError(), errUpstream) {
		t.Fatal("tracker should retain the failing error")
	}
	h.OK()
	if h.LastError() != nil {
		t.Fatal("success should clear the last error")
	}
}
