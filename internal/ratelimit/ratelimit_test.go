package ratelimit

import "testing"

func TestAllowed_FirstExecution(t *testing.T) {
	// lastSwapTimestamp == 0 means never executed: always allowed,
	// regardless of current time.
	if !Allowed(0, 1, 60) {
		t.Error("first execution should be allowed at any time")
	}
	if !Allowed(0, 0, 60) {
		t.Error("first execution should be allowed at time zero")
	}
}

func TestAllowed_WithinCooldown(t *testing.T) {
	if Allowed(1000, 1030, 60) {
		t.Error("execution 30s after last should be rate limited")
	}
	if Allowed(1000, 1059, 60) {
		t.Error("execution 59s after last should be rate limited")
	}
}

func TestAllowed_CooldownBoundary(t *testing.T) {
	if !Allowed(1000, 1060, 60) {
		t.Error("execution exactly at cooldown boundary should be allowed")
	}
	if !Allowed(1000, 1061, 60) {
		t.Error("execution after cooldown should be allowed")
	}
}

func TestAllowed_ClockBehindLastSwap(t *testing.T) {
	// lastSwapTimestamp only advances; a current time behind it means
	// skew, and the safe answer is to refuse.
	if Allowed(1000, 900, 60) {
		t.Error("current time behind last swap should be rate limited")
	}
}

func TestRemaining(t *testing.T) {
	if got := Remaining(1000, 1030, 60); got != 30 {
		t.Errorf("expected 30s remaining, got %d", got)
	}
	if got := Remaining(1000, 1060, 60); got != 0 {
		t.Errorf("expected 0s remaining at boundary, got %d", got)
	}
	if got := Remaining(0, 5, 60); got != 0 {
		t.Errorf("expected 0s remaining for first execution, got %d", got)
	}
}
