package polygon

import (
	"testing"
	"time"
)

func infraErr() error {
	return newError(KindNetwork, "test", "connection refused")
}

func businessErr() error {
	return newError(KindSubscriptionRestricted, "test", "plan does not cover endpoint")
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute, nil, nil)

	for i := 0; i < 2; i++ {
		b.Record(infraErr())
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state after 2 failures = %v, want closed", b.State())
	}

	b.Record(infraErr())
	if b.State() != BreakerOpen {
		t.Fatalf("state after 3 failures = %v, want open", b.State())
	}

	err := b.Allow("test")
	if !IsCircuitOpen(err) {
		t.Errorf("Allow while open = %v, want circuit-open", err)
	}
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := NewBreaker(3, time.Minute, nil, nil)

	b.Record(infraErr())
	b.Record(infraErr())
	b.Record(nil)
	b.Record(infraErr())
	b.Record(infraErr())

	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed; success should zero the streak", b.State())
	}
}

func TestBreaker_BusinessErrorsIgnored(t *testing.T) {
	b := NewBreaker(2, time.Minute, nil, nil)

	for i := 0; i < 5; i++ {
		b.Record(businessErr())
	}
	if b.State() != BreakerClosed {
		t.Errorf("business failures opened the circuit: %v", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, time.Minute, nil, nil)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Record(infraErr())
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Cooldown not yet elapsed.
	if err := b.Allow("test"); !IsCircuitOpen(err) {
		t.Fatalf("Allow before cooldown = %v, want circuit-open", err)
	}

	now = now.Add(2 * time.Minute)

	// First call after cooldown is the probe; a concurrent second call
	// is rejected while the probe is in flight.
	if err := b.Allow("test"); err != nil {
		t.Fatalf("probe not admitted: %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	if err := b.Allow("test"); !IsCircuitOpen(err) {
		t.Errorf("second probe admitted: %v", err)
	}

	// Probe success closes the circuit.
	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Errorf("state after probe success = %v, want closed", b.State())
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := NewBreaker(1, time.Minute, nil, nil)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Record(infraErr())
	now = now.Add(2 * time.Minute)
	if err := b.Allow("test"); err != nil {
		t.Fatalf("probe not admitted: %v", err)
	}

	b.Record(infraErr())
	if b.State() != BreakerOpen {
		t.Fatalf("state after probe failure = %v, want open", b.State())
	}

	// The cooldown restarts from the reopen.
	if err := b.Allow("test"); !IsCircuitOpen(err) {
		t.Errorf("Allow right after reopen = %v, want circuit-open", err)
	}
}

func TestIsInfrastructure(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		infra bool
	}{
		{"Network", newError(KindNetwork, "e", "x"), true},
		{"Timeout", NewTimeout("e"), true},
		{"Server error", &Error{Kind: KindBadStatus, StatusCode: 503}, true},
		{"Client error", &Error{Kind: KindBadStatus, StatusCode: 404}, false},
		{"Rate limited", newError(KindRateLimited, "e", "x"), false},
		{"Aborted", NewAborted("e"), false},
		{"Paused", newError(KindPaused, "e", "x"), false},
		{"Restricted", businessErr(), false},
		{"Bad payload", newError(KindBadPayload, "e", "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInfrastructure(tt.err); got != tt.infra {
				t.Errorf("IsInfrastructure = %v, want %v", got, tt.infra)
			}
		})
	}
}
