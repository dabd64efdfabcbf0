// Package polygon provides the rate-limited, circuit-breaker-guarded
// client for the market-data provider's aggregate and indicator APIs.
package polygon

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind identifies a class of client error. Callers branch on kinds via
// KindOf instead of matching error strings.
type Kind string

const (
	KindRateLimited            Kind = "rate-limited"
	KindAborted                Kind = "aborted"
	KindTimeout                Kind = "timeout"
	KindPaused                 Kind = "paused"
	KindSubscriptionRestricted Kind = "subscription-restricted"
	KindBadStatus              Kind = "bad-status"
	KindBadPayload             Kind = "bad-payload"
	KindCircuitOpen            Kind = "circuit-open"
	KindNetwork                Kind = "network"
)

// Error is a typed provider-client error.
type Error struct {
	Kind       Kind
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s (status: %d, endpoint: %s)", e.Kind, e.Message, e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

// KindOf classifies any error into a Kind. Context errors map to aborted
// and timeout; unrecognised errors are treated as network failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// IsAborted reports cancellation-origin errors.
func IsAborted(err error) bool { return KindOf(err) == KindAborted }

// IsRateLimited reports provider throttling.
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// IsPaused reports the global kill-switch.
func IsPaused(err error) bool { return KindOf(err) == KindPaused }

// IsCircuitOpen reports breaker rejections.
func IsCircuitOpen(err error) bool { return KindOf(err) == KindCircuitOpen }

// IsTimeout reports deadline-origin errors.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsInfrastructure reports whether an error should count against the
// circuit breaker: timeouts, 5xx responses and network failures do;
// rate limits, cancellations, the kill-switch, subscription restrictions
// and payload-shape problems do not.
func IsInfrastructure(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindNetwork:
		return true
	case KindBadStatus:
		var pe *Error
		if errors.As(err, &pe) {
			return pe.StatusCode >= 500
		}
		return false
	default:
		return false
	}
}

func newError(kind Kind, endpoint, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Endpoint: endpoint, Message: fmt.Sprintf(format, args...)}
}

// NewTimeout returns a labelled timeout error; the label names the work
// unit that overran its budget.
func NewTimeout(label string) *Error {
	return &Error{Kind: KindTimeout, Message: label}
}

// NewAborted returns a cancellation-origin error.
func NewAborted(label string) *Error {
	return &Error{Kind: KindAborted, Message: label}
}
