package metrics

import "time"

// Sink records reconciliation metrics. Methods are fire-and-forget and
// must never block or fail the caller.
type Sink interface {
	// One-off bridge
	RegistrationCompleted(outcome string)
	CancellationCompleted(outcome string)
	OneOffRequestObserved(operation, statusClass string, duration time.Duration)

	// Controller
	FiringOutcome(outcome string)
	EventChained()
	ScheduleExhausted()

	// Sweeper
	SweepCompleted(duration time.Duration, reregistered, fired int, err error)
}

// Registration and cancellation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Firing outcomes.
const (
	FiringExecuted       = "executed"
	FiringStale          = "stale"
	FiringCallbackFailed = "callback_failed"
)

// Status classes for one-off HTTP requests.
const (
	StatusClass2xx   = "2xx"
	StatusClass4xx   = "4xx"
	StatusClass5xx   = "5xx"
	StatusClassError = "error"
)

// ClassifyStatus maps an HTTP status code (0 when the request failed) to a class.
func ClassifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassError
	}
}
