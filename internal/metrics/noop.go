package metrics

import "time"

// NoopSink is used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) RegistrationCompleted(outcome string)                              {}
func (n *NoopSink) CancellationCompleted(outcome string)                              {}
func (n *NoopSink) OneOffRequestObserved(operation, class string, d time.Duration)   {}
func (n *NoopSink) FiringOutcome(outcome string)                                      {}
func (n *NoopSink) EventChained()                                                     {}
func (n *NoopSink) ScheduleExhausted()                                                {}
func (n *NoopSink) SweepCompleted(d time.Duration, reregistered, fired int, err error) {}
