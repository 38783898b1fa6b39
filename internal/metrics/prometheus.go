package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/logging"
)

const namespace = "reconciler"

// PrometheusSink implements Sink with the Prometheus client. Registration
// errors are logged and never propagated.
type PrometheusSink struct {
	registrations  *prometheus.CounterVec
	cancellations  *prometheus.CounterVec
	oneOffRequests *prometheus.HistogramVec

	firings   *prometheus.CounterVec
	chained   prometheus.Counter
	exhausted prometheus.Counter

	sweeps            *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	sweepReregistered prometheus.Counter
	sweepFired        prometheus.Counter

	logger logging.Logger
}

func NewPrometheusSink(reg prometheus.Registerer, logger logging.Logger) *PrometheusSink {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	s := &PrometheusSink{logger: logger}
	s.initBridgeMetrics(reg)
	s.initControllerMetrics(reg)
	s.initSweepMetrics(reg)
	return s
}

func (s *PrometheusSink) initBridgeMetrics(reg prometheus.Registerer) {
	s.registrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oneoff_registrations_total",
		Help:      "One-off trigger registrations by outcome.",
	}, []string{"outcome"})
	s.cancellations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oneoff_cancellations_total",
		Help:      "One-off trigger cancellations by outcome.",
	}, []string{"outcome"})
	s.oneOffRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "oneoff_request_duration_seconds",
		Help:      "Latency of requests to the one-off scheduler.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "status_class"})

	s.register(reg, s.registrations, "oneoff_registrations_total")
	s.register(reg, s.cancellations, "oneoff_cancellations_total")
	s.register(reg, s.oneOffRequests, "oneoff_request_duration_seconds")
}

func (s *PrometheusSink) initControllerMetrics(reg prometheus.Registerer) {
	s.firings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "firings_total",
		Help:      "One-off firings handled, by outcome.",
	}, []string{"outcome"})
	s.chained = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_chained_total",
		Help:      "Next events materialized after a successful firing.",
	})
	s.exhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedules_exhausted_total",
		Help:      "Materializations that found no further occurrence in the window.",
	})

	s.register(reg, s.firings, "firings_total")
	s.register(reg, s.chained, "events_chained_total")
	s.register(reg, s.exhausted, "schedules_exhausted_total")
}

func (s *PrometheusSink) initSweepMetrics(reg prometheus.Registerer) {
	s.sweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_total",
		Help:      "Sweeper passes by result.",
	}, []string{"result"})
	s.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of each sweeper pass.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.sweepReregistered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_reregistered_total",
		Help:      "Pending events whose missing trigger was registered by the sweeper.",
	})
	s.sweepFired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_fired_total",
		Help:      "Overdue events fired by the sweeper.",
	})

	s.register(reg, s.sweeps, "sweeps_total")
	s.register(reg, s.sweepDuration, "sweep_duration_seconds")
	s.register(reg, s.sweepReregistered, "sweep_reregistered_total")
	s.register(reg, s.sweepFired, "sweep_fired_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("failed to register metric", zap.String("metric", name), zap.Error(err))
	}
}

func (s *PrometheusSink) RegistrationCompleted(outcome string) {
	s.registrations.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) CancellationCompleted(outcome string) {
	s.cancellations.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) OneOffRequestObserved(operation, statusClass string, duration time.Duration) {
	s.oneOffRequests.WithLabelValues(operation, statusClass).Observe(duration.Seconds())
}

func (s *PrometheusSink) FiringOutcome(outcome string) {
	s.firings.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) EventChained() {
	s.chained.Inc()
}

func (s *PrometheusSink) ScheduleExhausted() {
	s.exhausted.Inc()
}

func (s *PrometheusSink) SweepCompleted(duration time.Duration, reregistered, fired int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.sweeps.WithLabelValues(result).Inc()
	s.sweepDuration.Observe(duration.Seconds())
	s.sweepReregistered.Add(float64(reregistered))
	s.sweepFired.Add(float64(fired))
}
