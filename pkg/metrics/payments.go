package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records payment confirmation outcomes.
type PaymentMetrics struct {
	duration  *prometheus.HistogramVec
	confirmed *prometheus.CounterVec
	duplicate *prometheus.CounterVec
	failure   *prometheus.CounterVec
	orphaned  prometheus.Counter
}

// NewPaymentMetrics registers the payment pipeline metrics on the provided
// registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_confirmation_duration_seconds",
		Help:    "Duration of payment confirmation handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	confirmed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Payment confirmations that settled an invoice.",
	}, []string{"source"})
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_duplicate_confirmations_total",
		Help: "Payment confirmations short-circuited as already recorded.",
	}, []string{"source"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_confirmation_failures_total",
		Help: "Payment confirmations that failed.",
	}, []string{"source", "code"})
	orphaned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_orphaned_total",
		Help: "Settled payments whose originating quote or project could not be resolved.",
	})
	reg.MustRegister(duration, confirmed, duplicate, failure, orphaned)
	return &PaymentMetrics{
		duration:  duration,
		confirmed: confirmed,
		duplicate: duplicate,
		failure:   failure,
		orphaned:  orphaned,
	}
}

// ObserveDuration records confirmation handling duration per source.
func (p *PaymentMetrics) ObserveDuration(source string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeSource(source)).Observe(duration.Seconds())
}

// IncConfirmed increments the settled confirmation counter.
func (p *PaymentMetrics) IncConfirmed(source string) {
	if p == nil || p.confirmed == nil {
		return
	}
	p.confirmed.WithLabelValues(normalizeSource(source)).Inc()
}

// IncDuplicate increments the duplicate confirmation counter.
func (p *PaymentMetrics) IncDuplicate(source string) {
	if p == nil || p.duplicate == nil {
		return
	}
	p.duplicate.WithLabelValues(normalizeSource(source)).Inc()
}

// IncFailure increments the failure counter for the given error code.
func (p *PaymentMetrics) IncFailure(source, code string) {
	if p == nil || p.failure == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	p.failure.WithLabelValues(normalizeSource(source), code).Inc()
}

// IncOrphaned increments the orphaned payment counter.
func (p *PaymentMetrics) IncOrphaned() {
	if p == nil || p.orphaned == nil {
		return
	}
	p.orphaned.Inc()
}

func normalizeSource(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}
