// Package metrics provides Prometheus metrics for enrollment and verification.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OutcomeOK labels successful operations. Failures use their biometric code.
const OutcomeOK = "OK"

// Recorder owns the veriface metrics. A nil *Recorder records nothing.
type Recorder struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	enrollments   *prometheus.CounterVec
	verifications *prometheus.CounterVec
	verifyLatency prometheus.Histogram
	catalogSize   prometheus.Gauge
}

// NewRecorder creates a Recorder on a private registry unless WithRegistry is given.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "veriface",
		buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)
	r.enrollments = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "enrollments_total",
		Help:      "Enrollment validations by outcome code",
	}, []string{"outcome"})

	r.verifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "verifications_total",
		Help:      "Identity match attempts by outcome code",
	}, []string{"outcome"})

	r.verifyLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "verification_duration_seconds",
		Help:      "Time spent scoring the catalog for one match attempt",
		Buckets:   r.buckets,
	})

	r.catalogSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "catalog_candidates",
		Help:      "Number of candidates in the most recent match attempt",
	})
	return r
}

// Registry exposes the underlying registry for scraping or tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveEnrollment counts one enrollment validation.
func (r *Recorder) ObserveEnrollment(outcome string) {
	if r == nil {
		return
	}
	r.enrollments.WithLabelValues(outcome).Inc()
}

// ObserveVerification counts one match attempt and its duration.
func (r *Recorder) ObserveVerification(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(outcome).Inc()
	r.verifyLatency.Observe(d.Seconds())
}

// ObserveCandidates records the catalog size of the latest match attempt.
func (r *Recorder) ObserveCandidates(n int) {
	if r == nil {
		return
	}
	r.catalogSize.Set(float64(n))
}

// WriteTextfile dumps all metrics in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
