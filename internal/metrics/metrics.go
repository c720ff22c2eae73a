// Package metrics provides Prometheus metrics instrumentation for the
// operator.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconcile outcome labels.
const (
	ReconcileNotLeader  = "not_leader"
	ReconcileSkipped    = "skipped"
	ReconcileTranslated = "translated"
	ReconcileError      = "error"
)

// Lease attempt outcome labels.
const (
	LeaseAttemptAcquired = "acquired"
	LeaseAttemptLost     = "lost"
	LeaseAttemptError    = "error"
)

// Collector provides the metrics recording interface, so components can
// record metrics without a direct prometheus dependency.
type Collector interface {
	// Reconcile metrics
	RecordReconcile(ctx context.Context, outcome string, duration time.Duration)
	RecordRoutesApplied(ctx context.Context, routeType string, count int)
	RecordHostFailure(ctx context.Context, reason string)
	RecordApplyError(ctx context.Context, errorType string)

	// Leader election metrics
	RecordLeaseAttempt(ctx context.Context, status string)
	RecordLeadership(ctx context.Context, leader bool)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	reconcileDuration *prometheus.HistogramVec
	routesApplied     *prometheus.CounterVec
	hostFailures      *prometheus.CounterVec
	applyErrorsTotal  *prometheus.CounterVec

	leaseAttemptsTotal *prometheus.CounterVec
	leadershipStatus   prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector and registers its
// metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initReconcileMetrics()
	c.initLeaderMetrics()
	c.register(reg)

	return c
}

// RecordReconcile records one reconcile pass and its outcome.
func (c *prometheusCollector) RecordReconcile(_ context.Context, outcome string, duration time.Duration) {
	c.reconcileDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRoutesApplied records applied route objects by type.
func (c *prometheusCollector) RecordRoutesApplied(_ context.Context, routeType string, count int) {
	c.routesApplied.WithLabelValues(routeType).Add(float64(count))
}

// RecordHostFailure records a skipped host by reason.
func (c *prometheusCollector) RecordHostFailure(_ context.Context, reason string) {
	c.hostFailures.WithLabelValues(reason).Inc()
}

// RecordApplyError records a failed route apply by error type.
func (c *prometheusCollector) RecordApplyError(_ context.Context, errorType string) {
	c.applyErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordLeaseAttempt records one acquire-or-renew round by outcome.
func (c *prometheusCollector) RecordLeaseAttempt(_ context.Context, status string) {
	c.leaseAttemptsTotal.WithLabelValues(status).Inc()
}

// RecordLeadership records the current leadership flag.
func (c *prometheusCollector) RecordLeadership(_ context.Context, leader bool) {
	if leader {
		c.leadershipStatus.Set(1)
	} else {
		c.leadershipStatus.Set(0)
	}
}

func (c *prometheusCollector) initReconcileMetrics() {
	c.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "i2g_reconcile_duration_seconds",
			Help:    "Duration of Ingress reconcile passes by outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)
	c.routesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "i2g_routes_applied_total",
			Help: "Total route objects applied by type",
		},
		[]string{"type"},
	)
	c.hostFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "i2g_host_failures_total",
			Help: "Total per-host translation failures by reason",
		},
		[]string{"reason"},
	)
	c.applyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "i2g_apply_errors_total",
			Help: "Total route apply errors by type",
		},
		[]string{"error_type"},
	)
}

func (c *prometheusCollector) initLeaderMetrics() {
	c.leaseAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "i2g_lease_attempts_total",
			Help: "Total lease acquire-or-renew attempts by outcome",
		},
		[]string{"status"},
	)
	c.leadershipStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "i2g_leader",
			Help: "Whether this replica currently holds the leadership lease",
		},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.reconcileDuration,
		c.routesApplied,
		c.hostFailures,
		c.applyErrorsTotal,
		c.leaseAttemptsTotal,
		c.leadershipStatus,
	)
}

// NoopCollector discards all metrics. Used in tests.
type NoopCollector struct{}

// NewNoopCollector creates a collector that records nothing.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (*NoopCollector) RecordReconcile(context.Context, string, time.Duration) {}
func (*NoopCollector) RecordRoutesApplied(context.Context, string, int)       {}
func (*NoopCollector) RecordHostFailure(context.Context, string)              {}
func (*NoopCollector) RecordApplyError(context.Context, string)               {}
func (*NoopCollector) RecordLeaseAttempt(context.Context, string)             {}
func (*NoopCollector) RecordLeadership(context.Context, bool)                 {}
