// Package observability exposes the Prometheus collectors used by the
// settlement and quota engines. Registries are created lazily and registered
// exactly once.
package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
	quotaOnce          sync.Once
	quotaRegistry      *QuotaMetrics
)

// SettlementMetrics wraps collectors tracking claim settlement health.
type SettlementMetrics struct {
	claims       *prometheus.CounterVec
	claimLatency *prometheus.HistogramVec
	feesTotal    prometheus.Counter
	tipRecords   prometheus.Counter
}

// Settlement exposes the metrics registry for the settlement engine.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "settlement",
				Name:      "claims_total",
				Help:      "Count of claim settlements segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			claimLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fundcore",
				Subsystem: "settlement",
				Name:      "claim_latency_seconds",
				Help:      "Latency distribution for claim settlements.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			feesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "settlement",
				Name:      "fees_collected_total",
				Help:      "Sum of handling fees collected on aggregate claims, in currency units.",
			}),
			tipRecords: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "settlement",
				Name:      "tip_records_consumed_total",
				Help:      "Count of tip records fully consumed by campaign claims.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.claims,
			settlementRegistry.claimLatency,
			settlementRegistry.feesTotal,
			settlementRegistry.tipRecords,
		)
	})
	return settlementRegistry
}

// ObserveClaim records the outcome and latency of one claim settlement.
func (m *SettlementMetrics) ObserveClaim(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	kind = labelOrUnknown(kind)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.claims.WithLabelValues(kind, outcome).Inc()
	m.claimLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddFees accumulates collected handling fees.
func (m *SettlementMetrics) AddFees(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.feesTotal.Add(amount)
}

// AddConsumedRecords accumulates fully consumed tip records.
func (m *SettlementMetrics) AddConsumedRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tipRecords.Add(float64(n))
}

// QuotaMetrics wraps collectors tracking the campaign quota gate.
type QuotaMetrics struct {
	decisions   *prometheus.CounterVec
	rowsCreated prometheus.Counter
}

// Quota exposes the metrics registry for the quota engine.
func Quota() *QuotaMetrics {
	quotaOnce.Do(func() {
		quotaRegistry = &QuotaMetrics{
			decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "quota",
				Name:      "decisions_total",
				Help:      "Count of campaign-creation gate decisions segmented by outcome.",
			}, []string{"outcome"}),
			rowsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "quota",
				Name:      "monthly_rows_created_total",
				Help:      "Count of monthly quota rows lazily created.",
			}),
		}
		prometheus.MustRegister(quotaRegistry.decisions, quotaRegistry.rowsCreated)
	})
	return quotaRegistry
}

// ObserveDecision records one campaign-creation gate outcome.
func (m *QuotaMetrics) ObserveDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

// AddRowCreated counts a lazily created monthly quota row.
func (m *QuotaMetrics) AddRowCreated() {
	if m == nil {
		return
	}
	m.rowsCreated.Inc()
}

func labelOrUnknown(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return "unknown"
}
