package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// SettlementMetrics wraps collectors tracking payment session activity.
type SettlementMetrics struct {
	sessions      prometheus.Counter
	deposits      *prometheus.CounterVec
	depositVolume *prometheus.CounterVec
	settlements   prometheus.Counter
	grossVolume   *prometheus.CounterVec
	feeVolume     *prometheus.CounterVec
	cancellations prometheus.Counter
	feeSweeps     *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	settlementMetricsOnce sync.Once
	settlementRegistry    *SettlementMetrics
)

// RPCMetrics returns the lazily-initialised registry used to record JSON-RPC
// handler activity.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "splitpay",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of an RPC request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *rpcMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Settlement returns the singleton registry for payment session collectors.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			sessions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "settlement",
				Name:      "sessions_created_total",
				Help:      "Count of payment sessions opened.",
			}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "settlement",
				Name:      "deposits_total",
				Help:      "Count of escrow deposits segmented by token.",
			}, []string{"token"}),
			depositVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "settlement",
				Name:      "deposit_volume_base_units",
				Help:      "Deposited amounts in base units segmented by token.",
			}, []string{"token"}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "settlement",
				Name:      "settlements_total",
				Help:      "Count of sessions finalized to the merchant.",
			}),
			grossVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "settlement",
				Name:      "gross_volume_base_units",
				Help:      "Gross settled amounts in base units segmented by token.",
			}, []string{"token"}),
			feeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "settlement",
				Name:      "fee_volume_base_units",
				Help:      "Protocol fee amounts in base units segmented by token.",
			}, []string{"token"}),
			cancellations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "settlement",
				Name:      "cancellations_total",
				Help:      "Count of sessions cancelled and refunded.",
			}),
			feeSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitpay",
				Subsystem: "settlement",
				Name:      "fee_sweeps_total",
				Help:      "Count of fee sink withdrawals segmented by token.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			settlementRegistry.sessions,
			settlementRegistry.deposits,
			settlementRegistry.depositVolume,
			settlementRegistry.settlements,
			settlementRegistry.grossVolume,
			settlementRegistry.feeVolume,
			settlementRegistry.cancellations,
			settlementRegistry.feeSweeps,
		)
	})
	return settlementRegistry
}

// RecordSessionCreated increments the session counter.
func (m *SettlementMetrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// RecordDeposit tracks an escrow deposit for a token.
func (m *SettlementMetrics) RecordDeposit(token string, amount uint64) {
	if m == nil {
		return
	}
	label := normalizeLabel(token)
	m.deposits.WithLabelValues(label).Inc()
	m.depositVolume.WithLabelValues(label).Add(float64(amount))
}

// RecordSettlement tracks a completed settlement in the preferred token.
func (m *SettlementMetrics) RecordSettlement(token string, gross, fee uint64) {
	if m == nil {
		return
	}
	label := normalizeLabel(token)
	m.settlements.Inc()
	m.grossVolume.WithLabelValues(label).Add(float64(gross))
	m.feeVolume.WithLabelValues(label).Add(float64(fee))
}

// RecordCancellation increments the cancellation counter.
func (m *SettlementMetrics) RecordCancellation() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

// RecordFeeSweep tracks a fee sink withdrawal.
func (m *SettlementMetrics) RecordFeeSweep(token string) {
	if m == nil {
		return
	}
	m.feeSweeps.WithLabelValues(normalizeLabel(token)).Inc()
}

func normalizeLabel(token string) string {
	normalized := strings.TrimSpace(strings.ToUpper(token))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}
