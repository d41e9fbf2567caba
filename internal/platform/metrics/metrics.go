// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

var (
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Name:      "workflow_operations_total",
		Help:      "Report workflow operations by operation and outcome",
	}, []string{"operation", "outcome"})

	transitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reports",
		Name:      "workflow_operation_duration_seconds",
		Help:      "Report workflow operation latency, including the store transaction",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Name:      "notifications_total",
		Help:      "Notifications handed to the dispatcher by kind and outcome",
	}, []string{"kind", "outcome"})

	chainCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Name:      "approval_chain_cache_total",
		Help:      "Approval chain cache lookups by result",
	}, []string{"result"})
)

// Outcome returns the label for an operation result.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(errors.CodeOf(err)))
}

// ObserveOperation records one engine operation.
func ObserveOperation(operation string, start time.Time, err error) {
	transitions.WithLabelValues(operation, Outcome(err)).Inc()
	transitionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveNotification records one dispatch attempt.
func ObserveNotification(kind string, err error) {
	outcome := "published"
	if err != nil {
		outcome = "failed"
	}
	notifications.WithLabelValues(kind, outcome).Inc()
}

// ObserveChainCache records a cache hit, miss or error.
func ObserveChainCache(result string) {
	chainCache.WithLabelValues(result).Inc()
}
