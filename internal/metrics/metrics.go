// Package metrics exposes the service's prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	txTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dao_agent",
		Name:      "transactions_total",
		Help:      "Transactions by chain, method and stage (submitted, succeeded, reverted, failed).",
	}, []string{"chain_id", "method", "stage"})

	fundingTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dao_agent",
		Name:      "funding_requests_total",
		Help:      "Wallet funding requests by outcome.",
	}, []string{"outcome"})

	storeOpSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dao_agent",
		Name:      "record_store_op_seconds",
		Help:      "Wallet record store operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "op", "result"})
)

func init() {
	Registry.MustRegister(txTotal, fundingTotal, storeOpSeconds)
	Registry.MustRegister(collectors.NewGoCollector())
}

const (
	StageSubmitted = "submitted"
	StageSucceeded = "succeeded"
	StageReverted  = "reverted"
	StageFailed    = "failed"
)

// Funding outcomes.
const (
	FundingSent         = "sent"
	FundingSkipped      = "skipped"
	FundingInsufficient = "insufficient"
	FundingFailed       = "failed"
)

func TxStage(chainID uint64, method, stage string) {
	txTotal.WithLabelValues(strconv.FormatUint(chainID, 10), method, stage).Inc()
}

func Funding(outcome string) {
	fundingTotal.WithLabelValues(outcome).Inc()
}

func ObserveStoreOp(backend, op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOpSeconds.WithLabelValues(backend, op, result).Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
