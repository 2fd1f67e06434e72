package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	redemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Ticket redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Ledger-watcher webhook events by result",
		},
		[]string{"result"},
	)

	ledgerRPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_rpc_duration_seconds",
			Help:    "Latency of ledger RPC calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"method", "status"},
	)
)

// Settlement outcomes.
const (
	OutcomePaid           = "paid"
	OutcomeFailed         = "failed"
	OutcomeAlreadySettled = "already_settled"
	OutcomeTransient      = "transient_error"
)

func IncSettlement(kind, outcome string) {
	settlementsTotal.WithLabelValues(kind, outcome).Inc()
}

func IncRedemption(outcome string) {
	redemptionsTotal.WithLabelValues(outcome).Inc()
}

func IncWebhookEvent(result string) {
	webhookEventsTotal.WithLabelValues(result).Inc()
}

func ObserveLedgerRPC(method string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ledgerRPCDuration.WithLabelValues(method, status).Observe(d.Seconds())
}
