package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Observed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_transfers_observed",
		Help: "Total number of new transfers created from observed events",
	}, []string{"source_chain"})
	Deduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_transfers_deduplicated",
		Help: "Total number of duplicate event observations absorbed by the idempotence gate",
	}, []string{"source_chain"})
	Confirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_transfers_confirmed",
		Help: "Total number of transfers that reached the confirmed state",
	}, []string{"source_chain"})
	Failed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_transfers_failed",
		Help: "Total number of transfers that ended in the failed state",
	}, []string{"source_chain"})
	SubmitRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_submit_retries",
		Help: "Total number of submissions rescheduled after a transient destination error",
	}, []string{"source_chain"})
	Recovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_transfers_recovered",
		Help: "Total number of pending transfers re-driven after restart",
	})
)
