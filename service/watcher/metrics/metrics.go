package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Observed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_events_observed",
		Help: "Total number of chain events observed and handed to the relay engine",
	}, []string{"chain"})
	Malformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_events_malformed",
		Help: "Total number of chain events skipped during normalization",
	}, []string{"chain"})
	Restarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_watcher_restarts",
		Help: "Total number of watcher subscription restarts",
	}, []string{"chain"})
)
