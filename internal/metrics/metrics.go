package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	TicksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_dropped_total", Help: "Ticks dropped before storage"},
		[]string{"symbol", "reason"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Feed reconnect attempts"},
	)
	TicksPruned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ticks_pruned_total", Help: "Ticks removed by the retention sweep"},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zscore_alerts_total", Help: "Pair signals whose z-score crossed the alert threshold"},
		[]string{"pair"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, TicksDropped, ReconnectsTotal, TicksPruned, AlertsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
