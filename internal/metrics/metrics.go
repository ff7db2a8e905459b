// Package metrics exposes the broker's operational counters on a Prometheus
// endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simbroker_quotes_processed_total",
		Help: "Quote ticks routed to matching workers.",
	})
	OrdersInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simbroker_orders_inserted_total",
		Help: "Orders accepted into the matching pipeline.",
	})
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simbroker_orders_rejected_total",
		Help: "Orders rejected at admission (funds or volume checks).",
	})
	TradesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simbroker_trades_matched_total",
		Help: "Fills produced by the matching workers.",
	})
	Settlements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simbroker_settlements_total",
		Help: "Trading day settlements performed.",
	})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simbroker_events_dropped_total",
		Help: "Events dropped because the subscriber queue was full.",
	})
)

// Serve blocks serving /metrics on addr.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
