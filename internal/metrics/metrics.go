package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpdatesApplied    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "book_updates_applied_total", Help: "Feed updates applied to the book by kind"}, []string{"kind"})
	UpdatesDropped    = prometheus.NewCounter(prometheus.CounterOpts{Name: "book_updates_dropped_total", Help: "Updates for a product other than the active market"})
	MalformedMessages = prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_malformed_messages_total", Help: "Feed frames rejected by the decoder"})
	LiveLevels        = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "book_live_levels", Help: "Raw price levels held per side"}, []string{"side"})
	QueueDepth        = prometheus.NewGauge(prometheus.GaugeOpts{Name: "book_update_queue_depth", Help: "Updates waiting to be applied"})
	ViewBuilds        = prometheus.NewCounter(prometheus.CounterOpts{Name: "book_view_builds_total", Help: "Grouped views built"})
	ViewBuildSeconds  = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "book_view_build_seconds", Help: "Time to build a grouped view", Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10)})
	FeedConnected     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "feed_connected", Help: "1 while the feed socket is open"})
	FeedKills         = prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_kills_total", Help: "Feed connections killed on request"})
	FeedReconnects    = prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Requested feed reconnects"})
	WSClients         = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ws_clients", Help: "Connected browser websocket clients"})
)

func Init(logger *slog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		UpdatesApplied, UpdatesDropped, MalformedMessages, LiveLevels, QueueDepth,
		ViewBuilds, ViewBuildSeconds,
		FeedConnected, FeedKills, FeedReconnects, WSClients,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Info("prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
