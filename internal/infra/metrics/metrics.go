package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ticker_bot"

var (
	// Registry holds the bot's collectors.
	Registry = prometheus.NewRegistry()

	priceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "fetches_total",
			Help:      "Price source calls by source and status.",
		},
		[]string{"source", "status"},
	)

	staleQuotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "stale_quotes_total",
			Help:      "Quotes served from the last known value after a failed fetch.",
		},
	)

	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "cache_hits_total",
			Help:      "Quotes answered from the TTL cache.",
		},
	)

	displayUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "updates_total",
			Help:      "Display pushes by kind (nickname, role_color, status) and status.",
		},
		[]string{"kind", "status"},
	)

	refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh cycles that had due guilds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	trackedGuilds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "tracked_guilds",
			Help:      "Guilds with tracking enabled.",
		},
	)

	alertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Move alerts by channel and status.",
		},
		[]string{"channel", "status"},
	)
)

func init() {
	Registry.MustRegister(
		priceFetches,
		staleQuotes,
		cacheHits,
		displayUpdates,
		refreshDuration,
		trackedGuilds,
		alertsSent,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordFetch(source string, err error) {
	priceFetches.WithLabelValues(source, statusLabel(err)).Inc()
}

func RecordStaleQuotes(n int) {
	if n > 0 {
		staleQuotes.Add(float64(n))
	}
}

func RecordCacheHits(n int) {
	if n > 0 {
		cacheHits.Add(float64(n))
	}
}

func RecordDisplayUpdate(kind string, err error) {
	displayUpdates.WithLabelValues(kind, statusLabel(err)).Inc()
}

func ObserveRefresh(d time.Duration) {
	refreshDuration.Observe(d.Seconds())
}

func SetTrackedGuilds(n int) {
	trackedGuilds.Set(float64(n))
}

func RecordAlert(channel string, err error) {
	alertsSent.WithLabelValues(channel, statusLabel(err)).Inc()
}
