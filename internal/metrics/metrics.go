// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_fetches_total",
		Help: "Fetch outcomes per vendor.",
	}, []string{"vendor", "status"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scraper_fetch_duration_seconds",
		Help:    "Wall-clock duration of one representative fetch, retries included.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"vendor"})

	PassListings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_pass_listings_total",
		Help: "Listings covered by completed passes per vendor.",
	}, []string{"vendor"})

	RescrapeFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_rescrape_flagged_total",
		Help: "Listings flagged for a rescrape per vendor.",
	}, []string{"vendor"})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_persist_chunk_failures_total",
		Help: "Persistence chunks dropped after reconnect attempts.",
	})

	PassesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scraper_passes_running",
		Help: "Passes currently executing.",
	})
)
