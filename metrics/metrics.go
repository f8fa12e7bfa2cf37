// Package metrics exposes the Prometheus instrumentation shared by the
// harvester core and the API server.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsExtracted counts successfully extracted item records.
	ItemsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_items_extracted_total",
		Help: "Number of item records successfully extracted",
	})

	// ExtractFailures counts extraction attempts that returned an error.
	ExtractFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_extract_failures_total",
		Help: "Number of failed extraction attempts",
	})

	// ImagesRehosted counts content images rewritten to the asset store.
	ImagesRehosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_images_rehosted_total",
		Help: "Number of content images rehosted to the asset store",
	})

	// ImageRehostFailures counts images left on their original URL after a
	// fetch or upload failure.
	ImageRehostFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_image_rehost_failures_total",
		Help: "Number of images that could not be rehosted",
	})

	// PagesCrawled counts listing pages fetched during link discovery.
	PagesCrawled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_pages_crawled_total",
		Help: "Number of listing pages fetched during link discovery",
	})

	// URLsDiscovered counts candidate item URLs collected by the crawler.
	URLsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_urls_discovered_total",
		Help: "Number of candidate item URLs discovered",
	})

	// LinksInserted counts internal links woven into item bodies.
	LinksInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_links_inserted_total",
		Help: "Number of internal links inserted into item bodies",
	})

	// HTTPDuration observes API request latency by path and method.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_http_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// DBOpenConnections gauges the connection pool state.
	DBOpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_db_open_connections",
		Help: "Open connections in the database pool",
	})

	DBInUseConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_db_in_use_connections",
		Help: "Database connections currently in use",
	})

	DBIdleConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_db_idle_connections",
		Help: "Idle connections in the database pool",
	})
)

// UpdateDBStats publishes a snapshot of the connection pool gauges.
func UpdateDBStats(stats sql.DBStats) {
	DBOpenConnections.Set(float64(stats.OpenConnections))
	DBInUseConnections.Set(float64(stats.InUse))
	DBIdleConnections.Set(float64(stats.Idle))
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
