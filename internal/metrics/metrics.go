package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Tracks scrape attempts by company and result.
	ScrapeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_scrape_attempts_total",
			Help: "Total number of scrape attempts (by company and result).",
		},
		[]string{"company", "result"}, // result = "success" | "failure" | "error"
	)

	// Tracks long-term token renewals by result.
	TokenRenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_token_renewals_total",
			Help: "Total number of long-term token renewals (by flow and result).",
		},
		[]string{"flow", "result"}, // flow = "resolve" | "mint"
	)

	// Measures duration of engine operations.
	EngineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bank_engine_request_duration_seconds",
			Help:    "Duration of scraping engine operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms → ~2m
		},
		[]string{"operation"},
	)

	// Counts transactions returned by successful scrapes.
	TransactionsScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_transactions_scraped_total",
			Help: "Number of transactions returned by successful scrapes.",
		},
		[]string{"company"},
	)

	// Tracks NATS messages processed by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks cache hits and misses for account credentials.
	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_scraper_errors_total",
			Help: "Count of errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful scrape time (seconds since epoch).
	LastScrapeTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bank_last_scrape_timestamp",
			Help: "Timestamp (unix seconds) of the last successful scrape.",
		},
		[]string{"company"},
	)
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(v *prometheus.HistogramVec, start time.Time, labels ...string) {
	v.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncScrapeAttempt(company, result string) {
	ScrapeAttemptsTotal.WithLabelValues(company, result).Inc()
}

func IncTokenRenewal(flow, result string) {
	TokenRenewalsTotal.WithLabelValues(flow, result).Inc()
}

func AddTransactions(company string, n int) {
	TransactionsScraped.WithLabelValues(company).Add(float64(n))
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastScrape(company string, t time.Time) {
	LastScrapeTimestamp.WithLabelValues(company).Set(float64(t.Unix()))
}

// Push sends the default registry to a Prometheus Pushgateway. A CLI run is too
// short-lived to be scraped, so metrics are pushed once when it finishes.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx)
}
