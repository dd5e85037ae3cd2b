// Package metrics exposes ingestion counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the ingestion pipeline reports to.
type Recorder interface {
	RecordFetchSuccess()
	RecordFetchFailure(reason string)
	RecordFetchLatency(d time.Duration)
	RecordAlert(alertType string)
	RecordCommentsStored(n int)
	RecordRun(succeeded, failed int)
}

// Collector records ingestion metrics in a Prometheus registry.
type Collector struct {
	fetchSuccess   prometheus.Counter
	fetchFail      *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	alerts         *prometheus.CounterVec
	commentsStored prometheus.Counter
	runs           prometheus.Counter
	lastRunFailed  prometheus.Gauge
	lastRunOK      prometheus.Gauge
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidpulse_fetch_success_total",
			Help: "Videos fetched successfully.",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidpulse_fetch_fail_total",
			Help: "Video fetches that failed, by reason.",
		}, []string{"reason"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidpulse_fetch_latency_seconds",
			Help:    "Latency of video fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidpulse_alerts_created_total",
			Help: "Alerts created, by type.",
		}, []string{"type"}),
		commentsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidpulse_comments_stored_total",
			Help: "Comments written to the store.",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidpulse_ingest_runs_total",
			Help: "Completed ingestion runs.",
		}),
		lastRunOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidpulse_last_run_succeeded",
			Help: "Videos that succeeded in the last run.",
		}),
		lastRunFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidpulse_last_run_failed",
			Help: "Videos that failed in the last run.",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.alerts,
		c.commentsStored,
		c.runs,
		c.lastRunOK,
		c.lastRunFailed,
	)
	return c
}

func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

func (c *Collector) RecordFetchFailure(reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordFetchLatency(d time.Duration) {
	c.fetchLatency.Observe(d.Seconds())
}

func (c *Collector) RecordAlert(alertType string) {
	c.alerts.WithLabelValues(alertType).Inc()
}

func (c *Collector) RecordCommentsStored(n int) {
	c.commentsStored.Add(float64(n))
}

// RecordRun counts a finished run and publishes its outcome.
func (c *Collector) RecordRun(succeeded, failed int) {
	c.runs.Inc()
	c.lastRunOK.Set(float64(succeeded))
	c.lastRunFailed.Set(float64(failed))
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordFetchSuccess()              {}
func (Noop) RecordFetchFailure(string)        {}
func (Noop) RecordFetchLatency(time.Duration) {}
func (Noop) RecordAlert(string)               {}
func (Noop) RecordCommentsStored(int)         {}
func (Noop) RecordRun(int, int)               {}
