// Package metrics exposes Prometheus instrumentation for the ingestion pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message results recorded by RecordMessage.
const (
	ResultInserted       = "inserted"
	ResultAlreadyPresent = "already_present"
	ResultNoAddress      = "no_address"
	ResultEmpty          = "empty"
	ResultError          = "error"
)

var (
	once sync.Once

	MessagesTotal     *prometheus.CounterVec
	ChannelErrors     *prometheus.CounterVec
	BatchDuration     prometheus.Observer
	StoreEntries      prometheus.Gauge
	LastBatchFinished prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radar",
			Name:      "messages_total",
			Help:      "Channel messages processed, by channel and result",
		}, []string{"channel", "result"})
		ChannelErrors = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radar",
			Name:      "channel_errors_total",
			Help:      "Channels that failed during a batch pass",
		}, []string{"channel"})
		BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radar",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one batch pass over all channels",
			Buckets:   prometheus.DefBuckets,
		})
		StoreEntries = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "radar",
			Name:      "store_entries",
			Help:      "Tokens currently held in the JSON document",
		})
		LastBatchFinished = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "radar",
			Name:      "last_batch_finished_timestamp_seconds",
			Help:      "Unix time the last batch pass finished",
		})
	})
}

// RecordMessage counts one processed message.
func RecordMessage(channel, result string) {
	Init()
	MessagesTotal.WithLabelValues(channel, result).Inc()
}

// RecordChannelError counts a channel skipped because of an error.
func RecordChannelError(channel string) {
	Init()
	ChannelErrors.WithLabelValues(channel).Inc()
}

// ObserveBatch records a finished batch pass.
func ObserveBatch(d time.Duration, finished time.Time) {
	Init()
	BatchDuration.Observe(d.Seconds())
	LastBatchFinished.Set(float64(finished.Unix()))
}

// SetStoreEntries records the current document length.
func SetStoreEntries(n int) {
	Init()
	StoreEntries.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}
