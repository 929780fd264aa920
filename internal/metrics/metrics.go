// Package metrics provides Prometheus metrics for the ingest pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ingest pipeline.
type Metrics struct {
	// Ingest metrics
	MessagesConsumedTotal *prometheus.CounterVec
	MessagesIngestedTotal *prometheus.CounterVec
	MessagesDroppedTotal  *prometheus.CounterVec
	DecodeLatency         *prometheus.HistogramVec

	// Registry cache metrics
	RegistryFetchesTotal   *prometheus.CounterVec
	RegistryCoalescedTotal *prometheus.CounterVec
	RegistryFetchLatency   prometheus.Histogram
	CompileCacheSize       prometheus.Gauge
	CompileCacheHits       prometheus.Counter
	CompileCacheMisses     prometheus.Counter

	// Delta sink metrics
	RecordsWrittenTotal *prometheus.CounterVec
	WriteLatency        *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.MessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_consumed_total",
			Help: "Total number of messages consumed from the source topic",
		},
		[]string{"topic"},
	)

	m.MessagesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_ingested_total",
			Help: "Total number of messages successfully decoded and written",
		},
		[]string{"topic"},
	)

	m.MessagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_dropped_total",
			Help: "Total number of messages dropped, by error kind",
		},
		[]string{"topic", "reason"},
	)

	m.DecodeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_decode_latency_seconds",
			Help:    "Latency of decoding a single message to JSON",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	m.RegistryFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_registry_fetches_total",
			Help: "Total number of schema fetches issued to the registry fetcher",
		},
		[]string{"result"},
	)

	m.RegistryCoalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_registry_coalesced_waits_total",
			Help: "Total number of callers that joined an in-flight fetch instead of issuing a new one",
		},
		[]string{"schema_id"},
	)

	m.RegistryFetchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_registry_fetch_latency_seconds",
			Help:    "Latency of fetching a schema and resolving its references",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.CompileCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_compile_cache_size",
			Help: "Current number of compiled schemas held in the memoization cache",
		},
	)

	m.CompileCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_compile_cache_hits_total",
			Help: "Total number of compiled-schema cache hits",
		},
	)

	m.CompileCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_compile_cache_misses_total",
			Help: "Total number of compiled-schema cache misses",
		},
	)

	m.RecordsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_written_total",
			Help: "Total number of Arrow records written to the Delta sink",
		},
		[]string{"table"},
	)

	m.WriteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_write_latency_seconds",
			Help:    "Latency of writing a batch to the Delta sink",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	m.registry.MustRegister(
		m.MessagesConsumedTotal,
		m.MessagesIngestedTotal,
		m.MessagesDroppedTotal,
		m.DecodeLatency,
		m.RegistryFetchesTotal,
		m.RegistryCoalescedTotal,
		m.RegistryFetchLatency,
		m.CompileCacheSize,
		m.CompileCacheHits,
		m.CompileCacheMisses,
		m.RecordsWrittenTotal,
		m.WriteLatency,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordConsumed records a message pulled off the source topic.
func (m *Metrics) RecordConsumed(topic string) {
	m.MessagesConsumedTotal.WithLabelValues(topic).Inc()
}

// RecordIngested records a message successfully decoded and written.
func (m *Metrics) RecordIngested(topic string) {
	m.MessagesIngestedTotal.WithLabelValues(topic).Inc()
}

// RecordDropped records a message dropped due to the given error kind.
func (m *Metrics) RecordDropped(topic, reason string) {
	m.MessagesDroppedTotal.WithLabelValues(topic, reason).Inc()
}

// RecordDecode records the latency of decoding a single message.
func (m *Metrics) RecordDecode(topic string, d time.Duration) {
	m.DecodeLatency.WithLabelValues(topic).Observe(d.Seconds())
}

// RecordRegistryFetch records the outcome and latency of a registry fetch.
func (m *Metrics) RecordRegistryFetch(result string, d time.Duration) {
	m.RegistryFetchesTotal.WithLabelValues(result).Inc()
	m.RegistryFetchLatency.Observe(d.Seconds())
}

// RecordCoalescedWait records a caller that joined an in-flight fetch for schemaID.
func (m *Metrics) RecordCoalescedWait(schemaID string) {
	m.RegistryCoalescedTotal.WithLabelValues(schemaID).Inc()
}

// RecordCompileCacheAccess records a compiled-schema cache hit or miss.
func (m *Metrics) RecordCompileCacheAccess(hit bool) {
	if hit {
		m.CompileCacheHits.Inc()
	} else {
		m.CompileCacheMisses.Inc()
	}
}

// UpdateCompileCacheSize updates the gauge tracking the memoization cache size.
func (m *Metrics) UpdateCompileCacheSize(size float64) {
	m.CompileCacheSize.Set(size)
}

// RecordWrite records a batch written to the Delta sink.
func (m *Metrics) RecordWrite(table string, rows int, d time.Duration) {
	m.RecordsWrittenTotal.WithLabelValues(table).Add(float64(rows))
	m.WriteLatency.WithLabelValues(table).Observe(d.Seconds())
}
