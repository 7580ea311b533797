package metrics

import (
	"net/http"

	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blocknode"

var log = logger.CreateForPackage()

// Metrics is the set of node counters, registered on its own registry so that
// several nodes (tests) can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	BlocksAcked prometheus.Counter

	VerificationBlocksReceived prometheus.Counter
	VerificationBlocksVerified prometheus.Counter
	VerificationBlocksFailed   prometheus.Counter
	VerificationBlocksError    prometheus.Counter
	VerificationHashMismatch   prometheus.Counter

	BlocksPersisted     prometheus.Counter
	PersistenceFailures prometheus.Counter
	LiveItemsPublished  prometheus.Counter
	LiveSubscribers     prometheus.Gauge
	ProducerSubscribers prometheus.Gauge
}

func counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// New creates the node metrics. withRuntime adds the Go runtime and process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry:                   prometheus.NewRegistry(),
		BlocksAcked:                counter("ack", "blocks_acked_total", "Blocks acknowledged to producers."),
		VerificationBlocksReceived: counter("verification", "blocks_received_total", "Blocks whose header reached verification."),
		VerificationBlocksVerified: counter("verification", "blocks_verified_total", "Blocks with a valid hash and signature."),
		VerificationBlocksFailed:   counter("verification", "blocks_failed_total", "Blocks with an invalid hash or signature."),
		VerificationBlocksError:    counter("verification", "blocks_error_total", "Blocks whose verification could not complete."),
		VerificationHashMismatch:   counter("verification", "previous_hash_mismatch_total", "Headers not chaining to the previous block hash."),
		BlocksPersisted:            counter("persistence", "blocks_written_total", "Blocks written to storage."),
		PersistenceFailures:        counter("persistence", "failures_total", "Blocks that could not be written."),
		LiveItemsPublished:         counter("live", "items_published_total", "Block items published to live subscribers."),
		LiveSubscribers:            gauge("live", "subscribers", "Active live item subscribers."),
		ProducerSubscribers:        gauge("producer", "subscribers", "Active producer response subscribers."),
	}
	m.registry.MustRegister(
		m.BlocksAcked,
		m.VerificationBlocksReceived,
		m.VerificationBlocksVerified,
		m.VerificationBlocksFailed,
		m.VerificationBlocksError,
		m.VerificationHashMismatch,
		m.BlocksPersisted,
		m.PersistenceFailures,
		m.LiveItemsPublished,
		m.LiveSubscribers,
		m.ProducerSubscribers,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	log.Debug("metrics registry initialised, runtime collectors: %v", withRuntime)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
