package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bet_indexer"

// Metrics holds the indexer's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	checkpoint     prometheus.Gauge
	chainHeight    prometheus.Gauge
	betsStored     prometheus.Counter
	betsDuplicate  prometheus.Counter
	decodeFailures *prometheus.CounterVec
	fetchFailures  prometheus.Counter
	storageRetries prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Ingestion cycles by outcome (ok, idle, transient, fatal)",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one ingestion cycle",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_block",
			Help:      "Last fully processed block",
		}),
		chainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_height_block",
			Help:      "Latest block reported by the node",
		}),
		betsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_stored_total",
			Help:      "Bets inserted into the store",
		}),
		betsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_duplicate_total",
			Help:      "Bets skipped because the row already existed",
		}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Events whose payload could not be decoded",
		}, []string{"profile"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed event fetches per range and contract",
		}),
		storageRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Cycle retries caused by transient storage errors",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.cycles,
			m.cycleDuration,
			m.checkpoint,
			m.chainHeight,
			m.betsStored,
			m.betsDuplicate,
			m.decodeFailures,
			m.fetchFailures,
			m.storageRetries,
		)
	}
	return m
}

// CycleDone records the outcome and duration of a cycle.
func (m *Metrics) CycleDone(result string, took time.Duration) {
	if m != nil {
		m.cycles.WithLabelValues(result).Inc()
		m.cycleDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) SetCheckpoint(block uint64) {
	if m != nil {
		m.checkpoint.Set(float64(block))
	}
}

func (m *Metrics) SetChainHeight(block uint64) {
	if m != nil {
		m.chainHeight.Set(float64(block))
	}
}

// BetStored counts an upsert; inserted=false means the row already existed.
func (m *Metrics) BetStored(inserted bool) {
	if m == nil {
		return
	}
	if inserted {
		m.betsStored.Inc()
	} else {
		m.betsDuplicate.Inc()
	}
}

func (m *Metrics) DecodeFailed(profile string) {
	if m != nil {
		m.decodeFailures.WithLabelValues(profile).Inc()
	}
}

func (m *Metrics) FetchFailed() {
	if m != nil {
		m.fetchFailures.Inc()
	}
}

func (m *Metrics) StorageRetried() {
	if m != nil {
		m.storageRetries.Inc()
	}
}
