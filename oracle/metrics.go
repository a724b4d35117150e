package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the oracle's instrumentation handle. It owns its registry so
// callers can expose it however they like; nothing here is process-global.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal          prometheus.Counter
	ErrorsTotal          *prometheus.CounterVec
	IndexedChainFailures *prometheus.CounterVec
	CurrentEpoch         prometheus.Gauge
	PayloadSizeBytes     prometheus.Gauge
	SubmittedTxsTotal    prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "block_oracle_cycles_total",
			Help: "Polling iterations started.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "block_oracle_errors_total",
			Help: "Errors that interrupted a polling iteration, by kind.",
		}, []string{"kind"}),
		IndexedChainFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "block_oracle_indexed_chain_failures_total",
			Help: "Latest-block fetches that failed, by chain.",
		}, []string{"chain"}),
		CurrentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "block_oracle_current_epoch",
			Help: "Latest epoch ordinal observed on the protocol chain.",
		}),
		PayloadSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "block_oracle_payload_size_bytes",
			Help: "Size of the last encoded payload.",
		}),
		SubmittedTxsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "block_oracle_submitted_txs_total",
			Help: "Transactions accepted into the mempool.",
		}),
	}
	m.registry.MustRegister(
		m.CyclesTotal,
		m.ErrorsTotal,
		m.IndexedChainFailures,
		m.CurrentEpoch,
		m.PayloadSizeBytes,
		m.SubmittedTxsTotal,
	)
	return m
}

// Registry exposes the underlying prometheus registry for serving.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
