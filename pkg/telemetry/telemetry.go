// Copyright 2025 Certen Protocol
//
// Package telemetry exposes the prometheus counters and histograms the
// solver and indexer emit: global pauses, hub/tron/rental RPC latency,
// indexer chunk sizing, and per-state job counts.
package telemetry

import (
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = log.New(os.Stdout, "[telemetry] ", log.LstdFlags)

// Telemetry bundles every metric this repo's components emit.
type Telemetry struct {
	registry *prometheus.Registry

	HubRPCDuration      *prometheus.HistogramVec
	TronRPCDuration     *prometheus.HistogramVec
	RentalQuoteDuration *prometheus.HistogramVec
	RentalOrderDuration *prometheus.HistogramVec

	TronBroadcastTotal   *prometheus.CounterVec
	RentalProviderFrozen *prometheus.CounterVec
	GlobalPausedTotal    prometheus.Counter
	JobStateTotal        *prometheus.CounterVec
	IntentSkipTotal      *prometheus.CounterVec

	IndexerChunkBlocks *prometheus.GaugeVec
	IndexerHeadBlock   *prometheus.GaugeVec
	IndexerLagBlocks   *prometheus.GaugeVec
}

// New registers every metric against a fresh registry. Call once per process.
func New(namespace string) *Telemetry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	t := &Telemetry{
		HubRPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "hub_rpc_duration_seconds",
			Help:    "Duration of hub RPC operations (claim/prove/approve/etc).",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "ok"}),
		TronRPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tron_rpc_duration_seconds",
			Help:    "Duration of Tron gRPC operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "ok"}),
		RentalQuoteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rental_quote_duration_seconds",
			Help:    "Duration of rental provider quote calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "ok"}),
		RentalOrderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rental_order_duration_seconds",
			Help:    "Duration of rental provider order calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "ok"}),
		TronBroadcastTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tron_broadcast_total",
			Help: "Tron BroadcastTransaction attempts by step kind and outcome.",
		}, []string{"step", "ok"}),
		RentalProviderFrozen: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rental_provider_frozen_total",
			Help: "Times a rental provider crossed its failure threshold and was frozen.",
		}, []string{"provider"}),
		GlobalPausedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "global_paused_total",
			Help: "Times the solver entered a global pause due to fatal-failure rate.",
		}),
		JobStateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "solver_job_state_total",
			Help: "Job state transitions by resulting state.",
		}, []string{"state"}),
		IntentSkipTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "intent_skip_total",
			Help: "Candidate intents rejected by admission, by reason.",
		}, []string{"reason"}),
		IndexerChunkBlocks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "indexer_chunk_blocks",
			Help: "Current eth_getLogs chunk size per stream.",
		}, []string{"stream"}),
		IndexerHeadBlock: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "indexer_head_block",
			Help: "Last block number observed on the node per stream.",
		}, []string{"stream"}),
		IndexerLagBlocks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "indexer_lag_blocks",
			Help: "head_block - applied_through_block per stream.",
		}, []string{"stream"}),
	}

	t.registry = reg
	return t
}

// Handler returns an http.Handler serving this process's metrics.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics HTTP server on addr in a new goroutine.
func (t *Telemetry) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", t.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("❌ metrics server on %s stopped: %v", addr, err)
		}
	}()
	logger.Printf("🚀 metrics listening on %s", addr)
}

// HubRPCMs records a completed hub RPC op's duration in milliseconds.
func (t *Telemetry) HubRPCMs(op string, ok bool, ms int64) {
	t.HubRPCDuration.WithLabelValues(op, boolLabel(ok)).Observe(float64(ms) / 1000.0)
}

func (t *Telemetry) TronRPCMs(op string, ok bool, ms int64) {
	t.TronRPCDuration.WithLabelValues(op, boolLabel(ok)).Observe(float64(ms) / 1000.0)
}

func (t *Telemetry) RentalQuoteMs(provider string, ok bool, ms int64) {
	t.RentalQuoteDuration.WithLabelValues(provider, boolLabel(ok)).Observe(float64(ms) / 1000.0)
}

func (t *Telemetry) RentalOrderMs(provider string, ok bool, ms int64) {
	t.RentalOrderDuration.WithLabelValues(provider, boolLabel(ok)).Observe(float64(ms) / 1000.0)
}

func (t *Telemetry) RentalProviderFrozenEvent(provider string) {
	t.RentalProviderFrozen.WithLabelValues(provider).Inc()
}

func boolLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
