// Package metrics counts batch outcomes and RPC traffic for one run and can
// push them to a Prometheus Pushgateway when the process exits.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

const job = "safebatch"

type Batch struct {
	network string
	reg     *prometheus.Registry

	// ItemsTotal tracks finished items per final state and error kind
	ItemsTotal *prometheus.CounterVec
	// ItemDuration tracks submit-to-receipt time per item
	ItemDuration *prometheus.HistogramVec
	GasUsed      prometheus.Counter

	// RPCCallsTotal tracks RPC calls per method
	RPCCallsTotal *prometheus.CounterVec
	// RPCErrorsTotal tracks RPC errors per method and class
	RPCErrorsTotal *prometheus.CounterVec
	RPCLatency     *prometheus.HistogramVec

	NextNonce prometheus.Gauge
}

// New registers the batch metrics on a private registry.
func New(network string) *Batch {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Batch{
		network: network,
		reg:     reg,
		ItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safebatch_items_total",
			Help: "Total number of batch items by final state",
		}, []string{"state", "kind"}),
		ItemDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safebatch_item_duration_seconds",
			Help:    "Time from submission to final state",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"state"}),
		GasUsed: f.NewCounter(prometheus.CounterOpts{
			Name: "safebatch_gas_used_total",
			Help: "Gas used by confirmed and reverted executions",
		}),
		RPCCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safebatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		}, []string{"method"}),
		RPCErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safebatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		}, []string{"method", "error_type"}),
		RPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safebatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		NextNonce: f.NewGauge(prometheus.GaugeOpts{
			Name: "safebatch_next_nonce",
			Help: "Nonce following the last item handed to the Safe",
		}),
	}
}

func (b *Batch) Registry() *prometheus.Registry { return b.reg }

// ObserveResult records one finished item.
func (b *Batch) ObserveResult(r safecore.SubmissionResult) {
	kind := string(r.Kind)
	if kind == "" {
		kind = "none"
	}
	b.ItemsTotal.WithLabelValues(r.State.String(), kind).Inc()
	if r.State == safecore.StateConfirmed || r.State == safecore.StateRejected {
		b.ItemDuration.WithLabelValues(r.State.String()).Observe(r.Elapsed.Seconds())
		b.GasUsed.Add(float64(r.GasUsed))
	}
	if r.Nonce != nil && r.State != safecore.StateAborted {
		b.NextNonce.Set(float64(r.Nonce.Int64() + 1))
	}
}

// ObserveCall records one RPC round trip; errType is empty on success.
func (b *Batch) ObserveCall(method string, d time.Duration, errType string) {
	b.RPCCallsTotal.WithLabelValues(method).Inc()
	b.RPCLatency.WithLabelValues(method).Observe(d.Seconds())
	if errType != "" {
		b.RPCErrorsTotal.WithLabelValues(method, errType).Inc()
	}
}

// Push sends everything gathered so far to a Pushgateway under job "safebatch".
func (b *Batch) Push(ctx context.Context, url string) error {
	return push.New(url, job).
		Gatherer(b.reg).
		Grouping("network", b.network).
		PushContext(ctx)
}
