package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tron_payout"

var (
	rpcCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_calls_total",
		Help:      "RPC call attempts by operation and result.",
	}, []string{"op", "result"})

	rpcLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_call_duration_seconds",
		Help:      "RPC call attempt latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	rpcEndpoint = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rpc_endpoint_active",
		Help:      "1 for the endpoint currently in use.",
	}, []string{"name"})

	transfers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_total",
		Help:      "Transfer executions by coin and result.",
	}, []string{"coin", "result"})

	energyProvisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "energy_provisions_total",
		Help:      "Energy provisioning attempts by mode and result.",
	}, []string{"mode", "result"})

	orderTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions.",
	}, []string{"status"})

	walletHealth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wallets",
		Help:      "Pool wallets by health.",
	}, []string{"health"})

	registerOnce sync.Once
)

// MustRegister adds all collectors to the default registry. Safe to call more than once.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(rpcCalls, rpcLatency, rpcEndpoint, transfers, energyProvisions, orderTransitions, walletHealth)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveRPC(op string, elapsed time.Duration, err error) {
	rpcCalls.WithLabelValues(op, result(err == nil)).Inc()
	rpcLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func SetRPCEndpoint(name string) {
	rpcEndpoint.Reset()
	rpcEndpoint.WithLabelValues(name).Set(1)
}

func TransferExecuted(coin string, ok bool) {
	transfers.WithLabelValues(coin, result(ok)).Inc()
}

func EnergyProvisioned(mode string, ok bool) {
	energyProvisions.WithLabelValues(mode, result(ok)).Inc()
}

func OrderTransition(status string) {
	orderTransitions.WithLabelValues(status).Inc()
}

// SetWalletHealth replaces the per-health wallet counts.
func SetWalletHealth(counts map[string]int) {
	walletHealth.Reset()
	for health, n := range counts {
		walletHealth.WithLabelValues(health).Set(float64(n))
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
