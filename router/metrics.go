package router

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const resultOK = "ok"

// Metrics holds the router's Prometheus collectors.
type Metrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	pools      prometheus.Gauge
}

// NewMetrics creates the router collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "operations_total",
				Help:      "Router operations by outcome; failures are labelled with the error codespace.",
			},
			[]string{"op", "result"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "operation_duration_seconds",
				Help:      "Time spent executing router operations, including waiting for the pool lock.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"op"},
		),
		pools: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "amm",
				Subsystem: "registry",
				Name:      "pools",
				Help:      "Number of pools created.",
			},
		),
	}
}

// observe starts timing op and returns the function that records its outcome.
//
//	defer m.observe("swap")(&err)
func (m *Metrics) observe(op string) func(*error) {
	timer := prometheus.NewTimer(m.latency.WithLabelValues(op))
	return func(errp *error) {
		timer.ObserveDuration()
		m.operations.WithLabelValues(op, result(*errp)).Inc()
	}
}

func result(err error) string {
	if err == nil {
		return resultOK
	}
	codespace, _, _ := errorsmod.ABCIInfo(err, false)
	if codespace == errorsmod.UndefinedCodespace {
		return "internal"
	}
	return codespace
}
