package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HubMetrics records fan-out operations. A nil *HubMetrics records nothing.
type HubMetrics struct {
	ops           *prometheus.CounterVec
	backendErrors *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// NewHubMetrics creates hub collectors and registers them with reg.
// Collectors already registered with reg are reused.
func NewHubMetrics(reg prometheus.Registerer) (*HubMetrics, error) {
	m := &HubMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "operations_total",
			Help:      "Number of hub operations by op and result",
		}, []string{"op", "result"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "backend_errors_total",
			Help:      "Number of failed backend calls by backend and op",
		}, []string{"backend", "op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "operation_duration_seconds",
			Help:      "Latency of hub operations including all backends",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"op"}),
	}
	var err error
	if m.ops, err = register(reg, m.ops); err != nil {
		return nil, err
	}
	if m.backendErrors, err = register(reg, m.backendErrors); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveOp records a completed hub operation.
func (m *HubMetrics) ObserveOp(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// BackendError records a failed call to one backend.
func (m *HubMetrics) BackendError(backend, op string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(backend, op).Inc()
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
