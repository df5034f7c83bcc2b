package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is anything exposing a current and maximum level.
type Gauge interface {
	InFlight() int
	Capacity() int
}

// RegisterAdmission exposes an admission gate's occupancy.
func RegisterAdmission(reg prometheus.Registerer, g Gauge) error {
	inFlight := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "in_flight",
		Help:      "Number of admission permits currently held",
	}, func() float64 { return float64(g.InFlight()) })
	capacity := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "capacity",
		Help:      "Maximum number of concurrent admission permits",
	}, func() float64 { return float64(g.Capacity()) })
	if err := reg.Register(inFlight); err != nil {
		return err
	}
	return reg.Register(capacity)
}
