package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pluginOnce  sync.Once
	pluginLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "plugin",
		Name:      "loads_total",
		Help:      "Number of plugin load attempts by kind and outcome",
	}, []string{"kind", "outcome"})
)

// PluginLoad records a plugin load attempt in the process registry.
// outcome is "ok" or the failure reason.
func PluginLoad(kind, outcome string) {
	pluginOnce.Do(func() { Registry().MustRegister(pluginLoads) })
	pluginLoads.WithLabelValues(kind, outcome).Inc()
}
