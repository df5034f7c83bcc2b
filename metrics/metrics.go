// Package metrics holds the process-wide Prometheus registry.
//
// The registry is created once by Init. Components register their
// collectors against it and Render or Handler export the current state.
package metrics

import (
	"bytes"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "memhub"

var (
	initOnce sync.Once
	registry *prometheus.Registry
)

// Init creates the process registry with Go runtime and process collectors.
// Later calls return the same registry.
func Init() *prometheus.Registry {
	initOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// Registry returns the process registry, initializing it if needed.
func Registry() *prometheus.Registry { return Init() }

// Render returns the text exposition of every registered metric.
func Render() (string, error) {
	return RenderFrom(Registry())
}

// RenderFrom returns the text exposition of g.
func RenderFrom(g prometheus.Gatherer) (string, error) {
	mfs, err := g.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Handler serves the process registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// FindFamily returns the metric family called name, or nil.
func FindFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
