package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitOnce(t *testing.T) {
	require.Same(t, Init(), Init())
	require.Same(t, Init(), Registry())
}

func TestHubMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewHubMetrics(reg)
	require.NoError(t, err)

	m.ObserveOp("write", "ok", time.Millisecond)
	m.ObserveOp("write", "error", time.Millisecond)
	m.BackendError("disk", "write")

	require.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("write", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.backendErrors.WithLabelValues("disk", "write")))

	again, err := NewHubMetrics(reg)
	require.NoError(t, err)
	again.ObserveOp("write", "ok", time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(m.ops.WithLabelValues("write", "ok")))
}

func TestNilHubMetrics(t *testing.T) {
	var m *HubMetrics
	require.NotPanics(t, func() {
		m.ObserveOp("read", "ok", 0)
		m.BackendError("x", "read")
	})
}

type fixedGauge struct{ in, cap int }

func (g fixedGauge) InFlight() int { return g.in }
func (g fixedGauge) Capacity() int { return g.cap }

func TestRenderIncludesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterAdmission(reg, fixedGauge{in: 2, cap: 8}))

	out, err := RenderFrom(reg)
	require.NoError(t, err)
	require.Contains(t, out, "memhub_admission_in_flight 2")
	require.Contains(t, out, "memhub_admission_capacity 8")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	fam := FindFamily(mfs, "memhub_admission_in_flight")
	require.NotNil(t, fam)
	require.Equal(t, 2.0, fam.GetMetric()[0].GetGauge().GetValue())
	require.Nil(t, FindFamily(mfs, "missing"))
}

func TestPluginLoadRendered(t *testing.T) {
	PluginLoad("wasm", "ok")
	out, err := Render()
	require.NoError(t, err)
	require.Contains(t, out, `memhub_plugin_loads_total{kind="wasm",outcome="ok"}`)
}
