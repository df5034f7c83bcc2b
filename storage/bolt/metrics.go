package bolt

import (
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Store)(nil)

type storeDescs struct {
	writes *prometheus.Desc
	reads  *prometheus.Desc
}

func newStoreDescs(path string) storeDescs {
	labels := prometheus.Labels{"path": path}
	return storeDescs{
		writes: prometheus.NewDesc(
			"memhub_boltdb_writes_total",
			"Total number of boltdb write transactions",
			nil, labels),
		reads: prometheus.NewDesc(
			"memhub_boltdb_reads_total",
			"Total number of boltdb read transactions",
			nil, labels),
	}
}

// Describe returns all descriptions of the collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.descs.writes
	ch <- s.descs.reads
}

// Collect returns the current state of all metrics of the collector.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	stats := s.db.Stats()
	ch <- prometheus.MustNewConstMetric(s.descs.writes, prometheus.CounterValue, float64(stats.TxStats.Write))
	ch <- prometheus.MustNewConstMetric(s.descs.reads, prometheus.CounterValue, float64(stats.TxN))
}
