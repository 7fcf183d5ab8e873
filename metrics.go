package qmap

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsProvider is implemented by both backings.
type StatsProvider interface {
	Stats() Stats
}

// Collector exposes a map's shape as Prometheus metrics. Register it
// with a prometheus.Registry; every scrape reads a fresh Stats
// snapshot.
type Collector struct {
	src StatsProvider

	entries      *prometheus.Desc
	buckets      *prometheus.Desc
	longestChain *prometheus.Desc
	notifiers    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for src. name distinguishes multiple
// maps in one registry and becomes the "map" label.
func NewCollector(name string, src StatsProvider) *Collector {
	labels := prometheus.Labels{"map": name}
	return &Collector{
		src: src,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName("qmap", "map", "entries"),
			"Number of entries currently stored",
			nil, labels,
		),
		buckets: prometheus.NewDesc(
			prometheus.BuildFQName("qmap", "map", "buckets"),
			"Number of bucket chains (1 for the sorted backing)",
			nil, labels,
		),
		longestChain: prometheus.NewDesc(
			prometheus.BuildFQName("qmap", "map", "longest_chain"),
			"Length of the longest bucket chain",
			nil, labels,
		),
		notifiers: prometheus.NewDesc(
			prometheus.BuildFQName("qmap", "map", "notifiers"),
			"Registered notifiers across the global and per-key scopes",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.buckets
	ch <- c.longestChain
	ch <- c.notifiers
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(c.buckets, prometheus.GaugeValue, float64(s.Buckets))
	ch <- prometheus.MustNewConstMetric(c.longestChain, prometheus.GaugeValue, float64(s.LongestChain))
	ch <- prometheus.MustNewConstMetric(c.notifiers, prometheus.GaugeValue, float64(s.Notifiers))
}
