package ckms

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CollectorOpts names the metrics exported by a Collector.
type CollectorOpts struct {
	Namespace   string
	Subsystem   string
	Name        string
	Help        string
	ConstLabels prometheus.Labels
}

// Collector exports an Estimator as a Prometheus summary plus gauges for the
// summary size and staged values and a counter for dropped observations.
// Every scrape flushes the estimator, except under the Baseline strategy
// whose buffer belongs to its single writer: there a scrape reports only what
// the writer has merged so far.
type Collector struct {
	e *Estimator

	summary *prometheus.Desc
	samples *prometheus.Desc
	pending *prometheus.Desc
	dropped *prometheus.Desc
}

// NewCollector ...
func NewCollector(opts CollectorOpts, e *Estimator) *Collector {
	name := prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
	labels := prometheus.Labels{"strategy": e.Strategy().String()}
	for k, v := range opts.ConstLabels {
		labels[k] = v
	}
	return &Collector{
		e:       e,
		summary: prometheus.NewDesc(name, opts.Help, nil, labels),
		samples: prometheus.NewDesc(name+"_summary_items", "Number of items in the compressed quantile summary.", nil, labels),
		pending: prometheus.NewDesc(name+"_pending_values", "Observations staged but not merged into the summary.", nil, labels),
		dropped: prometheus.NewDesc(name+"_dropped_total", "Observations dropped because a staging buffer was full.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.summary
	ch <- c.samples
	ch <- c.pending
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var (
		quantiles map[float64]float64
		err       error
	)
	if c.e.Strategy() == Baseline {
		quantiles, err = c.e.merged()
	} else {
		quantiles, err = c.e.Quantiles()
	}
	if err != nil {
		// nothing merged yet, export the summary without quantiles
		quantiles = map[float64]float64{}
	}
	stats := c.e.Stats()

	ch <- prometheus.MustNewConstSummary(c.summary, stats.Count, stats.Sum, quantiles)
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(stats.Samples))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(stats.Pending))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(stats.Dropped))
}
