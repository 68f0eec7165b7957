// File: internal/metrics/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Read-only operator observability for the queue layer and buffer
// pool. Grounded on runZeroInc-sockstats's pkg/exporter.TCPInfoCollector:
// a small prometheus.Collector that pulls live gauges from the running
// engine on every scrape rather than maintaining its own counters, the
// same pull-on-Collect shape used here for pool/queue/retransmit depth.
// Metrics never influence protocol behavior (spec.md §1 Non-goals don't
// exclude metrics, only logging setup; this is the one observability
// surface this repo carries).

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Source supplies the live gauge values a Collector scrapes. libos
// implements it with an adapter that reads the values from its
// queue.Layer, bufferpool.Pool and tcp.Engine.
type Source interface {
	QDTableSize() int
	InflightQTs() int
	RetransmitQueueDepth() int
	PoolInUse() int
	PoolFree() int
}

// Collector is a prometheus.Collector pulling from a Source on demand.
type Collector struct {
	src Source

	qdTableSize          *prometheus.Desc
	inflightQTs          *prometheus.Desc
	retransmitQueueDepth *prometheus.Desc
	poolInUse            *prometheus.Desc
	poolFree             *prometheus.Desc
}

// NewCollector wires a Collector over src, under the given metric prefix.
func NewCollector(prefix string, src Source) *Collector {
	return &Collector{
		src: src,
		qdTableSize: prometheus.NewDesc(
			prefix+"_qd_table_size", "Number of live queue descriptors.", nil, nil),
		inflightQTs: prometheus.NewDesc(
			prefix+"_inflight_qts", "Number of queue tokens not yet reaped.", nil, nil),
		retransmitQueueDepth: prometheus.NewDesc(
			prefix+"_retransmit_queue_depth", "Total unacked segments across all connections.", nil, nil),
		poolInUse: prometheus.NewDesc(
			prefix+"_pool_buffers_in_use", "Buffer pool entries currently checked out.", nil, nil),
		poolFree: prometheus.NewDesc(
			prefix+"_pool_buffers_free", "Buffer pool entries on the free list.", nil, nil),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.qdTableSize
	descs <- c.inflightQTs
	descs <- c.retransmitQueueDepth
	descs <- c.poolInUse
	descs <- c.poolFree
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.qdTableSize, prometheus.GaugeValue, float64(c.src.QDTableSize()))
	ch <- prometheus.MustNewConstMetric(c.inflightQTs, prometheus.GaugeValue, float64(c.src.InflightQTs()))
	ch <- prometheus.MustNewConstMetric(c.retransmitQueueDepth, prometheus.GaugeValue, float64(c.src.RetransmitQueueDepth()))
	ch <- prometheus.MustNewConstMetric(c.poolInUse, prometheus.GaugeValue, float64(c.src.PoolInUse()))
	ch <- prometheus.MustNewConstMetric(c.poolFree, prometheus.GaugeValue, float64(c.src.PoolFree()))
}
