// File: libos/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Exposes this LibOS instance's queue/pool/retransmit gauges as a
// prometheus.Collector an operator registers against their own
// registry (spec.md §3 DOMAIN STACK: metrics are ambient, never
// altering protocol behavior).

package libos

import "github.com/momentics/quanta-libos/internal/metrics"

// metricsSource adapts this LibOS's queue layer, buffer pool and TCP
// engine to internal/metrics.Source without exposing them directly.
type metricsSource struct{ l *LibOS }

func (s metricsSource) QDTableSize() int          { return s.l.q.QDTableSize() }
func (s metricsSource) InflightQTs() int          { return s.l.q.InflightQTs() }
func (s metricsSource) RetransmitQueueDepth() int { return s.l.tcpE.RetransmitQueueDepth() }
func (s metricsSource) PoolInUse() int            { stats := s.l.pool.Stats(); return int(stats.InUse) }
func (s metricsSource) PoolFree() int             { stats := s.l.pool.Stats(); return int(stats.Free) }

// Metrics returns a prometheus.Collector an operator can register
// against any registry; the prefix namespaces this instance's gauges
// (e.g. "quanta_libos").
func (l *LibOS) Metrics(prefix string) *metrics.Collector {
	return metrics.NewCollector(prefix, metricsSource{l})
}
