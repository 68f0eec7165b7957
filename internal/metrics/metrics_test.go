// File: internal/metrics/metrics_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeSource struct{}

func (fakeSource) QDTableSize() int          { return 3 }
func (fakeSource) InflightQTs() int          { return 7 }
func (fakeSource) RetransmitQueueDepth() int { return 11 }
func (fakeSource) PoolInUse() int            { return 4 }
func (fakeSource) PoolFree() int             { return 252 }

func TestCollectorScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("quanta_libos", fakeSource{})
	reg.MustRegister(c)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	got := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			got[f.GetName()] = metricValue(m)
		}
	}

	want := map[string]float64{
		"quanta_libos_qd_table_size":          3,
		"quanta_libos_inflight_qts":           7,
		"quanta_libos_retransmit_queue_depth": 11,
		"quanta_libos_pool_buffers_in_use":    4,
		"quanta_libos_pool_buffers_free":      252,
	}
	for name, v := range want {
		g, ok := got[name]
		if !ok {
			t.Fatalf("missing metric %s", name)
		}
		if g != v {
			t.Errorf("%s = %v, want %v", name, g, v)
		}
	}
}

func metricValue(m *dto.Metric) float64 {
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}
	return 0
}
