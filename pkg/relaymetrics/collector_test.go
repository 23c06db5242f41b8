package relaymetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
)

func collect(t *testing.T, c *Collector) map[string]*dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 64)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	out := make(map[string]*dto.Metric)
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		out[m.Desc().String()] = &pb
	}
	return out
}

func TestCollectorReportsBoundEndpointStats(t *testing.T) {
	server := endpoint.New(endpoint.Config{})
	if err := server.Bind(netaddr.New(127, 0, 0, 1, 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	c := NewCollector()
	c.Add("server", server)

	metrics := collect(t, c)
	if len(metrics) == 0 {
		t.Fatal("Collect produced no metrics for a registered endpoint")
	}
}

func TestCollectorRemoveStopsReporting(t *testing.T) {
	server := endpoint.New(endpoint.Config{})
	if err := server.Bind(netaddr.New(127, 0, 0, 1, 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	c := NewCollector()
	c.Add("server", server)
	c.Remove("server")

	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)
	count := 0
	for range ch {
		count++
	}
	if count != 0 {
		t.Errorf("Collect after Remove produced %d metrics, want 0", count)
	}
}
