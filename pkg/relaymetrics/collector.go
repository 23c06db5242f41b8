// Package relaymetrics exports endpoint and channel counters as Prometheus
// metrics. It follows a pull model: Collect reads each registered
// endpoint's live Stats()/ChannelStats() snapshot at scrape time rather
// than mirroring counters into its own storage.
package relaymetrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/riftnet/riftnet/pkg/endpoint"
)

var (
	bytesSentDesc = prometheus.NewDesc(
		"riftnet_endpoint_bytes_sent_total", "Bytes sent by an endpoint.", []string{"endpoint"}, nil)
	bytesReceivedDesc = prometheus.NewDesc(
		"riftnet_endpoint_bytes_received_total", "Bytes received by an endpoint.", []string{"endpoint"}, nil)
	channelErrorsDesc = prometheus.NewDesc(
		"riftnet_endpoint_channel_errors_total", "Datagrams dropped for an unknown connection or channel.", []string{"endpoint"}, nil)
	identityErrorsDesc = prometheus.NewDesc(
		"riftnet_endpoint_identity_errors_total", "Rejected identity-link or -unlink attempts.", []string{"endpoint"}, nil)

	chanSentDesc = prometheus.NewDesc(
		"riftnet_channel_sent_total", "Reliable frames sent on a channel.", []string{"endpoint", "addr", "channel"}, nil)
	chanResentDesc = prometheus.NewDesc(
		"riftnet_channel_resent_total", "Reliable frames resent after a NACK.", []string{"endpoint", "addr", "channel"}, nil)
	chanNonesSentDesc = prometheus.NewDesc(
		"riftnet_channel_nones_sent_total", "NONE placeholders sent for an unbuffered NACKed sequence.", []string{"endpoint", "addr", "channel"}, nil)
	chanNacksSentDesc = prometheus.NewDesc(
		"riftnet_channel_nacks_sent_total", "Sequences named in NACKs piggybacked on outgoing reliable frames.", []string{"endpoint", "addr", "channel"}, nil)
	chanReceivedDesc = prometheus.NewDesc(
		"riftnet_channel_received_total", "Reliable or fragment frames received on a channel.", []string{"endpoint", "addr", "channel"}, nil)
	chanFragDroppedDesc = prometheus.NewDesc(
		"riftnet_channel_fragment_groups_dropped_total", "Fragment groups dropped after TTL expiry.", []string{"endpoint", "addr", "channel"}, nil)
)

// Collector implements prometheus.Collector over a named set of endpoints.
type Collector struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint.Endpoint
}

// NewCollector returns an empty collector. Register it with a
// prometheus.Registry and add endpoints with Add.
func NewCollector() *Collector {
	return &Collector{endpoints: make(map[string]*endpoint.Endpoint)}
}

// Add registers ep under name, the label value reported on every metric it
// contributes.
func (c *Collector) Add(name string, ep *endpoint.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[name] = ep
}

// Remove unregisters the endpoint previously added under name.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.endpoints, name)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bytesSentDesc
	ch <- bytesReceivedDesc
	ch <- channelErrorsDesc
	ch <- identityErrorsDesc
	ch <- chanSentDesc
	ch <- chanResentDesc
	ch <- chanNonesSentDesc
	ch <- chanNacksSentDesc
	ch <- chanReceivedDesc
	ch <- chanFragDroppedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	snapshot := make(map[string]*endpoint.Endpoint, len(c.endpoints))
	for name, ep := range c.endpoints {
		snapshot[name] = ep
	}
	c.mu.Unlock()

	for name, ep := range snapshot {
		stats := ep.Stats()
		metrics <- prometheus.MustNewConstMetric(bytesSentDesc, prometheus.CounterValue, float64(stats.BytesSent), name)
		metrics <- prometheus.MustNewConstMetric(bytesReceivedDesc, prometheus.CounterValue, float64(stats.BytesReceived), name)
		metrics <- prometheus.MustNewConstMetric(channelErrorsDesc, prometheus.CounterValue, float64(stats.ChannelErrors), name)
		metrics <- prometheus.MustNewConstMetric(identityErrorsDesc, prometheus.CounterValue, float64(stats.IdentityErrors), name)

		for _, cs := range ep.ChannelStats() {
			addr := cs.Addr.String()
			channelID := strconv.Itoa(int(cs.ChannelID))
			metrics <- prometheus.MustNewConstMetric(chanSentDesc, prometheus.CounterValue, float64(cs.Stats.Sent), name, addr, channelID)
			metrics <- prometheus.MustNewConstMetric(chanResentDesc, prometheus.CounterValue, float64(cs.Stats.Resent), name, addr, channelID)
			metrics <- prometheus.MustNewConstMetric(chanNonesSentDesc, prometheus.CounterValue, float64(cs.Stats.NonesSent), name, addr, channelID)
			metrics <- prometheus.MustNewConstMetric(chanNacksSentDesc, prometheus.CounterValue, float64(cs.Stats.NacksSent), name, addr, channelID)
			metrics <- prometheus.MustNewConstMetric(chanReceivedDesc, prometheus.CounterValue, float64(cs.Stats.Received), name, addr, channelID)
			metrics <- prometheus.MustNewConstMetric(chanFragDroppedDesc, prometheus.CounterValue, float64(cs.Stats.FragmentGroupsDropped), name, addr, channelID)
		}
	}
}
