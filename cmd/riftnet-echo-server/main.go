// Command riftnet-echo-server is a minimal demonstration of the
// reliability engine: it binds one endpoint, echoes every reliable message
// it receives back to its sender on the same channel (unreliable traffic is
// not echoed), and exports Prometheus metrics over HTTP.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
	"github.com/riftnet/riftnet/pkg/relaymetrics"
	"github.com/riftnet/riftnet/pkg/relayevents"
	"github.com/riftnet/riftnet/pkg/rlog"
)

const staleConnectionTTL = 30 * time.Second

func main() {
	host := flag.String("host", "0.0.0.0", "address to bind")
	port := flag.Uint("port", 9100, "UDP port to bind")
	metricsAddr := flag.String("metrics-addr", ":9101", "address to serve /metrics on")
	useIdentity := flag.Bool("identity", false, "require identity linking before accepting traffic")
	dropChance := flag.Int("drop-chance", 0, "percent chance of dropping an inbound datagram, for testing")
	flag.Parse()

	rlog.Info(rlog.Fields{"version": "1.0.0"}, "riftnet echo server starting")

	ip, err := parseIPv4(*host)
	if err != nil {
		rlog.Fatal(rlog.Fields{"host": *host, "error": err.Error()}, "invalid bind host")
	}

	ep := endpoint.New(endpoint.Config{
		UseIdentity:      *useIdentity,
		DropPacketChance: *dropChance,
	})

	bus := relayevents.NewBus()
	relayevents.LogAll(bus)
	ep.SetEventSink(bus)

	if err := ep.Bind(netaddr.FromSlice(ip, uint16(*port))); err != nil {
		rlog.Fatal(rlog.Fields{"error": err.Error()}, "bind failed")
	}
	rlog.Success(rlog.Fields{"endpoint_id": ep.ID(), "addr": ep.LocalAddr().String()}, "bound")

	collector := relaymetrics.NewCollector()
	collector.Add(ep.ID(), ep)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			rlog.Error(rlog.Fields{"error": err.Error()}, "metrics server exited")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go runEchoLoop(ep, done)

	<-sigChan
	rlog.Warn(nil, "shutdown signal received")
	close(done)
	time.Sleep(100 * time.Millisecond)
	rlog.Success(nil, "echo server stopped")
}

func runEchoLoop(ep *endpoint.Endpoint, done <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	buf := make([]byte, 16*1024)

	for {
		select {
		case <-done:
			return
		default:
		}
		select {
		case now := <-ticker.C:
			ep.Update(now)
			ep.CleanupStaleConnections(now, staleConnectionTTL)
		default:
		}

		n, channelID, from, err := ep.ReceiveLoop(buf)
		if err != nil {
			rlog.Error(rlog.Fields{"error": err.Error(), "from": from.String()}, "receive error")
			continue
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		if channelID == 0 {
			continue // unreliable traffic is not echoed back
		}
		if _, err := ep.SendTo(endpoint.SendTarget{Addr: from}, channelID, buf[:n]); err != nil {
			rlog.Error(rlog.Fields{"error": err.Error(), "to": from.String()}, "echo send failed")
		}
	}
}

func parseIPv4(host string) ([]byte, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("not an IP address: %q", host)
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %q", host)
	}
	return v4, nil
}
