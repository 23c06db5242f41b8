// Command riftnet-echo-client connects to a riftnet-echo-server, sends one
// reliable message per tick, and logs each echoed reply.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
	"github.com/riftnet/riftnet/pkg/rlog"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server address to connect to")
	port := flag.Uint("port", 9100, "server UDP port")
	channelID := flag.Uint("channel", 1, "channel id to send on (1=ordered, 2=unordered)")
	interval := flag.Duration("interval", 500*time.Millisecond, "send interval")
	identityID := flag.Uint("identity-id", 0, "identity id to present, 0 disables identity linking")
	sessionID := flag.Uint("session-id", 0, "session id to present alongside identity-id")
	flag.Parse()

	ip, err := parseIPv4(*host)
	if err != nil {
		rlog.Fatal(rlog.Fields{"host": *host, "error": err.Error()}, "invalid server host")
	}
	serverAddr := netaddr.FromSlice(ip, uint16(*port))

	cfg := endpoint.Config{UseIdentity: *identityID != 0}
	client := endpoint.New(cfg)
	if err := client.Connect(serverAddr); err != nil {
		rlog.Fatal(rlog.Fields{"error": err.Error()}, "connect failed")
	}
	if cfg.UseIdentity {
		client.SetClientIdentity(uint32(*identityID), uint32(*sessionID))
	}
	rlog.Success(rlog.Fields{"server": serverAddr.String()}, "connected")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go runSendRecvLoop(client, serverAddr, byte(*channelID), *interval, done)

	<-sigChan
	close(done)
	rlog.Warn(nil, "client stopped")
}

func runSendRecvLoop(client *endpoint.Endpoint, serverAddr netaddr.Addr, channelID byte, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	buf := make([]byte, 16*1024)
	seq := 0

	for {
		select {
		case <-done:
			return
		default:
		}

		select {
		case now := <-ticker.C:
			client.Update(now)
			if client.CanSend(serverAddr) {
				body := []byte(fmt.Sprintf("ping %d", seq))
				seq++
				if _, err := client.SendTo(endpoint.SendTarget{}, channelID, body); err != nil {
					rlog.Error(rlog.Fields{"error": err.Error()}, "send failed")
				}
			}
		default:
		}

		n, _, _, err := client.ReceiveLoop(buf)
		if err != nil {
			rlog.Error(rlog.Fields{"error": err.Error()}, "receive error")
			continue
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		rlog.Info(rlog.Fields{"bytes": n}, string(buf[:n]))
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
