package endpointpool

import (
	"testing"
	"time"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
)

func newBoundEndpoint(t *testing.T) (*endpoint.Endpoint, netaddr.Addr) {
	t.Helper()
	ep := endpoint.New(endpoint.Config{})
	if err := ep.Bind(netaddr.New(127, 0, 0, 1, 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return ep, ep.LocalAddr()
}

func pumpUntil(t *testing.T, deadline time.Time, fn func() bool) {
	t.Helper()
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestReceiveFinishReceiveCollectsAcrossMembers(t *testing.T) {
	serverA, addrA := newBoundEndpoint(t)
	serverB, addrB := newBoundEndpoint(t)

	pool := New()
	pool.Add(serverA)
	pool.Add(serverB)

	clientA := endpoint.New(endpoint.Config{})
	if err := clientA.Connect(addrA); err != nil {
		t.Fatalf("Connect A: %v", err)
	}
	clientB := endpoint.New(endpoint.Config{})
	if err := clientB.Connect(addrB); err != nil {
		t.Fatalf("Connect B: %v", err)
	}

	if _, err := clientA.SendTo(endpoint.SendTarget{}, 0, []byte("hello-a")); err != nil {
		t.Fatalf("SendTo A: %v", err)
	}
	if _, err := clientB.SendTo(endpoint.SendTarget{}, 0, []byte("hello-b")); err != nil {
		t.Fatalf("SendTo B: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var published []Published
	pumpUntil(t, deadline, func() bool {
		if err := pool.Receive(); err != nil {
			t.Fatalf("Receive: %v", err)
		}
		published = pool.FinishReceive()
		return len(published) >= 2
	})

	if len(published) < 2 {
		t.Fatalf("got %d published messages, want at least 2", len(published))
	}
	seen := map[string]bool{}
	for _, p := range published {
		seen[string(p.Payload)] = true
	}
	if !seen["hello-a"] || !seen["hello-b"] {
		t.Errorf("missing expected payloads, got %v", published)
	}
}

func TestReceiveRejectsSecondCallBeforeFinish(t *testing.T) {
	server, _ := newBoundEndpoint(t)
	pool := New()
	pool.Add(server)

	if err := pool.Receive(); err != nil {
		t.Fatalf("first Receive: %v", err)
	}
	if err := pool.Receive(); err != ErrReceiveInProgress {
		t.Errorf("second Receive error = %v, want ErrReceiveInProgress", err)
	}
	pool.FinishReceive()

	if err := pool.Receive(); err != nil {
		t.Errorf("Receive after FinishReceive: %v", err)
	}
	pool.FinishReceive()
}

func TestFinishReceiveWithoutReceiveIsEmpty(t *testing.T) {
	pool := New()
	if got := pool.FinishReceive(); got != nil {
		t.Errorf("FinishReceive with no prior Receive = %v, want nil", got)
	}
}

func TestAddRemoveTracksLength(t *testing.T) {
	server, _ := newBoundEndpoint(t)
	pool := New()
	id := pool.Add(server)
	if pool.Len() != 1 {
		t.Fatalf("Len = %d, want 1", pool.Len())
	}
	pool.Remove(id)
	if pool.Len() != 0 {
		t.Fatalf("Len after Remove = %d, want 0", pool.Len())
	}
}

func TestEndpointForAddressResolvesOwningMember(t *testing.T) {
	serverA, addrA := newBoundEndpoint(t)
	serverB, _ := newBoundEndpoint(t)
	pool := New()
	idA := pool.Add(serverA)
	pool.Add(serverB)

	client := endpoint.New(endpoint.Config{})
	if err := client.Connect(addrA); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := client.SendTo(endpoint.SendTarget{}, 0, []byte("ping")); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	out := make([]byte, 64)
	pumpUntil(t, deadline, func() bool {
		n, _, _, _ := serverA.ReceiveLoop(out)
		return n > 0
	})

	got, ok := pool.EndpointForAddress(client.LocalAddr())
	if !ok {
		t.Fatal("EndpointForAddress: not found")
	}
	if got != idA {
		t.Errorf("EndpointForAddress = %d, want %d", got, idA)
	}
}
