package endpoint

import (
	"testing"
	"time"

	"github.com/riftnet/riftnet/pkg/netaddr"
)

func mustBindServer(t *testing.T, cfg Config) (*Endpoint, netaddr.Addr) {
	t.Helper()
	ep := New(cfg)
	if err := ep.Bind(netaddr.New(127, 0, 0, 1, 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return ep, ep.LocalAddr()
}

func pump(t *testing.T, deadline time.Time, attempts ...func() bool) {
	t.Helper()
	for time.Now().Before(deadline) {
		done := true
		for _, attempt := range attempts {
			if !attempt() {
				done = false
			}
		}
		if done {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New(Config{})
	b := New(Config{})
	if a.ID() == "" || b.ID() == "" {
		t.Fatal("ID() should never be empty")
	}
	if a.ID() == b.ID() {
		t.Error("two endpoints should not share an instance id")
	}
}

func TestUnreliableSendLengthErrorAndRoundTrip(t *testing.T) {
	server, serverAddr := mustBindServer(t, Config{})
	defer server.sock.Close()

	client := New(Config{})
	if err := client.Connect(serverAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.sock.Close()

	if _, err := client.SendTo(SendTarget{}, 0, nil); err != ErrLength {
		t.Errorf("zero-length send error = %v, want ErrLength", err)
	}

	body := []byte{1, 2, 3, 4}
	sent, err := client.SendTo(SendTarget{}, 0, body)
	if err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	if sent != 5 {
		t.Errorf("sent length = %d, want 5 (1-byte header + 4-byte body)", sent)
	}

	out := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	var n int
	pump(t, deadline, func() bool {
		var rerr error
		n, _, _, rerr = server.ReceiveLoop(out)
		if rerr != nil {
			t.Fatalf("ReceiveLoop: %v", rerr)
		}
		return n > 0
	})
	if n != 4 {
		t.Fatalf("server received %d bytes, want 4", n)
	}
	if string(out[:n]) != string(body) {
		t.Errorf("received %v, want %v", out[:n], body)
	}
}

func TestReliableEndToEndWithFragmentation(t *testing.T) {
	server, serverAddr := mustBindServer(t, Config{})
	defer server.sock.Close()

	client := New(Config{})
	if err := client.Connect(serverAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.sock.Close()

	body := make([]byte, 3497)
	for i := range body {
		body[i] = byte(i)
	}
	if _, err := client.SendTo(SendTarget{}, reservedUnorderedChannel, body); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	out := make([]byte, 8192)
	deadline := time.Now().Add(2 * time.Second)
	var n int
	pump(t, deadline, func() bool {
		var rerr error
		n, _, _, rerr = server.ReceiveLoop(out)
		if rerr != nil {
			t.Fatalf("ReceiveLoop: %v", rerr)
		}
		return n > 0
	})
	if n != len(body) {
		t.Fatalf("server received %d bytes, want %d", n, len(body))
	}
}

func TestIdentityGating(t *testing.T) {
	server, serverAddr := mustBindServer(t, Config{UseIdentity: true})
	defer server.sock.Close()
	server.SetIdentity(1, 10)

	client := New(Config{UseIdentity: true})
	if err := client.Connect(serverAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.sock.Close()
	client.SetClientIdentity(1, 11) // wrong session first

	out := make([]byte, 64)
	deadline := time.Now().Add(500 * time.Millisecond)
	pump(t, deadline, func() bool {
		client.Update(time.Now())
		_, _, _, _ = server.ReceiveLoop(out)
		return false
	})

	if client.CanSend(serverAddr) {
		t.Fatal("client should not be linked with the wrong session id")
	}

	client.SetClientIdentity(1, 10) // correct session
	client.lastLinkAttempt = time.Time{}

	deadline = time.Now().Add(2 * time.Second)
	pump(t, deadline, func() bool {
		client.Update(time.Now())
		server.ReceiveLoop(out)
		client.ReceiveLoop(out)
		return client.CanSend(serverAddr)
	})

	if !client.CanSend(serverAddr) {
		t.Fatal("client should be linked after presenting the correct session id")
	}

	conn, ok := server.connections[client.LocalAddr()]
	if !ok {
		t.Fatal("server should have a connection for the linked client")
	}
	if conn.channelCount() != 2 {
		t.Errorf("linked connection has %d channels, want 2 (auto-configured)", conn.channelCount())
	}
}
