package endpointpool

import (
	"testing"
	"time"

	"github.com/riftnet/riftnet/pkg/endpoint"
	"github.com/riftnet/riftnet/pkg/netaddr"
)

func addrFor(a, b, c, d byte, port uint16) netaddr.Addr {
	return netaddr.New(a, b, c, d, port)
}

func TestOutBufferAppendAndDecode(t *testing.T) {
	ob := NewOutBuffer(256)
	addr := addrFor(1, 2, 3, 4, 5000)
	if !ob.append(7, addr, []byte("payload")) {
		t.Fatal("append into fresh buffer should succeed")
	}
	entries := DecodeEntries(ob.Bytes())
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ChannelID != 7 || e.From != addr || string(e.Payload) != "payload" {
		t.Errorf("decoded entry = %+v, want channel 7 addr %v payload \"payload\"", e, addr)
	}
}

func TestOutBufferAppendRejectsOverflow(t *testing.T) {
	ob := NewOutBuffer(entryHeaderSize + 2)
	addr := addrFor(10, 0, 0, 1, 1)
	if !ob.append(1, addr, []byte("ab")) {
		t.Fatal("first append should fit exactly")
	}
	if ob.append(1, addr, []byte("c")) {
		t.Error("second append should overflow and be rejected")
	}
}

func TestReceiveBlockingOutBufferDrainsEachMember(t *testing.T) {
	serverA, addrA := newBoundEndpoint(t)
	serverB, addrB := newBoundEndpoint(t)
	pool := New()
	idA := pool.Add(serverA)
	idB := pool.Add(serverB)

	clientA := endpoint.New(endpoint.Config{})
	if err := clientA.Connect(addrA); err != nil {
		t.Fatalf("Connect A: %v", err)
	}
	clientB := endpoint.New(endpoint.Config{})
	if err := clientB.Connect(addrB); err != nil {
		t.Fatalf("Connect B: %v", err)
	}
	if _, err := clientA.SendTo(endpoint.SendTarget{}, 0, []byte("to-a")); err != nil {
		t.Fatalf("SendTo A: %v", err)
	}
	if _, err := clientB.SendTo(endpoint.SendTarget{}, 0, []byte("to-b")); err != nil {
		t.Fatalf("SendTo B: %v", err)
	}

	buffers := map[uint32]*OutBuffer{
		idA: NewOutBuffer(1024),
		idB: NewOutBuffer(1024),
	}

	deadline := time.Now().Add(2 * time.Second)
	var gotA, gotB []Entry
	pumpUntil(t, deadline, func() bool {
		buffers[idA].Reset()
		buffers[idB].Reset()
		if err := pool.ReceiveBlockingOutBuffer(buffers); err != nil {
			t.Fatalf("ReceiveBlockingOutBuffer: %v", err)
		}
		gotA = DecodeEntries(buffers[idA].Bytes())
		gotB = DecodeEntries(buffers[idB].Bytes())
		return len(gotA) > 0 && len(gotB) > 0
	})

	if len(gotA) == 0 || string(gotA[0].Payload) != "to-a" {
		t.Errorf("endpoint A out buffer = %v, want one entry with payload to-a", gotA)
	}
	if len(gotB) == 0 || string(gotB[0].Payload) != "to-b" {
		t.Errorf("endpoint B out buffer = %v, want one entry with payload to-b", gotB)
	}
}
