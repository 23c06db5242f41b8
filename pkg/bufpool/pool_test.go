package bufpool

import "testing"

func TestGetOversizeBypassesPool(t *testing.T) {
	p := New(1240, 4)
	b := p.Get(2000)
	if b.Pooled() {
		t.Error("oversize Get should return a non-pooled buffer")
	}
	if b.Len() != 2000 {
		t.Errorf("Len() = %d, want 2000", b.Len())
	}
}

func TestGetWithinCapacityIsPooled(t *testing.T) {
	p := New(1240, 4)
	b := p.Get(100)
	if !b.Pooled() {
		t.Error("in-capacity Get should return a pooled buffer")
	}
	if b.Len() != 100 {
		t.Errorf("Len() = %d, want 100", b.Len())
	}
}

func TestReturnFullPoolScenario(t *testing.T) {
	// Scenario: into a fresh default pool, return 512 buffers of length 1024:
	// all accepted. Return one more: rejected. Pool length stays 512.
	p := NewDefault()

	bufs := make([]*Buffer, DefaultPoolSize+1)
	for i := range bufs {
		bufs[i] = p.Get(1024)
	}

	for i := 0; i < DefaultPoolSize; i++ {
		p.Return(bufs[i])
	}
	if p.Len() != DefaultPoolSize {
		t.Fatalf("pool length = %d, want %d", p.Len(), DefaultPoolSize)
	}

	p.Return(bufs[DefaultPoolSize])
	if p.Len() != DefaultPoolSize {
		t.Errorf("pool length after rejected return = %d, want %d", p.Len(), DefaultPoolSize)
	}
}

func TestReturnBumpsVersion(t *testing.T) {
	p := New(1240, 4)
	b := p.Get(10)
	v0 := b.Version()
	p.Return(b)
	if b.Version() != v0+1 {
		t.Errorf("Version() after return = %d, want %d", b.Version(), v0+1)
	}
}

func TestReturnOversizeBypassesPool(t *testing.T) {
	p := New(1240, 4)
	b := p.Get(2000)
	p.Return(b)
	if p.Len() != 0 {
		t.Errorf("returning an oversize buffer should not be accepted into the pool, got len %d", p.Len())
	}
}
