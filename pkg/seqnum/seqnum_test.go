package seqnum

import "testing"

func TestNextPrevRoundTrip(t *testing.T) {
	for _, s := range []uint16{0, 1, 100, 32767, 32768, 65533, 65534} {
		if got := Next(Prev(s)); got != s {
			t.Errorf("Next(Prev(%d)) = %d, want %d", s, got, s)
		}
		if got := Prev(Next(s)); got != s {
			t.Errorf("Prev(Next(%d)) = %d, want %d", s, got, s)
		}
	}
}

func TestNextWraps(t *testing.T) {
	if got := Next(Max); got != 0 {
		t.Errorf("Next(Max) = %d, want 0", got)
	}
	if got := Prev(0); got != Max {
		t.Errorf("Prev(0) = %d, want Max(%d)", got, Max)
	}
}

func TestIsGreaterAcrossWrap(t *testing.T) {
	for s := uint16(0); s <= Max; s++ {
		if !IsGreater(Next(s), s) {
			t.Fatalf("IsGreater(Next(%d)=%d, %d) should be true", s, Next(s), s)
		}
	}
}

func TestIsGreaterBasic(t *testing.T) {
	cases := []struct {
		a, b uint16
		want bool
	}{
		{10, 5, true},
		{5, 10, false},
		{5, 5, false},
		{0, Max, true},    // wraparound: 0 is ahead of Max
		{Max, 0, false},
		{40000, 100, false}, // far apart: the gap exceeds halfSpan, so a is NOT considered ahead
	}
	for _, c := range cases {
		if got := IsGreater(c.a, c.b); got != c.want {
			t.Errorf("IsGreater(%d, %d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestIsLessIsInverseOfIsGreater(t *testing.T) {
	for _, s2 := range []uint16{0, 1000, 32768, 65000} {
		s1 := Next(s2)
		if !IsLess(s2, s1) {
			t.Errorf("IsLess(%d, %d) should be true", s2, s1)
		}
	}
}

func TestEqualOrVariants(t *testing.T) {
	if !IsEqualOrGreater(10, 10) {
		t.Error("IsEqualOrGreater(10, 10) should be true")
	}
	if !IsEqualOrLess(10, 10) {
		t.Error("IsEqualOrLess(10, 10) should be true")
	}
	if !IsEqualOrGreater(11, 10) {
		t.Error("IsEqualOrGreater(11, 10) should be true")
	}
}
