package audio

import (
	"testing"
)

func TestBufferedStreamPlayDrain(t *testing.T) {
	s := NewBufferedStream(nil)
	s.Play([]float32{1, 2, 3})
	got := s.drainSend(5)
	want := []float32{1, 2, 3, 0, 0}
	if len(got) != len(want) {
		t.Fatalf("drainSend len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drainSend[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBufferedStreamDeliverRecord(t *testing.T) {
	s := NewBufferedStream(nil)
	s.deliver([]float32{1, 2})
	s.deliver([]float32{3})
	got := s.Record()
	want := []float32{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Record len = %d, want %d", len(got), len(want))
	}
	if len(s.Record()) != 0 {
		t.Errorf("second Record call should be empty after drain")
	}
}

func TestBufferedStreamOverflowTruncates(t *testing.T) {
	s := NewBufferedStream(nil)
	big := make([]float32, maxRecvBufSize+100)
	s.deliver(big)
	got := s.Record()
	if len(got) != maxRecvBufSize {
		t.Errorf("Record len after overflow = %d, want %d", len(got), maxRecvBufSize)
	}
}

func TestLoopbackStreamDeliversToPeer(t *testing.T) {
	a, b := NewLoopbackPair(nil, nil)
	a.Play([]float32{0.5, -0.5})
	if got := a.Record(); len(got) != 0 {
		t.Errorf("a.Record() after a.Play = %v, want empty (own recv untouched)", got)
	}
	got := b.Record()
	if len(got) != 2 || got[0] != 0.5 || got[1] != -0.5 {
		t.Errorf("b.Record() = %v, want [0.5 -0.5]", got)
	}
}
