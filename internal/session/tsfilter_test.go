package session

import "testing"

func TestTimestampNormalizerExactSequence(t *testing.T) {
	var n TimestampNormalizer
	steps := []struct{ in, want uint32 }{
		{0, 0},
		{1000, 1000},
		{2000, 2000},
		{1500, 1500}, // small regression tolerated
		{100, 1601},  // large regression re-anchors
	}
	for _, s := range steps {
		got := n.Normalize(s.in)
		if got != s.want {
			t.Fatalf("Normalize(%d) = %d, want %d", s.in, got, s.want)
		}
	}
}

func TestTimestampNormalizerReset(t *testing.T) {
	var n TimestampNormalizer
	n.Normalize(5000)
	n.Normalize(100) // triggers an offset
	n.Reset()
	if got := n.Normalize(0); got != 0 {
		t.Fatalf("expected clean state after Reset, got %d", got)
	}
}
