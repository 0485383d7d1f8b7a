package random

import "testing"

// TestNewSourceIsDeterministic ensures equal seeds replay equal draws.
func TestNewSourceIsDeterministic(t *testing.T) {
	a := NewSource(42)
	b := NewSource(42)
	for i := 0; i < 16; i++ {
		if av, bv := a.Float64(), b.Float64(); av != bv {
			t.Fatalf("draw %d diverged: %v != %v", i, av, bv)
		}
		if av, bv := a.Intn(10), b.Intn(10); av != bv {
			t.Fatalf("intn draw %d diverged: %d != %d", i, av, bv)
		}
	}
}

// TestNewSeedVaries ensures consecutive seeds differ.
func TestNewSeedVaries(t *testing.T) {
	first, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed: %v", err)
	}
	second, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed: %v", err)
	}
	if first == second {
		t.Fatalf("consecutive seeds identical: %d", first)
	}
}
