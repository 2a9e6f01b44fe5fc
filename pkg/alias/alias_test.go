package alias

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestEmpiricalDistribution(t *testing.T) {
	weights := []float64{1, 1, 5, 3}
	expected := []float64{0.1, 0.1, 0.5, 0.3}
	table, err := New(weights)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const draws = 1_000_000
	counts := make([]int, len(weights))
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	for i := 0; i < draws; i++ {
		counts[table.Sample(rng.Float64(), rng.Float64())]++
	}
	for i, want := range expected {
		got := float64(counts[i]) / draws
		if math.Abs(got-want) > 0.005 {
			t.Errorf("item %d: empirical %.4f, want %.4f +/- 0.005", i, got, want)
		}
	}
}

func TestZeroWeightsDegenerateToUniform(t *testing.T) {
	table, err := New([]float64{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	const draws = 100_000
	counts := make([]int, 4)
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	for i := 0; i < draws; i++ {
		counts[table.Sample(rng.Float64(), rng.Float64())]++
	}
	for i, c := range counts {
		got := float64(c) / draws
		if math.Abs(got-0.25) > 0.02 {
			t.Errorf("item %d: empirical %.4f, want 0.25 +/- 0.02", i, got)
		}
	}
}

func TestNegativeWeightRejected(t *testing.T) {
	if _, err := New([]float64{1, -2, 3}); !errors.Is(err, ErrNegativeWeight) {
		t.Fatalf("expected ErrNegativeWeight, got %v", err)
	}
}

func TestZeroProbabilityItemNeverDrawn(t *testing.T) {
	table, err := New([]float64{3, 0, 7})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	for i := 0; i < 100_000; i++ {
		if table.Sample(rng.Float64(), rng.Float64()) == 1 {
			t.Fatal("drew an item with zero weight")
		}
	}
}

func TestUniform(t *testing.T) {
	table := Uniform(7)
	if table.Len() != 7 {
		t.Fatalf("Len = %d, want 7", table.Len())
	}
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	seen := make(map[int]bool)
	for i := 0; i < 10_000; i++ {
		idx := table.Sample(rng.Float64(), rng.Float64())
		if idx < 0 || idx >= 7 {
			t.Fatalf("index %d out of range", idx)
		}
		seen[idx] = true
	}
	if len(seen) != 7 {
		t.Errorf("only %d of 7 items ever drawn", len(seen))
	}
}
