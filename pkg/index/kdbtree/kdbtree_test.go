package kdbtree

import (
	"math/rand/v2"
	"testing"

	"github.com/jihwankim/range-sampler/pkg/geo"
)

func genPoints(rng *rand.Rand, n int) []geo.WPoint {
	points := make([]geo.WPoint, n)
	for i := range points {
		points[i] = geo.WPoint{
			P: geo.Point{
				X: float64(rng.IntN(20_000_001)-10_000_000) / 1e6,
				Y: float64(rng.IntN(20_000_001)-10_000_000) / 1e6,
			},
			Weight: 1,
		}
	}
	return points
}

func TestRangeMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(40, 41))
	points := genPoints(rng, 20_000)
	tree, err := New(points, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for trial := 0; trial < 10; trial++ {
		q := geo.MBR{
			Low:  geo.Point{X: rng.Float64()*10 - 10, Y: rng.Float64()*10 - 10},
			High: geo.Point{X: rng.Float64() * 10, Y: rng.Float64() * 10},
		}
		want := 0
		for _, wp := range points {
			if q.Contains(wp.P) {
				want++
			}
		}
		if got := len(tree.Range(q)); got != want {
			t.Errorf("trial %d: Range returned %d points, brute force %d", trial, got, want)
		}
	}
}

func TestBufferedSamplingInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 43))
	points := genPoints(rng, 20_000)
	tree, err := New(points, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q := geo.MBR{Low: geo.Point{X: -3, Y: -3}, High: geo.Point{X: 3, Y: 3}}
	// Enough draws to exhaust several node buffers and force frontier
	// expansion plus refills.
	const k = 20_000
	samples := tree.RangeSampling(q, k)
	if len(samples) != k {
		t.Fatalf("returned %d samples, want exactly %d", len(samples), k)
	}
	for _, wp := range samples {
		if !q.Contains(wp.P) {
			t.Fatalf("sample %v outside query", wp.P)
		}
	}
	// The tree stays valid for a second query after buffer churn.
	again := tree.RangeSampling(q, 1000)
	if len(again) != 1000 {
		t.Fatalf("second query returned %d samples, want 1000", len(again))
	}
}

func TestSamplingCoversRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(44, 45))
	points := genPoints(rng, 3000)
	tree, err := New(points, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q := geo.MBR{Low: geo.Point{X: -2, Y: -2}, High: geo.Point{X: 2, Y: 2}}
	m := len(tree.Range(q))
	if m == 0 {
		t.Skip("query selected no points")
	}
	seen := map[geo.Point]bool{}
	for _, wp := range tree.RangeSampling(q, 50*m) {
		seen[wp.P] = true
	}
	if len(seen) < m*9/10 {
		t.Errorf("samples cover %d of %d in-range points", len(seen), m)
	}
}

func TestEmptyQueryReturnsEmpty(t *testing.T) {
	rng := rand.New(rand.NewPCG(46, 47))
	tree, err := New(genPoints(rng, 1000), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	far := geo.MBR{Low: geo.Point{X: 100, Y: 100}, High: geo.Point{X: 101, Y: 101}}
	if got := tree.RangeSampling(far, 10); len(got) != 0 {
		t.Errorf("RangeSampling on disjoint query returned %d samples", len(got))
	}
}
