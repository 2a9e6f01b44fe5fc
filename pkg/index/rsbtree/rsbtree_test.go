package rsbtree

import (
	"math/rand/v2"
	"testing"

	"github.com/jihwankim/range-sampler/pkg/geo"
)

func genPoints(rng *rand.Rand, n, dims int) []geo.WPoint {
	points := make([]geo.WPoint, n)
	for i := range points {
		points[i] = geo.WPoint{
			P: geo.Point{
				X: float64(rng.IntN(20_000_001)-10_000_000) / 1e6,
				Y: float64(rng.IntN(20_000_001)-10_000_000) / 1e6,
			},
			Weight: 1,
		}
		if dims == 3 {
			points[i].P.Z = float64(rng.IntN(1000))
		}
	}
	return points
}

func TestRangeMatchesBruteForce(t *testing.T) {
	for _, dims := range []int{2, 3} {
		rng := rand.New(rand.NewPCG(50, uint64(dims)))
		points := genPoints(rng, 20_000, dims)
		tree, err := New(points, dims)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		for trial := 0; trial < 10; trial++ {
			q := geo.MBR{
				Low:  geo.Point{X: rng.Float64()*10 - 10, Y: rng.Float64()*10 - 10},
				High: geo.Point{X: rng.Float64() * 10, Y: rng.Float64() * 10},
			}
			if dims == 3 {
				q.Low.Z = 0
				q.High.Z = float64(rng.IntN(1000))
			}
			want := 0
			for _, wp := range points {
				if q.Contains(wp.P) {
					want++
				}
			}
			if got := len(tree.Range(q)); got != want {
				t.Errorf("dims=%d trial %d: Range returned %d points, brute force %d", dims, trial, got, want)
			}
		}
	}
}

func TestBufferedSamplingInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(51, 52))
	points := genPoints(rng, 20_000, 2)
	tree, err := New(points, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q := geo.MBR{Low: geo.Point{X: -3, Y: -3}, High: geo.Point{X: 3, Y: 3}}
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
}

func TestEmptyQueryReturnsEmpty(t *testing.T) {
	rng := rand.New(rand.NewPCG(53, 54))
	tree, err := New(genPoints(rng, 1000, 2), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	far := geo.MBR{Low: geo.Point{X: 100, Y: 100}, High: geo.Point{X: 101, Y: 101}}
	if got := tree.RangeSampling(far, 10); len(got) != 0 {
		t.Errorf("RangeSampling on disjoint query returned %d samples", len(got))
	}
}
