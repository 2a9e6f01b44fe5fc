package zvtree

import (
	"math"
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

func bruteCount(points []geo.WPoint, q geo.MBR) int {
	count := 0
	for _, wp := range points {
		if q.Contains(wp.P) {
			count++
		}
	}
	return count
}

// Queries with grid-aligned corners so the quantised predicate matches the
// float predicate exactly.
func gridQuery(rng *rand.Rand, dims int) geo.MBR {
	lx := float64(rng.IntN(10_000_001)-10_000_000) / 1e6
	ly := float64(rng.IntN(10_000_001)-10_000_000) / 1e6
	q := geo.MBR{
		Low:  geo.Point{X: lx, Y: ly},
		High: geo.Point{X: lx + float64(rng.IntN(10_000_000))/1e6, Y: ly + float64(rng.IntN(10_000_000))/1e6},
	}
	if dims == 3 {
		q.High.Z = float64(rng.IntN(1000))
	}
	return q
}

func TestRangeMatchesBruteForce(t *testing.T) {
	for _, dims := range []int{2, 3} {
		rng := rand.New(rand.NewPCG(30, uint64(dims)))
		points := genPoints(rng, 30_000, dims)
		tree, err := New(points, dims)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if tree.Len() != len(points) {
			t.Fatalf("Len = %d, want %d", tree.Len(), len(points))
		}

		for trial := 0; trial < 20; trial++ {
			q := gridQuery(rng, dims)
			got := len(tree.Range(q))
			want := bruteCount(points, q)
			if got != want {
				t.Errorf("dims=%d trial %d: Range returned %d points, brute force %d", dims, trial, got, want)
			}
		}
	}
}

func TestRangeExample(t *testing.T) {
	points := []geo.WPoint{
		{P: geo.Point{X: -118.417606, Y: 33.756715}, Weight: 1},
		{P: geo.Point{X: -117.520446, Y: 47.58489}, Weight: 1},
		{P: geo.Point{X: -122.801398, Y: 38.381212}, Weight: 1},
	}
	tree, err := New(points, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q := geo.MBR{Low: geo.Point{X: -118.5, Y: 33.7}, High: geo.Point{X: -118.3, Y: 33.9}}
	res := tree.Range(q)
	if len(res) != 1 {
		t.Fatalf("Range returned %d points, want 1", len(res))
	}
	if res[0].P != points[0].P {
		t.Fatalf("Range returned %v, want %v", res[0].P, points[0].P)
	}
}

func TestSamplingInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(31, 32))
	points := genPoints(rng, 20_000, 2)
	tree, err := New(points, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q := geo.MBR{Low: geo.Point{X: -3, Y: -3}, High: geo.Point{X: 3, Y: 3}}
	const k = 5000
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

func TestWeightedSamplingFrequencies(t *testing.T) {
	points := []geo.WPoint{
		{P: geo.Point{X: 0.1, Y: 0.1}, Weight: 1},
		{P: geo.Point{X: 0.2, Y: 0.2}, Weight: 1},
		{P: geo.Point{X: 0.3, Y: 0.3}, Weight: 5},
		{P: geo.Point{X: 0.4, Y: 0.4}, Weight: 3},
		{P: geo.Point{X: 5, Y: 5}, Weight: 100},
	}
	tree, err := New(points, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q := geo.MBR{Low: geo.Point{X: 0, Y: 0}, High: geo.Point{X: 1, Y: 1}}
	const draws = 200_000
	counts := map[geo.Point]int{}
	for _, wp := range tree.RangeSampling(q, draws) {
		counts[wp.P]++
	}
	expected := map[geo.Point]float64{
		{X: 0.1, Y: 0.1}: 0.1,
		{X: 0.2, Y: 0.2}: 0.1,
		{X: 0.3, Y: 0.3}: 0.5,
		{X: 0.4, Y: 0.4}: 0.3,
	}
	for p, want := range expected {
		got := float64(counts[p]) / draws
		if math.Abs(got-want) > 0.01 {
			t.Errorf("point %v empirical %.4f, want %.4f +/- 0.01", p, got, want)
		}
	}
}

func TestDecomposeWeightsCoverRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(33, 34))
	points := genPoints(rng, 20_000, 2)
	tree, err := New(points, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q := gridQuery(rng, 2)
	total, top, intervals := tree.Decompose(q)
	inRange := bruteCount(points, q)
	if total < float64(inRange) {
		t.Errorf("decomposition weight %v below in-range count %d", total, inRange)
	}
	if inRange > 0 && (top == nil || len(intervals) == 0) {
		t.Error("non-empty range produced no decomposition")
	}
}

func TestEmptyTreeAndEmptyRange(t *testing.T) {
	tree, err := New(nil, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q := geo.MBR{Low: geo.Point{X: -1, Y: -1}, High: geo.Point{X: 1, Y: 1}}
	if got := tree.Range(q); len(got) != 0 {
		t.Errorf("Range on empty tree returned %d points", len(got))
	}
	if got := tree.RangeSampling(q, 5); len(got) != 0 {
		t.Errorf("RangeSampling on empty tree returned %d samples", len(got))
	}
}
