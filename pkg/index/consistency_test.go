package index_test

import (
	"math/rand/v2"
	"testing"

	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/index"
	"github.com/jihwankim/range-sampler/pkg/index/kdtree"
	"github.com/jihwankim/range-sampler/pkg/index/rstree"
	"github.com/jihwankim/range-sampler/pkg/index/zvtree"
)

// genPoints snaps coordinates onto the quantisation grid so the Z-value tree
// reports points identical to the coordinate-preserving indices.
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

// All three coordinate indices must agree with brute force on range counts
// and, under heavy sampling, agree on the exact set of points that can ever
// be returned.
func TestIndicesAgreeOnRangeAndSampleSets(t *testing.T) {
	rng := rand.New(rand.NewPCG(70, 71))
	points := genPoints(rng, 50_000)

	kd, err := kdtree.New(points, 2)
	if err != nil {
		t.Fatalf("kdtree.New: %v", err)
	}
	defer kd.Close()
	rs, err := rstree.New(points, 2)
	if err != nil {
		t.Fatalf("rstree.New: %v", err)
	}
	zv, err := zvtree.New(points, 2)
	if err != nil {
		t.Fatalf("zvtree.New: %v", err)
	}

	indices := map[string]index.Index{"kd": kd, "rs": rs, "zv": zv}

	q := geo.MBR{Low: geo.Point{X: -1, Y: -1}, High: geo.Point{X: 1, Y: 1}}
	inRange := map[geo.Point]bool{}
	for _, wp := range points {
		if q.Contains(wp.P) {
			inRange[wp.P] = true
		}
	}
	m := len(inRange)
	if m == 0 {
		t.Fatal("query selected no points")
	}

	for name, idx := range indices {
		if got := len(idx.Range(q)); got != m {
			t.Errorf("%s: Range returned %d points, want %d", name, got, m)
		}
	}

	// Heavy sampling must only ever surface in-range points, and should
	// surface essentially all of them.
	k := 40 * m
	for name, idx := range indices {
		seen := map[geo.Point]bool{}
		for _, wp := range idx.RangeSampling(q, k) {
			if !inRange[wp.P] {
				t.Fatalf("%s: sampled point %v is not in range", name, wp.P)
			}
			seen[wp.P] = true
		}
		if len(seen) < m*9/10 {
			t.Errorf("%s: samples cover %d of %d in-range points", name, len(seen), m)
		}
	}
}
