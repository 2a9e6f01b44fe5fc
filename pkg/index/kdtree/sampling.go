package kdtree

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jihwankim/range-sampler/pkg/alias"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/metrics"
	"github.com/jihwankim/range-sampler/pkg/sampling"
)

// lca returns the deepest node whose two children both intersect the query.
// Descending from it instead of the root prunes rejections at depths where
// the query sits strictly on one side of the split.
func (t *Tree) lca(query geo.MBR) int32 {
	now := t.root
	for {
		n := &t.nodes[now]
		if n.leaf() {
			return now
		}
		cnt := 0
		next := now
		if query.Intersects(t.nodes[n.left].bbox) {
			cnt++
			next = n.left
		}
		if query.Intersects(t.nodes[n.right].bbox) {
			cnt++
			next = n.right
		}
		if cnt != 1 {
			return now
		}
		now = next
	}
}

// olkenDraw performs one random descent from start; it returns the accepted
// point, or ok=false when the draw was rejected.
func (t *Tree) olkenDraw(query geo.MBR, start int32, rng *rand.Rand) (geo.WPoint, bool) {
	now := start
	for {
		n := &t.nodes[now]
		if n.leaf() {
			wp := t.data[n.start+n.pointAlias.Sample(rng.Float64(), rng.Float64())]
			return wp, query.Contains(wp.P)
		}
		if rng.Float64() < t.descendProb(n) {
			now = n.left
		} else {
			now = n.right
		}
		if !query.Intersects(t.nodes[now].bbox) {
			return geo.WPoint{}, false
		}
	}
}

// OlkenRangeSampling draws k samples by weighted random descent with
// rejection, restarting each rejected draw from the query's LCA node.
func (t *Tree) OlkenRangeSampling(query geo.MBR, k int) []geo.WPoint {
	samples := make([]geo.WPoint, 0, k)
	if len(t.data) == 0 || !query.Intersects(t.nodes[t.root].bbox) {
		return samples
	}
	start := t.lca(query)
	rng := sampling.New()
	for len(samples) < k {
		if wp, ok := t.olkenDraw(query, start, rng); ok {
			samples = append(samples, wp)
		} else {
			metrics.RejectionsTotal.WithLabelValues("kdo").Inc()
		}
	}
	return samples
}

// candidate is one element of a query decomposition: either a subtree fully
// contained by the query, or a partially overlapped leaf.
type candidate struct {
	node    int32
	partial bool
}

// decomposition is the result of splitting a query into fully-contained
// subtrees and partially-overlapping frontier leaves.
type decomposition struct {
	candidates []candidate
	weights    []float64
}

func (t *Tree) decompose(query geo.MBR) decomposition {
	var dec decomposition
	if len(t.data) == 0 || !query.Intersects(t.nodes[t.root].bbox) {
		return dec
	}
	stack := []int32{t.root}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		now := &t.nodes[idx]
		if query.ContainsMBR(now.bbox) {
			dec.candidates = append(dec.candidates, candidate{node: idx})
			dec.weights = append(dec.weights, now.weight)
			continue
		}
		if now.leaf() {
			dec.candidates = append(dec.candidates, candidate{node: idx, partial: true})
			dec.weights = append(dec.weights, now.weight)
			continue
		}
		if query.Intersects(t.nodes[now.left].bbox) {
			stack = append(stack, now.left)
		}
		if query.Intersects(t.nodes[now.right].bbox) {
			stack = append(stack, now.right)
		}
	}
	return dec
}

// drawFrom samples one point inside the given subtree, weight-proportionally.
func (t *Tree) drawFrom(idx int32, rng *rand.Rand) geo.WPoint {
	now := idx
	for {
		n := &t.nodes[now]
		if n.leaf() {
			return t.data[n.start+n.pointAlias.Sample(rng.Float64(), rng.Float64())]
		}
		if rng.Float64() < t.descendProb(n) {
			now = n.left
		} else {
			now = n.right
		}
	}
}

// sampleTwoLevel draws from a prepared decomposition until either k samples
// are collected (k >= 0) or the stop flag flips (k < 0).
func (t *Tree) sampleTwoLevel(query geo.MBR, dec decomposition, k int, stop *atomic.Bool) []geo.WPoint {
	var samples []geo.WPoint
	if len(dec.candidates) == 0 {
		return samples
	}
	top, err := alias.New(dec.weights)
	if err != nil {
		return samples
	}
	rng := sampling.New()
	for {
		if k >= 0 {
			if len(samples) >= k {
				return samples
			}
		} else if stop.Load() {
			return samples
		}
		c := dec.candidates[top.Sample(rng.Float64(), rng.Float64())]
		wp := t.drawFrom(c.node, rng)
		if !c.partial || query.Contains(wp.P) {
			samples = append(samples, wp)
		} else {
			metrics.RejectionsTotal.WithLabelValues("kds").Inc()
		}
	}
}

// RangeSampling draws k samples through the two-level decomposition scheme:
// a top-level alias over the decomposition candidates, then a weighted
// descent inside the chosen candidate. Only partially overlapped leaves can
// reject.
func (t *Tree) RangeSampling(query geo.MBR, k int) []geo.WPoint {
	return t.sampleTwoLevel(query, t.decompose(query), k, nil)
}

// spareSet is the no-reject supplement to a decomposition: the individual
// in-range points of every partially overlapped leaf, with their own alias.
type spareSet struct {
	offsets []int
	weight  float64
	table   *alias.Table
}

func (t *Tree) enumerateSpares(query geo.MBR, dec decomposition) (spareSet, error) {
	var s spareSet
	var weights []float64
	for _, c := range dec.candidates {
		if !c.partial {
			continue
		}
		n := &t.nodes[c.node]
		for i := n.start; i < n.end; i++ {
			if query.Contains(t.data[i].P) {
				s.offsets = append(s.offsets, i)
				weights = append(weights, t.data[i].Weight)
				s.weight += t.data[i].Weight
			}
		}
	}
	table, err := alias.New(weights)
	if err != nil {
		return s, err
	}
	s.table = table
	return s, nil
}

// sampleNoReject draws from full candidates plus the spare set; every draw
// lands in range.
func (t *Tree) sampleNoReject(dec decomposition, spares spareSet, k int, stop *atomic.Bool) []geo.WPoint {
	var samples []geo.WPoint
	full := make([]candidate, 0, len(dec.candidates))
	weights := make([]float64, 0, len(dec.candidates)+1)
	var sum float64
	for i, c := range dec.candidates {
		if !c.partial {
			full = append(full, c)
			weights = append(weights, dec.weights[i])
			sum += dec.weights[i]
		}
	}
	weights = append(weights, spares.weight)
	sum += spares.weight
	if sum == 0 && len(spares.offsets) == 0 && len(full) == 0 {
		return samples
	}
	top, err := alias.New(weights)
	if err != nil {
		return samples
	}
	rng := sampling.New()
	for {
		if k >= 0 {
			if len(samples) >= k {
				return samples
			}
		} else if stop.Load() {
			return samples
		}
		res := top.Sample(rng.Float64(), rng.Float64())
		if res == len(full) {
			if len(spares.offsets) == 0 {
				continue
			}
			samples = append(samples, t.data[spares.offsets[spares.table.Sample(rng.Float64(), rng.Float64())]])
		} else {
			samples = append(samples, t.drawFrom(full[res].node, rng))
		}
	}
}

// RangeSamplingNoReject draws k samples with the rejection-free variant:
// partially overlapped leaves are filtered into a spare set at decomposition
// time, so no draw is ever discarded.
func (t *Tree) RangeSamplingNoReject(query geo.MBR, k int) []geo.WPoint {
	dec := t.decompose(query)
	if len(dec.candidates) == 0 {
		return nil
	}
	spares, err := t.enumerateSpares(query, dec)
	if err != nil {
		return nil
	}
	return t.sampleNoReject(dec, spares, k, nil)
}

// throughput runs a bounded sampling loop for the given wall-clock period and
// logs the achieved rate.
func throughput(method string, period time.Duration, decompose func() int, sample func(stop *atomic.Bool) []geo.WPoint) []geo.WPoint {
	var stop atomic.Bool
	decStart := time.Now()
	n := decompose()
	decLatency := time.Since(decStart)

	timer := time.AfterFunc(period, func() { stop.Store(true) })
	defer timer.Stop()
	start := time.Now()
	samples := sample(&stop)
	elapsed := time.Since(start)

	ops := float64(len(samples)) / elapsed.Seconds()
	metrics.SamplesTotal.WithLabelValues(method).Add(float64(len(samples)))
	metrics.ThroughputOps.WithLabelValues(method).Set(ops)
	log.Info().
		Str("method", method).
		Dur("decomposition", decLatency).
		Int("candidates", n).
		Int("samples", len(samples)).
		Float64("ops_per_sec", ops).
		Msg("timed sampling run")
	return samples
}

// OlkenRangeSamplingThroughput runs Olken sampling for the given period.
func (t *Tree) OlkenRangeSamplingThroughput(query geo.MBR, period time.Duration) []geo.WPoint {
	if len(t.data) == 0 || !query.Intersects(t.nodes[t.root].bbox) {
		return nil
	}
	var start int32
	return throughput("kdo", period,
		func() int { start = t.lca(query); return 1 },
		func(stop *atomic.Bool) []geo.WPoint {
			var samples []geo.WPoint
			rng := sampling.New()
			for !stop.Load() {
				if wp, ok := t.olkenDraw(query, start, rng); ok {
					samples = append(samples, wp)
				}
			}
			return samples
		})
}

// RangeSamplingThroughput runs two-level sampling for the given period and
// logs the decomposition latency alongside the achieved ops/s.
func (t *Tree) RangeSamplingThroughput(query geo.MBR, period time.Duration) []geo.WPoint {
	var dec decomposition
	return throughput("kds", period,
		func() int { dec = t.decompose(query); return len(dec.candidates) },
		func(stop *atomic.Bool) []geo.WPoint {
			return t.sampleTwoLevel(query, dec, -1, stop)
		})
}

// RangeSamplingNoRejectThroughput runs the rejection-free sampler for the
// given period.
func (t *Tree) RangeSamplingNoRejectThroughput(query geo.MBR, period time.Duration) []geo.WPoint {
	var dec decomposition
	var spares spareSet
	return throughput("kdn", period,
		func() int {
			dec = t.decompose(query)
			spares, _ = t.enumerateSpares(query, dec)
			return len(dec.candidates)
		},
		func(stop *atomic.Bool) []geo.WPoint {
			return t.sampleNoReject(dec, spares, -1, stop)
		})
}
