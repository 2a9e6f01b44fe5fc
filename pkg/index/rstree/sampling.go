package rstree

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

// lca descends while exactly one child intersects the query.
func (t *Tree) lca(query geo.MBR) int32 {
	now := t.root
	for {
		n := &t.nodes[now]
		if n.leaf() {
			return now
		}
		cnt := 0
		next := now
		for _, child := range n.children {
			if query.Intersects(t.nodes[child].bbox) {
				cnt++
				next = child
			}
		}
		if cnt != 1 {
			return now
		}
		now = next
	}
}

func (t *Tree) olkenDraw(query geo.MBR, start int32, rng *rand.Rand) (geo.WPoint, bool) {
	now := start
	for {
		n := &t.nodes[now]
		if n.leaf() {
			wp := t.data[n.offset+n.pointAlias.Sample(rng.Float64(), rng.Float64())]
			return wp, query.Contains(wp.P)
		}
		now = n.children[n.childAlias.Sample(rng.Float64(), rng.Float64())]
		if !query.Intersects(t.nodes[now].bbox) {
			return geo.WPoint{}, false
		}
	}
}

// OlkenRangeSampling draws k samples by random descent through the embedded
// child aliases with rejection, restarting from the query's LCA node.
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
			metrics.RejectionsTotal.WithLabelValues("rto").Inc()
		}
	}
	return samples
}

type candidate struct {
	node    int32
	partial bool
}

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
		for _, child := range now.children {
			if query.Intersects(t.nodes[child].bbox) {
				stack = append(stack, child)
			}
		}
	}
	return dec
}

func (t *Tree) drawFrom(idx int32, rng *rand.Rand) geo.WPoint {
	now := idx
	for {
		n := &t.nodes[now]
		if n.leaf() {
			return t.data[n.offset+n.pointAlias.Sample(rng.Float64(), rng.Float64())]
		}
		now = n.children[n.childAlias.Sample(rng.Float64(), rng.Float64())]
	}
}

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
			metrics.RejectionsTotal.WithLabelValues("rts").Inc()
		}
	}
}

// RangeSampling draws k samples through the two-level decomposition scheme.
func (t *Tree) RangeSampling(query geo.MBR, k int) []geo.WPoint {
	return t.sampleTwoLevel(query, t.decompose(query), k, nil)
}

// RangeSamplingNoReject filters partially overlapped leaves into a spare set
// at decomposition time so that no draw is ever discarded.
func (t *Tree) RangeSamplingNoReject(query geo.MBR, k int) []geo.WPoint {
	dec := t.decompose(query)
	if len(dec.candidates) == 0 {
		return nil
	}

	full := make([]candidate, 0, len(dec.candidates))
	weights := make([]float64, 0, len(dec.candidates)+1)
	var offsets []int
	var spareWeights []float64
	var spareTotal float64
	var sum float64
	for i, c := range dec.candidates {
		if !c.partial {
			full = append(full, c)
			weights = append(weights, dec.weights[i])
			sum += dec.weights[i]
			continue
		}
		n := &t.nodes[c.node]
		for j := n.offset; j < n.offset+n.count; j++ {
			if query.Contains(t.data[j].P) {
				offsets = append(offsets, j)
				spareWeights = append(spareWeights, t.data[j].Weight)
				spareTotal += t.data[j].Weight
			}
		}
	}
	weights = append(weights, spareTotal)
	if sum+spareTotal == 0 && len(offsets) == 0 && len(full) == 0 {
		return nil
	}
	top, err := alias.New(weights)
	if err != nil {
		return nil
	}
	spareAlias, err := alias.New(spareWeights)
	if err != nil {
		return nil
	}

	samples := make([]geo.WPoint, 0, k)
	rng := sampling.New()
	for len(samples) < k {
		res := top.Sample(rng.Float64(), rng.Float64())
		if res == len(full) {
			if len(offsets) == 0 {
				continue
			}
			samples = append(samples, t.data[offsets[spareAlias.Sample(rng.Float64(), rng.Float64())]])
		} else {
			samples = append(samples, t.drawFrom(full[res].node, rng))
		}
	}
	return samples
}

// RangeSamplingThroughput runs two-level sampling for the given period and
// logs the decomposition latency alongside the achieved ops/s.
func (t *Tree) RangeSamplingThroughput(query geo.MBR, period time.Duration) []geo.WPoint {
	var stop atomic.Bool
	decStart := time.Now()
	dec := t.decompose(query)
	decLatency := time.Since(decStart)

	timer := time.AfterFunc(period, func() { stop.Store(true) })
	defer timer.Stop()
	start := time.Now()
	samples := t.sampleTwoLevel(query, dec, -1, &stop)
	elapsed := time.Since(start)

	ops := float64(len(samples)) / elapsed.Seconds()
	metrics.SamplesTotal.WithLabelValues("rts").Add(float64(len(samples)))
	metrics.ThroughputOps.WithLabelValues("rts").Set(ops)
	log.Info().
		Str("method", "rts").
		Dur("decomposition", decLatency).
		Int("candidates", len(dec.candidates)).
		Int("samples", len(samples)).
		Float64("ops_per_sec", ops).
		Msg("timed sampling run")
	return samples
}
