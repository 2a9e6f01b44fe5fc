package zvtree

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jihwankim/range-sampler/pkg/alias"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/metrics"
	"github.com/jihwankim/range-sampler/pkg/sampling"
)

type candidate struct {
	node    int32
	partial bool
}

type decomposition struct {
	candidates []candidate
	weights    []float64
	total      float64
}

func (t *Tree) decompose(query geo.MBR) decomposition {
	var dec decomposition
	if len(t.codes) == 0 {
		return dec
	}
	low, high := t.scaledQuery(query)
	t.walk(t.root, 0, low, high, func(idx int32, partial bool) {
		n := &t.nodes[idx]
		w := t.intervalWeight(n.start, n.end)
		dec.candidates = append(dec.candidates, candidate{node: idx, partial: partial})
		dec.weights = append(dec.weights, w)
		dec.total += w
	})
	return dec
}

// drawFrom samples one offset inside the subtree, weight-proportionally,
// descending through the embedded child aliases.
func (t *Tree) drawFrom(idx int32, rng interface{ Float64() float64 }) int {
	now := idx
	for {
		n := &t.nodes[now]
		if n.leaf() {
			return n.start + n.pointAlias.Sample(rng.Float64(), rng.Float64())
		}
		now = n.children[n.childAlias.Sample(rng.Float64(), rng.Float64())]
	}
}

func (t *Tree) sample(query geo.MBR, dec decomposition, k int, stop *atomic.Bool) []geo.WPoint {
	var samples []geo.WPoint
	if len(dec.candidates) == 0 {
		return samples
	}
	top, err := alias.New(dec.weights)
	if err != nil {
		return samples
	}
	low, high := t.scaledQuery(query)
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
		offset := t.drawFrom(c.node, rng)
		if !c.partial || t.CheckBound(offset, low, high) {
			samples = append(samples, t.PointAt(offset))
		} else {
			metrics.RejectionsTotal.WithLabelValues("zvs").Inc()
		}
	}
}

// RangeSampling draws k samples through a top-level alias over the candidate
// intervals; only partially overlapped leaves reject.
func (t *Tree) RangeSampling(query geo.MBR, k int) []geo.WPoint {
	return t.sample(query, t.decompose(query), k, nil)
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
	samples := t.sample(query, dec, -1, &stop)
	elapsed := time.Since(start)

	ops := float64(len(samples)) / elapsed.Seconds()
	metrics.SamplesTotal.WithLabelValues("zvs").Add(float64(len(samples)))
	metrics.ThroughputOps.WithLabelValues("zvs").Set(ops)
	log.Info().
		Str("method", "zvs").
		Dur("decomposition", decLatency).
		Int("candidates", len(dec.candidates)).
		Int("samples", len(samples)).
		Float64("ops_per_sec", ops).
		Msg("timed sampling run")
	return samples
}
