// Package kdbtree implements the KD buffer tree: a KD skeleton whose
// internal nodes carry a preloaded buffer of uniform samples from their own
// subtree. Samples paid for at build time amortise across queries; when a
// subtree is fully inside the query, buffered samples are reused without any
// rejection.
package kdbtree

import (
	"fmt"
	"time"

	"github.com/jihwankim/range-sampler/pkg/alias"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/metrics"
	"github.com/jihwankim/range-sampler/pkg/sampling"
)

const (
	// BufferSize is the number of samples preloaded per internal node.
	BufferSize = 128
	// LeafThreshold keeps leaves large enough to refill a buffer from.
	LeafThreshold = 2 * BufferSize
)

const noChild = int32(-1)

type node struct {
	bbox       geo.MBR
	start, end int
	left       int32
	right      int32
	buffer     []geo.WPoint
	validPtr   int
}

func (n *node) leaf() bool {
	return n.left == noChild
}

func (n *node) count() int {
	return n.end - n.start
}

// Tree is a KD buffer tree. Sampling consumes and refills per-node buffers,
// so queries mutate the tree; it is not safe for concurrent use.
type Tree struct {
	nodes []node
	root  int32
	data  []geo.WPoint
	dims  int
}

// New builds a KD buffer tree over a copy of the input.
func New(points []geo.WPoint, dims int) (*Tree, error) {
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("kdbtree: unsupported dimensionality %d", dims)
	}
	start := time.Now()
	data := make([]geo.WPoint, len(points))
	copy(data, points)
	t := &Tree{data: data, dims: dims}
	t.root = t.build(data, 0, 0, len(data), geo.FromWPoints(data))
	metrics.ObserveBuild("kdb", time.Since(start), t.Size())
	return t, nil
}

func (t *Tree) build(points []geo.WPoint, level, start, end int, bbox geo.MBR) int32 {
	if len(points) < LeafThreshold {
		t.nodes = append(t.nodes, node{
			bbox:  bbox,
			start: start,
			end:   end,
			left:  noChild,
			right: noChild,
		})
		return int32(len(t.nodes) - 1)
	}

	axis := level % t.dims
	mid := len(points) / 2
	split := sampling.SelectKth(points, mid, func(a, b geo.WPoint) bool {
		return a.P.Coord(axis) < b.P.Coord(axis)
	})
	leftBox, rightBox := bbox, bbox
	leftBox.High = leftBox.High.WithCoord(axis, split.P.Coord(axis))
	rightBox.Low = rightBox.Low.WithCoord(axis, split.P.Coord(axis))

	left := t.build(points[:mid], level+1, start, start+mid, leftBox)
	right := t.build(points[mid:], level+1, start+mid, end, rightBox)
	t.nodes = append(t.nodes, node{
		bbox:   bbox,
		start:  start,
		end:    end,
		left:   left,
		right:  right,
		buffer: sampling.SampleFrom(points, BufferSize),
	})
	return int32(len(t.nodes) - 1)
}

// Dims returns the dimensionality the tree was built with.
func (t *Tree) Dims() int {
	return t.dims
}

// Len returns the number of indexed points.
func (t *Tree) Len() int {
	return len(t.data)
}

// Size reports the total resident footprint in bytes.
func (t *Tree) Size() int {
	size := len(t.data) * 40
	for i := range t.nodes {
		size += 96 + len(t.nodes[i].buffer)*40
	}
	return size
}

// Range returns every indexed point inside the query rectangle.
func (t *Tree) Range(query geo.MBR) []geo.WPoint {
	var res []geo.WPoint
	if len(t.data) == 0 || !query.Intersects(t.nodes[t.root].bbox) {
		return res
	}
	stack := []int32{t.root}
	for len(stack) > 0 {
		now := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if now.leaf() {
			for i := now.start; i < now.end; i++ {
				if query.Contains(t.data[i].P) {
					res = append(res, t.data[i])
				}
			}
			continue
		}
		if query.Intersects(t.nodes[now.left].bbox) {
			stack = append(stack, now.left)
		}
		if query.Intersects(t.nodes[now.right].bbox) {
			stack = append(stack, now.right)
		}
	}
	return res
}

// RangeSampling draws k uniform samples from the query range. The sampler
// maintains a frontier of nodes with a top-level alias over their sizes;
// internal frontier nodes serve draws from their buffers, and an exhausted
// node is replaced by its intersecting children while its buffer refills.
func (t *Tree) RangeSampling(query geo.MBR, k int) []geo.WPoint {
	samples := make([]geo.WPoint, 0, k)
	if len(t.data) == 0 || !query.Intersects(t.nodes[t.root].bbox) {
		return samples
	}
	frontier := []int32{t.root}
	top := alias.Uniform(1)
	rng := sampling.New()
	for len(samples) < k {
		offset := top.Sample(rng.Float64(), rng.Float64())
		idx := frontier[offset]
		n := &t.nodes[idx]
		if n.leaf() {
			wp := t.data[n.start+int(rng.Float64()*float64(n.count()))]
			if query.Contains(wp.P) {
				samples = append(samples, wp)
			} else {
				metrics.RejectionsTotal.WithLabelValues("kdb").Inc()
			}
			continue
		}

		wp := n.buffer[n.validPtr]
		n.validPtr++
		if query.Contains(wp.P) {
			samples = append(samples, wp)
		} else {
			metrics.RejectionsTotal.WithLabelValues("kdb").Inc()
		}
		if n.validPtr < len(n.buffer) {
			continue
		}

		// Expand the frontier: replace the exhausted node by its
		// intersecting children, then refill its buffer for later queries.
		newFrontier := make([]int32, 0, len(frontier)+1)
		weights := make([]float64, 0, len(frontier)+1)
		for i, item := range frontier {
			if i != offset {
				newFrontier = append(newFrontier, item)
				weights = append(weights, float64(t.nodes[item].count()))
				continue
			}
			for _, child := range []int32{n.left, n.right} {
				if t.nodes[child].bbox.Intersects(query) {
					newFrontier = append(newFrontier, child)
					weights = append(weights, float64(t.nodes[child].count()))
				}
			}
		}
		n.buffer = sampling.SampleFrom(t.data[n.start:n.end], BufferSize)
		n.validPtr = 0
		frontier = newFrontier
		table, err := alias.New(weights)
		if err != nil {
			return samples
		}
		top = table
	}
	return samples
}

// RangeSamplingThroughput repeatedly draws batches until the period elapses.
func (t *Tree) RangeSamplingThroughput(query geo.MBR, period time.Duration) []geo.WPoint {
	deadline := time.Now().Add(period)
	var samples []geo.WPoint
	for time.Now().Before(deadline) {
		samples = append(samples, t.RangeSampling(query, 1024)...)
		if len(samples) == 0 {
			break
		}
	}
	metrics.SamplesTotal.WithLabelValues("kdb").Add(float64(len(samples)))
	metrics.ThroughputOps.WithLabelValues("kdb").Set(float64(len(samples)) / period.Seconds())
	return samples
}
