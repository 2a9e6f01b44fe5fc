// Package kdtree implements the KD sampling tree: a median-split tree over a
// weighted point set supporting range reporting and several independent
// range-sampling algorithms (Olken rejection, two-level decomposition, a
// no-reject variant, and a timed three-stage hybrid).
package kdtree

import (
	"fmt"
	"runtime"
	"time"

	"github.com/jihwankim/range-sampler/pkg/alias"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/metrics"
	"github.com/jihwankim/range-sampler/pkg/sampling"
)

// LeafThreshold is the subtree size below which recursion stops.
const LeafThreshold = 256

const noChild = int32(-1)

type node struct {
	bbox       geo.MBR
	weight     float64
	start, end int
	left       int32
	right      int32
	pointAlias *alias.Table // leaves only
}

func (n *node) leaf() bool {
	return n.left == noChild
}

func (n *node) count() int {
	return n.end - n.start
}

// Tree is an immutable KD sampling tree. The points are permuted into a
// compact backing array during construction; every node owns a contiguous
// range of it. The tree also owns a worker pool used by the hybrid sampler;
// Close releases it.
type Tree struct {
	nodes []node
	root  int32
	data  []geo.WPoint
	dims  int
	pool  *workerPool
}

// New builds a KD sampling tree over a copy of the input. dims selects the
// split-axis cycle (2 or 3). Construction with zero points is valid; every
// query on the result returns empty.
func New(points []geo.WPoint, dims int) (*Tree, error) {
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("kdtree: unsupported dimensionality %d", dims)
	}
	start := time.Now()
	data := make([]geo.WPoint, len(points))
	copy(data, points)
	t := &Tree{
		nodes: make([]node, 0, 2*len(data)/LeafThreshold+1),
		data:  data,
		dims:  dims,
	}
	root, err := t.build(data, 0, 0, len(data), geo.FromWPoints(data))
	if err != nil {
		return nil, err
	}
	t.root = root
	t.pool = newWorkerPool(runtime.NumCPU())
	metrics.ObserveBuild("kd", time.Since(start), t.Size())
	return t, nil
}

func (t *Tree) build(points []geo.WPoint, level, start, end int, bbox geo.MBR) (int32, error) {
	if len(points) < LeafThreshold {
		weights := make([]float64, len(points))
		var sum float64
		for i, wp := range points {
			weights[i] = wp.Weight
			sum += wp.Weight
		}
		table, err := alias.New(weights)
		if err != nil {
			return noChild, fmt.Errorf("kdtree: leaf alias: %w", err)
		}
		t.nodes = append(t.nodes, node{
			bbox:       bbox,
			weight:     sum,
			start:      start,
			end:        end,
			left:       noChild,
			right:      noChild,
			pointAlias: table,
		})
		return int32(len(t.nodes) - 1), nil
	}

	axis := level % t.dims
	mid := len(points) / 2
	split := sampling.SelectKth(points, mid, func(a, b geo.WPoint) bool {
		return a.P.Coord(axis) < b.P.Coord(axis)
	})
	leftBox, rightBox := bbox, bbox
	leftBox.High = leftBox.High.WithCoord(axis, split.P.Coord(axis))
	rightBox.Low = rightBox.Low.WithCoord(axis, split.P.Coord(axis))

	left, err := t.build(points[:mid], level+1, start, start+mid, leftBox)
	if err != nil {
		return noChild, err
	}
	right, err := t.build(points[mid:], level+1, start+mid, end, rightBox)
	if err != nil {
		return noChild, err
	}
	t.nodes = append(t.nodes, node{
		bbox:   bbox,
		weight: t.nodes[left].weight + t.nodes[right].weight,
		start:  start,
		end:    end,
		left:   left,
		right:  right,
	})
	return int32(len(t.nodes) - 1), nil
}

// Close releases the worker pool. The tree itself stays usable for
// single-threaded queries afterwards.
func (t *Tree) Close() {
	if t.pool != nil {
		t.pool.Close()
		t.pool = nil
	}
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
		size += 88
		if t.nodes[i].pointAlias != nil {
			size += t.nodes[i].pointAlias.Size()
		}
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

// descendProb returns the probability of descending into the left child.
func (t *Tree) descendProb(n *node) float64 {
	left := &t.nodes[n.left]
	if n.weight == 0 {
		// Degenerate all-zero weights: fall back to size-proportional descent
		// so draws still terminate uniformly.
		return float64(left.count()) / float64(n.count())
	}
	return left.weight / n.weight
}
