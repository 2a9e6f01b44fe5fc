// Package rsbtree implements the R-sampling buffer tree: the STR-packed
// skeleton of the R-sampling tree with a preloaded buffer of uniform samples
// on every internal node, amortising sampling cost across queries.
package rsbtree

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/slices"

	"github.com/jihwankim/range-sampler/pkg/alias"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/metrics"
	"github.com/jihwankim/range-sampler/pkg/sampling"
)

const (
	// LeafFanout bounds the number of points per leaf.
	LeafFanout = 256
	// NodeFanout bounds the number of children per internal node.
	NodeFanout = 25
	// BufferSize is the number of samples preloaded per internal node.
	BufferSize = 128
)

type node struct {
	bbox     geo.MBR
	count    int
	offset   int
	children []int32
	buffer   []geo.WPoint
	validPtr int
}

func (n *node) leaf() bool {
	return n.children == nil
}

// Tree is an R-sampling buffer tree. Sampling consumes and refills per-node
// buffers, so queries mutate the tree; it is not safe for concurrent use.
type Tree struct {
	nodes []node
	root  int32
	data  []geo.WPoint
	dims  int
}

func sortByCoord(points []geo.WPoint, axis int) {
	slices.SortFunc(points, func(a, b geo.WPoint) int {
		switch {
		case a.P.Coord(axis) < b.P.Coord(axis):
			return -1
		case a.P.Coord(axis) > b.P.Coord(axis):
			return 1
		default:
			return 0
		}
	})
}

func (t *Tree) leafFromData(points []geo.WPoint, offset int) int32 {
	t.nodes = append(t.nodes, node{
		bbox:   geo.FromWPoints(points),
		count:  len(points),
		offset: offset,
	})
	return int32(len(t.nodes) - 1)
}

func (t *Tree) nodeFromChildren(children []int32) int32 {
	n := node{
		bbox: geo.MBR{
			Low:  geo.Point{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
			High: geo.Point{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
		},
		children: append([]int32(nil), children...),
	}
	for _, c := range children {
		child := &t.nodes[c]
		n.bbox.Low.X = math.Min(n.bbox.Low.X, child.bbox.Low.X)
		n.bbox.Low.Y = math.Min(n.bbox.Low.Y, child.bbox.Low.Y)
		n.bbox.Low.Z = math.Min(n.bbox.Low.Z, child.bbox.Low.Z)
		n.bbox.High.X = math.Max(n.bbox.High.X, child.bbox.High.X)
		n.bbox.High.Y = math.Max(n.bbox.High.Y, child.bbox.High.Y)
		n.bbox.High.Z = math.Max(n.bbox.High.Z, child.bbox.High.Z)
		n.count += child.count
	}
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Tree) center(idx int32, axis int) float64 {
	b := &t.nodes[idx].bbox
	return b.Low.Coord(axis) + b.High.Coord(axis)
}

func (t *Tree) packLeaves(points []geo.WPoint) []int32 {
	length := len(points)
	leafCount := int(math.Ceil(float64(length) / LeafFanout))
	var slabsX, slabsY, slabsZ int
	if t.dims == 2 {
		slabsX = int(math.Ceil(math.Sqrt(float64(leafCount))))
		slabsY = int(math.Ceil(float64(leafCount) / float64(slabsX)))
	} else {
		slabsX = int(math.Ceil(math.Cbrt(float64(leafCount))))
		slabsY = slabsX
		slabsZ = int(math.Ceil(float64(leafCount) / float64(slabsX) / float64(slabsY)))
	}

	sortByCoord(points, 0)
	stepX := int(math.Ceil(float64(length) / float64(slabsX)))
	var leaves []int32
	for i := 0; i < length; i += stepX {
		sliceX := points[i:min(i+stepX, length)]
		sortByCoord(sliceX, 1)
		stepY := int(math.Ceil(float64(len(sliceX)) / float64(slabsY)))
		for j := 0; j < len(sliceX); j += stepY {
			sliceY := sliceX[j:min(j+stepY, len(sliceX))]
			if t.dims == 2 {
				leaves = append(leaves, t.leafFromData(sliceY, i+j))
				continue
			}
			sortByCoord(sliceY, 2)
			stepZ := int(math.Ceil(float64(len(sliceY)) / float64(slabsZ)))
			for k := 0; k < len(sliceY); k += stepZ {
				sliceZ := sliceY[k:min(k+stepZ, len(sliceY))]
				leaves = append(leaves, t.leafFromData(sliceZ, i+j+k))
			}
		}
	}
	return leaves
}

func (t *Tree) packLevel(level []int32) []int32 {
	count := int(math.Ceil(float64(len(level)) / NodeFanout))
	var slabsX, slabsY, slabsZ int
	if t.dims == 2 {
		slabsX = int(math.Ceil(math.Sqrt(float64(count))))
		slabsY = int(math.Ceil(float64(count) / float64(slabsX)))
	} else {
		slabsX = int(math.Ceil(math.Cbrt(float64(count))))
		slabsY = slabsX
		slabsZ = int(math.Ceil(float64(count) / float64(slabsX) / float64(slabsY)))
	}

	sortLevel := func(ids []int32, axis int) {
		slices.SortFunc(ids, func(a, b int32) int {
			ca, cb := t.center(a, axis), t.center(b, axis)
			switch {
			case ca < cb:
				return -1
			case ca > cb:
				return 1
			default:
				return 0
			}
		})
	}

	sortLevel(level, 0)
	length := len(level)
	stepX := int(math.Ceil(float64(length) / float64(slabsX)))
	var parents []int32
	for i := 0; i < length; i += stepX {
		sliceX := level[i:min(i+stepX, length)]
		sortLevel(sliceX, 1)
		stepY := int(math.Ceil(float64(len(sliceX)) / float64(slabsY)))
		for j := 0; j < len(sliceX); j += stepY {
			sliceY := sliceX[j:min(j+stepY, len(sliceX))]
			if t.dims == 2 {
				parents = append(parents, t.nodeFromChildren(sliceY))
				continue
			}
			sortLevel(sliceY, 2)
			stepZ := int(math.Ceil(float64(len(sliceY)) / float64(slabsZ)))
			for k := 0; k < len(sliceY); k += stepZ {
				parents = append(parents, t.nodeFromChildren(sliceY[k:min(k+stepZ, len(sliceY))]))
			}
		}
	}
	return parents
}

func (t *Tree) reorder(points []geo.WPoint) []geo.WPoint {
	layout := make([]geo.WPoint, 0, len(points))
	type frame struct {
		idx    int32
		offset int
	}
	stack := []frame{{t.root, 0}}
	for len(stack) > 0 {
		now := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[now.idx]
		if n.leaf() {
			layout = append(layout, points[n.offset:n.offset+n.count]...)
		} else {
			offset := now.offset + n.count
			for i := len(n.children) - 1; i >= 0; i-- {
				child := n.children[i]
				offset -= t.nodes[child].count
				stack = append(stack, frame{child, offset})
			}
		}
		n.offset = now.offset
	}
	return layout
}

// New bulk-loads an R-sampling buffer tree over a copy of the input.
func New(points []geo.WPoint, dims int) (*Tree, error) {
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("rsbtree: unsupported dimensionality %d", dims)
	}
	start := time.Now()
	data := make([]geo.WPoint, len(points))
	copy(data, points)
	t := &Tree{dims: dims}
	if len(data) == 0 {
		t.root = t.leafFromData(nil, 0)
		return t, nil
	}

	level := t.packLeaves(data)
	for int(math.Ceil(float64(len(level))/NodeFanout)) > 1 {
		level = t.packLevel(level)
	}
	t.root = t.nodeFromChildren(level)
	t.data = t.reorder(data)

	// Buffers draw from the reordered layout, so fill them last.
	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.leaf() {
			n.buffer = sampling.SampleFrom(t.data[n.offset:n.offset+n.count], BufferSize)
		}
	}
	metrics.ObserveBuild("rsb", time.Since(start), t.Size())
	return t, nil
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
		n := &t.nodes[i]
		size += 88 + 4*len(n.children) + len(n.buffer)*40
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
			for i := now.offset; i < now.offset+now.count; i++ {
				if query.Contains(t.data[i].P) {
					res = append(res, t.data[i])
				}
			}
			continue
		}
		for _, child := range now.children {
			if query.Intersects(t.nodes[child].bbox) {
				stack = append(stack, child)
			}
		}
	}
	return res
}

// RangeSampling draws k uniform samples from the query range through the
// frontier scheme: a top-level alias over frontier node sizes, buffered
// draws from internal nodes, and frontier expansion on buffer exhaustion.
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
			wp := t.data[n.offset+int(rng.Float64()*float64(n.count))]
			if query.Contains(wp.P) {
				samples = append(samples, wp)
			} else {
				metrics.RejectionsTotal.WithLabelValues("rtb").Inc()
			}
			continue
		}

		wp := n.buffer[n.validPtr]
		n.validPtr++
		if query.Contains(wp.P) {
			samples = append(samples, wp)
		} else {
			metrics.RejectionsTotal.WithLabelValues("rtb").Inc()
		}
		if n.validPtr < len(n.buffer) {
			continue
		}

		newFrontier := make([]int32, 0, len(frontier)+len(n.children))
		weights := make([]float64, 0, len(frontier)+len(n.children))
		for i, item := range frontier {
			if i != offset {
				newFrontier = append(newFrontier, item)
				weights = append(weights, float64(t.nodes[item].count))
				continue
			}
			for _, child := range n.children {
				if t.nodes[child].bbox.Intersects(query) {
					newFrontier = append(newFrontier, child)
					weights = append(weights, float64(t.nodes[child].count))
				}
			}
		}
		n.buffer = sampling.SampleFrom(t.data[n.offset:n.offset+n.count], BufferSize)
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
	metrics.SamplesTotal.WithLabelValues("rtb").Add(float64(len(samples)))
	metrics.ThroughputOps.WithLabelValues("rtb").Set(float64(len(samples)) / period.Seconds())
	return samples
}
