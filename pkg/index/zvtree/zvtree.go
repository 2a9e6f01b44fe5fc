// Package zvtree implements the Z-value tree: a quadtree (2-D) or octree
// (3-D) built over the Morton codes of the input points. Each internal node
// splits the universe by the next dims bits of the code prefix; leaves index
// contiguous slices of the code-sorted backing array.
package zvtree

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/exp/slices"

	"github.com/jihwankim/range-sampler/pkg/alias"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/metrics"
)

const (
	// MaxEntriesPerNode bounds the number of points per leaf.
	MaxEntriesPerNode = 256
	// maxLevel is the deepest split; codes carry 32 bits per dimension.
	maxLevel = 32
)

const noNode = int32(-1)

type node struct {
	children   []int32 // nil for leaves; length 2^dims otherwise
	start, end int
	childAlias *alias.Table
	pointAlias *alias.Table
}

func (n *node) leaf() bool {
	return n.children == nil
}

// Tree is an immutable Z-value tree over code-sorted points.
type Tree struct {
	nodes   []node
	root    int32
	codes   []geo.Code
	weights []float64
	prefix  []float64 // prefix[i] = sum of weights[:i]
	dims    int
}

// Interval is one element of a query decomposition: a contiguous slice of
// the sorted code array. Partial intervals require a per-sample bound check.
type Interval struct {
	Start, End int
	Partial    bool
}

// New builds a Z-value tree over the Morton codes of the input points.
func New(points []geo.WPoint, dims int) (*Tree, error) {
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("zvtree: unsupported dimensionality %d", dims)
	}
	type entry struct {
		code geo.Code
		w    float64
	}
	entries := make([]entry, len(points))
	for i, wp := range points {
		if wp.Weight < 0 {
			return nil, fmt.Errorf("zvtree: %w", alias.ErrNegativeWeight)
		}
		entries[i] = entry{code: geo.Encode(wp.P, dims), w: wp.Weight}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return a.code.Cmp(b.code)
	})
	codes := make([]geo.Code, len(entries))
	weights := make([]float64, len(entries))
	for i, e := range entries {
		codes[i] = e.code
		weights[i] = e.w
	}
	return build(codes, weights, dims)
}

// FromSortedCodes builds a tree over an already code-sorted array with
// uniform weights. Used by the LSM levels.
func FromSortedCodes(codes []geo.Code, dims int) (*Tree, error) {
	weights := make([]float64, len(codes))
	for i := range weights {
		weights[i] = 1
	}
	return build(codes, weights, dims)
}

func build(codes []geo.Code, weights []float64, dims int) (*Tree, error) {
	start := time.Now()
	t := &Tree{
		codes:   codes,
		weights: weights,
		prefix:  make([]float64, len(weights)+1),
		dims:    dims,
	}
	for i, w := range weights {
		t.prefix[i+1] = t.prefix[i] + w
	}
	root, err := t.build(0, geo.Code{}, 0, len(codes))
	if err != nil {
		return nil, err
	}
	t.root = root
	metrics.ObserveBuild("zv", time.Since(start), t.Size())
	return t, nil
}

// intervalWeight is the summed weight of codes[start:end].
func (t *Tree) intervalWeight(start, end int) float64 {
	return t.prefix[end] - t.prefix[start]
}

// lowerBound returns the first offset in [start, end) whose code is >= bound.
func (t *Tree) lowerBound(start, end int, bound geo.Code) int {
	return start + sort.Search(end-start, func(i int) bool {
		return !t.codes[start+i].Less(bound)
	})
}

func (t *Tree) build(level int, highBits geo.Code, start, end int) (int32, error) {
	if level == maxLevel || end-start <= MaxEntriesPerNode {
		table, err := alias.New(t.weights[start:end])
		if err != nil {
			return noNode, fmt.Errorf("zvtree: leaf alias: %w", err)
		}
		t.nodes = append(t.nodes, node{start: start, end: end, pointAlias: table})
		return int32(len(t.nodes) - 1), nil
	}

	branch := 1 << t.dims
	shift := (31 - level) * t.dims
	children := make([]int32, branch)
	weights := make([]float64, branch)
	childStart := start
	for c := 0; c < branch; c++ {
		childEnd := end
		if c+1 < branch {
			childEnd = t.lowerBound(childStart, end, highBits.OrShift(uint64(c+1), shift))
		}
		idx, err := t.build(level+1, highBits.OrShift(uint64(c), shift), childStart, childEnd)
		if err != nil {
			return noNode, err
		}
		children[c] = idx
		weights[c] = t.intervalWeight(childStart, childEnd)
		childStart = childEnd
	}
	table, err := alias.New(weights)
	if err != nil {
		return noNode, fmt.Errorf("zvtree: child alias: %w", err)
	}
	t.nodes = append(t.nodes, node{
		children:   children,
		start:      start,
		end:        end,
		childAlias: table,
	})
	return int32(len(t.nodes) - 1), nil
}

// Dims returns the dimensionality the tree was built with.
func (t *Tree) Dims() int {
	return t.dims
}

// Len returns the number of indexed points.
func (t *Tree) Len() int {
	return len(t.codes)
}

// Codes exposes the sorted backing array; the LSM merge reads it.
func (t *Tree) Codes() []geo.Code {
	return t.codes
}

// PointAt decodes the point stored at the given offset.
func (t *Tree) PointAt(offset int) geo.WPoint {
	return geo.WPoint{P: geo.Decode(t.codes[offset], t.dims), Weight: t.weights[offset]}
}

// Size reports the total resident footprint in bytes.
func (t *Tree) Size() int {
	size := len(t.codes)*16 + len(t.weights)*8 + len(t.prefix)*8
	for i := range t.nodes {
		n := &t.nodes[i]
		size += 32 + 4*len(n.children)
		if n.childAlias != nil {
			size += n.childAlias.Size()
		}
		if n.pointAlias != nil {
			size += n.pointAlias.Size()
		}
	}
	return size
}

// CheckBound reports whether the point at the given offset lies inside the
// quantised query bounds.
func (t *Tree) CheckBound(offset int, low, high [3]uint32) bool {
	x, y, z := geo.Decompose(t.codes[offset], t.dims)
	if x < low[0] || x > high[0] || y < low[1] || y > high[1] {
		return false
	}
	if t.dims == 3 && (z < low[2] || z > high[2]) {
		return false
	}
	return true
}

// scaledQuery quantises a query rectangle onto the grid.
func (t *Tree) scaledQuery(query geo.MBR) (low, high [3]uint32) {
	lx, ly, lz := query.Low.Scaled()
	hx, hy, hz := query.High.Scaled()
	low = [3]uint32{lx, ly, lz}
	high = [3]uint32{hx, hy, hz}
	return low, high
}

// childBit extracts the per-axis half (0 = low, 1 = high) for child c.
func (t *Tree) childBit(c, axis int) uint32 {
	return uint32(c>>(t.dims-1-axis)) & 1
}

// covered reports whether the query covers this node's whole cell along
// every axis at the given level.
func (t *Tree) covered(level int, low, high [3]uint32) bool {
	curbit := uint32(1) << (31 - level)
	lowbit := curbit - 1
	for d := 0; d < t.dims; d++ {
		if low[d]&curbit != 0 || low[d]&lowbit != 0 ||
			high[d]&curbit == 0 || high[d]&lowbit != lowbit {
			return false
		}
	}
	return true
}

// walk visits the decomposition of the query: fully covered nodes and
// partially overlapped leaves.
func (t *Tree) walk(idx int32, level int, low, high [3]uint32, visit func(idx int32, partial bool)) {
	n := &t.nodes[idx]
	if level < maxLevel && t.covered(level, low, high) {
		if n.end-n.start > 0 {
			visit(idx, false)
		}
		return
	}
	if n.leaf() {
		if n.end-n.start > 0 {
			visit(idx, true)
		}
		return
	}

	curbit := uint32(1) << (31 - level)
	lowbit := curbit - 1
	highmask := ^(curbit | lowbit)
	var center [3]uint32
	for d := 0; d < t.dims; d++ {
		center[d] = (low[d] & highmask) | curbit
	}
	for c := range n.children {
		childLow, childHigh := low, high
		ok := true
		for d := 0; d < t.dims; d++ {
			if t.childBit(c, d) == 0 {
				if low[d]&curbit != 0 {
					ok = false
					break
				}
				childHigh[d] = min(center[d]-1, high[d])
			} else {
				if high[d]&curbit == 0 {
					ok = false
					break
				}
				childLow[d] = max(center[d], low[d])
			}
		}
		if ok {
			t.walk(n.children[c], level+1, childLow, childHigh, visit)
		}
	}
}

// Range returns every indexed point inside the query rectangle.
func (t *Tree) Range(query geo.MBR) []geo.WPoint {
	var res []geo.WPoint
	if len(t.codes) == 0 {
		return res
	}
	low, high := t.scaledQuery(query)
	t.walk(t.root, 0, low, high, func(idx int32, partial bool) {
		n := &t.nodes[idx]
		for i := n.start; i < n.end; i++ {
			if !partial || t.CheckBound(i, low, high) {
				res = append(res, t.PointAt(i))
			}
		}
	})
	return res
}

// Decompose splits the query into candidate intervals with their summed
// weights and a top-level alias. The LSM wrapper samples through it.
func (t *Tree) Decompose(query geo.MBR) (total float64, top *alias.Table, intervals []Interval) {
	if len(t.codes) == 0 {
		return 0, nil, nil
	}
	low, high := t.scaledQuery(query)
	var weights []float64
	t.walk(t.root, 0, low, high, func(idx int32, partial bool) {
		n := &t.nodes[idx]
		intervals = append(intervals, Interval{Start: n.start, End: n.end, Partial: partial})
		w := t.intervalWeight(n.start, n.end)
		weights = append(weights, w)
		total += w
	})
	if len(intervals) == 0 {
		return 0, nil, nil
	}
	table, err := alias.New(weights)
	if err != nil {
		return 0, nil, nil
	}
	return total, table, intervals
}
