// Package rstree implements the R-sampling tree: an STR bulk-loaded R-tree
// whose internal nodes embed child-selector alias tables and whose leaves
// embed point-selector alias tables, supporting weighted range sampling.
package rstree

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/slices"

	"github.com/jihwankim/range-sampler/pkg/alias"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/metrics"
)

const (
	// LeafFanout bounds the number of points per leaf.
	LeafFanout = 256
	// NodeFanout bounds the number of children per internal node.
	NodeFanout = 25
)

type node struct {
	bbox       geo.MBR
	weight     float64
	count      int
	offset     int
	children   []int32
	childAlias *alias.Table // internal nodes
	pointAlias *alias.Table // leaves
}

func (n *node) leaf() bool {
	return n.children == nil
}

// Tree is an immutable STR-packed R-sampling tree. After the node hierarchy
// is assembled, the backing array is reordered so that every node owns a
// contiguous range starting at its offset.
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
	bbox := geo.FromWPoints(points)
	t.nodes = append(t.nodes, node{
		bbox:   bbox,
		weight: geo.TotalWeight(points),
		count:  len(points),
		offset: offset,
	})
	return int32(len(t.nodes) - 1)
}

func (t *Tree) nodeFromChildren(children []int32) (int32, error) {
	n := node{
		bbox: geo.MBR{
			Low:  geo.Point{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
			High: geo.Point{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
		},
		children: append([]int32(nil), children...),
	}
	weights := make([]float64, 0, len(children))
	for _, c := range children {
		child := &t.nodes[c]
		n.bbox.Low.X = math.Min(n.bbox.Low.X, child.bbox.Low.X)
		n.bbox.Low.Y = math.Min(n.bbox.Low.Y, child.bbox.Low.Y)
		n.bbox.Low.Z = math.Min(n.bbox.Low.Z, child.bbox.Low.Z)
		n.bbox.High.X = math.Max(n.bbox.High.X, child.bbox.High.X)
		n.bbox.High.Y = math.Max(n.bbox.High.Y, child.bbox.High.Y)
		n.bbox.High.Z = math.Max(n.bbox.High.Z, child.bbox.High.Z)
		n.weight += child.weight
		n.count += child.count
		weights = append(weights, child.weight)
	}
	table, err := alias.New(weights)
	if err != nil {
		return -1, fmt.Errorf("rstree: child alias: %w", err)
	}
	n.childAlias = table
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1), nil
}

// center is the slab-sort key used while packing internal nodes.
func (t *Tree) center(idx int32, axis int) float64 {
	b := &t.nodes[idx].bbox
	return b.Low.Coord(axis) + b.High.Coord(axis)
}

// packLeaves tile-sorts the points into LeafFanout-sized buckets and emits
// one leaf per bucket. The points slice itself is permuted by the slab sorts;
// leaf offsets refer to its final order.
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

// packLevel tile-sorts one level of nodes by bounding-box centre and groups
// them into parents of at most NodeFanout children.
func (t *Tree) packLevel(level []int32) ([]int32, error) {
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
	emit := func(group []int32) error {
		parent, err := t.nodeFromChildren(group)
		if err != nil {
			return err
		}
		parents = append(parents, parent)
		return nil
	}
	for i := 0; i < length; i += stepX {
		sliceX := level[i:min(i+stepX, length)]
		sortLevel(sliceX, 1)
		stepY := int(math.Ceil(float64(len(sliceX)) / float64(slabsY)))
		for j := 0; j < len(sliceX); j += stepY {
			sliceY := sliceX[j:min(j+stepY, len(sliceX))]
			if t.dims == 2 {
				if err := emit(sliceY); err != nil {
					return nil, err
				}
				continue
			}
			sortLevel(sliceY, 2)
			stepZ := int(math.Ceil(float64(len(sliceY)) / float64(slabsZ)))
			for k := 0; k < len(sliceY); k += stepZ {
				if err := emit(sliceY[k:min(k+stepZ, len(sliceY))]); err != nil {
					return nil, err
				}
			}
		}
	}
	return parents, nil
}

// reorder walks the hierarchy once, rewriting node offsets so every node owns
// a contiguous range, and produces the reordered backing array.
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

// New bulk-loads an R-sampling tree over a copy of the input.
func New(points []geo.WPoint, dims int) (*Tree, error) {
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("rstree: unsupported dimensionality %d", dims)
	}
	start := time.Now()
	data := make([]geo.WPoint, len(points))
	copy(data, points)
	t := &Tree{dims: dims}
	if len(data) == 0 {
		t.root = t.leafFromData(nil, 0)
		t.nodes[t.root].pointAlias = alias.Uniform(0)
		return t, nil
	}

	level := t.packLeaves(data)
	for int(math.Ceil(float64(len(level))/NodeFanout)) > 1 {
		next, err := t.packLevel(level)
		if err != nil {
			return nil, err
		}
		level = next
	}
	root, err := t.nodeFromChildren(level)
	if err != nil {
		return nil, err
	}
	t.root = root
	t.data = t.reorder(data)

	// Leaf point aliases refer to the final layout order.
	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.leaf() {
			continue
		}
		weights := make([]float64, n.count)
		for j := 0; j < n.count; j++ {
			weights[j] = t.data[n.offset+j].Weight
		}
		table, err := alias.New(weights)
		if err != nil {
			return nil, fmt.Errorf("rstree: leaf alias: %w", err)
		}
		n.pointAlias = table
	}
	metrics.ObserveBuild("rs", time.Since(start), t.Size())
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
		size += 80 + 4*len(n.children)
		if n.childAlias != nil {
			size += n.childAlias.Size()
		}
		if n.pointAlias != nil {
			size += n.pointAlias.Size()
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
