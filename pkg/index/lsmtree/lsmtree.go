// Package lsmtree wraps the static Z-value tree with append-only insertion.
// Inserts accumulate in a level-0 buffer; overflows cascade into a ladder of
// immutable Z-value trees with doubling capacities. Sampling stratifies
// across levels by in-range weight, so the result distribution is identical
// to sampling one index over the union of all inserted points.
package lsmtree

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/jihwankim/range-sampler/pkg/alias"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/index/zvtree"
	"github.com/jihwankim/range-sampler/pkg/sampling"
)

// TopLevelCapacity is the insert count that triggers a merge of the level-0
// buffer into the tree ladder.
const TopLevelCapacity = 640

// Tree is an LSM sampling index over Morton codes. Weights are uniform.
type Tree struct {
	topLevel []geo.Code
	levels   []*zvtree.Tree // nil entries are empty levels
	dims     int
}

// New creates an empty LSM tree for the given dimensionality.
func New(dims int) (*Tree, error) {
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("lsmtree: unsupported dimensionality %d", dims)
	}
	return &Tree{dims: dims}, nil
}

// Insert appends one point. A full level-0 buffer merges into the ladder.
func (t *Tree) Insert(p geo.Point) error {
	t.topLevel = append(t.topLevel, geo.Encode(p, t.dims))
	if len(t.topLevel) == TopLevelCapacity {
		return t.mergeTopLevel()
	}
	return nil
}

// Len returns the number of inserted points.
func (t *Tree) Len() int {
	n := len(t.topLevel)
	for _, level := range t.levels {
		if level != nil {
			n += level.Len()
		}
	}
	return n
}

// Size reports the total resident footprint in bytes.
func (t *Tree) Size() int {
	size := len(t.topLevel) * 16
	for _, level := range t.levels {
		if level != nil {
			size += level.Size()
		}
	}
	return size
}

// LevelLens returns the occupancy of each ladder level; empty levels are 0.
func (t *Tree) LevelLens() []int {
	lens := make([]int, len(t.levels))
	for i, level := range t.levels {
		if level != nil {
			lens[i] = level.Len()
		}
	}
	return lens
}

func levelCapacity(level int) int {
	return (1 << (level + 1)) * TopLevelCapacity
}

func mergeSorted(left, right []geo.Code) []geo.Code {
	res := make([]geo.Code, 0, len(left)+len(right))
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		if right[j].Less(left[i]) {
			res = append(res, right[j])
			j++
		} else {
			res = append(res, left[i])
			i++
		}
	}
	res = append(res, left[i:]...)
	res = append(res, right[j:]...)
	return res
}

// mergeTopLevel flushes the buffer down the ladder, merging every full level
// it passes, and rebuilds one Z-value tree at the first level with room.
func (t *Tree) mergeTopLevel() error {
	sort.Slice(t.topLevel, func(i, j int) bool {
		return t.topLevel[i].Less(t.topLevel[j])
	})
	merged := append([]geo.Code(nil), t.topLevel...)
	current := 0
	for current < len(t.levels) {
		if t.levels[current] != nil {
			merged = mergeSorted(merged, t.levels[current].Codes())
		}
		if len(merged) <= levelCapacity(current) {
			break
		}
		t.levels[current] = nil
		current++
	}
	tree, err := zvtree.FromSortedCodes(merged, t.dims)
	if err != nil {
		return fmt.Errorf("lsmtree: merge into level %d: %w", current, err)
	}
	if current == len(t.levels) {
		t.levels = append(t.levels, tree)
	} else {
		t.levels[current] = tree
	}
	t.topLevel = t.topLevel[:0]
	log.Debug().Int("level", current).Int("points", tree.Len()).Msg("merged level-0 buffer")
	return nil
}

func (t *Tree) levelLen(level int) int {
	if t.levels[level] == nil {
		return 0
	}
	return t.levels[level].Len()
}

// Range returns every inserted point inside the query rectangle.
func (t *Tree) Range(query geo.MBR) []geo.WPoint {
	var res []geo.WPoint
	for _, code := range t.topLevel {
		p := geo.Decode(code, t.dims)
		if query.Contains(p) {
			res = append(res, geo.WPoint{P: p, Weight: 1})
		}
	}
	for _, level := range t.levels {
		if level != nil {
			res = append(res, level.Range(query)...)
		}
	}
	return res
}

// RangeSampling draws k samples across all levels: a top-level alias over
// per-level in-range weights picks a level, and the level's own
// decomposition serves the draw. Levels are disjoint, so this stratification
// is exact.
func (t *Tree) RangeSampling(query geo.MBR, k int) []geo.WPoint {
	var samples []geo.WPoint

	var topLevelRes []geo.Point
	for _, code := range t.topLevel {
		p := geo.Decode(code, t.dims)
		if query.Contains(p) {
			topLevelRes = append(topLevelRes, p)
		}
	}

	type levelDec struct {
		total     float64
		top       *alias.Table
		intervals []zvtree.Interval
	}
	decs := make([]levelDec, len(t.levels))
	weights := make([]float64, 0, len(t.levels)+1)
	var totWeight float64
	for i, level := range t.levels {
		if level == nil {
			weights = append(weights, 0)
			continue
		}
		total, top, intervals := level.Decompose(query)
		decs[i] = levelDec{total: total, top: top, intervals: intervals}
		weights = append(weights, total)
		totWeight += total
	}
	weights = append(weights, float64(len(topLevelRes)))
	if totWeight+float64(len(topLevelRes)) == 0 {
		return samples
	}
	top, err := alias.New(weights)
	if err != nil {
		return samples
	}

	low, high := scaledQuery(query)
	rng := sampling.New()
	for len(samples) < k {
		res := top.Sample(rng.Float64(), rng.Float64())
		if res == len(t.levels) {
			p := topLevelRes[int(rng.Float64()*float64(len(topLevelRes)))]
			samples = append(samples, geo.WPoint{P: p, Weight: 1})
			continue
		}
		dec := &decs[res]
		if dec.top == nil {
			continue
		}
		iv := dec.intervals[dec.top.Sample(rng.Float64(), rng.Float64())]
		offset := iv.Start + int(rng.Float64()*float64(iv.End-iv.Start))
		if !iv.Partial || t.levels[res].CheckBound(offset, low, high) {
			samples = append(samples, t.levels[res].PointAt(offset))
		}
	}
	return samples
}

func scaledQuery(query geo.MBR) (low, high [3]uint32) {
	lx, ly, lz := query.Low.Scaled()
	hx, hy, hz := query.High.Scaled()
	return [3]uint32{lx, ly, lz}, [3]uint32{hx, hy, hz}
}
