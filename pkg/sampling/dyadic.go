package sampling

import (
	"github.com/jihwankim/range-sampler/pkg/alias"
)

// DyadicTree is a binary tree over a flat weight array supporting weighted
// sampling from any half-open index range. A query range decomposes into
// O(log n) maximal dyadic subintervals; a top-level alias over those feeds a
// weighted descent to a single index.
type DyadicTree struct {
	nodes []dyadicNode
	root  int
	len   int
}

type dyadicNode struct {
	weight float64
	left   int
	right  int
}

type dyadicCandidate struct {
	node  int
	left  int
	right int
}

func buildDyadic[T any](data []T, weight func(*T) float64, offset int, nodes *[]dyadicNode) (int, float64) {
	switch len(data) {
	case 0:
		return 0, 0
	case 1:
		w := weight(&data[0])
		*nodes = append(*nodes, dyadicNode{weight: w})
		return len(*nodes) - 1, w
	default:
		mid := len(data) / 2
		leftNode, leftWeight := buildDyadic(data[:mid], weight, offset, nodes)
		rightNode, rightWeight := buildDyadic(data[mid:], weight, offset+mid, nodes)
		*nodes = append(*nodes, dyadicNode{
			weight: leftWeight + rightWeight,
			left:   leftNode,
			right:  rightNode,
		})
		return len(*nodes) - 1, leftWeight + rightWeight
	}
}

// NewDyadicTree builds the tree over an explicit weight array.
func NewDyadicTree(weights []float64) *DyadicTree {
	return NewDyadicTreeFunc(weights, func(w *float64) float64 { return *w })
}

// NewDyadicTreeFunc builds the tree over arbitrary items with an extractor.
func NewDyadicTreeFunc[T any](data []T, weight func(*T) float64) *DyadicTree {
	nodes := make([]dyadicNode, 1, 2*len(data)+1)
	root, _ := buildDyadic(data, weight, 0, &nodes)
	return &DyadicTree{
		nodes: nodes,
		root:  root,
		len:   len(data),
	}
}

// Len returns the number of leaves.
func (t *DyadicTree) Len() int {
	return t.len
}

// Size reports the resident footprint in bytes.
func (t *DyadicTree) Size() int {
	return len(t.nodes) * 24
}

// traverse accumulates the maximal dyadic subintervals of [left, right).
func (t *DyadicTree) traverse(node, left, right, nodeLeft, nodeRight int, res *[]dyadicCandidate) {
	if left <= nodeLeft && nodeRight <= right {
		*res = append(*res, dyadicCandidate{node: node, left: nodeLeft, right: nodeRight})
		return
	}
	now := &t.nodes[node]
	mid := (nodeLeft + nodeRight) / 2
	if right <= mid {
		t.traverse(now.left, left, right, nodeLeft, mid, res)
	} else if mid <= left {
		t.traverse(now.right, left, right, mid, nodeRight, res)
	} else {
		t.traverse(now.left, left, mid, nodeLeft, mid, res)
		t.traverse(now.right, mid, right, mid, nodeRight, res)
	}
}

func (t *DyadicTree) descend(c dyadicCandidate, rng interface{ Float64() float64 }) int {
	node := &t.nodes[c.node]
	nodeLeft, nodeRight := c.left, c.right
	for nodeRight-nodeLeft > 1 {
		leftWeight := t.nodes[node.left].weight
		thres := leftWeight / node.weight
		mid := (nodeLeft + nodeRight) / 2
		if rng.Float64() <= thres {
			node = &t.nodes[node.left]
			nodeRight = mid
		} else {
			node = &t.nodes[node.right]
			nodeLeft = mid
		}
	}
	return nodeLeft
}

// SingleSample draws one index from [left, right) with probability
// proportional to its weight.
func (t *DyadicTree) SingleSample(left, right int) int {
	return t.Sample(left, right, 1)[0]
}

// Sample draws k indices with replacement from [left, right), each with
// probability proportional to its weight. The k draws share one top-level
// alias over the decomposition.
func (t *DyadicTree) Sample(left, right, k int) []int {
	var candidates []dyadicCandidate
	t.traverse(t.root, left, right, 0, t.len, &candidates)
	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		weights[i] = t.nodes[c.node].weight
	}
	top, err := alias.New(weights)
	if err != nil {
		return nil
	}
	rng := New()
	samples := make([]int, 0, k)
	for i := 0; i < k; i++ {
		c := candidates[top.Sample(rng.Float64(), rng.Float64())]
		samples = append(samples, t.descend(c, rng))
	}
	return samples
}
