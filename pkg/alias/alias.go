// Package alias implements the Vose/Walker alias method for O(1) weighted
// categorical sampling.
package alias

import (
	"fmt"
)

// ErrNegativeWeight is returned when a weight vector contains a negative
// entry; no valid distribution exists in that case.
var ErrNegativeWeight = fmt.Errorf("alias: negative weight in distribution")

// Table supports drawing an index in [0, n) with probability proportional to
// the weight vector it was built from, in constant time per draw.
type Table struct {
	n      int
	cutoff []float64
	alias  []int
}

// Uniform returns a table that draws each of n indices with equal
// probability.
func Uniform(n int) *Table {
	t := &Table{
		n:      n,
		cutoff: make([]float64, n),
		alias:  make([]int, n),
	}
	for i := 0; i < n; i++ {
		t.cutoff[i] = 1
		t.alias[i] = i
	}
	return t
}

// New builds an alias table from a non-negative weight vector using Vose's
// O(n) construction. An all-zero vector is accepted and degenerates to the
// uniform distribution.
func New(weights []float64) (*Table, error) {
	n := len(weights)
	var sum float64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: %v", ErrNegativeWeight, w)
		}
		sum += w
	}
	if sum == 0 {
		return Uniform(n), nil
	}

	norm := make([]float64, n)
	for i, w := range weights {
		norm[i] = w * float64(n) / sum
	}

	cutoff := make([]float64, n)
	aliases := make([]int, n)
	var overfull, underfull []int
	for i := n - 1; i >= 0; i-- {
		cutoff[i] = 1
		aliases[i] = i
		if norm[i] > 1 {
			overfull = append(overfull, i)
		} else if norm[i] < 1 {
			underfull = append(underfull, i)
		}
	}

	for len(overfull) > 0 && len(underfull) > 0 {
		over := overfull[len(overfull)-1]
		overfull = overfull[:len(overfull)-1]
		under := underfull[len(underfull)-1]
		underfull = underfull[:len(underfull)-1]

		cutoff[under] = norm[under]
		aliases[under] = over
		norm[over] += norm[under] - 1
		if norm[over] > 1 {
			overfull = append(overfull, over)
		} else if norm[over] < 1 {
			underfull = append(underfull, over)
		}
	}

	return &Table{n: n, cutoff: cutoff, alias: aliases}, nil
}

// Sample draws an index from the table using two independent uniforms in
// [0, 1).
func (t *Table) Sample(coin1, coin2 float64) int {
	k := int(float64(t.n) * coin1)
	if coin2 < t.cutoff[k] {
		return k
	}
	return t.alias[k]
}

// Len returns the number of categories.
func (t *Table) Len() int {
	return t.n
}

// Size reports the resident footprint in bytes.
func (t *Table) Size() int {
	return 16 * t.n
}
