package sampling

// SampleFrom draws k elements uniformly with replacement from data. An empty
// input yields an empty result.
func SampleFrom[T any](data []T, k int) []T {
	n := len(data)
	if n == 0 {
		return nil
	}
	samples := make([]T, 0, k)
	rng := New()
	for i := 0; i < k; i++ {
		samples = append(samples, data[int(rng.Float64()*float64(n))])
	}
	return samples
}

// PartitionAround moves every element for which keep returns true to the
// front of the slice in one pass and returns the boundary index.
func PartitionAround[T any](items []T, keep func(T) bool) int {
	l, r := 0, len(items)-1
	for l < r {
		if !keep(items[l]) {
			items[l], items[r] = items[r], items[l]
			r--
		} else {
			l++
		}
	}
	if keep(items[l]) {
		return l + 1
	}
	return l
}

// SelectKth partially sorts items in place so that items[k] is the k-th
// order statistic under less, everything before it compares no greater, and
// everything after compares no less. Quickselect with a random pivot.
func SelectKth[T any](items []T, k int, less func(a, b T) bool) T {
	rng := New()
	lo, hi := 0, len(items)
	for hi-lo > 1 {
		pivot := items[lo+rng.IntN(hi-lo)]
		i, j := lo, hi-1
		for i <= j {
			for less(items[i], pivot) {
				i++
			}
			for less(pivot, items[j]) {
				j--
			}
			if i <= j {
				items[i], items[j] = items[j], items[i]
				i++
				j--
			}
		}
		if k <= j {
			hi = j + 1
		} else if k >= i {
			lo = i
		} else {
			break
		}
	}
	return items[k]
}
