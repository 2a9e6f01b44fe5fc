// Package index defines the interfaces shared by the sampling indices.
package index

import (
	"time"

	"github.com/jihwankim/range-sampler/pkg/geo"
)

// Index is the surface every static sampling index exposes.
type Index interface {
	// Size reports the total resident footprint in bytes.
	Size() int
	// Len returns the number of indexed points.
	Len() int
	// Range returns all indexed points inside the query rectangle.
	Range(query geo.MBR) []geo.WPoint
	// RangeSampling draws k independent weighted samples, with replacement,
	// from the points inside the query rectangle.
	RangeSampling(query geo.MBR, k int) []geo.WPoint
}

// OlkenSampler is implemented by indices that support pure rejection
// sampling by random tree descent.
type OlkenSampler interface {
	OlkenRangeSampling(query geo.MBR, k int) []geo.WPoint
}

// ThroughputSampler is implemented by indices with a time-bounded sampling
// mode that reports decomposition latency and achieved ops/s.
type ThroughputSampler interface {
	RangeSamplingThroughput(query geo.MBR, period time.Duration) []geo.WPoint
}

// Inserter is implemented by the append-only LSM wrapper.
type Inserter interface {
	Insert(p geo.Point) error
}
