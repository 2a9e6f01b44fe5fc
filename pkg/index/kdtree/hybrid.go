package kdtree

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/metrics"
	"github.com/jihwankim/range-sampler/pkg/sampling"
)

// workerPool is a fixed set of goroutines owned by the tree, created at
// construction and sized to the logical core count. The hybrid sampler runs
// at most two background tasks on it at a time.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	p := &workerPool{tasks: make(chan func())}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

func (p *workerPool) submit(task func()) {
	p.tasks <- task
}

func (p *workerPool) Close() {
	close(p.tasks)
	p.wg.Wait()
}

func (t *Tree) spawn(task func()) {
	if t.pool != nil {
		t.pool.submit(task)
		return
	}
	go task()
}

// RangeSamplingHybrid samples for the given wall-clock period in three
// overlapping stages. While the query decomposition is being computed, a
// background worker serves Olken samples; once the decomposition is ready a
// second worker serves two-level samples while the main goroutine enumerates
// the spare set; the remaining time runs the rejection-free sampler in the
// foreground. Each bounded stage has its own stop flag, and results cross
// goroutines through one-shot channels. The tree is only read during the
// call, and both workers are joined before it returns.
func (t *Tree) RangeSamplingHybrid(query geo.MBR, period time.Duration) []geo.WPoint {
	if len(t.data) == 0 || !query.Intersects(t.nodes[t.root].bbox) {
		return nil
	}

	var stop1, stop2, deadline atomic.Bool
	timer := time.AfterFunc(period, func() {
		deadline.Store(true)
		stop1.Store(true)
		stop2.Store(true)
	})
	defer timer.Stop()

	// Stage 1: Olken in the background, decomposition in the foreground.
	ch1 := make(chan []geo.WPoint, 1)
	lcaRoot := t.lca(query)
	t.spawn(func() {
		var batch []geo.WPoint
		rng := sampling.New()
		for !stop1.Load() {
			if wp, ok := t.olkenDraw(query, lcaRoot, rng); ok {
				batch = append(batch, wp)
			}
		}
		ch1 <- batch
	})
	dec := t.decompose(query)
	stop1.Store(true)
	samples := <-ch1
	stage1 := len(samples)

	// Stage 2: two-level from the finished decomposition in the background,
	// spare enumeration in the foreground. The decomposition is fully built
	// before the worker is handed the task that reads it.
	ch2 := make(chan []geo.WPoint, 1)
	t.spawn(func() {
		ch2 <- t.sampleTwoLevel(query, dec, -1, &stop2)
	})
	spares, err := t.enumerateSpares(query, dec)
	stop2.Store(true)
	batch2 := <-ch2
	samples = append(samples, batch2...)
	stage2 := len(batch2)

	// Stage 3: rejection-free sampling until the period elapses.
	if err == nil {
		samples = append(samples, t.sampleNoReject(dec, spares, -1, &deadline)...)
	}

	metrics.SamplesTotal.WithLabelValues("kdh").Add(float64(len(samples)))
	metrics.ThroughputOps.WithLabelValues("kdh").Set(float64(len(samples)) / period.Seconds())
	log.Info().
		Int("stage1_samples", stage1).
		Int("stage2_samples", stage2).
		Int("stage3_samples", len(samples)-stage1-stage2).
		Float64("ops_per_sec", float64(len(samples))/period.Seconds()).
		Msg("hybrid sampling run")
	return samples
}
