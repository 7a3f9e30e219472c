// Queued peel-off delivery: each worker buffers its instrument-cube
// contributions in a thread-local queue and drains them into the shared
// cube inside a single lock acquisition once the queue fills, the
// serialized per-instrument update discipline of spec.md §4.12.
package observer

import (
	"sync"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/parallel"
)

// cubeAddr addresses one element of an observer's data cube.
type cubeAddr struct {
	ell, y, x int
}

// Queued wraps an Observer for one worker: Receive resolves the pixel
// immediately but defers the cube update through the worker's own
// parallel.InstrumentQueue. Each worker must own its own Queued; the
// wrapped Observer and lock are shared.
type Queued struct {
	obs   *Observer
	queue *parallel.InstrumentQueue[cubeAddr]
}

// DirectionTo implements the peel-off contract, delegating to the wrapped
// observer's projection.
func (q *Queued) DirectionTo(position geometry.Point3) geometry.Direction {
	return q.obs.DirectionTo(position)
}

// Receive buffers a peeled-off contribution in the worker-local queue,
// draining into the shared cube only when the queue fills.
func (q *Queued) Receive(ell int, position geometry.Point3, luminosity float64) {
	x, y, ok := q.obs.Projection.Pixel(position)
	if !ok {
		return
	}
	q.queue.Add(cubeAddr{ell, y, x}, luminosity)
}

// Drain flushes the worker's pending contributions to the shared cube.
func (q *Queued) Drain() { q.queue.Drain() }

// QueuedSet is the per-worker view of every configured observer.
type QueuedSet []*Queued

// Drain flushes every observer's pending contributions for this worker.
func (s QueuedSet) Drain() {
	for _, q := range s {
		q.Drain()
	}
}

// NewQueuedSets builds one QueuedSet per worker over the shared observers.
// All workers' queues for a given observer drain under that observer's own
// lock; capacity <= 0 selects parallel.DefaultQueueSize. The final output
// pass must call Drain on every set before formatting cubes (spec.md §4.12:
// "the final write call drains all remaining queues").
func NewQueuedSets(observers []*Observer, nWorkers, capacity int) []QueuedSet {
	locks := make([]*sync.Mutex, len(observers))
	for i := range locks {
		locks[i] = &sync.Mutex{}
	}
	sets := make([]QueuedSet, nWorkers)
	for w := range sets {
		set := make(QueuedSet, len(observers))
		for i, obs := range observers {
			obs := obs
			set[i] = &Queued{
				obs: obs,
				queue: parallel.NewInstrumentQueue(capacity, locks[i], func(a cubeAddr, v float64) {
					obs.cube.AddVal(v, a.ell, a.y, a.x)
				}),
			}
		}
		sets[w] = set
	}
	return sets
}

// DrainAllSets drains every worker's every queue.
func DrainAllSets(sets []QueuedSet) {
	for _, s := range sets {
		s.Drain()
	}
}
