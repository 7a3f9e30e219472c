// Package parallel implements the chunked parallel-for with per-thread
// work-stealing and exception propagation of spec.md §4.12, grounded on the
// teacher's goroutine-pool idiom (vargrid.go's addCells/SetEmissionsFlux,
// run.go's Calculations): a fixed number of goroutines taking work indices
// from a shared atomic counter, with errors funneled back to the calling
// goroutine.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cflux/raditrans/raderr"
)

// Body is the per-index work function a Pool dispatches across its workers.
type Body func(index int) error

// ProcessAssigner selects which subset of the global index range [0,K) this
// process handles, and reports whether the remaining work can still be
// parallelized across threads within the process (spec.md §4.12).
type ProcessAssigner interface {
	// AbsoluteIndex maps a process-local index to its global index.
	AbsoluteIndex(local int) int
	// LocalCount returns how many indices this process is responsible for.
	LocalCount(total int) int
	// Parallel reports whether the process's share of work should still be
	// spread across the thread pool, or run serially on the calling thread.
	Parallel() bool
}

// SingleProcess is the default ProcessAssigner: this process handles every
// index, in parallel.
type SingleProcess struct{}

func (SingleProcess) AbsoluteIndex(local int) int { return local }
func (SingleProcess) LocalCount(total int) int    { return total }
func (SingleProcess) Parallel() bool              { return true }

// Staggered assigns global index i to process i mod NumProcesses,
// matching the "indices i handled by process p of P are those with
// i mod P == p" round-robin scheme (original_source's StaggeredAssigner).
type Staggered struct {
	Rank, NumProcesses int
}

func (s Staggered) AbsoluteIndex(local int) int { return local*s.NumProcesses + s.Rank }
func (s Staggered) LocalCount(total int) int {
	n := total / s.NumProcesses
	if s.Rank < total%s.NumProcesses {
		n++
	}
	return n
}
func (s Staggered) Parallel() bool { return true }

// Pool holds only a worker count. Each Call starts that many goroutines,
// which take indices from a shared atomic counter and exit when the range
// is exhausted; no goroutine outlives a call, and there is no condition
// variable or channel of work between dispatches.
type Pool struct {
	numWorkers int
}

// NewPool constructs a Pool with numWorkers goroutines (defaulting to
// runtime.GOMAXPROCS(0) when numWorkers <= 0). It records no thread
// identity; the only per-worker index is the slot CallWorker passes to its
// body.
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: numWorkers}
}

// Call distributes body over the global index range [0, total) across the
// pool, restricted to assigner's local share and further split across
// threads only if assigner reports itself parallelizable. A monotonic
// atomic counter dispenses indices to workers; the first worker to fail
// stores its error and drains the shared limit to zero so other workers
// finish quickly, then the error is re-raised on the calling goroutine
// (spec.md §4.12's exception discipline).
func (p *Pool) Call(total int, assigner ProcessAssigner, body Body) error {
	if assigner == nil {
		assigner = SingleProcess{}
	}
	local := assigner.LocalCount(total)
	if local <= 0 {
		return nil
	}
	if !assigner.Parallel() {
		for i := 0; i < local; i++ {
			if err := body(assigner.AbsoluteIndex(i)); err != nil {
				return raderr.Wrap(raderr.KindWorker, err, "worker failed at local index %d", i)
			}
		}
		return nil
	}

	var counter int64
	var limit int64 = int64(local)
	var firstErr atomic.Value // stores error
	var wg sync.WaitGroup

	workers := p.numWorkers
	if workers > local {
		workers = local
	}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := atomic.AddInt64(&counter, 1) - 1
				if i >= atomic.LoadInt64(&limit) {
					return
				}
				if err := body(assigner.AbsoluteIndex(int(i))); err != nil {
					firstErr.CompareAndSwap(nil, err)
					atomic.StoreInt64(&limit, 0)
					return
				}
			}
		}()
	}
	wg.Wait()

	if e, ok := firstErr.Load().(error); ok {
		return raderr.Wrap(raderr.KindWorker, e, "worker failed during parallel call")
	}
	return nil
}

// NumWorkers returns the pool's goroutine count.
func (p *Pool) NumWorkers() int { return p.numWorkers }

// WorkerBody is a Body that additionally receives the 0-based worker slot
// assigned to the goroutine running it.
type WorkerBody func(workerIdx, index int) error

// CallWorker behaves like Call but also passes each body invocation the
// stable worker slot [0, workers) the invoking goroutine owns, so the caller
// can index a per-worker resource (an rng.Source, an InstrumentQueue)
// without contention, matching spec.md §5's "each worker owns an
// independent stream" and §4.12's thread-local instrument queue.
func (p *Pool) CallWorker(total int, assigner ProcessAssigner, body WorkerBody) error {
	if assigner == nil {
		assigner = SingleProcess{}
	}
	local := assigner.LocalCount(total)
	if local <= 0 {
		return nil
	}
	if !assigner.Parallel() {
		for i := 0; i < local; i++ {
			if err := body(0, assigner.AbsoluteIndex(i)); err != nil {
				return raderr.Wrap(raderr.KindWorker, err, "worker failed at local index %d", i)
			}
		}
		return nil
	}

	var counter int64
	var limit int64 = int64(local)
	var firstErr atomic.Value
	var wg sync.WaitGroup

	workers := p.numWorkers
	if workers > local {
		workers = local
	}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		w := w
		go func() {
			defer wg.Done()
			for {
				i := atomic.AddInt64(&counter, 1) - 1
				if i >= atomic.LoadInt64(&limit) {
					return
				}
				if err := body(w, assigner.AbsoluteIndex(int(i))); err != nil {
					firstErr.CompareAndSwap(nil, err)
					atomic.StoreInt64(&limit, 0)
					return
				}
			}
		}()
	}
	wg.Wait()

	if e, ok := firstErr.Load().(error); ok {
		return raderr.Wrap(raderr.KindWorker, e, "worker failed during parallel call")
	}
	return nil
}
