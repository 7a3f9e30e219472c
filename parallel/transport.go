package parallel

import "sync"

// Transport is an MPI-like peer-to-peer primitive: a barrier plus a
// broadcast of the cell-spectrum table each process computed for its share
// of cells, per spec.md §4.12 ("the life-cycle driver calls a peer-to-peer
// broadcast(cell-spectrum, owner) after the per-process emission
// calculation so that every process sees the full spectrum table before
// running transport").
type Transport interface {
	// Rank returns this process's 0-based rank and the total process count.
	Rank() (rank, size int)
	// Barrier blocks until every process has called Barrier.
	Barrier()
	// Broadcast sends data (owned by the process at rank owner) to every
	// process, returning the received copy. Every process must call
	// Broadcast the same number of times in the same order.
	Broadcast(data []float64, owner int) []float64
}

// InProcessTransport is a same-process stand-in satisfying Transport via a
// single implicit rank; genuine multi-process fan-out needs a real
// process-spanning transport (e.g. a gRPC or TCP peer ring), which no
// library in the example pack provides — see DESIGN.md's Open Question.
type InProcessTransport struct{}

func (InProcessTransport) Rank() (int, int) { return 0, 1 }
func (InProcessTransport) Barrier()         {}
func (InProcessTransport) Broadcast(data []float64, owner int) []float64 {
	return data
}

var _ Transport = InProcessTransport{}

// GoroutineTransport is a genuine (if single-machine) multi-process stand-in
// built from goroutines rather than OS processes, useful for exercising the
// barrier/broadcast protocol with more than one participant in tests: each
// "process" is a goroutine synchronizing through a shared mutex and
// condition-variable barrier and a shared broadcast slot.
type GoroutineTransport struct {
	rank, size int
	barrier    *sync.WaitGroup
	mu         *sync.Mutex
	cond       *sync.Cond
	round      *int
	arrived    *int
	slots      []*[]float64
}

// NewGoroutineGroup builds size GoroutineTransport participants sharing one
// barrier/broadcast round.
func NewGoroutineGroup(size int) []*GoroutineTransport {
	mu := &sync.Mutex{}
	cond := sync.NewCond(mu)
	round := 0
	arrived := 0
	slots := make([]*[]float64, size)
	out := make([]*GoroutineTransport, size)
	for i := 0; i < size; i++ {
		out[i] = &GoroutineTransport{
			rank: i, size: size,
			mu: mu, cond: cond, round: &round, arrived: &arrived, slots: slots,
		}
	}
	return out
}

func (g *GoroutineTransport) Rank() (int, int) { return g.rank, g.size }

func (g *GoroutineTransport) Barrier() {
	g.mu.Lock()
	defer g.mu.Unlock()
	target := *g.round + 1
	*g.arrived++
	if *g.arrived == g.size {
		*g.arrived = 0
		*g.round = target
		g.cond.Broadcast()
		return
	}
	for *g.round < target {
		g.cond.Wait()
	}
}

func (g *GoroutineTransport) Broadcast(data []float64, owner int) []float64 {
	g.mu.Lock()
	if g.rank == owner {
		g.slots[owner] = &data
	}
	g.mu.Unlock()
	g.Barrier()
	g.mu.Lock()
	out := *g.slots[owner]
	g.mu.Unlock()
	g.Barrier()
	return out
}

var _ Transport = (*GoroutineTransport)(nil)
