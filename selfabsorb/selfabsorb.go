// Package selfabsorb implements the dust self-absorption fixed-point loop of
// spec.md §4.11, grounded on
// original_source/SKIRTcore/PanMonteCarloSimulation.cpp's
// rundustselfabsorption/dodustselfabsorptionchunk: each cycle recomputes
// every cell's emission spectrum from its newly absorbed energy, re-emits a
// fresh packet population, and tracks the cells' bolometric luminosity
// change until it falls below a tolerance or a cycle cap is hit.
package selfabsorb

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/cflux/raditrans/dustlib"
	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/lifecycle"
	"github.com/cflux/raditrans/medium"
	"github.com/cflux/raditrans/parallel"
	"github.com/cflux/raditrans/raderr"
	"github.com/cflux/raditrans/rng"
	"github.com/cflux/raditrans/source"
)

// DefaultMaxCycles and DefaultTolerance are the defaults of spec.md §4.11
// ("Ncyclesmax=100", "ε<0.005").
const (
	DefaultMaxCycles = 100
	DefaultTolerance = 0.005
)

// Driver runs the self-absorption loop over a grid/medium already populated
// with a stellar-emission absorbed-luminosity baseline.
type Driver struct {
	// Engines holds one life-cycle engine per pool worker slot; cycle
	// engines carry no observers, since only the final emission phase
	// peels off to instruments.
	Engines []*lifecycle.Engine
	// PeelOffEngines, when set, are the observer-carrying engines
	// FinalEmission uses after convergence. Also one per worker slot.
	PeelOffEngines []*lifecycle.Engine
	Grid           grid.Grid
	Medium         *medium.Medium
	Library        *dustlib.Library
	Pool           *parallel.Pool
	// Sources holds one rng.Source per pool worker slot (len == Pool.NumWorkers()).
	Sources []rng.Source
	// Assigner splits the packet index range across cooperating processes;
	// Transport shares each cycle's spectrum table between them before
	// transport starts (spec.md §4.12).
	Assigner  parallel.ProcessAssigner
	Transport parallel.Transport

	MaxCycles int
	Tolerance float64
}

// New returns a Driver with the spec's default cycle cap and tolerance,
// single-process assignment, and an in-process transport.
func New(engines []*lifecycle.Engine, g grid.Grid, md *medium.Medium, lib *dustlib.Library, pool *parallel.Pool, sources []rng.Source) *Driver {
	return &Driver{
		Engines: engines, Grid: g, Medium: md, Library: lib, Pool: pool, Sources: sources,
		Assigner: parallel.SingleProcess{}, Transport: parallel.InProcessTransport{},
		MaxCycles: DefaultMaxCycles, Tolerance: DefaultTolerance,
	}
}

func (d *Driver) totalDustLuminosity() float64 {
	var sum float64
	for c := 0; c < d.Medium.NCells; c++ {
		for ell := 0; ell < d.Medium.NLambda; ell++ {
			sum += d.Medium.AbsorbedDust(c, ell)
		}
	}
	return sum
}

func (d *Driver) collectAbsorbed() [][]float64 {
	out := make([][]float64, d.Medium.NCells)
	for c := range out {
		row := make([]float64, d.Medium.NLambda)
		for ell := 0; ell < d.Medium.NLambda; ell++ {
			row[ell] = d.Medium.TotalAbsorbed(c, ell)
		}
		out[c] = row
	}
	return out
}

// runCycle implements one pass of spec.md §4.11 steps 2-6: compute the
// emission spectrum per cell (via the dust library), snapshot the
// bolometric absorbed luminosity, zero the dust accumulators, broadcast the
// spectrum table to every cooperating process, launch packets proportional
// to spectrum weight, and run the life cycle for each.
func (d *Driver) runCycle(packets int, engines []*lifecycle.Engine) error {
	absorbed := d.collectAbsorbed()
	spectra, err := d.Library.Compute(absorbed)
	if err != nil {
		return err
	}
	d.Medium.ZeroDustAccumulators()

	flat := make([]float64, 0, d.Medium.NCells*d.Medium.NLambda)
	for c := 0; c < d.Medium.NCells; c++ {
		for ell := 0; ell < d.Medium.NLambda; ell++ {
			flat = append(flat, spectra[c][ell])
		}
	}
	// Every process must see the same spectrum table before transport
	// starts (spec.md §4.12).
	flat = d.Transport.Broadcast(flat, 0)
	d.Transport.Barrier()
	total := floats.Sum(flat)
	if total <= 0 {
		return nil
	}
	lPacket := total / float64(packets)
	nLambda := d.Medium.NLambda

	return d.Pool.CallWorker(packets, d.Assigner, func(workerIdx, _ int) error {
		if workerIdx >= len(d.Sources) || workerIdx >= len(engines) {
			return raderr.New(raderr.KindConfiguration,
				"self-absorption pool has more workers (%d) than rng sources (%d) or engines (%d)",
				workerIdx+1, len(d.Sources), len(engines))
		}
		src := d.Sources[workerIdx]
		idx := sampleFlat(flat, total, src)
		cell := idx / nLambda
		ell := idx % nLambda
		pos := d.Grid.RandomPositionIn(cell, src)
		cosTheta, phi := rng.Isotropic(src)
		dir := geometry.FromAngles(cosTheta, phi)
		pkt := source.Packet{
			Ell: ell, Luminosity: lPacket, Birth: lPacket,
			Position: pos, Direction: dir, Stellar: false,
		}
		return engines[workerIdx].Run(pkt, src)
	})
}

// sampleFlat draws an index into flat with probability proportional to its
// weight, given the precomputed total.
func sampleFlat(flat []float64, total float64, src rng.Source) int {
	u := src.Float64() * total
	var cum float64
	for j, w := range flat {
		cum += w
		if u <= cum {
			return j
		}
	}
	return len(flat) - 1
}

// Run executes self-absorption cycles, each launching packetsPerCycle
// packets, until the relative bolometric change between consecutive cycles
// drops below d.Tolerance or d.MaxCycles is reached. It returns the number
// of cycles run and, if the tolerance was never met, a non-fatal
// KindConvergenceFailure error the caller should log and continue past
// (spec.md §4.11 step 7).
func (d *Driver) Run(packetsPerCycle int) (int, error) {
	maxCycles := d.MaxCycles
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	tol := d.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	prev := d.totalDustLuminosity()
	for cycle := 1; cycle <= maxCycles; cycle++ {
		if err := d.runCycle(packetsPerCycle, d.Engines); err != nil {
			return cycle, err
		}
		curr := d.totalDustLuminosity()
		eps := math.Inf(1)
		if curr != 0 {
			eps = math.Abs(curr-prev) / curr
		}
		logrus.WithFields(logrus.Fields{
			"cycle": cycle, "bolometric": curr, "epsilon": eps,
		}).Info("self-absorption cycle complete")
		if eps < tol {
			return cycle, nil
		}
		prev = curr
	}
	return maxCycles, raderr.New(raderr.KindConvergenceFailure,
		"self-absorption did not converge to tolerance %g within %d cycles", tol, maxCycles)
}

// FinalEmission runs one dust-emission phase from the converged state with
// peel-off to observers, producing the re-emitted flux the instruments
// record (spec.md §4.11). It uses PeelOffEngines when set, so the
// convergence cycles themselves never contaminate the instrument cubes.
func (d *Driver) FinalEmission(packets int) error {
	engines := d.PeelOffEngines
	if len(engines) == 0 {
		engines = d.Engines
	}
	return d.runCycle(packets, engines)
}
