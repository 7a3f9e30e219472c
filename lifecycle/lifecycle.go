// Package lifecycle implements the packet life-cycle engine of spec.md
// §4.10: fill path, escape/absorb/scatter split, termination check,
// propagation to the next scattering event, peel-off, and scattering,
// grounded on original_source/SKIRTcore/MonteCarloSimulation.cpp's
// dostellaremissionchunk/fillDustSystemPath/simulateescapeandabsorption/
// simulatepropagation/simulatescattering sequence. run.go's
// CellManipulator-style phase decomposition informed splitting each step
// into its own function over the shared state.
package lifecycle

import (
	"math"

	"github.com/cflux/raditrans/diagnostics"
	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/medium"
	"github.com/cflux/raditrans/path"
	"github.com/cflux/raditrans/raderr"
	"github.com/cflux/raditrans/rng"
	"github.com/cflux/raditrans/source"
)

// luminosityFloor is the fraction of birth luminosity below which a packet
// is dropped (spec.md §4.10 step 3).
const luminosityFloor = 1e-4

// taumin is the small-dτ stabilization threshold of spec.md §4.10.
const taumin = 1e-3

// PeelOffTarget receives a peeled-off contribution: the observer's own
// direction-to and pixel lookup, scaled by the caller-supplied weight.
type PeelOffTarget interface {
	DirectionTo(position geometry.Point3) geometry.Direction
	Receive(ell int, position geometry.Point3, luminosity float64)
}

// Engine runs one packet's full life cycle against a grid and medium,
// reporting escaping flux to a set of observers.
type Engine struct {
	Grid      grid.Grid
	Medium    *medium.Medium
	Observers []PeelOffTarget
	// Crossings, when non-nil, counts the cells crossed by every traced
	// path for the crossed-cells quality report.
	Crossings *diagnostics.CrossingHistogram
}

// expFactor returns 1-exp(-x), using the small-x stabilization x(1-x/2) of
// spec.md §4.10 when x < taumin.
func expFactor(x float64) float64 {
	if x > taumin {
		return 1 - math.Exp(-x)
	}
	return x * (1 - 0.5*x)
}

// PeelOffEmission creates, for every observer, a copy of pkt redirected
// toward the observer with luminosity preserved (emission is isotropic),
// per spec.md §4.9.
func (e *Engine) PeelOffEmission(pkt source.Packet) {
	for _, obs := range e.Observers {
		obs.Receive(pkt.Ell, pkt.Position, pkt.Luminosity)
	}
}

// peelOffScattering creates, for every observer, a copy of pkt redirected
// toward the observer with luminosity scaled by the component-weighted
// phase-function value (spec.md §4.9).
func (e *Engine) peelOffScattering(pkt source.Packet, cell int) {
	for _, obs := range e.Observers {
		kObs := obs.DirectionTo(pkt.Position)
		w := e.Medium.PeelOffWeight(cell, pkt.Ell, pkt.Direction, kObs)
		obs.Receive(pkt.Ell, pkt.Position, pkt.Luminosity*w)
	}
}

// fillPath traces pkt's current position/direction through the grid and
// fills the per-segment optical depths from the local medium opacity.
func (e *Engine) fillPath(pkt source.Packet) (*path.Path, error) {
	tr := e.Grid.Trace(pkt.Position, pkt.Direction)
	if err := tr.FillOpticalDepth(e.Medium.LocalOpacity(pkt.Ell)); err != nil {
		return nil, err
	}
	if e.Crossings != nil {
		crossed := 0
		for _, seg := range tr.Segments {
			if seg.CellID != path.OutsideCell {
				crossed++
			}
		}
		e.Crossings.Record(crossed)
	}
	return tr, nil
}

// splitEscapeAbsorbScatter implements spec.md §4.10 step 2: for each
// segment, add the locally absorbed luminosity to the medium's stellar or
// dust accumulator (depending on pkt.Stellar), and return the total
// scattered luminosity (the packet's new luminosity after this cycle).
func (e *Engine) splitEscapeAbsorbScatter(pkt source.Packet, tr *path.Path) (float64, error) {
	var lsca float64
	for _, seg := range tr.Segments {
		if seg.CellID == path.OutsideCell {
			continue
		}
		taustart := seg.TauCumulative - seg.DTau
		lint := pkt.Luminosity * math.Exp(-taustart) * expFactor(seg.DTau)
		albedo := e.Medium.LocalAlbedo(seg.CellID, pkt.Ell)
		labs := (1 - albedo) * lint
		lscam := albedo * lint
		lsca += lscam
		if labs != 0 {
			if pkt.Stellar {
				e.Medium.AddAbsorbedStellar(seg.CellID, pkt.Ell, labs)
			} else {
				e.Medium.AddAbsorbedDust(seg.CellID, pkt.Ell, labs)
			}
		}
	}
	return lsca, nil
}

// cellAtLength returns the cell-id of the segment containing path length s,
// the cell in which a scattering event at that length takes place.
func cellAtLength(tr *path.Path, s float64) int {
	for _, seg := range tr.Segments {
		if s <= seg.Cumulative {
			return seg.CellID
		}
	}
	if n := len(tr.Segments); n > 0 {
		return tr.Segments[n-1].CellID
	}
	return path.OutsideCell
}

// propagate draws a new path length to the next scattering event from
// p(τ) ∝ e^{-τ} truncated at the path's total optical depth, and returns the
// new position and the cell it lands in (spec.md §4.10 step 4).
func (e *Engine) propagate(pkt *source.Packet, tr *path.Path, src rng.Source) (int, error) {
	tau := rng.Exponential(src, tr.TotalTau())
	s, err := tr.PathLength(tau)
	if err != nil {
		return 0, err
	}
	cell := cellAtLength(tr, s)
	if cell == path.OutsideCell {
		return 0, raderr.New(raderr.KindNumericalAnomaly,
			"cell lookup returned -1 during an in-domain scattering event at s=%g", s)
	}
	pkt.Position = pkt.Position.Advance(pkt.Direction, s)
	return cell, nil
}

// scatter implements spec.md §4.10 step 6: choose a component weighted by
// κ_sca(h)ρ(h), draw a new direction from its phase function, and increment
// the scatter count.
func (e *Engine) scatter(pkt *source.Packet, cell int, src rng.Source) {
	h := e.Medium.ChooseComponent(cell, pkt.Ell, src)
	pkt.Direction = e.Medium.Mixes[h].SamplePhase(pkt.Ell, pkt.Direction, src)
	pkt.ScatterCount++
}

// Run executes one packet's complete life cycle: peel-off on emission, then
// the fill/split/propagate/peel-off/scatter loop until the packet escapes,
// is absorbed below the luminosity floor, or a numerical anomaly is
// detected.
func (e *Engine) Run(pkt source.Packet, src rng.Source) error {
	e.PeelOffEmission(pkt)
	for {
		tr, err := e.fillPath(pkt)
		if err != nil {
			return err
		}
		lsca, err := e.splitEscapeAbsorbScatter(pkt, tr)
		if err != nil {
			return err
		}
		pkt.Luminosity = lsca
		if pkt.Luminosity <= luminosityFloor*pkt.Birth {
			return nil
		}
		cell, err := e.propagate(&pkt, tr, src)
		if err != nil {
			return err
		}
		e.peelOffScattering(pkt, cell)
		e.scatter(&pkt, cell, src)
	}
}
