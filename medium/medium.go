// Package medium implements the per-cell absorbing/scattering medium model
// of spec.md §4.7: density, opacities, phase function, and the absorbed
// luminosity accumulators the packet life-cycle engine writes into.
package medium

import (
	"math"
	"sync/atomic"

	"github.com/ctessum/sparse"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/rng"
)

// Mix describes one dust/gas component's wavelength-dependent optical
// properties and scattering phase function.
type Mix interface {
	// Absorption returns κ_abs at wavelength index ell.
	Absorption(ell int) float64
	// Extinction returns κ_ext at wavelength index ell.
	Extinction(ell int) float64
	// Phase returns the phase function value Φ(k_in, k_out) at wavelength
	// index ell.
	Phase(ell int, kIn, kOut geometry.Direction) float64
	// SamplePhase draws a new direction from the phase function given the
	// incoming direction.
	SamplePhase(ell int, kIn geometry.Direction, src rng.Source) geometry.Direction
}

// Scattering returns κ_sca(ell) = κ_ext(ell) - κ_abs(ell).
func Scattering(m Mix, ell int) float64 { return m.Extinction(ell) - m.Absorption(ell) }

// Albedo returns ϖ(ell) = κ_sca(ell) / κ_ext(ell), zero when extinction is
// zero.
func Albedo(m Mix, ell int) float64 {
	ext := m.Extinction(ell)
	if ext == 0 {
		return 0
	}
	return Scattering(m, ell) / ext
}

// Medium holds every cell's density, per-component mixes, and absorbed
// luminosity accumulators.
type Medium struct {
	NCells, NComp, NLambda int
	Mixes                  []Mix

	density     *sparse.DenseArray // [NCells, NComp]
	volume      []float64          // [NCells]
	labsStellar *accumulator       // [NCells, NLambda]
	labsDust    *accumulator       // [NCells, NLambda]
}

// accumulator is a dense [rows, cols] table of float64 sums supporting
// lock-free concurrent additive updates: each Add is a compare-and-swap
// loop over the value's bit pattern, the relaxed-atomic-add option spec.md
// §5 allows for the commutative absorbed-luminosity sums.
type accumulator struct {
	bits []uint64
	cols int
}

func newAccumulator(rows, cols int) *accumulator {
	return &accumulator{bits: make([]uint64, rows*cols), cols: cols}
}

func (a *accumulator) add(row, col int, v float64) {
	addr := &a.bits[row*a.cols+col]
	for {
		old := atomic.LoadUint64(addr)
		upd := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(addr, old, upd) {
			return
		}
	}
}

func (a *accumulator) get(row, col int) float64 {
	return math.Float64frombits(atomic.LoadUint64(&a.bits[row*a.cols+col]))
}

// New allocates a Medium over the given grid's cells and components.
func New(g grid.Grid, nComp, nLambda int, mixes []Mix) *Medium {
	n := g.CellCount()
	return &Medium{
		NCells:      n,
		NComp:       nComp,
		NLambda:     nLambda,
		Mixes:       mixes,
		density:     sparse.ZerosDense(n, nComp),
		volume:      make([]float64, n),
		labsStellar: newAccumulator(n, nLambda),
		labsDust:    newAccumulator(n, nLambda),
	}
}

// DensityField is the caller-supplied density of component comp at p. Setup
// samples the density of each component in each cell: directly via the
// grid's DirectDensityProvider capability when available, otherwise by
// averaging this field over nSamples random positions in the cell
// (spec.md §4.7 "Setup").
type DensityField func(comp int, p geometry.Point3) float64

// Setup populates per-cell volumes and densities.
func (md *Medium) Setup(g grid.Grid, field DensityField, nSamples int, src rng.Source) {
	if nSamples <= 0 {
		nSamples = 100
	}
	direct, hasDirect := grid.AsDirectDensityProvider(g)
	modulator, hasModulator := grid.AsDensityModulator(g)
	for c := 0; c < md.NCells; c++ {
		md.volume[c] = g.Volume(c)
		weight := 1.0
		if hasModulator {
			weight = modulator.DensityWeight(c)
		}
		for h := 0; h < md.NComp; h++ {
			if hasDirect {
				if v, ok := direct.DirectDensity(h, c); ok {
					md.density.Set(v*weight, c, h)
					continue
				}
			}
			var sum float64
			for i := 0; i < nSamples; i++ {
				p := g.RandomPositionIn(c, src)
				sum += field(h, p)
			}
			md.density.Set(weight*sum/float64(nSamples), c, h)
		}
	}
}

// Density returns the density of component h in cell m.
func (md *Medium) Density(cell, h int) float64 { return md.density.Get(cell, h) }

// TotalDensity returns the sum of all components' density in cell.
func (md *Medium) TotalDensity(cell int) float64 {
	var sum float64
	for h := 0; h < md.NComp; h++ {
		sum += md.density.Get(cell, h)
	}
	return sum
}

// Volume returns the volume of the given cell, as recorded at Setup time.
func (md *Medium) Volume(cell int) float64 { return md.volume[cell] }

// AddAbsorbedStellar adds an additive contribution to the stellar absorbed
// luminosity accumulator of cell at wavelength ell. Safe to call
// concurrently from any worker (spec.md §5: "commutative sums of doubles").
func (md *Medium) AddAbsorbedStellar(cell, ell int, val float64) {
	md.labsStellar.add(cell, ell, val)
}

// AddAbsorbedDust adds an additive contribution to the dust absorbed
// luminosity accumulator.
func (md *Medium) AddAbsorbedDust(cell, ell int, val float64) {
	md.labsDust.add(cell, ell, val)
}

// AbsorbedStellar returns the stellar absorbed luminosity accumulator.
func (md *Medium) AbsorbedStellar(cell, ell int) float64 { return md.labsStellar.get(cell, ell) }

// AbsorbedDust returns the dust absorbed luminosity accumulator.
func (md *Medium) AbsorbedDust(cell, ell int) float64 { return md.labsDust.get(cell, ell) }

// TotalAbsorbed returns the sum of stellar and dust absorbed luminosity.
func (md *Medium) TotalAbsorbed(cell, ell int) float64 {
	return md.AbsorbedStellar(cell, ell) + md.AbsorbedDust(cell, ell)
}

// ZeroDustAccumulators zeroes only the dust absorbed-luminosity
// accumulators, preserving the stellar ones, as required at the start of
// each self-absorption cycle (spec.md §4.11 step 3).
func (md *Medium) ZeroDustAccumulators() {
	md.labsDust = newAccumulator(md.NCells, md.NLambda)
}

// LocalOpacity returns κρ for cell at wavelength ell, summed over
// components, for use as the path.OpacityFunc callback.
func (md *Medium) LocalOpacity(ell int) func(cell int) (float64, error) {
	return func(cell int) (float64, error) {
		var sum float64
		for h := 0; h < md.NComp; h++ {
			sum += md.Mixes[h].Extinction(ell) * md.density.Get(cell, h)
		}
		return sum, nil
	}
}

// LocalAlbedo returns the component-weighted local albedo of cell at
// wavelength ell: Σ_h κ_sca(h)ρ(h) / Σ_h κ_ext(h)ρ(h).
func (md *Medium) LocalAlbedo(cell, ell int) float64 {
	var sca, ext float64
	for h := 0; h < md.NComp; h++ {
		rho := md.density.Get(cell, h)
		sca += Scattering(md.Mixes[h], ell) * rho
		ext += md.Mixes[h].Extinction(ell) * rho
	}
	if ext == 0 {
		return 0
	}
	return sca / ext
}

// ChooseComponent picks a component h with probability proportional to
// κ_sca(h,ell)·ρ(cell,h), as step 6 of the packet life cycle requires.
func (md *Medium) ChooseComponent(cell, ell int, src rng.Source) int {
	weights := make([]float64, md.NComp)
	var total float64
	for h := 0; h < md.NComp; h++ {
		weights[h] = Scattering(md.Mixes[h], ell) * md.density.Get(cell, h)
		total += weights[h]
	}
	if total <= 0 {
		return 0
	}
	u := src.Float64() * total
	var cum float64
	for h, w := range weights {
		cum += w
		if u <= cum {
			return h
		}
	}
	return md.NComp - 1
}

// MeanIntensity returns J(m) = L_abs(m,ell) / (4π·V_m·Σ_h κ_abs(h,ell)ρ(m,h)·Δλ),
// with defensive zeroing when numerator and denominator are both zero
// (spec.md §4.7).
func (md *Medium) MeanIntensity(cell, ell int, dlambda float64) float64 {
	num := md.TotalAbsorbed(cell, ell)
	var kappaAbsRho float64
	for h := 0; h < md.NComp; h++ {
		kappaAbsRho += md.Mixes[h].Absorption(ell) * md.density.Get(cell, h)
	}
	denom := 4 * math.Pi * md.volume[cell] * kappaAbsRho * dlambda
	if denom == 0 {
		return 0
	}
	return num / denom
}

// PeelOffWeight computes the component-weighted phase-function value used
// to scale a scattering peel-off contribution (spec.md §4.9):
//
//	w = Σ_h κ_sca(h,ell)ρ(m,h)·Φ_h(ell,k_old,k_obs) / Σ_h κ_sca(h,ell)ρ(m,h)
func (md *Medium) PeelOffWeight(cell, ell int, kOld, kObs geometry.Direction) float64 {
	var num, denom float64
	for h := 0; h < md.NComp; h++ {
		rho := md.density.Get(cell, h)
		w := Scattering(md.Mixes[h], ell) * rho
		denom += w
		num += w * md.Mixes[h].Phase(ell, kOld, kObs)
	}
	if denom == 0 {
		return 0
	}
	return num / denom
}
