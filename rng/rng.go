// Package rng defines the random-number-generator contract the engine draws
// on. Its concrete implementation is out of scope (spec.md §1): callers
// supply any Source, one per worker, each seeded to an independent stream
// per spec.md §5.
package rng

import (
	"math"
	"math/rand"
)

// Source is the minimal random-number contract the engine needs: a uniform
// deviate in [0,1). Every sampling helper in this package builds on this one
// primitive, so a caller need only supply it.
type Source interface {
	Float64() float64
}

// goldenRatio64Bits is the fractional part of the golden ratio scaled to
// 64 bits, used to spread per-worker seeds apart; kept as a uint64 variable
// (rather than a constant) so the int64 reinterpretation below doesn't trip
// Go's constant-overflow check.
var goldenRatio64Bits uint64 = 0x9E3779B97F4A7C15

// PerWorker builds n independent Source streams from disjoint seeds derived
// from seed, satisfying the "each worker owns an independent stream seeded
// to be disjoint" requirement of spec.md §5.
func PerWorker(seed int64, n int) []Source {
	out := make([]Source, n)
	step := int64(goldenRatio64Bits)
	for i := 0; i < n; i++ {
		out[i] = rand.New(rand.NewSource(seed + int64(i)*step))
	}
	return out
}

// Isotropic draws (cosTheta, phi) for an isotropic direction: cosTheta
// uniform in [-1,1], phi uniform in [0,2π).
func Isotropic(src Source) (cosTheta, phi float64) {
	cosTheta = 2*src.Float64() - 1
	phi = 2 * math.Pi * src.Float64()
	return
}

// Exponential draws a sample from p(x) ∝ e^(-x) truncated to [0, xmax], via
// inverse-CDF sampling. Used for the path-length-to-next-scatter draw of
// spec.md §4.10 ("draw τ from p(τ) ∝ e^{−τ} truncated at τ_path").
func Exponential(src Source, xmax float64) float64 {
	if xmax <= 0 {
		return 0
	}
	u := src.Float64()
	norm := 1 - math.Exp(-xmax)
	return -math.Log(1 - u*norm)
}

// HenyeyGreenstein draws a scattering cosine from the Henyey-Greenstein
// phase function with asymmetry parameter g, via the standard closed-form
// inverse-CDF.
func HenyeyGreenstein(src Source, g float64) float64 {
	if math.Abs(g) < 1e-6 {
		return 2*src.Float64() - 1
	}
	u := src.Float64()
	t := (1 - g*g) / (1 + g - 2*g*u)
	return (1 + g*g - t*t) / (2 * g)
}
