// Package source implements the emission model of spec.md §4.8: drawing a
// packet's birth position from a spatial distribution and an isotropic
// direction, with luminosity normalized by the configured packet count.
package source

import (
	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/raderr"
	"github.com/cflux/raditrans/rng"
)

// Packet is the Monte Carlo token tracked through the life cycle, matching
// the Packet entity of spec.md §3.
type Packet struct {
	Ell          int
	Luminosity   float64
	Birth        float64 // L_birth, the luminosity at emission; used for the termination floor
	Position     geometry.Point3
	Direction    geometry.Direction
	ScatterCount int
	Stellar      bool
}

// PositionSampler draws a birth position for a packet at wavelength ell.
type PositionSampler interface {
	Sample(ell int, src rng.Source) (geometry.Point3, error)
}

// PositionSamplerFunc adapts a function to PositionSampler.
type PositionSamplerFunc func(ell int, src rng.Source) (geometry.Point3, error)

func (f PositionSamplerFunc) Sample(ell int, src rng.Source) (geometry.Point3, error) {
	return f(ell, src)
}

// Source emits stellar packets, spec.md §4.8.
type Source struct {
	Position PositionSampler
	// Luminosity returns L_source(ell), the source's total luminosity at
	// wavelength index ell.
	Luminosity func(ell int) float64
	// PacketsPerWavelength is N_packets_per_wavelength, the normalization
	// divisor for a single packet's birth luminosity.
	PacketsPerWavelength float64
}

// Emit draws a Packet at wavelength ell: a position from the spatial
// distribution and an isotropic direction, with luminosity
// L_source(ell)/N_packets_per_wavelength and the stellar flag set.
func (s *Source) Emit(src rng.Source, ell int) (Packet, error) {
	if s.PacketsPerWavelength <= 0 {
		return Packet{}, raderr.New(raderr.KindConfiguration, "source packets-per-wavelength must be positive")
	}
	pos, err := s.Position.Sample(ell, src)
	if err != nil {
		return Packet{}, raderr.Wrap(raderr.KindDataImport, err, "sampling source position")
	}
	cosTheta, phi := rng.Isotropic(src)
	dir := geometry.FromAngles(cosTheta, phi)
	l := s.Luminosity(ell) / s.PacketsPerWavelength
	return Packet{
		Ell:        ell,
		Luminosity: l,
		Birth:      l,
		Position:   pos,
		Direction:  dir,
		Stellar:    true,
	}, nil
}

// CellWeightedSampler draws positions uniformly within a cell chosen with
// probability proportional to a caller-supplied per-cell weight, such as
// B_m · spectrum_m(ell) for dust emission (spec.md §4.11 step 4). The
// selfabsorb driver does not use it; it samples its flattened spectrum
// table directly.
type CellWeightedSampler struct {
	// Weight returns the (unnormalized) launch weight of cell m at
	// wavelength ell.
	Weight func(ell, cell int) float64
	NCells int
	// RandomPositionIn draws a uniform position within the given cell.
	RandomPositionIn func(cell int, src rng.Source) geometry.Point3
}

var _ PositionSampler = (*CellWeightedSampler)(nil)

// Sample implements PositionSampler.
func (c *CellWeightedSampler) Sample(ell int, src rng.Source) (geometry.Point3, error) {
	cell, err := c.chooseCell(ell, src)
	if err != nil {
		return geometry.Point3{}, err
	}
	return c.RandomPositionIn(cell, src), nil
}

// chooseCell picks a cell with probability proportional to Weight(ell, m).
func (c *CellWeightedSampler) chooseCell(ell int, src rng.Source) (int, error) {
	var total float64
	for m := 0; m < c.NCells; m++ {
		total += c.Weight(ell, m)
	}
	if total <= 0 {
		return 0, raderr.New(raderr.KindNumericalAnomaly, "dust emission launch weight is non-positive at wavelength %d", ell)
	}
	u := src.Float64() * total
	var cum float64
	for m := 0; m < c.NCells; m++ {
		cum += c.Weight(ell, m)
		if u <= cum {
			return m, nil
		}
	}
	return c.NCells - 1, nil
}
