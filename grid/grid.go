// Package grid defines the capability-set interface every concrete spatial
// discretization (regular, tree, Voronoi) satisfies, plus the optional
// interfaces a grid may additionally advertise.
package grid

import (
	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/path"
	"github.com/cflux/raditrans/rng"
)

// NoCell is the sentinel cell id meaning "outside the domain", shared with
// path.OutsideCell.
const NoCell = path.OutsideCell

// Grid is the minimal contract required from every concrete grid
// implementation (spec.md §4.3).
type Grid interface {
	// CellCount returns the total number of cells, N.
	CellCount() int
	// CellOf returns the id of the cell containing p, or NoCell if p lies
	// outside the domain.
	CellOf(p geometry.Point3) int
	// Volume returns the volume of the given cell; always > 0.
	Volume(cellID int) float64
	// RandomPositionIn returns a position drawn uniformly over the given
	// cell's volume.
	RandomPositionIn(cellID int, src rng.Source) geometry.Point3
	// Trace returns the path followed by a ray starting at position and
	// travelling in direction, with out-of-domain travel encoded as
	// NoCell segments.
	Trace(position geometry.Point3, direction geometry.Direction) *path.Path
	// Extent returns the domain's half-extents along x, y, z.
	Extent() (xmax, ymax, zmax float64)
	// Dimension returns 1, 2, or 3, used for convergence-diagnostic
	// output.
	Dimension() int
}

// DirectDensityProvider is an optional capability: when a grid aligns with
// the density structure (e.g. an imported mesh), it can report density
// directly rather than via the medium model's random sampling.
type DirectDensityProvider interface {
	// DirectDensity returns the density of component comp in cellID.
	DirectDensity(comp int, cellID int) (float64, bool)
}

// MassInBoxProvider is an optional capability used by the tree builder's
// subdivision criterion.
type MassInBoxProvider interface {
	// MassInBox returns the mass of component comp contained in box.
	MassInBox(comp int, box geometry.Box) (float64, bool)
}

// DensityModulator is an optional capability: a grid may scale the medium's
// sampled density per cell, the way the regular grid's two-phase weighting
// turns the theoretical sample into an effective density.
type DensityModulator interface {
	// DensityWeight returns the multiplicative density weight of cellID.
	DensityWeight(cellID int) float64
}

// AsDensityModulator type-asserts g against DensityModulator.
func AsDensityModulator(g Grid) (DensityModulator, bool) {
	m, ok := g.(DensityModulator)
	return m, ok
}

// AsDirectDensityProvider type-asserts g against DirectDensityProvider,
// mirroring the optional-capability pattern the mechanism interface in the
// surrounding ecosystem uses for per-mechanism-specific extensions.
func AsDirectDensityProvider(g Grid) (DirectDensityProvider, bool) {
	p, ok := g.(DirectDensityProvider)
	return p, ok
}

// AsMassInBoxProvider type-asserts g against MassInBoxProvider.
func AsMassInBoxProvider(g Grid) (MassInBoxProvider, bool) {
	p, ok := g.(MassInBoxProvider)
	return p, ok
}
