// Package observer implements the observer/peel-off contract of spec.md
// §4.9 and the FITS-like/text output writers of spec.md §6.
package observer

import (
	"github.com/ctessum/sparse"

	"github.com/cflux/raditrans/geometry"
)

// Projection maps a packet position to the direction toward this observer,
// the instrument projection math spec.md §1 treats as an external
// collaborator behind this narrow interface.
type Projection interface {
	// DirectionTo returns the direction from position toward the observer.
	DirectionTo(position geometry.Point3) geometry.Direction
	// Pixel maps position to the (x,y) pixel indices of the observer's data
	// cube, or ok=false if position projects outside the field of view.
	Pixel(position geometry.Point3) (x, y int, ok bool)
}

// Observer is one configured instrument: a projection plus the data cubes
// indexed by wavelength × pixel that accumulate peeled-off contributions.
type Observer struct {
	Name                   string
	Projection             Projection
	Width, Height, NLambda int
	cube                   *sparse.DenseArray // [NLambda, Height, Width]
}

// New allocates an Observer's data cube.
func New(name string, proj Projection, width, height, nLambda int) *Observer {
	return &Observer{
		Name: name, Projection: proj,
		Width: width, Height: height, NLambda: nLambda,
		cube: sparse.ZerosDense(nLambda, height, width),
	}
}

// DirectionTo implements the peel-off contract of spec.md §4.9.
func (o *Observer) DirectionTo(position geometry.Point3) geometry.Direction {
	return o.Projection.DirectionTo(position)
}

// Receive accepts a peeled-off contribution at the given wavelength and
// position, adding it into the observer's data cube; out-of-field
// contributions are silently dropped as the projection is only a narrow
// interface to the instrument's field of view.
func (o *Observer) Receive(ell int, position geometry.Point3, luminosity float64) {
	x, y, ok := o.Projection.Pixel(position)
	if !ok {
		return
	}
	o.cube.AddVal(luminosity, ell, y, x)
}

// Cube returns the observer's accumulated data cube.
func (o *Observer) Cube() *sparse.DenseArray { return o.cube }

// Set is the collection of observers a simulation reports to.
type Set []*Observer

// PeelOff fans a contribution from position at wavelength ell out to every
// observer in the set, computing each one's own direction-to and pixel
// mapping, mirroring Instrument::detect being invoked per-instrument inside
// the foreach loop of the original peel-off routines.
func (s Set) PeelOff(ell int, position geometry.Point3, weightFor func(observerIndex int, dirToObserver geometry.Direction) float64, baseLuminosity float64) {
	for i, obs := range s {
		dir := obs.DirectionTo(position)
		w := 1.0
		if weightFor != nil {
			w = weightFor(i, dir)
		}
		obs.Receive(ell, position, baseLuminosity*w)
	}
}
