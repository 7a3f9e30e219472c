package main

import (
	"math"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/rng"
)

// grayMix is a minimal concrete medium.Mix: wavelength-independent
// extinction and albedo with an isotropic phase function. It stands in for
// the opacity-table collaborator spec.md §1 explicitly places out of scope
// ("the concrete physics of specific dust compositions"), so the CLI has a
// usable default without inventing a dust-composition model the spec never
// asked for.
type grayMix struct {
	extinction float64
	albedo     float64
}

func (m grayMix) Absorption(int) float64 { return (1 - m.albedo) * m.extinction }
func (m grayMix) Extinction(int) float64 { return m.extinction }

func (m grayMix) Phase(_ int, _, _ geometry.Direction) float64 { return 1 / (4 * math.Pi) }

func (m grayMix) SamplePhase(_ int, _ geometry.Direction, src rng.Source) geometry.Direction {
	cosTheta, phi := rng.Isotropic(src)
	return geometry.FromAngles(cosTheta, phi)
}

// parallelProjection is a minimal concrete observer.Projection: an observer
// at effectively infinite distance viewing the domain along a fixed
// direction set by inclination/azimuth, the orthographic projection every
// SKIRT-style frame instrument reduces to once distance >> domain size. It
// stands in for the instrument-projection-math collaborator spec.md §1
// places out of scope.
type parallelProjection struct {
	direction     geometry.Direction
	u, v          geometry.Direction // orthonormal basis of the image plane
	width, height int
	pixelSize     float64
}

// newParallelProjection builds a projection viewing the origin along the
// direction given by inclination theta (from +z) and azimuth phi, with a
// width × height image plane of square pixels of side fieldOfViewM/width.
func newParallelProjection(inclinationDeg, azimuthDeg, fieldOfViewM float64, width, height int) *parallelProjection {
	theta := inclinationDeg * math.Pi / 180
	phi := azimuthDeg * math.Pi / 180
	n := geometry.FromAngles(math.Cos(theta), phi)
	// Build an arbitrary orthonormal basis (u,v) of the plane perpendicular
	// to n, choosing the reference axis least aligned with n to avoid a
	// degenerate cross product.
	ref := geometry.Point3{X: 0, Y: 0, Z: 1}
	if math.Abs(n.Z) > 0.9 {
		ref = geometry.Point3{X: 1, Y: 0, Z: 0}
	}
	nv := n.AsPoint3()
	uVec := cross(ref, nv)
	uVec = uVec.Scale(1 / uVec.Norm())
	vVec := cross(nv, uVec)
	return &parallelProjection{
		direction: n,
		u:         geometry.NewDirection(uVec.X, uVec.Y, uVec.Z),
		v:         geometry.NewDirection(vVec.X, vVec.Y, vVec.Z),
		width:     width, height: height,
		pixelSize: fieldOfViewM / float64(width),
	}
}

func cross(a, b geometry.Point3) geometry.Point3 {
	return geometry.Point3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func (p *parallelProjection) DirectionTo(geometry.Point3) geometry.Direction {
	return p.direction
}

// grayEmissionCalculator is the minimal concrete dustlib.EmissionCalculator:
// it re-emits each library entry's absorbed spectrum with its own shape
// unchanged, a graybody-reprocessing stand-in for the real dust-emissivity
// calculation spec.md §1 places out of scope ("the concrete physics of
// specific dust compositions").
type grayEmissionCalculator struct{}

func (grayEmissionCalculator) Spectrum(absorbed []float64) []float64 {
	out := make([]float64, len(absorbed))
	copy(out, absorbed)
	return out
}

func (p *parallelProjection) Pixel(position geometry.Point3) (x, y int, ok bool) {
	pos := position
	su := pos.Dot(p.u.AsPoint3())
	sv := pos.Dot(p.v.AsPoint3())
	fx := su/p.pixelSize + float64(p.width)/2
	fy := sv/p.pixelSize + float64(p.height)/2
	x, y = int(math.Floor(fx)), int(math.Floor(fy))
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return 0, 0, false
	}
	return x, y, true
}
