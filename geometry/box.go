// Package geometry provides the axis-aligned box, position, and direction
// primitives shared by every grid implementation.
package geometry

import (
	"math"

	"github.com/ctessum/geom"
)

// Box is an immutable axis-aligned bounding box.
type Box struct {
	Xmin, Ymin, Zmin float64
	Xmax, Ymax, Zmax float64
}

// NewBox builds a Box from its six bounds.
func NewBox(xmin, ymin, zmin, xmax, ymax, zmax float64) Box {
	return Box{xmin, ymin, zmin, xmax, ymax, zmax}
}

// Bounds converts a Box to the geom package's Bounds type, for interop with
// the rest of the geometry ecosystem (rtree indexing, shapefile export, ...).
func (b Box) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.Xmin, Y: b.Ymin},
		Max: geom.Point{X: b.Xmax, Y: b.Ymax},
	}
}

// FromBounds builds a Box from a geom.Bounds plus the z-extent that Bounds
// cannot carry (geom.Bounds is two-dimensional).
func FromBounds(b *geom.Bounds, zmin, zmax float64) Box {
	return Box{b.Min.X, b.Min.Y, zmin, b.Max.X, b.Max.Y, zmax}
}

// Contains reports whether p lies within the box, inclusive of the lower
// bounds and exclusive of the upper bounds, matching the half-open cell
// convention used by CellIndices.
func (b Box) Contains(p Point3) bool {
	return p.X >= b.Xmin && p.X < b.Xmax &&
		p.Y >= b.Ymin && p.Y < b.Ymax &&
		p.Z >= b.Zmin && p.Z < b.Zmax
}

// Volume returns the box's volume.
func (b Box) Volume() float64 {
	return (b.Xmax - b.Xmin) * (b.Ymax - b.Ymin) * (b.Zmax - b.Zmin)
}

// Center returns the box's geometric center.
func (b Box) Center() Point3 {
	return Point3{
		X: 0.5 * (b.Xmin + b.Xmax),
		Y: 0.5 * (b.Ymin + b.Ymax),
		Z: 0.5 * (b.Zmin + b.Zmax),
	}
}

// FracPosition returns the point at fractional coordinates (fx,fy,fz) within
// the box, each in [0,1].
func (b Box) FracPosition(fx, fy, fz float64) Point3 {
	return Point3{
		X: b.Xmin + fx*(b.Xmax-b.Xmin),
		Y: b.Ymin + fy*(b.Ymax-b.Ymin),
		Z: b.Zmin + fz*(b.Zmax-b.Zmin),
	}
}

// CellIndices maps p to the (i,j,k) indices of an nx×ny×nz regular
// subdivision of the box, clamped to the valid [0,n) range on each axis.
func (b Box) CellIndices(p Point3, nx, ny, nz int) (i, j, k int) {
	i = clampIndex(int(float64(nx)*(p.X-b.Xmin)/(b.Xmax-b.Xmin)), nx)
	j = clampIndex(int(float64(ny)*(p.Y-b.Ymin)/(b.Ymax-b.Ymin)), ny)
	k = clampIndex(int(float64(nz)*(p.Z-b.Zmin)/(b.Zmax-b.Zmin)), nz)
	return
}

// MinAxis returns the box's lower bound along axis i (0=x, 1=y, 2=z).
func (b Box) MinAxis(i int) float64 {
	switch i {
	case 0:
		return b.Xmin
	case 1:
		return b.Ymin
	default:
		return b.Zmin
	}
}

// MaxAxis returns the box's upper bound along axis i (0=x, 1=y, 2=z).
func (b Box) MaxAxis(i int) float64 {
	switch i {
	case 0:
		return b.Xmax
	case 1:
		return b.Ymax
	default:
		return b.Zmax
	}
}

// WithAxis returns a copy of b with axis i's bounds replaced by [lo,hi].
func (b Box) WithAxis(i int, lo, hi float64) Box {
	switch i {
	case 0:
		b.Xmin, b.Xmax = lo, hi
	case 1:
		b.Ymin, b.Ymax = lo, hi
	default:
		b.Zmin, b.Zmax = lo, hi
	}
	return b
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// IntersectRay returns the entry and exit ray parameters (smin, smax) of the
// ray r0+s*k intersecting the box, and whether the ray intersects it at all.
// s values may be negative if r0 already lies past the corresponding slab
// boundary; callers clamp to s>=0 as needed.
func (b Box) IntersectRay(r0 Point3, k Direction) (smin, smax float64, hit bool) {
	smin, smax = math.Inf(-1), math.Inf(1)
	lo := [3]float64{b.Xmin, b.Ymin, b.Zmin}
	hi := [3]float64{b.Xmax, b.Ymax, b.Zmax}
	orig := [3]float64{r0.X, r0.Y, r0.Z}
	dir := [3]float64{k.X, k.Y, k.Z}
	for a := 0; a < 3; a++ {
		if dir[a] == 0 {
			if orig[a] < lo[a] || orig[a] > hi[a] {
				return 0, 0, false
			}
			continue
		}
		t1 := (lo[a] - orig[a]) / dir[a]
		t2 := (hi[a] - orig[a]) / dir[a]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > smin {
			smin = t1
		}
		if t2 < smax {
			smax = t2
		}
		if smin > smax {
			return 0, 0, false
		}
	}
	return smin, smax, true
}
