// Package diagnostics computes the quality and structure reports the
// simulation writes alongside its observer cubes (spec.md §6's ds_* output
// family): the cells-crossed histogram, planar density cuts comparing the
// theoretical density field with the gridded one, line-of-sight optical
// depth maps, cell-id structure cuts, and per-cell property tables.
package diagnostics

import (
	"math"
	"sync"

	"github.com/ctessum/sparse"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/medium"
	"github.com/cflux/raditrans/rng"
)

// CrossingHistogram counts traversals by the number of cells they crossed.
// The packet life-cycle engine records every traced path; paths longer than
// the current bin range grow the histogram geometrically rather than
// failing, the resize-and-retry recovery spec.md §7 names for this
// histogram.
type CrossingHistogram struct {
	mu   sync.Mutex
	bins []int64
}

// NewCrossingHistogram returns a histogram with an initial bin capacity.
func NewCrossingHistogram(initialBins int) *CrossingHistogram {
	if initialBins <= 0 {
		initialBins = 64
	}
	return &CrossingHistogram{bins: make([]int64, initialBins)}
}

// Record counts one path that crossed n cells. Safe for concurrent use.
func (h *CrossingHistogram) Record(n int) {
	if n < 0 {
		return
	}
	h.mu.Lock()
	for n >= len(h.bins) {
		grown := make([]int64, 2*len(h.bins))
		copy(grown, h.bins)
		h.bins = grown
	}
	h.bins[n]++
	h.mu.Unlock()
}

// Rows returns the histogram as (cells-crossed, count) rows up to the last
// non-empty bin, ready for the CSV-like text writer.
func (h *CrossingHistogram) Rows() [][]float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	last := -1
	for i, c := range h.bins {
		if c > 0 {
			last = i
		}
	}
	rows := make([][]float64, 0, last+1)
	for i := 0; i <= last; i++ {
		rows = append(rows, []float64{float64(i), float64(h.bins[i])})
	}
	return rows
}

// Plane selects the coordinate plane of a planar cut.
type Plane int

const (
	PlaneXY Plane = iota
	PlaneXZ
	PlaneYZ
)

func (p Plane) String() string {
	switch p {
	case PlaneXY:
		return "xy"
	case PlaneXZ:
		return "xz"
	default:
		return "yz"
	}
}

// pointInPlane maps pixel-fractional coordinates (fa, fb) in plane p of box
// to a domain position on the plane through the box center.
func pointInPlane(box geometry.Box, p Plane, fa, fb float64) geometry.Point3 {
	c := box.Center()
	switch p {
	case PlaneXY:
		return geometry.Point3{
			X: box.Xmin + fa*(box.Xmax-box.Xmin),
			Y: box.Ymin + fb*(box.Ymax-box.Ymin),
			Z: c.Z,
		}
	case PlaneXZ:
		return geometry.Point3{
			X: box.Xmin + fa*(box.Xmax-box.Xmin),
			Y: c.Y,
			Z: box.Zmin + fb*(box.Zmax-box.Zmin),
		}
	default:
		return geometry.Point3{
			X: c.X,
			Y: box.Ymin + fa*(box.Ymax-box.Ymin),
			Z: box.Zmin + fb*(box.Zmax-box.Zmin),
		}
	}
}

// TheoreticalDensityCut samples the caller-supplied density field on an n×n
// mid-plane cut (the "trho" maps), returning a [1, n, n] cube.
func TheoreticalDensityCut(box geometry.Box, field medium.DensityField, nComp int, p Plane, n int) *sparse.DenseArray {
	out := sparse.ZerosDense(1, n, n)
	for j := 0; j < n; j++ {
		fb := (float64(j) + 0.5) / float64(n)
		for i := 0; i < n; i++ {
			fa := (float64(i) + 0.5) / float64(n)
			pos := pointInPlane(box, p, fa, fb)
			var rho float64
			for h := 0; h < nComp; h++ {
				rho += field(h, pos)
			}
			out.Set(rho, 0, j, i)
		}
	}
	return out
}

// GriddedDensityCut samples the medium's per-cell density through the grid's
// point location on an n×n mid-plane cut (the "grho" maps). Pixels outside
// every cell are zero.
func GriddedDensityCut(box geometry.Box, g grid.Grid, md *medium.Medium, p Plane, n int) *sparse.DenseArray {
	out := sparse.ZerosDense(1, n, n)
	for j := 0; j < n; j++ {
		fb := (float64(j) + 0.5) / float64(n)
		for i := 0; i < n; i++ {
			fa := (float64(i) + 0.5) / float64(n)
			cell := g.CellOf(pointInPlane(box, p, fa, fb))
			if cell < 0 {
				continue
			}
			out.Set(md.TotalDensity(cell), 0, j, i)
		}
	}
	return out
}

// OpticalDepthMap traces one ray per pixel of an n×n xy map through the full
// z extent of the domain and records the total optical depth at wavelength
// ell (the "tau" map).
func OpticalDepthMap(box geometry.Box, g grid.Grid, md *medium.Medium, ell, n int) (*sparse.DenseArray, error) {
	out := sparse.ZerosDense(1, n, n)
	dir := geometry.NewDirection(0, 0, 1)
	opacity := md.LocalOpacity(ell)
	for j := 0; j < n; j++ {
		fy := (float64(j) + 0.5) / float64(n)
		for i := 0; i < n; i++ {
			fx := (float64(i) + 0.5) / float64(n)
			start := geometry.Point3{
				X: box.Xmin + fx*(box.Xmax-box.Xmin),
				Y: box.Ymin + fy*(box.Ymax-box.Ymin),
				Z: box.Zmin,
			}
			tr := g.Trace(start, dir)
			if err := tr.FillOpticalDepth(opacity); err != nil {
				return nil, err
			}
			out.Set(tr.TotalTau(), 0, j, i)
		}
	}
	return out, nil
}

// CellIDCut maps each pixel of an n×n mid-plane cut to the id of the cell
// containing it (the "grid" structure maps); pixels outside the domain are
// -1.
func CellIDCut(box geometry.Box, g grid.Grid, p Plane, n int) *sparse.DenseArray {
	out := sparse.ZerosDense(1, n, n)
	for j := 0; j < n; j++ {
		fb := (float64(j) + 0.5) / float64(n)
		for i := 0; i < n; i++ {
			fa := (float64(i) + 0.5) / float64(n)
			out.Set(float64(g.CellOf(pointInPlane(box, p, fa, fb))), 0, j, i)
		}
	}
	return out
}

// CellIDCube maps an n×n×n sampling of the whole domain to cell ids, the
// three-dimensional companion of CellIDCut.
func CellIDCube(box geometry.Box, g grid.Grid, n int) *sparse.DenseArray {
	out := sparse.ZerosDense(n, n, n)
	for k := 0; k < n; k++ {
		fz := (float64(k) + 0.5) / float64(n)
		for j := 0; j < n; j++ {
			fy := (float64(j) + 0.5) / float64(n)
			for i := 0; i < n; i++ {
				fx := (float64(i) + 0.5) / float64(n)
				pos := box.FracPosition(fx, fy, fz)
				out.Set(float64(g.CellOf(pos)), k, j, i)
			}
		}
	}
	return out
}

// CellProps returns one row per cell of (id, volume, total density, total
// mass), the per-cell property table behind the cellprops report.
func CellProps(g grid.Grid, md *medium.Medium) [][]float64 {
	rows := make([][]float64, g.CellCount())
	for c := range rows {
		v := g.Volume(c)
		rho := md.TotalDensity(c)
		rows[c] = []float64{float64(c), v, rho, v * rho}
	}
	return rows
}

// Quality compares the gridded density against the theoretical field at
// nSamples uniformly random domain points and returns the mean absolute
// deviation normalized by the mean theoretical density — the
// discretization-quality figure behind the quality report. Points falling
// outside every cell count their full theoretical density as deviation.
func Quality(box geometry.Box, g grid.Grid, md *medium.Medium, field medium.DensityField, nSamples int, src rng.Source) float64 {
	if nSamples <= 0 {
		nSamples = 10000
	}
	var devSum, refSum float64
	for i := 0; i < nSamples; i++ {
		pos := box.FracPosition(src.Float64(), src.Float64(), src.Float64())
		var rho float64
		for h := 0; h < md.NComp; h++ {
			rho += field(h, pos)
		}
		refSum += rho
		var gridded float64
		if cell := g.CellOf(pos); cell >= 0 {
			gridded = md.TotalDensity(cell)
		}
		devSum += math.Abs(gridded - rho)
	}
	if refSum == 0 {
		return 0
	}
	return devSum / refSum
}
