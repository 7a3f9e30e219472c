// Package regular implements the regular Cartesian grid of spec.md §4.4:
// per-axis coordinate tables, binary-search cell lookup, and the
// slab-crossing traversal algorithm.
package regular

import (
	"math"
	"sort"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/path"
	"github.com/cflux/raditrans/raderr"
	"github.com/cflux/raditrans/rng"
)

// Distribution selects how a regular grid's per-axis coordinate table is
// generated.
type Distribution int

const (
	Linear Distribution = iota
	GeometricRatio
	TwoPhaseWeighted
)

// AxisSpec describes one axis's subdivision.
type AxisSpec struct {
	N            int
	Distribution Distribution
	Ratio        float64 // geometric-ratio common ratio, ignored otherwise
}

// TwoPhaseConfig controls the optional two-phase density weighting of
// spec.md §4.4.
type TwoPhaseConfig struct {
	Enabled       bool
	FillingFactor float64 // ff
	Contrast      float64 // C
}

// Grid is the regular Cartesian grid: cells addressed (i,j,k) ↔
// m = k + nz·(j + ny·i).
type Grid struct {
	box        geometry.Box
	xv, yv, zv []float64 // nx+1, ny+1, nz+1 coordinate tables
	nx, ny, nz int
	twoPhase   TwoPhaseConfig
	weight     []float64 // per-cell weight, only set when twoPhase.Enabled
}

var _ grid.Grid = (*Grid)(nil)

// Build constructs a regular grid over box with the given per-axis specs.
func Build(box geometry.Box, x, y, z AxisSpec, twoPhase TwoPhaseConfig, src rng.Source) (*Grid, error) {
	if x.N <= 0 || y.N <= 0 || z.N <= 0 {
		return nil, raderr.New(raderr.KindConfiguration, "regular grid axis counts must be positive")
	}
	g := &Grid{
		box: box,
		xv:  coordinates(box.Xmin, box.Xmax, x),
		yv:  coordinates(box.Ymin, box.Ymax, y),
		zv:  coordinates(box.Zmin, box.Zmax, z),
		nx:  x.N, ny: y.N, nz: z.N,
	}
	if twoPhase.Enabled {
		g.twoPhase = twoPhase
		g.weight = make([]float64, g.CellCount())
		ff := twoPhase.FillingFactor
		c := twoPhase.Contrast
		hi := c / (c*ff + 1 - ff)
		lo := 1 / (c*ff + 1 - ff)
		for i := range g.weight {
			if src.Float64() < ff {
				g.weight[i] = hi
			} else {
				g.weight[i] = lo
			}
		}
	}
	return g, nil
}

func coordinates(lo, hi float64, spec AxisSpec) []float64 {
	n := spec.N
	v := make([]float64, n+1)
	switch spec.Distribution {
	case GeometricRatio:
		r := spec.Ratio
		if r <= 0 || r == 1 {
			r = 1.1
		}
		// First interval width w0 such that the sum of n geometric terms
		// spans [lo,hi].
		w0 := (hi - lo) * (r - 1) / (math.Pow(r, float64(n)) - 1)
		v[0] = lo
		w := w0
		for i := 1; i <= n; i++ {
			v[i] = v[i-1] + w
			w *= r
		}
		v[n] = hi
	default: // Linear and TwoPhaseWeighted share the same coordinate table;
		// the weighting in TwoPhaseWeighted modulates density, not geometry.
		for i := 0; i <= n; i++ {
			v[i] = lo + (hi-lo)*float64(i)/float64(n)
		}
	}
	return v
}

// Index returns the flat cell index for (i,j,k).
func (g *Grid) Index(i, j, k int) int {
	return k + g.nz*(j+g.ny*i)
}

// Indices returns the (i,j,k) indices for a flat cell index.
func (g *Grid) Indices(m int) (i, j, k int) {
	k = m % g.nz
	j = (m / g.nz) % g.ny
	i = m / (g.nz * g.ny)
	return
}

// CellCount implements grid.Grid.
func (g *Grid) CellCount() int { return g.nx * g.ny * g.nz }

// Dimension implements grid.Grid.
func (g *Grid) Dimension() int { return 3 }

// Extent implements grid.Grid.
func (g *Grid) Extent() (xmax, ymax, zmax float64) {
	return math.Max(math.Abs(g.box.Xmin), g.box.Xmax),
		math.Max(math.Abs(g.box.Ymin), g.box.Ymax),
		math.Max(math.Abs(g.box.Zmin), g.box.Zmax)
}

func searchAxis(v []float64, x float64) int {
	// index of the cell i such that v[i] <= x < v[i+1], clamped to range.
	i := sort.Search(len(v), func(i int) bool { return v[i] > x }) - 1
	if i < 0 {
		i = 0
	}
	if i > len(v)-2 {
		i = len(v) - 2
	}
	return i
}

// CellOf implements grid.Grid.
func (g *Grid) CellOf(p geometry.Point3) int {
	if !g.box.Contains(p) {
		return -1
	}
	i := searchAxis(g.xv, p.X)
	j := searchAxis(g.yv, p.Y)
	k := searchAxis(g.zv, p.Z)
	return g.Index(i, j, k)
}

func (g *Grid) cellBox(i, j, k int) geometry.Box {
	return geometry.NewBox(g.xv[i], g.yv[j], g.zv[k], g.xv[i+1], g.yv[j+1], g.zv[k+1])
}

// Volume implements grid.Grid.
func (g *Grid) Volume(cellID int) float64 {
	i, j, k := g.Indices(cellID)
	return g.cellBox(i, j, k).Volume()
}

// DensityWeight returns the two-phase density modulation weight of cellID
// (the grid.DensityModulator capability); 1 when two-phase weighting is
// disabled.
func (g *Grid) DensityWeight(cellID int) float64 {
	if !g.twoPhase.Enabled {
		return 1
	}
	return g.weight[cellID]
}

// RandomPositionIn implements grid.Grid.
func (g *Grid) RandomPositionIn(cellID int, src rng.Source) geometry.Point3 {
	i, j, k := g.Indices(cellID)
	return g.cellBox(i, j, k).FracPosition(src.Float64(), src.Float64(), src.Float64())
}

const stagnationEps = 1e-9

// Trace implements grid.Grid using the standard slab-crossing algorithm:
// from the current (i,j,k), compute the three candidate distances to the
// next wall in each axis, advance by the minimum, increment the
// corresponding index, emit a segment, and terminate when an index leaves
// range. Ties are broken by trying axes in x, y, z order (spec.md §9 Open
// Question: the tie-break is order-dependent in the source and left to the
// implementer to pick and document a single consistent rule).
func (g *Grid) Trace(position geometry.Point3, direction geometry.Direction) *path.Path {
	p := path.New()
	p.Start(position, direction)

	inside, outside, ok := path.MoveInside(g.box, position, direction)
	if !ok {
		return p
	}
	if outside.Ds > 0 {
		p.AddSegment(path.OutsideCell, outside.Ds)
	}

	i, j, k := g.box.CellIndices(inside, g.nx, g.ny, g.nz)
	pos := inside
	dir := [3]float64{direction.X, direction.Y, direction.Z}
	for i >= 0 && i < g.nx && j >= 0 && j < g.ny && k >= 0 && k < g.nz {
		tables := [3][]float64{g.xv, g.yv, g.zv}
		idx := [3]int{i, j, k}
		best := math.Inf(1)
		bestAxis := -1
		for a := 0; a < 3; a++ {
			if dir[a] == 0 {
				continue
			}
			var face float64
			if dir[a] > 0 {
				face = tables[a][idx[a]+1]
			} else {
				face = tables[a][idx[a]]
			}
			var d float64
			switch a {
			case 0:
				d = (face - pos.X) / dir[a]
			case 1:
				d = (face - pos.Y) / dir[a]
			default:
				d = (face - pos.Z) / dir[a]
			}
			if d > 0 && d < best {
				best, bestAxis = d, a
			}
		}
		if bestAxis < 0 {
			break
		}
		cellID := g.Index(i, j, k)
		p.AddSegment(cellID, best)
		pos = pos.Advance(direction, best+stagnationEps)
		switch bestAxis {
		case 0:
			if dir[0] > 0 {
				i++
			} else {
				i--
			}
		case 1:
			if dir[1] > 0 {
				j++
			} else {
				j--
			}
		default:
			if dir[2] > 0 {
				k++
			} else {
				k--
			}
		}
	}
	return p
}
