// Package voronoi implements the Voronoi-tessellation grid of spec.md §4.6:
// generator points, block-grid acceleration for point location, and
// neighbor-walking ray traversal.
//
// Point location uses the block grid's "small-list" acceleration alone:
// each generator is registered in its own block and the 26 blocks around
// it, and a lookup scans the candidates registered for the point's block.
// Build also fills an rtree index (github.com/ctessum/geom/index/rtree)
// over the generators' xy positions; no lookup queries it. Cell volumes,
// centroids, and bounding boxes are estimated by Monte Carlo sampling
// against the nearest-generator assignment (the same technique spec.md
// §4.4/§4.5 already use for two-phase weighting and mass-in-box sampling),
// since no analytic polyhedral tessellation library is available either.
package voronoi

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/path"
	"github.com/cflux/raditrans/raderr"
	"github.com/cflux/raditrans/rng"
)

// Wall-exit codes, as spec.md §4.6 specifies: -1..-6 encode xmin, xmax,
// ymin, ymax, zmin, zmax respectively.
const (
	WallXmin = -1
	WallXmax = -2
	WallYmin = -3
	WallYmax = -4
	WallZmin = -5
	WallZmax = -6
)

// GeneratorSource selects how generator points are obtained, per spec.md
// §4.6: uniform random, central-peak 1/r radial, density-weighted, or taken
// directly from supplied positions.
type GeneratorSource int

const (
	GeneratorsUniform GeneratorSource = iota
	GeneratorsRadial
	GeneratorsDensityWeighted
	GeneratorsSupplied
)

type cellData struct {
	Generator geometry.Point3
	Centroid  geometry.Point3
	Volume    float64
	BBox      geometry.Box
	Neighbors []int
}

// generatorItem wraps a generator so it can be inserted into an rtree. It
// embeds geom.Point to satisfy the rest of the geom.Geom interface (Len,
// Points, Similar, Transform); Bounds is overridden below with the small
// epsilon box the rtree needs instead of Point's zero-area bounds.
type generatorItem struct {
	geom.Point
	id int
	p  geometry.Point3
}

func (g generatorItem) Bounds() *geom.Bounds {
	const eps = 1e-12
	return &geom.Bounds{
		Min: geom.Point{X: g.p.X - eps, Y: g.p.Y - eps},
		Max: geom.Point{X: g.p.X + eps, Y: g.p.Y + eps},
	}
}

// Grid is the Voronoi-tessellation grid. It implements grid.Grid.
type Grid struct {
	box   geometry.Box
	cells []cellData
	index *rtree.Rtree

	nb                     int
	blockW, blockH, blockD float64
	blockCandidates        map[[3]int][]int
	positionTries          int
}

var _ grid.Grid = (*Grid)(nil)

// Config controls Monte Carlo estimation of volumes, centroids, and
// bounding boxes during Build.
type Config struct {
	VolumeSamples int // default 20000
	PositionTries int // bounded reject-sampling tries for RandomPositionIn, default 1000
}

// Build constructs a Voronoi grid over box from the given generator points.
func Build(box geometry.Box, generators []geometry.Point3, cfg Config, src rng.Source) (*Grid, error) {
	if len(generators) == 0 {
		return nil, raderr.New(raderr.KindConfiguration, "voronoi grid requires at least one generator")
	}
	if cfg.VolumeSamples <= 0 {
		cfg.VolumeSamples = 20000
	}
	if cfg.PositionTries <= 0 {
		cfg.PositionTries = 1000
	}

	g := &Grid{box: box, positionTries: cfg.PositionTries}
	g.cells = make([]cellData, len(generators))
	for i, p := range generators {
		g.cells[i] = cellData{Generator: p, BBox: geometry.NewBox(
			math.Inf(1), math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1), math.Inf(-1))}
	}

	// nb ≈ min(1000, max(3, floor(3·N^(1/3)))), spec.md §4.6.
	n := len(generators)
	g.nb = clampInt(int(3*math.Cbrt(float64(n))), 3, 1000)
	g.blockW = (box.Xmax - box.Xmin) / float64(g.nb)
	g.blockH = (box.Ymax - box.Ymin) / float64(g.nb)
	g.blockD = (box.Zmax - box.Zmin) / float64(g.nb)

	g.index = rtree.NewTree(25, 50)
	for i, p := range generators {
		g.index.Insert(generatorItem{id: i, p: p, Point: geom.Point{X: p.X, Y: p.Y}})
	}

	g.buildBlockCandidates()
	g.estimateGeometry(cfg, src)
	g.buildNeighborLists()

	return g, nil
}

// DensityFunc samples the local density at a point, used by
// GenerateGenerators' density-weighted placement strategy.
type DensityFunc func(p geometry.Point3) float64

// GenerateGenerators builds generator points per spec.md §4.6's four
// placement strategies. For GeneratorsSupplied (which also covers "copied
// from a mesh already present in the medium" — both simply reuse existing
// positions) n and density are ignored and supplied is returned unchanged.
func GenerateGenerators(box geometry.Box, n int, gsrc GeneratorSource, density DensityFunc, supplied []geometry.Point3, src rng.Source) ([]geometry.Point3, error) {
	switch gsrc {
	case GeneratorsSupplied:
		if len(supplied) == 0 {
			return nil, raderr.New(raderr.KindConfiguration,
				"voronoi generator source \"supplied\" requires at least one supplied point")
		}
		return supplied, nil

	case GeneratorsUniform:
		out := make([]geometry.Point3, n)
		for i := range out {
			out[i] = box.FracPosition(src.Float64(), src.Float64(), src.Float64())
		}
		return out, nil

	case GeneratorsRadial:
		out := make([]geometry.Point3, n)
		center := box.Center()
		rmax := math.Min(math.Min(box.Xmax-box.Xmin, box.Ymax-box.Ymin), box.Zmax-box.Zmin) / 2
		for i := range out {
			// 1/r radial density over a ball has CDF(r) ∝ r^2, hence r = rmax·sqrt(u).
			r := rmax * math.Sqrt(src.Float64())
			cosTheta, phi := rng.Isotropic(src)
			out[i] = center.Advance(geometry.FromAngles(cosTheta, phi), r)
		}
		return out, nil

	case GeneratorsDensityWeighted:
		if density == nil {
			return nil, raderr.New(raderr.KindConfiguration,
				"voronoi generator source \"density-weighted\" requires a density function")
		}
		const probe = 200
		var peak float64
		for i := 0; i < probe; i++ {
			p := box.FracPosition(src.Float64(), src.Float64(), src.Float64())
			if d := density(p); d > peak {
				peak = d
			}
		}
		if peak <= 0 {
			return nil, raderr.New(raderr.KindConfiguration,
				"voronoi density-weighted generator placement found zero density everywhere probed")
		}
		const maxTries = 10000
		out := make([]geometry.Point3, 0, n)
		for len(out) < n {
			placed := false
			for try := 0; try < maxTries; try++ {
				p := box.FracPosition(src.Float64(), src.Float64(), src.Float64())
				if src.Float64()*peak <= density(p) {
					out = append(out, p)
					placed = true
					break
				}
			}
			if !placed {
				return nil, raderr.New(raderr.KindNumericalAnomaly,
					"voronoi density-weighted generator placement failed to place point %d of %d after %d tries",
					len(out)+1, n, maxTries)
			}
		}
		return out, nil

	default:
		return nil, raderr.New(raderr.KindConfiguration, "unknown voronoi generator source %d", gsrc)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (g *Grid) blockOf(p geometry.Point3) [3]int {
	bi := clampInt(int((p.X-g.box.Xmin)/g.blockW), 0, g.nb-1)
	bj := clampInt(int((p.Y-g.box.Ymin)/g.blockH), 0, g.nb-1)
	bk := clampInt(int((p.Z-g.box.Zmin)/g.blockD), 0, g.nb-1)
	return [3]int{bi, bj, bk}
}

// buildBlockCandidates lists, for every occupied block plus its 26
// neighboring blocks, the generators whose bounding region could plausibly
// be nearest within it: each generator is registered in its own block and
// in every existing block adjacent to it. The rtree built in Build is not
// consulted; generators more than one block away from a block are never
// among its candidates.
func (g *Grid) buildBlockCandidates() {
	g.blockCandidates = make(map[[3]int][]int)
	for id, c := range g.cells {
		b := g.blockOf(c.Generator)
		for di := -1; di <= 1; di++ {
			for dj := -1; dj <= 1; dj++ {
				for dk := -1; dk <= 1; dk++ {
					key := [3]int{b[0] + di, b[1] + dj, b[2] + dk}
					if key[0] < 0 || key[0] >= g.nb || key[1] < 0 || key[1] >= g.nb || key[2] < 0 || key[2] >= g.nb {
						continue
					}
					g.blockCandidates[key] = append(g.blockCandidates[key], id)
				}
			}
		}
	}
}

// candidatesNear returns the generator ids that are plausible nearest
// neighbors of p, falling back to a full scan if p's block has no
// registered candidates (e.g. an empty region of a sparse point set).
func (g *Grid) candidatesNear(p geometry.Point3) []int {
	key := g.blockOf(p)
	if list, ok := g.blockCandidates[key]; ok && len(list) > 0 {
		return list
	}
	all := make([]int, len(g.cells))
	for i := range all {
		all[i] = i
	}
	return all
}

// nearestGenerator returns the id of the generator closest to p.
func (g *Grid) nearestGenerator(p geometry.Point3) int {
	candidates := g.candidatesNear(p)
	best, bestDist := -1, math.Inf(1)
	for _, id := range candidates {
		d := p.DistanceTo(g.cells[id].Generator)
		if d < bestDist {
			best, bestDist = id, d
		}
	}
	return best
}

func (g *Grid) estimateGeometry(cfg Config, src rng.Source) {
	counts := make([]int, len(g.cells))
	sums := make([]geometry.Point3, len(g.cells))
	for i := 0; i < cfg.VolumeSamples; i++ {
		p := g.box.FracPosition(src.Float64(), src.Float64(), src.Float64())
		id := g.nearestGenerator(p)
		counts[id]++
		sums[id] = sums[id].Add(p)
		bb := &g.cells[id].BBox
		*bb = expandTo(*bb, p)
	}
	total := g.box.Volume()
	for id := range g.cells {
		frac := float64(counts[id]) / float64(cfg.VolumeSamples)
		g.cells[id].Volume = frac * total
		if counts[id] > 0 {
			g.cells[id].Centroid = sums[id].Scale(1 / float64(counts[id]))
		} else {
			g.cells[id].Centroid = g.cells[id].Generator
			g.cells[id].BBox = geometry.NewBox(
				g.cells[id].Generator.X, g.cells[id].Generator.Y, g.cells[id].Generator.Z,
				g.cells[id].Generator.X, g.cells[id].Generator.Y, g.cells[id].Generator.Z)
		}
	}
}

func expandTo(b geometry.Box, p geometry.Point3) geometry.Box {
	return geometry.NewBox(
		math.Min(b.Xmin, p.X), math.Min(b.Ymin, p.Y), math.Min(b.Zmin, p.Z),
		math.Max(b.Xmax, p.X), math.Max(b.Ymax, p.Y), math.Max(b.Zmax, p.Z))
}

// buildNeighborLists records, for each cell, the other generators registered
// as candidates for its own generator's block (see buildBlockCandidates),
// which Trace below uses as its bisector-crossing candidate set. A
// Voronoi-adjacent cell whose generator lies more than one block away is not
// in the list (see the package doc comment for why an exact topological
// neighbor list is not computed).
func (g *Grid) buildNeighborLists() {
	for id := range g.cells {
		seen := make(map[int]bool)
		for _, c := range g.candidatesNear(g.cells[id].Generator) {
			if c != id && !seen[c] {
				seen[c] = true
				g.cells[id].Neighbors = append(g.cells[id].Neighbors, c)
			}
		}
	}
}

// CellCount implements grid.Grid.
func (g *Grid) CellCount() int { return len(g.cells) }

// Dimension implements grid.Grid.
func (g *Grid) Dimension() int { return 3 }

// Extent implements grid.Grid.
func (g *Grid) Extent() (xmax, ymax, zmax float64) {
	return math.Max(math.Abs(g.box.Xmin), g.box.Xmax),
		math.Max(math.Abs(g.box.Ymin), g.box.Ymax),
		math.Max(math.Abs(g.box.Zmin), g.box.Zmax)
}

// CellOf implements grid.Grid.
func (g *Grid) CellOf(p geometry.Point3) int {
	if !g.box.Contains(p) {
		return path.OutsideCell
	}
	return g.nearestGenerator(p)
}

// Volume implements grid.Grid.
func (g *Grid) Volume(cellID int) float64 { return g.cells[cellID].Volume }

// RandomPositionIn implements grid.Grid via reject sampling within the
// cell's bounding box, accepting the first point closer to the generator
// than to every neighbor's generator (spec.md §4.6).
func (g *Grid) RandomPositionIn(cellID int, src rng.Source) geometry.Point3 {
	c := &g.cells[cellID]
	for try := 0; try < g.positionTries; try++ {
		p := c.BBox.FracPosition(src.Float64(), src.Float64(), src.Float64())
		d0 := p.DistanceTo(c.Generator)
		ok := true
		for _, nb := range c.Neighbors {
			if p.DistanceTo(g.cells[nb].Generator) < d0 {
				ok = false
				break
			}
		}
		if ok {
			return p
		}
	}
	return c.Generator
}

// wallExit returns the distance to the nearest domain-wall plane that
// position exits through along direction (from inside box), and which wall
// code (-1..-6) that is.
func wallExit(box geometry.Box, position geometry.Point3, direction geometry.Direction) (ds float64, wall int, ok bool) {
	best := math.Inf(1)
	bestWall := 0
	axesPos := [3]float64{position.X, position.Y, position.Z}
	axesDir := [3]float64{direction.X, direction.Y, direction.Z}
	lo := [3]float64{box.Xmin, box.Ymin, box.Zmin}
	hi := [3]float64{box.Xmax, box.Ymax, box.Zmax}
	loWall := [3]int{WallXmin, WallYmin, WallZmin}
	hiWall := [3]int{WallXmax, WallYmax, WallZmax}
	for a := 0; a < 3; a++ {
		if axesDir[a] == 0 {
			continue
		}
		var face float64
		var w int
		if axesDir[a] > 0 {
			face, w = hi[a], hiWall[a]
		} else {
			face, w = lo[a], loWall[a]
		}
		d := (face - axesPos[a]) / axesDir[a]
		if d > 0 && d < best {
			best, bestWall = d, w
		}
	}
	if bestWall == 0 {
		return 0, 0, false
	}
	return best, bestWall, true
}

const stagnationEps = 1e-9

// Trace implements grid.Grid using the bisector-crossing ray traversal of
// spec.md §4.6: from the current (position, cell), compute the candidate
// exit distance to each neighbor's perpendicular bisector plane and to the
// domain walls, advance to the smallest positive one, and repeat until the
// chosen successor is a wall code.
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

	current := inside
	cell := g.nearestGenerator(current)
	if cell < 0 {
		return p
	}
	stagnated := false
	for {
		bestS := math.Inf(1)
		var bestNext int
		haveBest := false

		gm := g.cells[cell].Generator
		k := geometry.Point3{X: direction.X, Y: direction.Y, Z: direction.Z}
		for _, nb := range g.cells[cell].Neighbors {
			gi := g.cells[nb].Generator
			n := gi.Sub(gm)
			nk := n.Dot(k)
			if nk <= 0 {
				continue
			}
			mid := gi.Add(gm).Scale(0.5)
			s := n.Dot(mid.Sub(current)) / nk
			if s > 0 && s < bestS {
				bestS, bestNext, haveBest = s, nb, true
			}
		}
		if ws, w, wok := wallExit(g.box, current, direction); wok && ws < bestS {
			bestS, bestNext, haveBest = ws, w, true
		}
		if !haveBest {
			break
		}

		p.AddSegment(cell, bestS)
		next := current.Advance(direction, bestS+stagnationEps)

		if bestNext < 0 {
			// exited through a domain wall.
			current = next
			break
		}
		if bestNext == cell {
			if stagnated {
				break
			}
			stagnated = true
		} else {
			stagnated = false
		}
		current = next
		cell = bestNext
	}
	return p
}
