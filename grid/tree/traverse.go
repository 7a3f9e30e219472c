package tree

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/path"
	"github.com/cflux/raditrans/rng"
)

const stagnationEps = 1e-9

// finalize freezes the tree after subdivision completes, assigning each
// surviving leaf a dense external cell id in [0,N) so that per-cell arrays
// elsewhere in the engine (medium accumulators, dust-library tables) can
// index by CellOf's result directly.
func (t *Tree) finalize() {
	t.externalID = t.leaves.Slice()
	t.arenaToExternal = make(map[int]int, len(t.externalID))
	for ext, arena := range t.externalID {
		t.arenaToExternal[arena] = ext
	}
}

// CellCount implements grid.Grid.
func (t *Tree) CellCount() int { return len(t.externalID) }

// Dimension implements grid.Grid; a tree grid is always three-dimensional.
func (t *Tree) Dimension() int { return 3 }

// Extent implements grid.Grid.
func (t *Tree) Extent() (xmax, ymax, zmax float64) {
	root := t.Nodes[0].Box
	return math.Max(math.Abs(root.Xmin), root.Xmax),
		math.Max(math.Abs(root.Ymin), root.Ymax),
		math.Max(math.Abs(root.Zmin), root.Zmax)
}

// Volume implements grid.Grid.
func (t *Tree) Volume(cellID int) float64 {
	return t.Nodes[t.externalID[cellID]].Box.Volume()
}

// RandomPositionIn implements grid.Grid.
func (t *Tree) RandomPositionIn(cellID int, src rng.Source) geometry.Point3 {
	box := t.Nodes[t.externalID[cellID]].Box
	return box.FracPosition(src.Float64(), src.Float64(), src.Float64())
}

// CellOf implements grid.Grid.
func (t *Tree) CellOf(p geometry.Point3) int {
	arena := t.locateLeaf(p)
	if arena < 0 {
		return -1
	}
	ext, ok := t.arenaToExternal[arena]
	if !ok {
		return -1
	}
	return ext
}

func (t *Tree) locateLeaf(p geometry.Point3) int {
	if !t.Nodes[0].Box.Contains(p) {
		return -1
	}
	return t.descendFrom(0, p)
}

func (t *Tree) descendFrom(idx int, p geometry.Point3) int {
	for {
		node := &t.Nodes[idx]
		if node.leaf() {
			return idx
		}
		next := -1
		for _, c := range node.Children {
			if t.Nodes[c].Box.Contains(p) {
				next = c
				break
			}
		}
		if next < 0 {
			// Floating-point boundary case: fall back to the child whose
			// box comes closest to containing p.
			next = t.closestChild(node.Children, p)
		}
		idx = next
	}
}

func (t *Tree) closestChild(children []int, p geometry.Point3) int {
	best, bestDist := children[0], math.Inf(1)
	for _, c := range children {
		d := boxDistance(t.Nodes[c].Box, p)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func boxDistance(b geometry.Box, p geometry.Point3) float64 {
	d := 0.0
	clamp := func(v, lo, hi float64) float64 {
		if v < lo {
			return lo - v
		}
		if v > hi {
			return v - hi
		}
		return 0
	}
	dx := clamp(p.X, b.Xmin, b.Xmax)
	dy := clamp(p.Y, b.Ymin, b.Ymax)
	dz := clamp(p.Z, b.Zmin, b.Zmax)
	d = dx*dx + dy*dy + dz*dz
	return d
}

// exitWall returns the distance to the nearest wall of box that position
// exits through along direction, and which wall that is. Ties (exactly
// equal candidate distances; the comparison is a strict less-than with no
// tolerance) go to the first axis in x, y, z order — a single,
// consistently applied rule, as spec.md §9 requires when the source leaves
// the tie-break undefined.
func exitWall(box geometry.Box, position geometry.Point3, direction geometry.Direction) (ds float64, w Wall, ok bool) {
	best := math.Inf(1)
	bestWall := Wall(-1)
	axesPos := [3]float64{position.X, position.Y, position.Z}
	axesDir := [3]float64{direction.X, direction.Y, direction.Z}
	for a := 0; a < 3; a++ {
		if axesDir[a] == 0 {
			continue
		}
		var wall Wall
		var face float64
		if axesDir[a] > 0 {
			wall = Wall(2*a + 1)
			face = box.MaxAxis(a)
		} else {
			wall = Wall(2 * a)
			face = box.MinAxis(a)
		}
		d := (face - axesPos[a]) / axesDir[a]
		if d > 0 && d < best {
			best, bestWall = d, wall
		}
	}
	if bestWall < 0 {
		return 0, 0, false
	}
	return best, bestWall, true
}

// locateViaNeighbors implements the "Neighbor" and "Bookkeeping" traversal
// strategies of spec.md §4.5: look up candidate successor leaves on the
// exit wall's neighbor list, and pick the one whose box contains the
// advanced point. (This module implements "Bookkeeping" identically to
// "Neighbor" for octrees — both consult the precomputed neighbor list
// rather than re-descending the whole tree; Bookkeeping is rejected
// outright for binary trees per spec, enforced in Config.validate.)
func (t *Tree) locateViaNeighbors(leafArena int, w Wall, p geometry.Point3) int {
	for _, nb := range t.Nodes[leafArena].Neighbors[w] {
		if !t.Nodes[nb].Box.Contains(p) {
			continue
		}
		return t.descendFrom(nb, p)
	}
	return -1
}

// Trace implements grid.Grid.
func (t *Tree) Trace(position geometry.Point3, direction geometry.Direction) *path.Path {
	p := path.New()
	p.Start(position, direction)

	inside, outside, ok := path.MoveInside(t.Nodes[0].Box, position, direction)
	if !ok {
		return p
	}
	if outside.Ds > 0 {
		p.AddSegment(path.OutsideCell, outside.Ds)
	}

	current := inside
	leafArena := t.locateLeaf(current)
	stagnated := false
	for leafArena >= 0 {
		node := &t.Nodes[leafArena]
		ds, w, ok := exitWall(node.Box, current, direction)
		if !ok {
			break
		}
		ext, known := t.arenaToExternal[leafArena]
		if !known {
			break
		}
		p.AddSegment(ext, ds)

		next := current.Advance(direction, ds+stagnationEps)
		var nextArena int
		switch t.cfg.Traversal {
		case TraversalTopDown:
			nextArena = t.locateLeaf(next)
		default:
			nextArena = t.locateViaNeighbors(leafArena, w, next)
			if nextArena < 0 {
				nextArena = t.locateLeaf(next)
			}
		}

		if nextArena == leafArena {
			if stagnated {
				// Second stagnation: terminate the path with a warning.
				logrus.WithField("cell", ext).Warn("tree traversal stagnated twice; terminating path")
				break
			}
			stagnated = true
			next = current.Advance(direction, ds+4*stagnationEps)
			switch t.cfg.Traversal {
			case TraversalTopDown:
				nextArena = t.locateLeaf(next)
			default:
				nextArena = t.locateViaNeighbors(leafArena, w, next)
				if nextArena < 0 {
					nextArena = t.locateLeaf(next)
				}
			}
		} else {
			stagnated = false
		}

		current = next
		leafArena = nextArena
	}
	return p
}
