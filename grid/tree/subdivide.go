package tree

import (
	"sort"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/rng"
)

// subdivide splits the leaf at idx into its children (2 for KD, 8 for Oct),
// builds their internal neighbor relations, redistributes the parent's
// external neighbor lists, and returns the new children's node indices.
func (t *Tree) subdivide(idx int, src rng.Source) ([]int, error) {
	split := t.splitPoint(idx, src)
	var childIdx []int
	switch t.cfg.Kind {
	case KD:
		childIdx = t.subdivideKD(idx, split)
	default:
		childIdx = t.subdivideOct(idx, split)
	}

	for _, c := range childIdx {
		t.Nodes[c].Mass = t.estimateMass(c, src)
	}

	t.redistributeNeighbors(idx, childIdx)
	t.sortNeighborsByOverlap(childIdx)

	t.Nodes[idx].Children = childIdx
	t.leaves.Delete(idx)
	for _, c := range childIdx {
		t.leaves.Add(c, c)
	}
	return childIdx, nil
}

func (t *Tree) subdivideKD(idx int, split geometry.Point3) []int {
	parent := t.Nodes[idx]
	a := t.splitAxis(idx, split)
	coord := []float64{split.X, split.Y, split.Z}[a]

	lowerBox := parent.Box.WithAxis(a, parent.Box.MinAxis(a), coord)
	upperBox := parent.Box.WithAxis(a, coord, parent.Box.MaxAxis(a))

	c0 := t.appendNode(Node{Box: lowerBox, Level: parent.Level + 1, Parent: idx})
	c1 := t.appendNode(Node{Box: upperBox, Level: parent.Level + 1, Parent: idx})

	// Internal adjacency: child0's positive-axis wall touches child1's
	// negative-axis wall.
	posWall := Wall(2*a + 1)
	negWall := posWall.opposite()
	t.Nodes[c0].Neighbors[posWall] = []int{c1}
	t.Nodes[c1].Neighbors[negWall] = []int{c0}

	return []int{c0, c1}
}

func (t *Tree) subdivideOct(idx int, split geometry.Point3) []int {
	parent := t.Nodes[idx]
	coord := [3]float64{split.X, split.Y, split.Z}
	children := make([]int, 8)
	for bits := 0; bits < 8; bits++ {
		box := parent.Box
		for a := 0; a < 3; a++ {
			if bits&(1<<uint(a)) != 0 {
				box = box.WithAxis(a, coord[a], parent.Box.MaxAxis(a))
			} else {
				box = box.WithAxis(a, parent.Box.MinAxis(a), coord[a])
			}
		}
		children[bits] = t.appendNode(Node{Box: box, Level: parent.Level + 1, Parent: idx})
	}
	// Internal adjacency: two octants are neighbors across axis a iff they
	// differ only in bit a.
	for bits := 0; bits < 8; bits++ {
		for a := 0; a < 3; a++ {
			other := bits ^ (1 << uint(a))
			if other <= bits {
				continue
			}
			// bits has the lower half on axis a iff its bit is 0.
			var negBits, posBits int
			if bits&(1<<uint(a)) == 0 {
				negBits, posBits = bits, other
			} else {
				negBits, posBits = other, bits
			}
			posWall := Wall(2*a + 1)
			negWall := posWall.opposite()
			cNeg, cPos := children[negBits], children[posBits]
			t.Nodes[cNeg].Neighbors[posWall] = append(t.Nodes[cNeg].Neighbors[posWall], cPos)
			t.Nodes[cPos].Neighbors[negWall] = append(t.Nodes[cPos].Neighbors[negWall], cNeg)
		}
	}
	return children
}

func (t *Tree) appendNode(n Node) int {
	t.Nodes = append(t.Nodes, n)
	return len(t.Nodes) - 1
}

// redistributeNeighbors inherits the subdivided parent's external neighbors
// into whichever children's projection on that wall overlaps the
// neighbor's, per spec.md §4.5. It also fixes up the neighbor's own list on
// the opposite wall, replacing the parent with the inheriting children.
func (t *Tree) redistributeNeighbors(parentIdx int, children []int) {
	parent := &t.Nodes[parentIdx]
	for w := Wall(0); w < 6; w++ {
		neighbors := parent.Neighbors[w]
		for _, nb := range neighbors {
			opp := w.opposite()
			for _, c := range children {
				if !touchesWall(t.Nodes[c].Box, parent.Box, w) {
					continue
				}
				if !projectionsOverlap(t.Nodes[c].Box, t.Nodes[nb].Box, w) {
					continue
				}
				t.Nodes[c].Neighbors[w] = append(t.Nodes[c].Neighbors[w], nb)
				replaceNeighbor(&t.Nodes[nb].Neighbors[opp], parentIdx, c)
			}
		}
	}
}

// touchesWall reports whether child's box shares the parent's face on wall
// w (i.e. the child was not created by splitting along w's axis away from
// that face).
func touchesWall(child, parent geometry.Box, w Wall) bool {
	a := w.axis()
	if w.isMax() {
		return child.MaxAxis(a) == parent.MaxAxis(a)
	}
	return child.MinAxis(a) == parent.MinAxis(a)
}

// projectionsOverlap reports whether a and b's faces on wall w overlap when
// projected onto the plane perpendicular to w's axis.
func projectionsOverlap(a, b geometry.Box, w Wall) bool {
	axis := w.axis()
	for i := 0; i < 3; i++ {
		if i == axis {
			continue
		}
		if a.MaxAxis(i) <= b.MinAxis(i) || b.MaxAxis(i) <= a.MinAxis(i) {
			return false
		}
	}
	return true
}

func overlapArea(a, b geometry.Box, w Wall) float64 {
	axis := w.axis()
	area := 1.0
	for i := 0; i < 3; i++ {
		if i == axis {
			continue
		}
		lo := maxf(a.MinAxis(i), b.MinAxis(i))
		hi := minf(a.MaxAxis(i), b.MaxAxis(i))
		if hi <= lo {
			return 0
		}
		area *= hi - lo
	}
	return area
}

func replaceNeighbor(list *[]int, oldID, newID int) {
	for i, v := range *list {
		if v == oldID {
			(*list)[i] = newID
			return
		}
	}
	*list = append(*list, newID)
}

// sortNeighborsByOverlap sorts each child's neighbor lists by descending
// overlap area, so the most likely successor is tried first during
// traversal (spec.md §4.5).
func (t *Tree) sortNeighborsByOverlap(children []int) {
	for _, c := range children {
		node := &t.Nodes[c]
		for w := Wall(0); w < 6; w++ {
			list := node.Neighbors[w]
			if len(list) < 2 {
				continue
			}
			sort.Slice(list, func(i, j int) bool {
				return overlapArea(node.Box, t.Nodes[list[i]].Box, w) > overlapArea(node.Box, t.Nodes[list[j]].Box, w)
			})
		}
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
