// Package tree implements the hierarchical binary k-d / octree grid of
// spec.md §4.5: adaptive subdivision from density samples, per-wall
// neighbor lists built incrementally during subdivision, and three
// interchangeable ray-traversal strategies.
package tree

import (
	"math"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/raderr"
	"github.com/cflux/raditrans/rng"
)

// Kind selects between a binary k-d tree and an octree.
type Kind int

const (
	KD Kind = iota
	Oct
)

// SplitPointMethod selects how a node's split point is chosen.
type SplitPointMethod int

const (
	SplitCenter SplitPointMethod = iota
	SplitBarycentric
)

// SplitAxisMethod selects the k-d split axis rule (irrelevant for Oct).
type SplitAxisMethod int

const (
	AxisAlternating SplitAxisMethod = iota
	AxisBarycentric
)

// TraversalMethod selects the ray-traversal strategy of spec.md §4.5.
type TraversalMethod int

const (
	TraversalTopDown TraversalMethod = iota
	TraversalNeighbor
	TraversalBookkeeping
)

// Wall indexes the six faces of a node's box. Pairing a wall with XOR 1
// yields its opposite face.
type Wall int

const (
	WallXMin Wall = iota
	WallXMax
	WallYMin
	WallYMax
	WallZMin
	WallZMax
)

func (w Wall) axis() int      { return int(w) / 2 }
func (w Wall) isMax() bool    { return int(w)%2 == 1 }
func (w Wall) opposite() Wall { return w ^ 1 }

// DensityFunc samples the local density at a point, averaged over
// components as needed by the subdivision criterion.
type DensityFunc func(p geometry.Point3) float64

// MassInBoxFunc optionally reports exact mass within a box, bypassing
// random sampling (the grid.MassInBoxProvider optional capability).
type MassInBoxFunc func(box geometry.Box) (float64, bool)

// Config controls tree construction.
type Config struct {
	Kind                  Kind
	SplitPoint            SplitPointMethod
	SplitAxis             SplitAxisMethod
	Traversal             TraversalMethod
	MinLevel, MaxLevel    int
	MaxMassFraction       float64 // 0 disables
	MaxOpticalDepth       float64 // 0 disables; kappa * mass / volume^(2/3)
	MaxDispersionFraction float64 // 0 disables
	NumDensitySamples     int
	Kappa                 float64
}

func (c Config) validate() error {
	if c.Kind == KD && c.Traversal == TraversalBookkeeping {
		return raderr.New(raderr.KindConfiguration,
			"bookkeeping traversal is not supported for binary k-d trees")
	}
	if c.MinLevel > c.MaxLevel {
		return raderr.New(raderr.KindConfiguration, "MinLevel %d exceeds MaxLevel %d", c.MinLevel, c.MaxLevel)
	}
	return nil
}

// Node is one node of the tree arena: an internal node or a leaf. Child and
// parent back-references are indices into Tree.Nodes, never pointers, so
// the whole tree is a single contiguous, cycle-free owner (spec.md §9).
type Node struct {
	Box       geometry.Box
	Level     int
	Parent    int // -1 for the root
	Children  []int
	Neighbors [6][]int // per Wall, ordered by descending overlap area
	Mass      float64
}

func (n *Node) leaf() bool { return len(n.Children) == 0 }

// Tree is the arena owning every node. It implements grid.Grid.
type Tree struct {
	Nodes     []Node
	leaves    *grid.LeafList[int, int] // arena indices of current leaves, O(1) removal on subdivide
	cfg       Config
	density   DensityFunc
	massInBox MassInBoxFunc

	// externalID and arenaToExternal are populated by finalize once
	// subdivision completes, giving every surviving leaf a dense external
	// cell id usable as an array index elsewhere in the engine.
	externalID      []int
	arenaToExternal map[int]int
}

var _ grid.Grid = (*Tree)(nil)

// Build constructs a tree over box from density samples (or exact mass via
// massInBox, when non-nil), subject to cfg's subdivision criteria.
func Build(box geometry.Box, cfg Config, density DensityFunc, massInBox MassInBoxFunc, src rng.Source) (*Tree, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.NumDensitySamples <= 0 {
		cfg.NumDensitySamples = 100
	}
	if cfg.SplitPoint == SplitBarycentric {
		// Barycentric splitting requires random-sample density evaluation;
		// mass_in_box is disabled in that case (spec.md §4.5).
		massInBox = nil
	}
	t := &Tree{cfg: cfg, density: density, massInBox: massInBox}
	root := Node{Box: box, Parent: -1}
	t.Nodes = append(t.Nodes, root)
	t.leaves = grid.NewLeafList[int, int]()
	t.leaves.Add(0, 0)

	totalMass := t.estimateMass(0, src)
	t.Nodes[0].Mass = totalMass

	queue := []int{0}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if t.shouldSubdivide(idx, totalMass, src) {
			children, err := t.subdivide(idx, src)
			if err != nil {
				return nil, err
			}
			queue = append(queue, children...)
		}
	}
	t.finalize()
	return t, nil
}

func (t *Tree) estimateMass(idx int, src rng.Source) float64 {
	n := &t.Nodes[idx]
	if t.massInBox != nil {
		if m, ok := t.massInBox(n.Box); ok {
			return m
		}
	}
	sum := 0.0
	for i := 0; i < t.cfg.NumDensitySamples; i++ {
		p := n.Box.FracPosition(src.Float64(), src.Float64(), src.Float64())
		sum += t.density(p)
	}
	mean := sum / float64(t.cfg.NumDensitySamples)
	return mean * n.Box.Volume()
}

func (t *Tree) densityDispersion(idx int, src rng.Source) float64 {
	n := &t.Nodes[idx]
	samples := make([]float64, t.cfg.NumDensitySamples)
	var sum float64
	for i := range samples {
		p := n.Box.FracPosition(src.Float64(), src.Float64(), src.Float64())
		samples[i] = t.density(p)
		sum += samples[i]
	}
	mean := sum / float64(len(samples))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance) / mean
}

func (t *Tree) shouldSubdivide(idx int, totalMass float64, src rng.Source) bool {
	n := &t.Nodes[idx]
	if n.Level < t.cfg.MinLevel {
		return true
	}
	if n.Level >= t.cfg.MaxLevel {
		return false
	}
	if t.cfg.MaxMassFraction > 0 && totalMass > 0 {
		if n.Mass/totalMass > t.cfg.MaxMassFraction {
			return true
		}
	}
	if t.cfg.MaxOpticalDepth > 0 {
		v := n.Box.Volume()
		tau := t.cfg.Kappa * n.Mass / math.Pow(v, 2.0/3.0)
		if tau > t.cfg.MaxOpticalDepth {
			return true
		}
	}
	if t.cfg.MaxDispersionFraction > 0 {
		if t.densityDispersion(idx, src) > t.cfg.MaxDispersionFraction {
			return true
		}
	}
	return false
}

// splitPoint returns the split coordinates for node idx.
func (t *Tree) splitPoint(idx int, src rng.Source) geometry.Point3 {
	n := &t.Nodes[idx]
	if t.cfg.SplitPoint == SplitCenter {
		return n.Box.Center()
	}
	// Barycentric: mass-weighted centroid via random density samples.
	var sx, sy, sz, sw float64
	for i := 0; i < t.cfg.NumDensitySamples; i++ {
		p := n.Box.FracPosition(src.Float64(), src.Float64(), src.Float64())
		w := t.density(p)
		sx += w * p.X
		sy += w * p.Y
		sz += w * p.Z
		sw += w
	}
	if sw == 0 {
		return n.Box.Center()
	}
	return geometry.Point3{X: sx / sw, Y: sy / sw, Z: sz / sw}
}

func (t *Tree) splitAxis(idx int, split geometry.Point3) int {
	n := &t.Nodes[idx]
	if t.cfg.SplitAxis == AxisAlternating {
		return n.Level % 3
	}
	// Barycentric: axis along which the barycenter is closest to a wall
	// in normalized units.
	best, bestDist := 0, math.Inf(1)
	coords := [3]float64{split.X, split.Y, split.Z}
	for a := 0; a < 3; a++ {
		lo, hi := n.Box.MinAxis(a), n.Box.MaxAxis(a)
		norm := (coords[a] - lo) / (hi - lo)
		d := math.Min(norm, 1-norm)
		if d < bestDist {
			bestDist, best = d, a
		}
	}
	return best
}
