// Package path implements the mutable ray-traversal record built by every
// grid's Trace method and consumed by the packet life-cycle engine.
package path

import (
	"math"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/raderr"
)

// OutsideCell is the sentinel cell-id meaning "outside the domain".
const OutsideCell = -1

// stagnationEps is the epsilon by which MoveInside and a grid's Trace
// displace a just-computed wall crossing, so that the next lookup does not
// recompute (and potentially mis-round) the same boundary.
const stagnationEps = 1e-9

// Segment is one (cell-id, segment-length, cumulative-length) triple along a
// traversal, built in order from the start of the ray.
type Segment struct {
	CellID     int
	Ds         float64
	Cumulative float64
	// DTau and TauCumulative are populated only after FillOpticalDepth.
	DTau          float64
	TauCumulative float64
}

// Path is the scratch record of one ray traversal. It is reused across
// packets via Start to avoid per-packet allocation churn.
type Path struct {
	Start0    geometry.Point3
	Direction geometry.Direction
	Segments  []Segment
}

// New returns an empty Path ready for Start.
func New() *Path {
	return &Path{}
}

// Start clears the path and records its endpoints.
func (p *Path) Start(position geometry.Point3, direction geometry.Direction) {
	p.Start0 = position
	p.Direction = direction
	p.Segments = p.Segments[:0]
}

// AddSegment appends a segment of length ds in cell cellID, provided ds>0;
// zero-or-negative segments are silently dropped, matching the "append only
// if ds > 0" contract.
func (p *Path) AddSegment(cellID int, ds float64) {
	if ds <= 0 {
		return
	}
	cum := ds
	if n := len(p.Segments); n > 0 {
		cum += p.Segments[n-1].Cumulative
	}
	p.Segments = append(p.Segments, Segment{CellID: cellID, Ds: ds, Cumulative: cum})
}

// TotalLength returns the path's total traversed length.
func (p *Path) TotalLength() float64 {
	if len(p.Segments) == 0 {
		return 0
	}
	return p.Segments[len(p.Segments)-1].Cumulative
}

// MoveInside advances position along direction to the first wall of box, if
// position lies outside it. It returns a segment with cell-id OutsideCell
// covering the outside travel (for the caller to add), and the just-inside position
// displaced by stagnationEps along direction. If the ray misses box
// entirely, ok is false and the caller should produce an empty path.
func MoveInside(box geometry.Box, position geometry.Point3, direction geometry.Direction) (inside geometry.Point3, segment Segment, ok bool) {
	if box.Contains(position) {
		return position, Segment{}, true
	}
	smin, smax, hit := box.IntersectRay(position, direction)
	if !hit || smax <= 0 || smin >= smax {
		return geometry.Point3{}, Segment{}, false
	}
	s := smin
	if s < 0 {
		s = 0
	}
	entry := position.Advance(direction, s+stagnationEps)
	if !box.Contains(entry) {
		return geometry.Point3{}, Segment{}, false
	}
	return entry, Segment{CellID: OutsideCell, Ds: s, Cumulative: s}, true
}

// OpacityFunc returns the local κρ (extinction per unit length) for the
// segment of the traversal currently in cellID.
type OpacityFunc func(cellID int) (kappaRho float64, err error)

// FillOpticalDepth computes per-segment dτ = ds·κρ and the running
// cumulative τ, using opacity for each segment's cell. Segments with
// cellID==OutsideCell contribute zero optical depth. A NaN or infinite
// opacity is a fatal numerical anomaly.
func (p *Path) FillOpticalDepth(opacity OpacityFunc) error {
	var cum float64
	for i := range p.Segments {
		seg := &p.Segments[i]
		if seg.CellID == OutsideCell {
			seg.DTau = 0
			seg.TauCumulative = cum
			continue
		}
		kr, err := opacity(seg.CellID)
		if err != nil {
			return err
		}
		dtau := seg.Ds * kr
		if math.IsNaN(dtau) || math.IsInf(dtau, 0) {
			return raderr.New(raderr.KindNumericalAnomaly,
				"non-finite optical depth in cell %d (ds=%g, kappaRho=%g)", seg.CellID, seg.Ds, kr)
		}
		cum += dtau
		seg.DTau = dtau
		seg.TauCumulative = cum
	}
	return nil
}

// TotalTau returns the cumulative optical depth at the end of the path.
func (p *Path) TotalTau() float64 {
	if len(p.Segments) == 0 {
		return 0
	}
	return p.Segments[len(p.Segments)-1].TauCumulative
}

// PathLength returns the path length s at which the cumulative optical
// depth equals tau, by linear interpolation on the monotone τ table built by
// FillOpticalDepth. It errors if tau is negative or exceeds the path's total
// optical depth.
func (p *Path) PathLength(tau float64) (float64, error) {
	if tau < 0 {
		return 0, raderr.New(raderr.KindNumericalAnomaly, "negative optical depth %g", tau)
	}
	total := p.TotalTau()
	if tau > total {
		return 0, raderr.New(raderr.KindNumericalAnomaly, "optical depth %g exceeds path total %g", tau, total)
	}
	var prevTau, prevS float64
	for _, seg := range p.Segments {
		if tau <= seg.TauCumulative {
			if seg.DTau == 0 {
				return prevS + (seg.Cumulative - prevS), nil
			}
			frac := (tau - prevTau) / seg.DTau
			return prevS + frac*seg.Ds, nil
		}
		prevTau = seg.TauCumulative
		prevS = seg.Cumulative
	}
	return total, nil
}
