package path

import (
	"testing"

	"github.com/cflux/raditrans/geometry"
)

func different(a, b, tolerance float64) bool {
	if a == b {
		return false
	}
	if a == 0 || b == 0 {
		return (a-b) > tolerance || (b-a) > tolerance
	}
	d := (a - b) / b
	return d > tolerance || -d > tolerance
}

func TestAddSegmentDropsNonPositive(t *testing.T) {
	p := New()
	p.Start(geometry.Point3{}, geometry.NewDirection(1, 0, 0))
	p.AddSegment(0, 0)
	p.AddSegment(0, -1)
	if len(p.Segments) != 0 {
		t.Fatalf("expected zero segments, got %d", len(p.Segments))
	}
	p.AddSegment(0, 2)
	p.AddSegment(1, 3)
	if different(p.TotalLength(), 5, 1e-12) {
		t.Errorf("total length = %g, want 5", p.TotalLength())
	}
	if different(p.Segments[1].Cumulative, 5, 1e-12) {
		t.Errorf("cumulative = %g, want 5", p.Segments[1].Cumulative)
	}
}

func TestSingleCellOpticalDepth(t *testing.T) {
	const kappaRho = 1.0
	const L = 4.0
	p := New()
	p.Start(geometry.Point3{}, geometry.NewDirection(1, 0, 0))
	p.AddSegment(0, L)
	if err := p.FillOpticalDepth(func(int) (float64, error) { return kappaRho, nil }); err != nil {
		t.Fatal(err)
	}
	if different(p.TotalTau(), kappaRho*L, 1e-10) {
		t.Errorf("total tau = %g, want %g", p.TotalTau(), kappaRho*L)
	}
	s, err := p.PathLength(p.TotalTau() / 2)
	if err != nil {
		t.Fatal(err)
	}
	if different(s, L/2, 1e-10) {
		t.Errorf("path length = %g, want %g", s, L/2)
	}
}

func TestPathLengthRejectsOutOfRange(t *testing.T) {
	p := New()
	p.Start(geometry.Point3{}, geometry.NewDirection(1, 0, 0))
	p.AddSegment(0, 1)
	if err := p.FillOpticalDepth(func(int) (float64, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := p.PathLength(-1); err == nil {
		t.Error("expected error for negative tau")
	}
	if _, err := p.PathLength(10); err == nil {
		t.Error("expected error for tau beyond path total")
	}
}

func TestMoveInsideMiss(t *testing.T) {
	box := geometry.NewBox(-1, -1, -1, 1, 1, 1)
	_, _, ok := MoveInside(box, geometry.Point3{-5, 5, 0}, geometry.NewDirection(1, 0, 0))
	if ok {
		t.Error("expected miss")
	}
}

func TestMoveInsideHit(t *testing.T) {
	box := geometry.NewBox(-1, -1, -1, 1, 1, 1)
	inside, seg, ok := MoveInside(box, geometry.Point3{-5, 0, 0}, geometry.NewDirection(1, 0, 0))
	if !ok {
		t.Fatal("expected hit")
	}
	if seg.CellID != OutsideCell {
		t.Errorf("expected OutsideCell segment, got %d", seg.CellID)
	}
	if !box.Contains(inside) {
		t.Errorf("expected inside point to be contained in box, got %+v", inside)
	}
}
