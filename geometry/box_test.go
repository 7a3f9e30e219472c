package geometry

import "testing"

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

func TestBoxVolume(t *testing.T) {
	b := NewBox(-1, -1, -1, 1, 1, 1)
	if different(b.Volume(), 8, 1e-12) {
		t.Errorf("volume = %g, want 8", b.Volume())
	}
}

func TestBoxContains(t *testing.T) {
	b := NewBox(0, 0, 0, 1, 1, 1)
	if !b.Contains(Point3{0.5, 0.5, 0.5}) {
		t.Error("expected center to be contained")
	}
	if b.Contains(Point3{1, 0.5, 0.5}) {
		t.Error("upper bound should be exclusive")
	}
}

func TestCellIndicesClamped(t *testing.T) {
	b := NewBox(0, 0, 0, 10, 10, 10)
	i, j, k := b.CellIndices(Point3{-1, 15, 5}, 10, 10, 10)
	if i != 0 || j != 9 || k != 5 {
		t.Errorf("got (%d,%d,%d), want (0,9,5)", i, j, k)
	}
}

func TestIntersectRay(t *testing.T) {
	b := NewBox(-1, -1, -1, 1, 1, 1)
	smin, smax, hit := b.IntersectRay(Point3{-2, 0, 0}, NewDirection(1, 0, 0))
	if !hit {
		t.Fatal("expected hit")
	}
	if different(smin, 1, 1e-12) || different(smax, 3, 1e-12) {
		t.Errorf("smin=%g smax=%g, want 1,3", smin, smax)
	}
	_, _, hit = b.IntersectRay(Point3{-2, 5, 0}, NewDirection(1, 0, 0))
	if hit {
		t.Error("expected miss")
	}
}

func TestDirectionUnit(t *testing.T) {
	k := NewDirection(3, 4, 0)
	if !k.IsUnit(1e-12) {
		t.Error("expected unit direction")
	}
	if different(k.X, 0.6, 1e-12) || different(k.Y, 0.8, 1e-12) {
		t.Errorf("got (%g,%g), want (0.6,0.8)", k.X, k.Y)
	}
}
