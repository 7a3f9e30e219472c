package observer

import (
	"testing"

	"github.com/cflux/raditrans/geometry"
)

type fixedProjection struct {
	dir  geometry.Direction
	x, y int
	ok   bool
}

func (p fixedProjection) DirectionTo(geometry.Point3) geometry.Direction { return p.dir }
func (p fixedProjection) Pixel(geometry.Point3) (int, int, bool)         { return p.x, p.y, p.ok }

func TestReceiveAccumulatesIntoCube(t *testing.T) {
	o := New("face-on", fixedProjection{x: 2, y: 3, ok: true}, 8, 8, 2)
	o.Receive(1, geometry.Point3{}, 5)
	o.Receive(1, geometry.Point3{}, 2)
	if got := o.Cube().Get(1, 3, 2); got != 7 {
		t.Errorf("cube(ell=1,y=3,x=2) = %g, want 7", got)
	}
	if got := o.Cube().Get(0, 3, 2); got != 0 {
		t.Errorf("cube(ell=0,y=3,x=2) = %g, want 0 (untouched wavelength)", got)
	}
}

func TestReceiveDropsOutOfFieldContribution(t *testing.T) {
	o := New("edge-on", fixedProjection{ok: false}, 4, 4, 1)
	o.Receive(0, geometry.Point3{}, 9)
	sum := 0.0
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			sum += o.Cube().Get(0, y, x)
		}
	}
	if sum != 0 {
		t.Errorf("expected no contribution to land, cube sum = %g", sum)
	}
}

func TestSetPeelOffFansOutToEveryObserver(t *testing.T) {
	a := New("a", fixedProjection{x: 0, y: 0, ok: true}, 2, 2, 1)
	b := New("b", fixedProjection{x: 1, y: 1, ok: true}, 2, 2, 1)
	set := Set{a, b}
	set.PeelOff(0, geometry.Point3{}, func(idx int, _ geometry.Direction) float64 {
		return float64(idx + 1)
	}, 10)
	if got := a.Cube().Get(0, 0, 0); got != 10 {
		t.Errorf("observer a received %g, want 10", got)
	}
	if got := b.Cube().Get(0, 1, 1); got != 20 {
		t.Errorf("observer b received %g, want 20", got)
	}
}
