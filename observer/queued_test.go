package observer

import (
	"testing"

	"github.com/cflux/raditrans/geometry"
)

// pixelProjection maps every position to one pixel along a fixed direction.
type pixelProjection struct {
	x, y int
}

func (p pixelProjection) DirectionTo(geometry.Point3) geometry.Direction {
	return geometry.NewDirection(0, 0, 1)
}

func (p pixelProjection) Pixel(geometry.Point3) (int, int, bool) { return p.x, p.y, true }

func TestQueuedReceiveDefersUntilDrain(t *testing.T) {
	obs := New("test", pixelProjection{x: 1, y: 2}, 4, 4, 1)
	sets := NewQueuedSets([]*Observer{obs}, 1, 100)
	q := sets[0][0]

	q.Receive(0, geometry.Point3{}, 3)
	if got := obs.Cube().Get(0, 2, 1); got != 0 {
		t.Fatalf("cube updated before drain: %g", got)
	}
	q.Drain()
	if got := obs.Cube().Get(0, 2, 1); got != 3 {
		t.Errorf("cube after drain = %g, want 3", got)
	}
}

func TestQueuedDrainsAutomaticallyAtCapacity(t *testing.T) {
	obs := New("test", pixelProjection{x: 0, y: 0}, 2, 2, 1)
	sets := NewQueuedSets([]*Observer{obs}, 1, 4)
	q := sets[0][0]

	for i := 0; i < 4; i++ {
		q.Receive(0, geometry.Point3{}, 1)
	}
	if got := obs.Cube().Get(0, 0, 0); got != 4 {
		t.Errorf("cube after auto-drain = %g, want 4", got)
	}
}

func TestWorkersAccumulateIntoSharedCube(t *testing.T) {
	obs := New("test", pixelProjection{x: 0, y: 0}, 2, 2, 1)
	const nWorkers = 4
	sets := NewQueuedSets([]*Observer{obs}, nWorkers, 100)

	done := make(chan struct{})
	for w := 0; w < nWorkers; w++ {
		w := w
		go func() {
			for i := 0; i < 50; i++ {
				sets[w][0].Receive(0, geometry.Point3{}, 1)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < nWorkers; w++ {
		<-done
	}
	DrainAllSets(sets)
	if got := obs.Cube().Get(0, 0, 0); got != nWorkers*50 {
		t.Errorf("shared cube = %g, want %d", got, nWorkers*50)
	}
}
