package lifecycle

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/medium"
	"github.com/cflux/raditrans/path"
	"github.com/cflux/raditrans/rng"
	"github.com/cflux/raditrans/source"
)

// slabGrid is a single-cell cube domain, just enough to exercise the life
// cycle's fill/split/propagate/scatter loop without a real grid
// implementation.
type slabGrid struct {
	box geometry.Box
}

func (g slabGrid) CellCount() int { return 1 }

func (g slabGrid) CellOf(p geometry.Point3) int {
	if g.box.Contains(p) {
		return 0
	}
	return path.OutsideCell
}

func (g slabGrid) Volume(int) float64 { return g.box.Volume() }

func (g slabGrid) RandomPositionIn(int, rng.Source) geometry.Point3 { return g.box.Center() }

func (g slabGrid) Trace(position geometry.Point3, direction geometry.Direction) *path.Path {
	p := path.New()
	p.Start(position, direction)
	_, smax, hit := g.box.IntersectRay(position, direction)
	if !hit || smax <= 0 {
		return p
	}
	p.AddSegment(0, smax)
	return p
}

func (g slabGrid) Extent() (xmax, ymax, zmax float64) {
	return g.box.Xmax, g.box.Ymax, g.box.Zmax
}

func (g slabGrid) Dimension() int { return 3 }

// isotropicMix is a wavelength-independent extinction/albedo mix with an
// isotropic phase function, the same shape as cmd/raditrans's grayMix.
type isotropicMix struct {
	extinction, albedo float64
}

func (m isotropicMix) Absorption(int) float64                     { return (1 - m.albedo) * m.extinction }
func (m isotropicMix) Extinction(int) float64                     { return m.extinction }
func (m isotropicMix) Phase(int, _, _ geometry.Direction) float64 { return 1 / (4 * math.Pi) }
func (m isotropicMix) SamplePhase(_ int, _ geometry.Direction, src rng.Source) geometry.Direction {
	cosTheta, phi := rng.Isotropic(src)
	return geometry.FromAngles(cosTheta, phi)
}

type recordingObserver struct {
	direction geometry.Direction
	received  []float64
}

func (o *recordingObserver) DirectionTo(geometry.Point3) geometry.Direction { return o.direction }
func (o *recordingObserver) Receive(_ int, _ geometry.Point3, luminosity float64) {
	o.received = append(o.received, luminosity)
}

func newTestEngine(albedo float64) (*Engine, *recordingObserver, *slabGrid) {
	g := &slabGrid{box: geometry.NewBox(0, 0, 0, 10, 10, 10)}
	md := medium.New(g, 1, 1, []medium.Mix{isotropicMix{extinction: 0.2, albedo: albedo}})
	md.Setup(g, func(int, geometry.Point3) float64 { return 1 }, 1, rand.New(rand.NewSource(1)))
	obs := &recordingObserver{direction: geometry.NewDirection(0, 0, 1)}
	e := &Engine{Grid: g, Medium: md, Observers: []PeelOffTarget{obs}}
	return e, obs, g
}

func TestRunTerminatesBelowLuminosityFloor(t *testing.T) {
	e, obs, _ := newTestEngine(0.5)
	pkt := source.Packet{
		Position:   geometry.Point3{X: 5, Y: 5, Z: 5},
		Direction:  geometry.NewDirection(1, 0, 0),
		Luminosity: 1,
		Birth:      1,
		Stellar:    true,
	}
	src := rand.New(rand.NewSource(42))
	if err := e.Run(pkt, src); err != nil {
		t.Fatal(err)
	}
	if len(obs.received) == 0 {
		t.Fatal("expected at least the emission peel-off to reach the observer")
	}
	if obs.received[0] != pkt.Luminosity {
		t.Errorf("first peel-off (emission) = %g, want the birth luminosity %g", obs.received[0], pkt.Luminosity)
	}
	// Some stellar luminosity should have been absorbed into the medium.
	total := e.Medium.AbsorbedStellar(0, 0)
	if total <= 0 {
		t.Error("expected nonzero absorbed stellar luminosity after the life cycle")
	}
}

func TestRunDepositsMoreAbsorptionAtHigherExtinction(t *testing.T) {
	run := func(albedo float64, extinction float64, seed int64) float64 {
		g := &slabGrid{box: geometry.NewBox(0, 0, 0, 10, 10, 10)}
		md := medium.New(g, 1, 1, []medium.Mix{isotropicMix{extinction: extinction, albedo: albedo}})
		md.Setup(g, func(int, geometry.Point3) float64 { return 1 }, 1, rand.New(rand.NewSource(1)))
		obs := &recordingObserver{direction: geometry.NewDirection(0, 0, 1)}
		e := &Engine{Grid: g, Medium: md, Observers: []PeelOffTarget{obs}}
		pkt := source.Packet{
			Position:   geometry.Point3{X: 5, Y: 5, Z: 5},
			Direction:  geometry.NewDirection(1, 0, 0),
			Luminosity: 1,
			Birth:      1,
			Stellar:    true,
		}
		src := rand.New(rand.NewSource(seed))
		if err := e.Run(pkt, src); err != nil {
			t.Fatal(err)
		}
		return md.AbsorbedStellar(0, 0)
	}

	low := run(0.2, 0.05, 7)
	high := run(0.2, 1.0, 7)
	if high <= low {
		t.Errorf("higher-extinction run absorbed %g, want more than the lower-extinction run's %g", high, low)
	}
}

func TestExpFactorMatchesClosedFormAwayFromZero(t *testing.T) {
	x := 5.0
	got := expFactor(x)
	want := 1 - math.Exp(-x)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expFactor(%g) = %g, want %g", x, got, want)
	}
}

func TestExpFactorStableNearZero(t *testing.T) {
	x := 1e-6
	got := expFactor(x)
	if got <= 0 || got >= x {
		t.Errorf("expFactor(%g) = %g, expected a small positive value below x", x, got)
	}
}

var _ grid.Grid = slabGrid{}
