package regular

import (
	"math/rand"
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

func build2x2x2(t *testing.T) *Grid {
	t.Helper()
	box := geometry.NewBox(-1, -1, -1, 1, 1, 1)
	spec := AxisSpec{N: 2, Distribution: Linear}
	g, err := Build(box, spec, spec, spec, TwoPhaseConfig{}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestEmptyDomainTwoCellTrace(t *testing.T) {
	g := build2x2x2(t)
	p := g.Trace(geometry.Point3{0, 0, 0}, geometry.NewDirection(1, 0, 0))
	if len(p.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(p.Segments), p.Segments)
	}
	for _, seg := range p.Segments {
		if different(seg.Ds, 1, 1e-9) {
			t.Errorf("segment length = %g, want 1", seg.Ds)
		}
	}
	if different(p.TotalLength(), 2, 1e-9) {
		t.Errorf("total length = %g, want 2", p.TotalLength())
	}
}

func TestCellOfMatchesMidpointAlongTrace(t *testing.T) {
	box := geometry.NewBox(0, 0, 0, 10, 1, 1)
	g, err := Build(box,
		AxisSpec{N: 10, Distribution: Linear},
		AxisSpec{N: 1, Distribution: Linear},
		AxisSpec{N: 1, Distribution: Linear},
		TwoPhaseConfig{}, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}
	p := g.Trace(geometry.Point3{0, 0.5, 0.5}, geometry.NewDirection(1, 0, 0))
	if len(p.Segments) != 10 {
		t.Fatalf("expected 10 segments, got %d", len(p.Segments))
	}
	var prevCum float64
	for _, seg := range p.Segments {
		mid := geometry.Point3{X: 0, Y: 0.5, Z: 0.5}
		s := prevCum + seg.Ds/2
		mid.X = s
		if got := g.CellOf(mid); got != seg.CellID {
			t.Errorf("CellOf(midpoint) = %d, want %d", got, seg.CellID)
		}
		prevCum = seg.Cumulative
	}
}

func TestVolumeSumsToBoxVolume(t *testing.T) {
	g := build2x2x2(t)
	var sum float64
	for c := 0; c < g.CellCount(); c++ {
		sum += g.Volume(c)
	}
	if different(sum, 8, 1e-9) {
		t.Errorf("sum of cell volumes = %g, want 8", sum)
	}
}

func TestUniformSlabAbsorption(t *testing.T) {
	box := geometry.NewBox(0, 0, 0, 10, 1, 1)
	g, err := Build(box,
		AxisSpec{N: 10, Distribution: Linear},
		AxisSpec{N: 1, Distribution: Linear},
		AxisSpec{N: 1, Distribution: Linear},
		TwoPhaseConfig{}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	tr := g.Trace(geometry.Point3{0, 0.5, 0.5}, geometry.NewDirection(1, 0, 0))
	if err := tr.FillOpticalDepth(func(int) (float64, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}
	if different(tr.TotalTau(), 10, 1e-9) {
		t.Errorf("total tau = %g, want 10", tr.TotalTau())
	}
}

func TestTwoPhaseWeightsTakeTheTwoPointValues(t *testing.T) {
	box := geometry.NewBox(-1, -1, -1, 1, 1, 1)
	spec := AxisSpec{N: 4, Distribution: TwoPhaseWeighted}
	ff, c := 0.3, 10.0
	g, err := Build(box, spec, spec, spec,
		TwoPhaseConfig{Enabled: true, FillingFactor: ff, Contrast: c},
		rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatal(err)
	}
	hi := c / (c*ff + 1 - ff)
	lo := 1 / (c*ff + 1 - ff)
	var mean float64
	for m := 0; m < g.CellCount(); m++ {
		w := g.DensityWeight(m)
		if different(w, hi, 1e-12) && different(w, lo, 1e-12) {
			t.Fatalf("cell %d weight %g is neither %g nor %g", m, w, hi, lo)
		}
		mean += w
	}
	mean /= float64(g.CellCount())
	// The weight distribution has expectation 1, so the mean should land
	// near it for 64 cells.
	if mean < 0.3 || mean > 2.5 {
		t.Errorf("mean weight = %g, implausibly far from 1", mean)
	}
}

func TestDensityWeightIsUnityWithoutTwoPhase(t *testing.T) {
	g := build2x2x2(t)
	for m := 0; m < g.CellCount(); m++ {
		if g.DensityWeight(m) != 1 {
			t.Fatalf("cell %d weight = %g without two-phase weighting, want 1", m, g.DensityWeight(m))
		}
	}
}
