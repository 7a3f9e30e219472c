package diagnostics

import (
	"math/rand"
	"testing"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid/regular"
	"github.com/cflux/raditrans/medium"
	"github.com/cflux/raditrans/rng"
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

func TestCrossingHistogramGrowsPastInitialBins(t *testing.T) {
	h := NewCrossingHistogram(4)
	h.Record(2)
	h.Record(2)
	h.Record(100)
	rows := h.Rows()
	if len(rows) != 101 {
		t.Fatalf("expected rows through bin 100, got %d rows", len(rows))
	}
	if rows[2][1] != 2 {
		t.Errorf("bin 2 count = %g, want 2", rows[2][1])
	}
	if rows[100][1] != 1 {
		t.Errorf("bin 100 count = %g, want 1", rows[100][1])
	}
}

func TestCrossingHistogramEmptyHasNoRows(t *testing.T) {
	h := NewCrossingHistogram(8)
	if rows := h.Rows(); len(rows) != 0 {
		t.Errorf("empty histogram produced %d rows", len(rows))
	}
}

func buildUniformSetup(t *testing.T) (geometry.Box, *regular.Grid, *medium.Medium) {
	t.Helper()
	box := geometry.NewBox(-1, -1, -1, 1, 1, 1)
	spec := regular.AxisSpec{N: 4, Distribution: regular.Linear}
	g, err := regular.Build(box, spec, spec, spec, regular.TwoPhaseConfig{}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	md := medium.New(g, 1, 1, []medium.Mix{uniformMix{}})
	md.Setup(g, func(int, geometry.Point3) float64 { return 2 }, 10, rand.New(rand.NewSource(2)))
	return box, g, md
}

type uniformMix struct{}

func (uniformMix) Absorption(int) float64                     { return 0.5 }
func (uniformMix) Extinction(int) float64                     { return 1 }
func (uniformMix) Phase(int, _, _ geometry.Direction) float64 { return 1 }
func (uniformMix) SamplePhase(_ int, k geometry.Direction, _ rng.Source) geometry.Direction {
	return k
}

func TestGriddedDensityCutMatchesUniformField(t *testing.T) {
	box, g, md := buildUniformSetup(t)
	for _, plane := range []Plane{PlaneXY, PlaneXZ, PlaneYZ} {
		cut := GriddedDensityCut(box, g, md, plane, 8)
		for j := 0; j < 8; j++ {
			for i := 0; i < 8; i++ {
				if v := cut.Get(0, j, i); different(v, 2, 1e-9) {
					t.Fatalf("%v cut pixel (%d,%d) = %g, want 2", plane, i, j, v)
				}
			}
		}
	}
}

func TestTheoreticalDensityCutSamplesField(t *testing.T) {
	box := geometry.NewBox(-1, -1, -1, 1, 1, 1)
	cut := TheoreticalDensityCut(box, func(_ int, p geometry.Point3) float64 { return p.X + 2 }, 1, PlaneXY, 4)
	// Leftmost pixel column is at x = -1 + 0.5/4 * 2 = -0.75.
	if v := cut.Get(0, 0, 0); different(v, 1.25, 1e-9) {
		t.Errorf("leftmost pixel = %g, want 1.25", v)
	}
}

func TestOpticalDepthMapEqualsKappaRhoTimesDepth(t *testing.T) {
	box, g, md := buildUniformSetup(t)
	tau, err := OpticalDepthMap(box, g, md, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	// Uniform kappa*rho = 1*2 across a z extent of 2.
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			if v := tau.Get(0, j, i); different(v, 4, 1e-6) {
				t.Errorf("tau pixel (%d,%d) = %g, want 4", i, j, v)
			}
		}
	}
}

func TestCellIDCutReturnsValidIDs(t *testing.T) {
	box, g, _ := buildUniformSetup(t)
	cut := CellIDCut(box, g, PlaneXY, 8)
	for j := 0; j < 8; j++ {
		for i := 0; i < 8; i++ {
			id := int(cut.Get(0, j, i))
			if id < 0 || id >= g.CellCount() {
				t.Fatalf("pixel (%d,%d) has invalid cell id %d", i, j, id)
			}
		}
	}
}

func TestCellIDCubeCoversEveryCell(t *testing.T) {
	box, g, _ := buildUniformSetup(t)
	cube := CellIDCube(box, g, 8)
	seen := make(map[int]bool)
	for k := 0; k < 8; k++ {
		for j := 0; j < 8; j++ {
			for i := 0; i < 8; i++ {
				seen[int(cube.Get(k, j, i))] = true
			}
		}
	}
	if len(seen) != g.CellCount() {
		t.Errorf("cube sampled %d distinct cells, want all %d", len(seen), g.CellCount())
	}
}

func TestCellPropsRowsAreConsistent(t *testing.T) {
	_, g, md := buildUniformSetup(t)
	rows := CellProps(g, md)
	if len(rows) != g.CellCount() {
		t.Fatalf("got %d rows, want %d", len(rows), g.CellCount())
	}
	for _, row := range rows {
		if different(row[3], row[1]*row[2], 1e-12) {
			t.Errorf("cell %g: mass %g != volume %g * density %g", row[0], row[3], row[1], row[2])
		}
	}
}

func TestQualityIsZeroForPerfectlyGriddedField(t *testing.T) {
	box, g, md := buildUniformSetup(t)
	q := Quality(box, g, md, func(int, geometry.Point3) float64 { return 2 }, 1000, rand.New(rand.NewSource(3)))
	if q > 1e-9 {
		t.Errorf("quality deviation = %g for a uniform field on a uniform medium, want 0", q)
	}
}
