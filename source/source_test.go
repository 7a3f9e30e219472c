package source

import (
	"math/rand"
	"testing"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/rng"
)

func TestEmitNormalizesLuminosityByPacketCount(t *testing.T) {
	s := &Source{
		Position:             PositionSamplerFunc(func(int, rng.Source) (geometry.Point3, error) { return geometry.Point3{}, nil }),
		Luminosity:           func(int) float64 { return 100 },
		PacketsPerWavelength: 4,
	}
	src := rand.New(rand.NewSource(1))
	pkt, err := s.Emit(src, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Luminosity != 25 {
		t.Errorf("packet luminosity = %g, want 25", pkt.Luminosity)
	}
	if pkt.Birth != pkt.Luminosity {
		t.Errorf("birth luminosity should equal initial luminosity, got %g vs %g", pkt.Birth, pkt.Luminosity)
	}
	if !pkt.Stellar {
		t.Error("expected Emit to produce a stellar packet")
	}
	if !pkt.Direction.IsUnit(1e-9) {
		t.Errorf("emitted direction is not unit length: %+v", pkt.Direction)
	}
}

func TestEmitRejectsNonPositivePacketCount(t *testing.T) {
	s := &Source{PacketsPerWavelength: 0}
	src := rand.New(rand.NewSource(1))
	if _, err := s.Emit(src, 0); err == nil {
		t.Error("expected error for non-positive packets-per-wavelength")
	}
}

func TestCellWeightedSamplerChoosesProportionally(t *testing.T) {
	counts := make([]int, 3)
	sampler := &CellWeightedSampler{
		NCells: 3,
		Weight: func(_, cell int) float64 {
			return []float64{1, 0, 3}[cell]
		},
		RandomPositionIn: func(cell int, _ rng.Source) geometry.Point3 {
			counts[cell]++
			return geometry.Point3{}
		},
	}
	src := rand.New(rand.NewSource(7))
	for i := 0; i < 4000; i++ {
		if _, err := sampler.Sample(0, src); err != nil {
			t.Fatal(err)
		}
	}
	if counts[1] != 0 {
		t.Errorf("zero-weight cell 1 was chosen %d times", counts[1])
	}
	ratio := float64(counts[2]) / float64(counts[0])
	if ratio < 2.0 || ratio > 4.5 {
		t.Errorf("cell 2 (weight 3) to cell 0 (weight 1) ratio = %g, want roughly 3", ratio)
	}
}

func TestCellWeightedSamplerRejectsAllZeroWeights(t *testing.T) {
	sampler := &CellWeightedSampler{
		NCells:           2,
		Weight:           func(_, _ int) float64 { return 0 },
		RandomPositionIn: func(int, rng.Source) geometry.Point3 { return geometry.Point3{} },
	}
	src := rand.New(rand.NewSource(1))
	if _, err := sampler.Sample(0, src); err == nil {
		t.Error("expected error when every cell weight is zero")
	}
}
