package main

import (
	"os"

	"github.com/cflux/raditrans/config"
	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/grid/regular"
	"github.com/cflux/raditrans/grid/tree"
	"github.com/cflux/raditrans/grid/voronoi"
	"github.com/cflux/raditrans/importer"
	"github.com/cflux/raditrans/medium"
	"github.com/cflux/raditrans/raderr"
	"github.com/cflux/raditrans/rng"
)

// uniformDensity is the placeholder density field used to seed tree/voronoi
// construction and medium sampling when no imported particle data is
// configured.
func uniformDensity(int, geometry.Point3) float64 { return 1 }

func axisSpec(cfg *config.Config, n int) regular.AxisSpec {
	if cfg.Grid.Weighting == "power_law" {
		return regular.AxisSpec{N: n, Distribution: regular.GeometricRatio, Ratio: cfg.Grid.Ratio}
	}
	return regular.AxisSpec{N: n, Distribution: regular.Linear}
}

func twoPhaseConfig(cfg *config.Config) regular.TwoPhaseConfig {
	if cfg.Grid.Weighting != "two_phase" {
		return regular.TwoPhaseConfig{}
	}
	return regular.TwoPhaseConfig{
		Enabled:       true,
		FillingFactor: cfg.Grid.FillingFactor,
		Contrast:      cfg.Grid.Contrast,
	}
}

func splitPointMethod(s string) tree.SplitPointMethod {
	if s == "barycentric" {
		return tree.SplitBarycentric
	}
	return tree.SplitCenter
}

func splitAxisMethod(s string) tree.SplitAxisMethod {
	if s == "barycentric" {
		return tree.AxisBarycentric
	}
	return tree.AxisAlternating
}

func traversalMethod(s string) tree.TraversalMethod {
	switch s {
	case "neighbor":
		return tree.TraversalNeighbor
	case "bookkeeping":
		return tree.TraversalBookkeeping
	default:
		return tree.TraversalTopDown
	}
}

func generatorSource(s string) voronoi.GeneratorSource {
	switch s {
	case "radial":
		return voronoi.GeneratorsRadial
	case "density":
		return voronoi.GeneratorsDensityWeighted
	case "supplied":
		return voronoi.GeneratorsSupplied
	default:
		return voronoi.GeneratorsUniform
	}
}

// loadParticles reads the configured particle file and discards particles
// outside the domain (spec.md §7: silently discarded). Each record may carry
// a "rho" column with the particle's local density.
func loadParticles(cfg *config.Config, box geometry.Box) ([]importer.Record, error) {
	f, err := os.Open(cfg.Grid.ParticleFile)
	if err != nil {
		return nil, raderr.Wrap(raderr.KindDataImport, err, "opening particle file %q", cfg.Grid.ParticleFile)
	}
	defer f.Close()
	records, err := importer.Import(f, []string{"rho"})
	if err != nil {
		return nil, err
	}
	return importer.Filter(records, func(r importer.Record) bool {
		return box.Contains(r.Position)
	}), nil
}

// particleDensityField builds a density field over a voronoi grid whose
// generator i is particle i: the field reports the particle's own "rho"
// value throughout its cell, so medium setup recovers a per-cell density
// that matches the imported data.
func particleDensityField(g grid.Grid, particles []importer.Record) medium.DensityField {
	rho := make([]float64, len(particles))
	for i, r := range particles {
		if v, ok := r.Value("rho"); ok {
			rho[i] = v
		} else {
			rho[i] = 1
		}
	}
	return func(_ int, p geometry.Point3) float64 {
		cell := g.CellOf(p)
		if cell < 0 || cell >= len(rho) {
			return 0
		}
		return rho[cell]
	}
}

// buildGrid constructs the concrete grid.Grid selected by cfg.Grid.Kind,
// together with the density field the medium samples: uniform by default,
// particle-derived for a voronoi grid whose generator source is "supplied"
// and whose particle file is configured. With any other generator source a
// configured particle file is read, but its positions and rho values are
// not used.
func buildGrid(cfg *config.Config, src rng.Source) (grid.Grid, medium.DensityField, error) {
	box := cfg.Grid.Box()
	switch cfg.Grid.Kind {
	case "regular":
		g, err := regular.Build(box,
			axisSpec(cfg, cfg.Grid.NX), axisSpec(cfg, cfg.Grid.NY), axisSpec(cfg, cfg.Grid.NZ),
			twoPhaseConfig(cfg), src)
		if err != nil {
			return nil, nil, err
		}
		return g, uniformDensity, nil

	case "tree":
		tc := tree.Config{
			Kind:                  tree.KD,
			SplitPoint:            splitPointMethod(cfg.Grid.SplitPoint),
			SplitAxis:             splitAxisMethod(cfg.Grid.SplitAxis),
			Traversal:             traversalMethod(cfg.Grid.TraversalMethod),
			MinLevel:              cfg.Grid.MinLevel,
			MaxLevel:              cfg.Grid.MaxLevel,
			MaxMassFraction:       cfg.Grid.MaxMassFraction,
			MaxOpticalDepth:       cfg.Grid.MaxOpticalDepth,
			MaxDispersionFraction: cfg.Grid.MaxDensityDispersion,
			NumDensitySamples:     cfg.Grid.DensitySampleCount,
		}
		density := func(p geometry.Point3) float64 { return uniformDensity(0, p) }
		g, err := tree.Build(box, tc, density, nil, src)
		if err != nil {
			return nil, nil, err
		}
		return g, uniformDensity, nil

	case "voronoi":
		var particles []importer.Record
		var supplied []geometry.Point3
		if cfg.Grid.ParticleFile != "" {
			var err error
			particles, err = loadParticles(cfg, box)
			if err != nil {
				return nil, nil, err
			}
			supplied = make([]geometry.Point3, len(particles))
			for i, r := range particles {
				supplied[i] = r.Position
			}
		}
		density := func(p geometry.Point3) float64 { return uniformDensity(0, p) }
		generators, err := voronoi.GenerateGenerators(box, cfg.Grid.NGenerators,
			generatorSource(cfg.Grid.GeneratorSource), density, supplied, src)
		if err != nil {
			return nil, nil, err
		}
		g, err := voronoi.Build(box, generators, voronoi.Config{}, src)
		if err != nil {
			return nil, nil, err
		}
		if generatorSource(cfg.Grid.GeneratorSource) == voronoi.GeneratorsSupplied {
			return g, particleDensityField(g, particles), nil
		}
		return g, uniformDensity, nil

	default:
		return nil, nil, raderr.New(raderr.KindConfiguration, "unknown grid kind %q", cfg.Grid.Kind)
	}
}
