package config

import "testing"

func validGrid() GridConfig {
	return GridConfig{
		Kind: "regular", ExtentM: [3]float64{1, 1, 1}, NX: 2, NY: 2, NZ: 2,
	}
}

func validConfig() *Config {
	return &Config{
		OutputPrefix:   "out",
		NLambda:        1,
		Grid:           validGrid(),
		Source:         SourceConfig{PacketsPerWavelength: 10},
		SelfAbsorption: SelfAbsorptionConfig{PacketsPerCycle: 10},
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsMissingOutputPrefix(t *testing.T) {
	cfg := validConfig()
	cfg.OutputPrefix = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty output_prefix")
	}
}

func TestValidateRejectsNonPositiveNLambda(t *testing.T) {
	cfg := validConfig()
	cfg.NLambda = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for n_lambda <= 0")
	}
}

func TestGridValidateRejectsUnknownKind(t *testing.T) {
	g := validGrid()
	g.Kind = "quadtree"
	if err := g.validate(); err == nil {
		t.Error("expected error for unknown grid kind")
	}
}

func TestGridValidateRejectsNonPositiveExtent(t *testing.T) {
	g := validGrid()
	g.ExtentM[1] = 0
	if err := g.validate(); err == nil {
		t.Error("expected error for non-positive extent")
	}
}

func TestGridValidateRejectsIncompleteRegularAxes(t *testing.T) {
	g := validGrid()
	g.NY = 0
	if err := g.validate(); err == nil {
		t.Error("expected error for a zero regular-grid axis count")
	}
}

func TestGridValidateRejectsInvertedTreeLevels(t *testing.T) {
	g := validGrid()
	g.Kind = "tree"
	g.MinLevel = 5
	g.MaxLevel = 2
	if err := g.validate(); err == nil {
		t.Error("expected error for max_level < min_level")
	}
}

func TestGridValidateRejectsZeroVoronoiGenerators(t *testing.T) {
	g := validGrid()
	g.Kind = "voronoi"
	g.NGenerators = 0
	if err := g.validate(); err == nil {
		t.Error("expected error for zero voronoi generators")
	}
}

func TestGridBoxIsSymmetricAboutOrigin(t *testing.T) {
	g := GridConfig{ExtentM: [3]float64{2, 3, 4}}
	box := g.Box()
	if !box.Contains(box.Center()) {
		t.Fatalf("box should contain its own center")
	}
	c := box.Center()
	if c.X != 0 || c.Y != 0 || c.Z != 0 {
		t.Errorf("expected box centered at origin, got %+v", c)
	}
}

func TestSelfAbsorptionValidateRejectsNonPositivePacketsPerCycle(t *testing.T) {
	s := SelfAbsorptionConfig{PacketsPerCycle: 0}
	if err := s.validate(); err == nil {
		t.Error("expected error for packets_per_cycle <= 0")
	}
}

func TestParallelValidateRejectsRankOutOfRange(t *testing.T) {
	p := ParallelConfig{NumProcesses: 2, Rank: 5}
	if err := p.validate(); err == nil {
		t.Error("expected error for out-of-range rank")
	}
}

func TestObserverValidateRejectsEmptyName(t *testing.T) {
	o := ObserverConfig{Width: 10, Height: 10}
	if err := o.validate(); err == nil {
		t.Error("expected error for empty observer name")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/raditrans.toml"); err == nil {
		t.Error("expected error loading a nonexistent config file")
	}
}

func TestGridValidateRejectsSuppliedGeneratorsWithoutParticleFile(t *testing.T) {
	g := validGrid()
	g.Kind = "voronoi"
	g.GeneratorSource = "supplied"
	if err := g.validate(); err == nil {
		t.Error("expected error for supplied generator source without a particle file")
	}
}

func TestGridValidateRejectsUnknownGeneratorSource(t *testing.T) {
	g := validGrid()
	g.Kind = "voronoi"
	g.NGenerators = 10
	g.GeneratorSource = "spiral"
	if err := g.validate(); err == nil {
		t.Error("expected error for unknown generator source")
	}
}
