package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cflux/raditrans/config"
	"github.com/cflux/raditrans/diagnostics"
	"github.com/cflux/raditrans/dustlib"
	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/grid"
	"github.com/cflux/raditrans/lifecycle"
	"github.com/cflux/raditrans/medium"
	"github.com/cflux/raditrans/observer"
	"github.com/cflux/raditrans/parallel"
	"github.com/cflux/raditrans/progress"
	"github.com/cflux/raditrans/raderr"
	"github.com/cflux/raditrans/rng"
	"github.com/cflux/raditrans/selfabsorb"
	"github.com/cflux/raditrans/source"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a complete radiative transfer simulation.",
	Long: "run builds the configured grid and medium, launches the stellar-emission\n" +
		"phase, iterates the dust self-absorption loop to convergence, and writes\n" +
		"observer cubes and diagnostic files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulation(cfg)
	},
}

// processAssigner builds the multi-process work split of spec.md §4.12:
// staggered round-robin when more than one process cooperates, otherwise
// everything on this process.
func processAssigner(cfg *config.Config) parallel.ProcessAssigner {
	if cfg.Parallel.NumProcesses > 1 {
		return parallel.Staggered{Rank: cfg.Parallel.Rank, NumProcesses: cfg.Parallel.NumProcesses}
	}
	return parallel.SingleProcess{}
}

func runSimulation(cfg *config.Config) error {
	seedSrc := rng.PerWorker(cfg.Seed, 1)[0]

	g, density, err := buildGrid(cfg, seedSrc)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"kind": cfg.Grid.Kind, "cells": g.CellCount()}).Info("grid built")

	const nComp = 1
	mixes := []medium.Mix{grayMix{extinction: 1, albedo: 0.5}}
	md := medium.New(g, nComp, cfg.NLambda, mixes)
	md.Setup(g, density, 100, seedSrc)

	observers, err := buildObservers(cfg)
	if err != nil {
		return err
	}

	pool := parallel.NewPool(cfg.Parallel.NumWorkers)
	sources := rng.PerWorker(cfg.Seed+1, pool.NumWorkers())
	assigner := processAssigner(cfg)

	crossings := diagnostics.NewCrossingHistogram(64)
	queuedSets := observer.NewQueuedSets(observers, pool.NumWorkers(), parallel.DefaultQueueSize)

	// One engine per worker slot: peel-off engines buffer instrument
	// updates in that worker's queues; cycle engines carry no observers so
	// the convergence cycles never touch the instrument cubes.
	peelEngines := make([]*lifecycle.Engine, pool.NumWorkers())
	cycleEngines := make([]*lifecycle.Engine, pool.NumWorkers())
	for w := range peelEngines {
		targets := make([]lifecycle.PeelOffTarget, len(queuedSets[w]))
		for i, q := range queuedSets[w] {
			targets[i] = q
		}
		peelEngines[w] = &lifecycle.Engine{Grid: g, Medium: md, Observers: targets, Crossings: crossings}
		cycleEngines[w] = &lifecycle.Engine{Grid: g, Medium: md, Crossings: crossings}
	}

	src := &source.Source{
		Position:             source.PositionSamplerFunc(func(int, rng.Source) (geometry.Point3, error) { return geometry.Point3{}, nil }),
		Luminosity:           func(int) float64 { return 1 },
		PacketsPerWavelength: cfg.Source.PacketsPerWavelength,
	}

	tick := progress.New(0)
	if err := runStellarPhase(cfg, peelEngines, src, sources, pool, assigner, tick); err != nil {
		return err
	}

	nEntries := cfg.DustLibrary.NEntries
	if nEntries <= 0 {
		nEntries = g.CellCount()
	}
	lib := dustlib.New(g.CellCount(), cfg.NLambda, nEntries, dustlib.Identity(), grayEmissionCalculator{})
	selfDriver := selfabsorb.New(cycleEngines, g, md, lib, pool, sources)
	selfDriver.Assigner = assigner
	selfDriver.PeelOffEngines = peelEngines
	if cfg.SelfAbsorption.MaxCycles > 0 {
		selfDriver.MaxCycles = cfg.SelfAbsorption.MaxCycles
	}
	if cfg.SelfAbsorption.Tolerance > 0 {
		selfDriver.Tolerance = cfg.SelfAbsorption.Tolerance
	}
	cycles, err := selfDriver.Run(cfg.SelfAbsorption.PacketsPerCycle)
	if err != nil {
		if radErr, ok := err.(*raderr.Error); ok && !radErr.Fatal() {
			logrus.WithError(err).Error("self-absorption did not converge")
		} else {
			return err
		}
	}
	used, capacity := lib.Stats()
	logrus.WithFields(logrus.Fields{
		"cycles": cycles, "library_entries_used": used, "library_entries": capacity,
	}).Info("self-absorption complete")

	if err := selfDriver.FinalEmission(cfg.SelfAbsorption.PacketsPerCycle); err != nil {
		return err
	}

	observer.DrainAllSets(queuedSets)
	return writeOutputs(cfg, g, md, density, observers, crossings, cycles, seedSrc)
}

// runStellarPhase launches cfg.Source.PacketsPerWavelength packets per
// wavelength through the pool in chunks of life cycles (spec.md §5), one
// chunk per dispatch so per-chunk progress reporting stays useful.
func runStellarPhase(cfg *config.Config, engines []*lifecycle.Engine, src *source.Source,
	sources []rng.Source, pool *parallel.Pool, assigner parallel.ProcessAssigner, tick *progress.Ticker) error {
	packets := int(cfg.Source.PacketsPerWavelength)
	chunks := parallel.NumChunks(cfg.Source.PacketsPerWavelength, pool.NumWorkers(), cfg.NLambda)
	chunkSize := parallel.ChunkSize(cfg.Source.PacketsPerWavelength, chunks)
	for ell := 0; ell < cfg.NLambda; ell++ {
		ell := ell
		var done int64
		err := pool.CallWorker(chunks, assigner, func(workerIdx, chunk int) error {
			if workerIdx >= len(sources) || workerIdx >= len(engines) {
				return raderr.New(raderr.KindConfiguration,
					"pool has more workers (%d) than rng sources (%d) or engines (%d)",
					workerIdx+1, len(sources), len(engines))
			}
			s := sources[workerIdx]
			e := engines[workerIdx]
			lo := chunk * chunkSize
			hi := lo + chunkSize
			if hi > packets {
				hi = packets
			}
			for i := lo; i < hi; i++ {
				pkt, err := src.Emit(s, ell)
				if err != nil {
					return err
				}
				if err := e.Run(pkt, s); err != nil {
					return err
				}
			}
			n := atomic.AddInt64(&done, int64(hi-lo))
			tick.Report("stellar emission", int(n), packets)
			return nil
		})
		if err != nil {
			return err
		}
		logrus.WithField("wavelength", ell).Debug("stellar phase wavelength complete")
	}
	return nil
}

func buildObservers(cfg *config.Config) ([]*observer.Observer, error) {
	out := make([]*observer.Observer, len(cfg.Observers))
	for i, oc := range cfg.Observers {
		fov := oc.FieldOfViewM
		if fov <= 0 {
			fov = 2 * cfg.Grid.ExtentM[0]
		}
		proj := newParallelProjection(oc.InclinationDeg, oc.AzimuthDeg, fov, oc.Width, oc.Height)
		out[i] = observer.New(oc.Name, proj, oc.Width, oc.Height, cfg.NLambda)
	}
	return out, nil
}

// writeDiagnosticCube writes one [depth, n, n] diagnostic map under the
// "<prefix>_ds_<kind>.ncf" naming scheme.
func writeDiagnosticCube(cfg *config.Config, kind string, data *sparse.DenseArray, pixelX, pixelY float64, unit string) error {
	f, err := os.Create(fmt.Sprintf("%s_ds_%s.ncf", cfg.OutputPrefix, kind))
	if err != nil {
		return raderr.Wrap(raderr.KindConfiguration, err, "creating diagnostic map %q", kind)
	}
	defer f.Close()
	meta := observer.CubeMeta{
		Width: data.Shape[2], Height: data.Shape[1], Depth: data.Shape[0],
		PixelSizeX: pixelX, PixelSizeY: pixelY,
		ValueUnit: unit, LengthUnit: "m",
	}
	return observer.WriteCube(f, data, meta)
}

func writeDiagnosticRows(cfg *config.Config, kind string, header []string, rows [][]float64) error {
	f, err := os.Create(fmt.Sprintf("%s_ds_%s.dat", cfg.OutputPrefix, kind))
	if err != nil {
		return raderr.Wrap(raderr.KindConfiguration, err, "creating diagnostic report %q", kind)
	}
	defer f.Close()
	return observer.WriteCSVRows(f, header, rows)
}

func writeOutputs(cfg *config.Config, g grid.Grid, md *medium.Medium, density medium.DensityField,
	observers []*observer.Observer, crossings *diagnostics.CrossingHistogram, cycles int, src rng.Source) error {
	for _, o := range observers {
		f, err := os.Create(fmt.Sprintf("%s_%s.ncf", cfg.OutputPrefix, o.Name))
		if err != nil {
			return raderr.Wrap(raderr.KindConfiguration, err, "creating observer output file")
		}
		meta := observer.CubeMeta{
			Width: o.Width, Height: o.Height, Depth: o.NLambda,
			ValueUnit: "W/m2", LengthUnit: "m",
		}
		err = observer.WriteCube(f, o.Cube(), meta)
		f.Close()
		if err != nil {
			return err
		}
	}

	box := cfg.Grid.Box()
	n := cfg.Diagnostics.MapSize
	if n <= 0 {
		n = 64
	}
	pixel := func(extent float64) float64 { return 2 * extent / float64(n) }

	planes := []struct {
		plane  diagnostics.Plane
		px, py float64
	}{
		{diagnostics.PlaneXY, pixel(cfg.Grid.ExtentM[0]), pixel(cfg.Grid.ExtentM[1])},
		{diagnostics.PlaneXZ, pixel(cfg.Grid.ExtentM[0]), pixel(cfg.Grid.ExtentM[2])},
		{diagnostics.PlaneYZ, pixel(cfg.Grid.ExtentM[1]), pixel(cfg.Grid.ExtentM[2])},
	}
	for _, pl := range planes {
		trho := diagnostics.TheoreticalDensityCut(box, density, md.NComp, pl.plane, n)
		if err := writeDiagnosticCube(cfg, "trho"+pl.plane.String(), trho, pl.px, pl.py, "kg/m3"); err != nil {
			return err
		}
		grho := diagnostics.GriddedDensityCut(box, g, md, pl.plane, n)
		if err := writeDiagnosticCube(cfg, "grho"+pl.plane.String(), grho, pl.px, pl.py, "kg/m3"); err != nil {
			return err
		}
		ids := diagnostics.CellIDCut(box, g, pl.plane, n)
		if err := writeDiagnosticCube(cfg, "grid"+pl.plane.String(), ids, pl.px, pl.py, "cell id"); err != nil {
			return err
		}
	}
	idCube := diagnostics.CellIDCube(box, g, n)
	if err := writeDiagnosticCube(cfg, "gridxyz", idCube, pixel(cfg.Grid.ExtentM[0]), pixel(cfg.Grid.ExtentM[1]), "cell id"); err != nil {
		return err
	}
	tau, err := diagnostics.OpticalDepthMap(box, g, md, 0, n)
	if err != nil {
		return err
	}
	if err := writeDiagnosticCube(cfg, "tau", tau, pixel(cfg.Grid.ExtentM[0]), pixel(cfg.Grid.ExtentM[1]), "dimensionless"); err != nil {
		return err
	}

	if err := writeDiagnosticRows(cfg, "crossed", []string{"cells_crossed", "paths"}, crossings.Rows()); err != nil {
		return err
	}
	if err := writeDiagnosticRows(cfg, "cellprops",
		[]string{"cell", "volume", "density", "mass"}, diagnostics.CellProps(g, md)); err != nil {
		return err
	}

	quality := diagnostics.Quality(box, g, md, density, cfg.Diagnostics.QualitySamples, src)
	qf, err := os.Create(cfg.OutputPrefix + "_ds_quality.dat")
	if err != nil {
		return raderr.Wrap(raderr.KindConfiguration, err, "creating quality report")
	}
	if err := observer.WriteKV(qf, []observer.KV{
		{Key: "density_deviation", Value: quality},
	}); err != nil {
		qf.Close()
		return err
	}
	qf.Close()

	kvFile, err := os.Create(cfg.OutputPrefix + "_ds_convergence.dat")
	if err != nil {
		return raderr.Wrap(raderr.KindConfiguration, err, "creating convergence report")
	}
	defer kvFile.Close()
	return observer.WriteKV(kvFile, []observer.KV{
		{Key: "n_lambda", Value: cfg.NLambda},
		{Key: "grid_kind", Value: cfg.Grid.Kind},
		{Key: "cells", Value: g.CellCount()},
		{Key: "dimension", Value: g.Dimension()},
		{Key: "self_absorption_cycles", Value: cycles},
	})
}
