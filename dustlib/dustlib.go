// Package dustlib implements the cell-to-library-entry mapping and
// per-entry emission-spectrum averaging of spec.md §4.13, grounded on
// original_source/SKIRTcore/DustLib.cpp's EmissionCalculator: many cells
// share nearly the same radiation field, so the expensive emissivity
// calculation is performed once per library entry and the result is reused
// by every cell mapped to it.
package dustlib

import (
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/cflux/raditrans/raderr"
)

// EmissionCalculator computes a cell's (unnormalized) emission spectrum
// shape from its per-wavelength absorbed luminosity vector. Implementations
// typically fit a modified blackbody or run a stochastic-heating
// calculation; this package is agnostic to which.
type EmissionCalculator interface {
	Spectrum(absorbed []float64) []float64
}

// MappingFunc assigns cell to a library entry in [0, nEntries), given its
// bolometric absorbed luminosity. The identity mapping (nEntries == NCells,
// MappingFunc returns cell unchanged) is the spec §9 default; a caller
// wanting compression supplies e.g. a log-binned strength mapping.
type MappingFunc func(cell int, bolometric float64) int

// Identity returns the spec §9 default MappingFunc: every cell gets its own
// library entry, so the library performs no compression.
func Identity() MappingFunc {
	return func(cell int, _ float64) int { return cell }
}

// Library holds the cell→entry map and the per-entry spectrum table
// computed by the most recent Compute call.
type Library struct {
	NCells, NLambda, NEntries int
	Mapping                   MappingFunc
	Calc                      EmissionCalculator

	entryOf []int
	shapes  *sparse.DenseArray // [NEntries, NLambda], each row normalized to sum 1
	used    []bool
}

// New allocates a Library. nEntries is the library's entry capacity; it must
// be >= the number of distinct values Mapping can return.
func New(nCells, nLambda, nEntries int, mapping MappingFunc, calc EmissionCalculator) *Library {
	if mapping == nil {
		mapping = Identity()
		nEntries = nCells
	}
	return &Library{
		NCells: nCells, NLambda: nLambda, NEntries: nEntries,
		Mapping: mapping, Calc: calc,
		entryOf: make([]int, nCells),
		shapes:  sparse.ZerosDense(nEntries, nLambda),
		used:    make([]bool, nEntries),
	}
}

// Compute assigns every cell to a library entry from its bolometric absorbed
// luminosity, accumulates each entry's total absorbed spectrum across the
// cells mapped to it, calls the EmissionCalculator once per populated entry,
// and returns each cell's own emission spectrum (the entry's normalized
// shape scaled by the cell's own bolometric luminosity).
//
// absorbed[cell] must be a length-NLambda slice of the cell's per-wavelength
// absorbed dust luminosity.
func (lib *Library) Compute(absorbed [][]float64) ([][]float64, error) {
	if len(absorbed) != lib.NCells {
		return nil, raderr.New(raderr.KindConfiguration,
			"dust library given %d cells' absorbed vectors, want %d", len(absorbed), lib.NCells)
	}
	bolo := make([]float64, lib.NCells)
	for c, vec := range absorbed {
		sum := floats.Sum(vec)
		bolo[c] = sum
		e := lib.Mapping(c, sum)
		if e < 0 || e >= lib.NEntries {
			return nil, raderr.New(raderr.KindConfiguration,
				"dust library mapping returned out-of-range entry %d for cell %d (capacity %d)", e, c, lib.NEntries)
		}
		lib.entryOf[c] = e
	}

	accum := sparse.ZerosDense(lib.NEntries, lib.NLambda)
	for c, vec := range absorbed {
		e := lib.entryOf[c]
		for ell, v := range vec {
			accum.AddVal(v, e, ell)
		}
	}

	lib.shapes = sparse.ZerosDense(lib.NEntries, lib.NLambda)
	for i := range lib.used {
		lib.used[i] = false
	}
	for e := 0; e < lib.NEntries; e++ {
		row := make([]float64, lib.NLambda)
		var total float64
		for ell := 0; ell < lib.NLambda; ell++ {
			row[ell] = accum.Get(e, ell)
			total += row[ell]
		}
		if total <= 0 {
			continue
		}
		lib.used[e] = true
		shape := lib.Calc.Spectrum(row)
		shapeTotal := floats.Sum(shape)
		if shapeTotal <= 0 {
			continue
		}
		for ell, v := range shape {
			lib.shapes.Set(v/shapeTotal, e, ell)
		}
	}

	entriesUsed, _ := lib.Stats()
	logrus.WithFields(logrus.Fields{
		"cells": lib.NCells, "entries": lib.NEntries, "used": entriesUsed,
	}).Debug("dust library emission spectra computed")

	out := make([][]float64, lib.NCells)
	for c := range out {
		e := lib.entryOf[c]
		spec := make([]float64, lib.NLambda)
		for ell := 0; ell < lib.NLambda; ell++ {
			spec[ell] = lib.shapes.Get(e, ell) * bolo[c]
		}
		out[c] = spec
	}
	return out, nil
}

// EntryOf returns the library entry cell was most recently mapped to.
func (lib *Library) EntryOf(cell int) int { return lib.entryOf[cell] }

// Stats reports how many library entries the most recent Compute populated,
// out of the library's capacity ("N_used out of Nlib", spec.md §4.13).
func (lib *Library) Stats() (used, capacity int) {
	for _, u := range lib.used {
		if u {
			used++
		}
	}
	return used, lib.NEntries
}
