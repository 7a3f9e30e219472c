// FITS-like cube and text output writers of spec.md §6, following the
// teacher's cdf.File/sparse.DenseArray netCDF writer pattern (vargrid.go's
// writeNCF) as the concrete "self-describing N-dimensional array" substitute
// for a genuine FITS library, which is absent from the example pack.
package observer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// CubeMeta describes the physical axes of a FITS-like cube, the contract
// spec.md §6 requires: "(array, width, height, depth, pixel-size-x,
// pixel-size-y, value-unit-label, length-unit-label)".
type CubeMeta struct {
	Width, Height, Depth   int
	PixelSizeX, PixelSizeY float64
	ValueUnit, LengthUnit  string
}

// WriteCube writes data (shaped [depth, height, width]) to w as a netCDF
// cube, following writeNCF's flatten-to-float32-and-Write pattern.
func WriteCube(w *os.File, data *sparse.DenseArray, meta CubeMeta) error {
	if len(data.Shape) != 3 {
		return fmt.Errorf("observer: cube data must be 3-dimensional, got shape %v", data.Shape)
	}
	h := cdf.NewHeader([]string{"depth", "y", "x"}, []int{meta.Depth, meta.Height, meta.Width})
	h.AddAttribute("", "pixel_size_x", []float64{meta.PixelSizeX})
	h.AddAttribute("", "pixel_size_y", []float64{meta.PixelSizeY})
	h.AddAttribute("", "length_unit", meta.LengthUnit)
	h.AddVariable("cube", []string{"depth", "y", "x"}, []float32{0})
	h.AddAttribute("cube", "units", meta.ValueUnit)
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("observer: creating cube file: %w", err)
	}
	if err := writeCubeVar(f, "cube", data); err != nil {
		return fmt.Errorf("observer: writing cube variable: %w", err)
	}
	return cdf.UpdateNumRecs(w)
}

func writeCubeVar(f *cdf.File, name string, data *sparse.DenseArray) error {
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	_, err := f.Writer(name, start, end).Write(data32)
	return err
}

// KV is one key/value pair for the plain text writer (e.g. ds_convergence.dat,
// ds_quality.dat).
type KV struct {
	Key   string
	Value interface{}
}

// WriteKV writes lines of "key value" pairs in aligned columns, matching the
// plain line-oriented text-report style of the teacher's log/summary output.
func WriteKV(w io.Writer, rows []KV) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%v\n", r.Key, r.Value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteCSVRows writes header followed by rows of float64 values as
// CSV-like text (e.g. ds_cellprops.dat, ds_crossed.dat).
func WriteCSVRows(w io.Writer, header []string, rows [][]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
