// Package importer implements the particle/mesh import external interface
// of spec.md §6: an ASCII, '#'-commented baseline format with a header row,
// yielding per-record (x, y, z) in SI length plus a caller-specified list of
// additional field columns. Grounded on spatialmodel-inmap/io.go's
// ReadEmissionShapefiles (open a source, iterate records, extract typed
// fields, silently skip invalid ones), adapted from shapefile records to
// plain columnar rows via gocsv's map-decoding mode, the struct-tag-driven
// row library pthm-soup uses for its own CSV output.
package importer

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/cflux/raditrans/geometry"
	"github.com/cflux/raditrans/raderr"
)

// Record is one imported particle/mesh point: a position plus named extra
// fields (e.g. density, temperature, smoothing length) the caller requested.
type Record struct {
	Position geometry.Point3
	Fields   map[string]float64
}

// Value returns the named extra field, or (0, false) if it was not present
// on this record.
func (r Record) Value(column string) (float64, bool) {
	v, ok := r.Fields[column]
	return v, ok
}

func init() {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		cr := csv.NewReader(in)
		cr.Comma = ' '
		cr.Comment = '#'
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		return cr
	})
}

// Import reads every record from r: a single-space-delimited, '#'-commented
// ASCII table whose first non-comment line is a header naming columns
// (mandatory "x y z" plus whatever fieldColumns names). Records with a
// truncated or non-numeric mandatory column are a fatal data-import error;
// particles outside the domain are the caller's responsibility to filter
// with Filter, per spec.md §7 ("silently discarded").
func Import(r io.Reader, fieldColumns []string) ([]Record, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, raderr.Wrap(raderr.KindDataImport, err, "parsing import source")
	}
	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec, err := parseRow(row, fieldColumns)
		if err != nil {
			return nil, raderr.Wrap(raderr.KindDataImport, err, "record %d", i)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row map[string]string, fieldColumns []string) (Record, error) {
	x, err := parseColumn(row, "x")
	if err != nil {
		return Record{}, err
	}
	y, err := parseColumn(row, "y")
	if err != nil {
		return Record{}, err
	}
	z, err := parseColumn(row, "z")
	if err != nil {
		return Record{}, err
	}
	fields := make(map[string]float64, len(fieldColumns))
	for _, col := range fieldColumns {
		raw, ok := row[col]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Record{}, raderr.New(raderr.KindDataImport, "column %q: non-numeric value %q", col, raw)
		}
		fields[col] = v
	}
	return Record{Position: geometry.Point3{X: x, Y: y, Z: z}, Fields: fields}, nil
}

func parseColumn(row map[string]string, name string) (float64, error) {
	raw, ok := row[name]
	if !ok {
		return 0, raderr.New(raderr.KindDataImport, "missing mandatory column %q", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, raderr.New(raderr.KindDataImport, "column %q: non-numeric value %q", name, raw)
	}
	return v, nil
}

// Filter returns the records for which keep reports true, the domain
// membership check spec.md §7 requires the caller to apply before an
// out-of-domain particle reaches the medium model.
func Filter(records []Record, keep func(Record) bool) []Record {
	out := records[:0]
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
