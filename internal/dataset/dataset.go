package dataset

// Package dataset models a gene/protein expression table: one column of
// gene names plus sample columns whose names identify their experimental
// group. Missing values are represented as NaN; a literal zero is only
// interpreted as missing by imputation.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmpty is returned when a table has no data rows.
	ErrEmpty = errors.New("dataset: empty table")
	// ErrNoColumns is returned when a group identifier matches no sample column.
	ErrNoColumns = errors.New("dataset: no columns match group")
)

// Dataset is an expression table with genes in rows and samples in columns.
type Dataset struct {
	GeneColumn string
	Genes      []string

	cols   []string
	values map[string][]float64
}

// New builds a Dataset from parallel slices. Every column must have one
// value per gene.
func New(geneColumn string, genes []string, columns []string, values map[string][]float64) (*Dataset, error) {
	if len(genes) == 0 {
		return nil, ErrEmpty
	}
	for _, c := range columns {
		v, ok := values[c]
		if !ok {
			return nil, fmt.Errorf("dataset: missing values for column %q", c)
		}
		if len(v) != len(genes) {
			return nil, fmt.Errorf("dataset: column %q has %d values, expected %d", c, len(v), len(genes))
		}
	}
	return &Dataset{GeneColumn: geneColumn, Genes: genes, cols: columns, values: values}, nil
}

// FromRecords builds a Dataset from a header row and string records, as
// produced by CSV or spreadsheet readers. The gene column is located by
// name; remaining columns are parsed as floats with blank cells becoming
// NaN.
func FromRecords(geneColumn string, header []string, rows [][]string) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	geneIdx := -1
	for i, h := range header {
		if h == geneColumn {
			geneIdx = i
			break
		}
	}
	if geneIdx == -1 {
		return nil, fmt.Errorf("dataset: gene column %q not found in header", geneColumn)
	}

	var cols []string
	values := make(map[string][]float64)
	for i, h := range header {
		if i == geneIdx {
			continue
		}
		cols = append(cols, h)
		values[h] = make([]float64, 0, len(rows))
	}

	genes := make([]string, 0, len(rows))
	for n, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("dataset: row %d has %d fields, expected %d", n+1, len(row), len(header))
		}
		genes = append(genes, row[geneIdx])
		for i, h := range header {
			if i == geneIdx {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				values[h] = append(values[h], math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("dataset: row %d column %q: %w", n+1, h, err)
			}
			values[h] = append(values[h], v)
		}
	}
	return &Dataset{GeneColumn: geneColumn, Genes: genes, cols: cols, values: values}, nil
}

// ReadCSV reads a delimited table from r. Use '\t' as comma for TSV input.
func ReadCSV(r io.Reader, comma rune, geneColumn string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrEmpty
	}
	return FromRecords(geneColumn, records[0], records[1:])
}

// ReadXLSX reads the given sheet of an xlsx workbook. An empty sheet name
// selects the workbook's first sheet.
func ReadXLSX(path, sheet, geneColumn string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open xlsx: %w", err)
	}
	defer f.Close()
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("dataset: read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, ErrEmpty
	}
	// Pad short rows: excelize drops trailing empty cells.
	header := rows[0]
	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		for len(row) < len(header) {
			row = append(row, "")
		}
		body = append(body, row[:len(header)])
	}
	return FromRecords(geneColumn, header, body)
}

// Open reads a dataset from path, choosing the reader from the file
// extension (.xlsx, .csv, or tab-separated for anything else).
func Open(path, sheet, geneColumn string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, sheet, geneColumn)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f, ',', geneColumn)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f, '\t', geneColumn)
	}
}

// Columns returns the sample column names in table order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.cols))
	copy(out, d.cols)
	return out
}

// Column returns the values of a single sample column.
func (d *Dataset) Column(name string) ([]float64, bool) {
	v, ok := d.values[name]
	return v, ok
}

// NumGenes returns the number of rows in the table.
func (d *Dataset) NumGenes() int { return len(d.Genes) }

// GroupColumns returns the sample columns belonging to a group. A column
// belongs to a group when its name contains the group identifier.
func (d *Dataset) GroupColumns(group string) ([]string, error) {
	var out []string
	for _, c := range d.cols {
		if strings.Contains(c, group) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoColumns, group)
	}
	return out, nil
}

// ColumnsFor returns the union of all group columns, preserving table order.
func (d *Dataset) ColumnsFor(groups []string) ([]string, error) {
	var out []string
	for _, c := range d.cols {
		for _, g := range groups {
			if strings.Contains(c, g) {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %v", ErrNoColumns, groups)
	}
	return out, nil
}

// CleanGeneNames truncates each gene name at the first ';', dropping
// database version suffixes.
func (d *Dataset) CleanGeneNames() {
	for i, g := range d.Genes {
		if idx := strings.IndexByte(g, ';'); idx >= 0 {
			d.Genes[i] = g[:idx]
		}
	}
}

// MissingPercentage reports the percentage of zero cells across the
// columns of the given groups. Upstream acquisition software emits zero
// for undetected genes, so zeros are the missing-data marker in raw input.
func (d *Dataset) MissingPercentage(groups []string) (float64, error) {
	cols, err := d.ColumnsFor(groups)
	if err != nil {
		return 0, err
	}
	zeros, total := 0, 0
	for _, c := range cols {
		for _, v := range d.values[c] {
			total++
			if v == 0 {
				zeros++
			}
		}
	}
	if total == 0 {
		return 0, ErrEmpty
	}
	return float64(zeros) / float64(total) * 100, nil
}

// Matrix extracts the named columns as a genes-by-columns dense matrix.
func (d *Dataset) Matrix(cols []string) (*mat.Dense, error) {
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}
	m := mat.NewDense(len(d.Genes), len(cols), nil)
	for j, c := range cols {
		v, ok := d.values[c]
		if !ok {
			return nil, fmt.Errorf("dataset: unknown column %q", c)
		}
		for i := range d.Genes {
			m.Set(i, j, v[i])
		}
	}
	return m, nil
}

// SetMatrix writes a genes-by-columns matrix back into the named columns.
func (d *Dataset) SetMatrix(cols []string, m *mat.Dense) error {
	r, c := m.Dims()
	if r != len(d.Genes) || c != len(cols) {
		return fmt.Errorf("dataset: matrix is %dx%d, expected %dx%d", r, c, len(d.Genes), len(cols))
	}
	for j, name := range cols {
		v, ok := d.values[name]
		if !ok {
			return fmt.Errorf("dataset: unknown column %q", name)
		}
		for i := range d.Genes {
			v[i] = m.At(i, j)
		}
	}
	return nil
}

// WriteCSV writes the full table to w.
func (d *Dataset) WriteCSV(w io.Writer, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	header := append([]string{d.GeneColumn}, d.cols...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, g := range d.Genes {
		row[0] = g
		for j, c := range d.cols {
			row[j+1] = formatCell(d.values[c][i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the full table to an xlsx workbook at path.
func (d *Dataset) WriteXLSX(path, sheet string) error {
	if sheet == "" {
		sheet = "Sheet1"
	}
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	header := append([]string{d.GeneColumn}, d.cols...)
	for j, h := range header {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, g := range d.Genes {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, g); err != nil {
			return err
		}
		for j, c := range d.cols {
			cell, err := excelize.CoordinatesToCellName(j+2, i+2)
			if err != nil {
				return err
			}
			v := d.values[c][i]
			if math.IsNaN(v) {
				continue
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
