package diffexp

// Package diffexp runs pairwise differential expression between sample
// groups: per-gene log fold change and a two-sample Student t-test on
// the scaled intensities.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/stmball/auto-bioinformatics/internal/dataset"
)

// ErrTooFewSamples is returned when a group has fewer than two usable
// observations for every gene.
var ErrTooFewSamples = errors.New("diffexp: need at least two observations per group")

// Result is the differential expression outcome for one gene.
type Result struct {
	Gene          string
	LogFoldChange float64
	P             float64

	row int
}

// Comparison holds the results of one group-versus-group test.
type Comparison struct {
	GroupA, GroupB     string
	ColumnsA, ColumnsB []string
	Results            []Result
}

// Compare tests every gene of ds between two groups. The log fold change
// is mean(B) - mean(A) on the (already log-scaled) data. Genes with
// missing values or fewer than two observations on either side are
// dropped, mirroring how incomplete rows fall out of the analysis.
func Compare(ds *dataset.Dataset, groupA, groupB string) (*Comparison, error) {
	colsA, err := ds.GroupColumns(groupA)
	if err != nil {
		return nil, err
	}
	colsB, err := ds.GroupColumns(groupB)
	if err != nil {
		return nil, err
	}
	cmp := &Comparison{GroupA: groupA, GroupB: groupB, ColumnsA: colsA, ColumnsB: colsB}

	valsA := make([]float64, len(colsA))
	valsB := make([]float64, len(colsB))
	kept := 0
	for i, gene := range ds.Genes {
		if !gatherRow(ds, colsA, i, valsA) || !gatherRow(ds, colsB, i, valsB) {
			continue
		}
		p, ok := studentT(valsA, valsB)
		if !ok {
			continue
		}
		kept++
		cmp.Results = append(cmp.Results, Result{
			Gene:          gene,
			LogFoldChange: stat.Mean(valsB, nil) - stat.Mean(valsA, nil),
			P:             p,
			row:           i,
		})
	}
	if kept == 0 {
		return nil, ErrTooFewSamples
	}
	return cmp, nil
}

// gatherRow copies row i of the given columns into dst, reporting false
// when any value is missing.
func gatherRow(ds *dataset.Dataset, cols []string, i int, dst []float64) bool {
	for j, c := range cols {
		v, ok := ds.Column(c)
		if !ok {
			return false
		}
		if math.IsNaN(v[i]) {
			return false
		}
		dst[j] = v[i]
	}
	return len(cols) >= 2
}

// studentT is the equal-variance two-sample Student t-test, returning
// the two-sided p-value.
func studentT(a, b []float64) (float64, bool) {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return 0, false
	}
	va := stat.Variance(a, nil)
	vb := stat.Variance(b, nil)
	df := na + nb - 2
	pooled := ((na-1)*va + (nb-1)*vb) / df
	se := math.Sqrt(pooled * (1/na + 1/nb))
	if se == 0 || math.IsNaN(se) {
		return 0, false
	}
	t := (stat.Mean(b, nil) - stat.Mean(a, nil)) / se
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, false
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t)), true
}

// Significant returns the genes passing both thresholds: p below
// pThreshold and absolute log fold change above lfcThreshold.
func (c *Comparison) Significant(pThreshold, lfcThreshold float64) []string {
	var out []string
	for _, r := range c.Results {
		if r.P < pThreshold && math.Abs(r.LogFoldChange) > lfcThreshold {
			out = append(out, r.Gene)
		}
	}
	return out
}

// Name returns the "A_B" identifier used for output file names.
func (c *Comparison) Name() string {
	return c.GroupA + "_" + c.GroupB
}

func (c *Comparison) header(geneColumn string) []string {
	header := []string{geneColumn}
	header = append(header, c.ColumnsA...)
	header = append(header, c.ColumnsB...)
	return append(header, "log_fold_change", "p_value")
}

func (c *Comparison) rowValues(ds *dataset.Dataset, r Result) []float64 {
	cols := append(append([]string{}, c.ColumnsA...), c.ColumnsB...)
	out := make([]float64, 0, len(cols)+2)
	for _, col := range cols {
		v, _ := ds.Column(col)
		out = append(out, v[r.row])
	}
	return append(out, r.LogFoldChange, r.P)
}

// WriteCSV writes the comparison table (gene, per-sample values, log
// fold change, p-value) to w.
func (c *Comparison) WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(c.header(ds.GeneColumn)); err != nil {
		return err
	}
	for _, r := range c.Results {
		row := []string{r.Gene}
		for _, v := range c.rowValues(ds, r) {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the comparison table to an xlsx workbook at path.
func (c *Comparison) WriteXLSX(path string, ds *dataset.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"
	for j, h := range c.header(ds.GeneColumn) {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, r := range c.Results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, r.Gene); err != nil {
			return err
		}
		for j, v := range c.rowValues(ds, r) {
			cell, err := excelize.CoordinatesToCellName(j+2, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("diffexp: save %s: %w", path, err)
	}
	return nil
}
