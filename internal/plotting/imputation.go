package plotting

import (
	"image/color"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ImputationHist shows, per sample, the distribution of observed values
// next to the same distribution with the imputed values overlaid, so the
// effect of imputation on each sample is visible at a glance.
type ImputationHist struct {
	Before     *mat.Dense // zeros/NaN mark missing cells
	After      *mat.Dense
	Columns    []string
	Bins       int
	OutputFile string
}

// Plot renders one row of histograms per sample column to OutputFile.
func (h *ImputationHist) Plot() error {
	br, bc := h.Before.Dims()
	ar, ac := h.After.Dims()
	if br != ar || bc != ac || bc != len(h.Columns) {
		return ErrShapeMismatch
	}
	bins := h.Bins
	if bins <= 0 {
		bins = 100
	}

	grid := make([][]*plot.Plot, bc)
	for j := 0; j < bc; j++ {
		observed := observedValues(h.Before, j)
		imputed := imputedValues(h.Before, h.After, j)

		left := plot.New()
		left.Title.Text = h.Columns[j]
		if len(observed) > 0 {
			hist, err := plotter.NewHist(plotter.Values(observed), bins)
			if err != nil {
				return err
			}
			left.Add(hist)
		}

		right := plot.New()
		right.Title.Text = h.Columns[j] + " (imputed)"
		if len(observed) > 0 {
			hist, err := plotter.NewHist(plotter.Values(observed), bins)
			if err != nil {
				return err
			}
			right.Add(hist)
		}
		if len(imputed) > 0 {
			hist, err := plotter.NewHist(plotter.Values(imputed), bins)
			if err != nil {
				return err
			}
			hist.FillColor = color.RGBA{R: 0xE6, G: 0x7E, B: 0x22, A: 0xB0}
			right.Add(hist)
		}

		grid[j] = []*plot.Plot{left, right}
	}

	height := vg.Length(bc) * 3 * vg.Inch
	return saveTiled(grid, 10*vg.Inch, height, h.OutputFile)
}

// observedValues returns the finite, non-zero entries of column j.
func observedValues(m *mat.Dense, j int) []float64 {
	var out []float64
	for _, v := range mat.Col(nil, j, m) {
		if v != 0 && !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// imputedValues returns the after values at cells that were missing before.
func imputedValues(before, after *mat.Dense, j int) []float64 {
	r, _ := before.Dims()
	var out []float64
	for i := 0; i < r; i++ {
		b, a := before.At(i, j), after.At(i, j)
		if (b == 0 || math.IsNaN(b)) && !math.IsNaN(a) && a != 0 {
			out = append(out, a)
		}
	}
	return out
}
