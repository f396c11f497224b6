package plotting

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Projection plots the first two components of a dimensionality
// reduction, one colour per sample group.
type Projection struct {
	Scores            *mat.Dense // samples x components, rows align with Columns
	Columns           []string   // sample column names
	Groups            []string
	ExplainedVariance []float64 // optional, annotates the axes
	Title             string
	OutputFile        string
}

// Plot renders the projection scatter to OutputFile.
func (pr *Projection) Plot() error {
	r, c := pr.Scores.Dims()
	if r != len(pr.Columns) {
		return ErrShapeMismatch
	}
	if c < 2 {
		return fmt.Errorf("plotting: projection needs at least 2 components, got %d", c)
	}

	p := plot.New()
	p.Title.Text = pr.Title
	p.X.Label.Text = axisLabel("Dimension 1", pr.ExplainedVariance, 0)
	p.Y.Label.Text = axisLabel("Dimension 2", pr.ExplainedVariance, 1)

	for gi, group := range pr.Groups {
		var pts plotter.XYs
		for i, col := range pr.Columns {
			if !strings.Contains(col, group) {
				continue
			}
			pts = append(pts, plotter.XY{X: pr.Scores.At(i, 0), Y: pr.Scores.At(i, 1)})
		}
		if len(pts) == 0 {
			continue
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = plotutil.Color(gi)
		scatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(scatter)
		p.Legend.Add(group, scatter)
	}
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 10*vg.Inch, pr.OutputFile)
}

func axisLabel(base string, ev []float64, i int) string {
	if i < len(ev) {
		return fmt.Sprintf("%s (%.1f%%)", base, ev[i]*100)
	}
	return base
}
