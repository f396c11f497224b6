package plotting

import (
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Volcano plots log fold change against -log10(p) for one comparison,
// with dashed guides at the significance thresholds and labels on the
// significant genes.
type Volcano struct {
	LogFoldChanges []float64
	PValues        []float64
	Labels         []string

	LogFoldChangeThreshold float64
	PValueThreshold        float64
	OutputFile             string
}

// Plot renders the volcano plot to OutputFile.
func (v *Volcano) Plot() error {
	if len(v.LogFoldChanges) != len(v.PValues) || len(v.LogFoldChanges) != len(v.Labels) {
		return ErrShapeMismatch
	}

	p := plot.New()
	p.X.Label.Text = "Log Fold Change"
	p.Y.Label.Text = "-log10(p-value)"

	pts := make(plotter.XYs, len(v.LogFoldChanges))
	maxAbs := 0.0
	maxY := 0.0
	for i := range pts {
		pts[i].X = v.LogFoldChanges[i]
		// Underflowed p-values of exactly zero would map to +Inf and
		// break the axis range, so clamp to the smallest positive float.
		pv := math.Max(v.PValues[i], math.SmallestNonzeroFloat64)
		pts[i].Y = -math.Log10(pv)
		maxAbs = math.Max(maxAbs, math.Abs(pts[i].X))
		maxY = math.Max(maxY, pts[i].Y)
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)

	// Label only the significant points.
	sigY := -math.Log10(v.PValueThreshold)
	var labelled plotter.XYLabels
	for i := range pts {
		if pts[i].Y > sigY && math.Abs(pts[i].X) > v.LogFoldChangeThreshold {
			labelled.XYs = append(labelled.XYs, pts[i])
			labelled.Labels = append(labelled.Labels, v.Labels[i])
		}
	}
	if len(labelled.XYs) > 0 {
		labels, err := plotter.NewLabels(labelled)
		if err != nil {
			return err
		}
		p.Add(labels)
	}

	// Symmetric x-axis around zero.
	p.X.Min, p.X.Max = -maxAbs, maxAbs
	p.Y.Min = 0

	for _, guide := range []plotter.XYs{
		{{X: -maxAbs, Y: sigY}, {X: maxAbs, Y: sigY}},
		{{X: v.LogFoldChangeThreshold, Y: 0}, {X: v.LogFoldChangeThreshold, Y: maxY}},
		{{X: -v.LogFoldChangeThreshold, Y: 0}, {X: -v.LogFoldChangeThreshold, Y: maxY}},
	} {
		line, err := plotter.NewLine(guide)
		if err != nil {
			return err
		}
		dashedLine(&line.LineStyle)
		p.Add(line)
	}

	return p.Save(10*vg.Inch, 10*vg.Inch, v.OutputFile)
}
