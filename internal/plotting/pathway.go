package plotting

import (
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/stmball/auto-bioinformatics/internal/enrich"
)

// PathwayBars charts -log10 adjusted p-value for the top enriched terms,
// one colour per gene-set library.
type PathwayBars struct {
	Pathways   []enrich.Pathway
	Top        int // number of terms to show, default 10
	OutputFile string
}

// Plot renders the bar chart to OutputFile.
func (pb *PathwayBars) Plot() error {
	top := pb.Top
	if top <= 0 {
		top = 10
	}
	ranked := append([]enrich.Pathway{}, pb.Pathways...)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].AdjustedP < ranked[j].AdjustedP })
	if len(ranked) > top {
		ranked = ranked[:top]
	}

	p := plot.New()
	p.Title.Text = "Pathway Enrichment"
	p.Y.Label.Text = "-log10(adjusted p-value)"

	// One BarChart per library so each gets its own colour; positions
	// for other libraries' terms carry zero height.
	sets := []string{}
	seen := map[string]bool{}
	for _, pw := range ranked {
		if !seen[pw.GeneSet] {
			seen[pw.GeneSet] = true
			sets = append(sets, pw.GeneSet)
		}
	}
	for si, set := range sets {
		values := make(plotter.Values, len(ranked))
		for i, pw := range ranked {
			if pw.GeneSet == set {
				values[i] = -math.Log10(pw.AdjustedP)
			}
		}
		bars, err := plotter.NewBarChart(values, vg.Points(18))
		if err != nil {
			return err
		}
		bars.Color = plotutil.Color(si)
		bars.LineStyle.Width = 0
		p.Add(bars)
		p.Legend.Add(set, bars)
	}

	names := make([]string, len(ranked))
	for i, pw := range ranked {
		names[i] = pw.Term
	}
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 3
	p.X.Tick.Label.XAlign = -1
	p.X.Tick.Label.YAlign = -0.5
	p.Legend.Top = true

	return p.Save(12*vg.Inch, 8*vg.Inch, pb.OutputFile)
}
