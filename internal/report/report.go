package report

// Package report renders a completed analysis as a standalone HTML
// document: methods text for each pipeline stage, the generated figures
// and a summary of every pairwise comparison.

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/stmball/auto-bioinformatics/internal/analysis"
)

// Reporter writes an HTML report for a finished analysis.
type Reporter struct {
	Analysis   *analysis.Analysis
	Name       string // document title, defaults to "Omics Analysis Report"
	OutputPath string // destination file, defaults to report.html in the output dir
}

type stage struct {
	Name        string
	Explanation string
}

type groupPlot struct {
	Group string
	Src   string
}

type comparisonView struct {
	Name             string
	GroupA, GroupB   string
	Tested           int
	Significant      int
	SignificantGenes []string
	Volcano          string
	TablePath        string
	PathwayCount     int
	PathwayPlot      string
	PathwayTable     string
}

type page struct {
	Title     string
	Generated string

	Genes      int
	Samples    int
	Groups     []string
	MissingPct string

	Scaler     stage
	Imputer    stage
	Normaliser stage
	Reducer    stage

	ImputationPlots   []groupPlot
	ProjectionPlot    string
	ExplainedVariance []string
	ProcessedTable    string

	PThreshold   float64
	LFCThreshold float64
	Comparisons  []comparisonView
}

// Generate renders the report to OutputPath. The analysis must have been
// Run already; figures are referenced relative to the report location.
func (r *Reporter) Generate() error {
	a := r.Analysis
	if a == nil {
		return fmt.Errorf("report: no analysis to report on")
	}
	title := r.Name
	if title == "" {
		title = "Omics Analysis Report"
	}
	out := r.OutputPath
	if out == "" {
		out = filepath.Join(a.OutputDir, "report.html")
	}
	base := filepath.Dir(out)

	cols, err := a.Data.ColumnsFor(a.Groups)
	if err != nil {
		return err
	}
	p := page{
		Title:      title,
		Generated:  time.Now().Format("2 January 2006 15:04"),
		Genes:      a.Data.NumGenes(),
		Samples:    len(cols),
		Groups:     a.Groups,
		MissingPct: fmt.Sprintf("%.2f", a.MissingPercentage),
		Scaler:     stage{Name: a.Scaler.String(), Explanation: a.Scaler.Explanation()},
		Imputer:    stage{Name: a.Imputer.String(), Explanation: a.Imputer.Explanation()},
		Normaliser: stage{Name: a.Normaliser.String(), Explanation: a.Normaliser.Explanation()},
		Reducer:    stage{Name: a.Reducer.String(), Explanation: a.Reducer.Explanation()},

		ProjectionPlot: relTo(base, a.ProjectionPlotPath),
		ProcessedTable: relTo(base, a.ProcessedTablePath),
		PThreshold:     a.PValueThreshold,
		LFCThreshold:   a.LogFoldChangeThreshold,
	}
	for _, ev := range a.Reducer.ExplainedVariance() {
		p.ExplainedVariance = append(p.ExplainedVariance, fmt.Sprintf("%.1f%%", ev*100))
	}

	groups := make([]string, 0, len(a.ImputationPlots))
	for g := range a.ImputationPlots {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		p.ImputationPlots = append(p.ImputationPlots, groupPlot{Group: g, Src: relTo(base, a.ImputationPlots[g])})
	}

	for _, cmp := range a.Comparisons {
		if cmp == nil {
			continue
		}
		p.Comparisons = append(p.Comparisons, comparisonView{
			Name:             cmp.Name(),
			GroupA:           cmp.GroupA,
			GroupB:           cmp.GroupB,
			Tested:           len(cmp.Results),
			Significant:      len(cmp.SignificantGenes),
			SignificantGenes: cmp.SignificantGenes,
			Volcano:          relTo(base, cmp.VolcanoPath),
			TablePath:        relTo(base, cmp.TablePath),
			PathwayCount:     len(cmp.Pathways),
			PathwayPlot:      relTo(base, cmp.PathwayPlotPath),
			PathwayTable:     relTo(base, cmp.PathwayTablePath),
		})
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	return reportTemplate.Execute(f, p)
}

// relTo rewrites path relative to the report directory so the document
// stays portable when the whole output tree is moved.
func relTo(base, path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: Georgia, serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
  h1, h2, h3 { font-family: Helvetica, Arial, sans-serif; }
  img { max-width: 100%; border: 1px solid #ddd; margin: 0.5rem 0; }
  table { border-collapse: collapse; }
  td, th { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
  .muted { color: #666; font-size: 0.9rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="muted">Generated on {{.Generated}}.</p>

<h2>About</h2>
<p>This report was generated automatically from an omics expression table.
The data were scaled, missing values imputed per experimental group, the
table normalised, and every pair of groups compared for differential
expression. Significant genes were tested for pathway enrichment.</p>

<h2>Data Description</h2>
<table>
  <tr><th>Genes</th><td>{{.Genes}}</td></tr>
  <tr><th>Samples</th><td>{{.Samples}}</td></tr>
  <tr><th>Groups</th><td>{{range $i, $g := .Groups}}{{if $i}}, {{end}}{{$g}}{{end}}</td></tr>
  <tr><th>Missing values</th><td>{{.MissingPct}}%</td></tr>
</table>
{{if .ProcessedTable}}<p>The fully processed table was saved to <a href="{{.ProcessedTable}}">{{.ProcessedTable}}</a>.</p>{{end}}

<h2>Scaling</h2>
<p><strong>{{.Scaler.Name}}.</strong> {{.Scaler.Explanation}}</p>

<h2>Imputation</h2>
<p><strong>{{.Imputer.Name}}.</strong> {{.Imputer.Explanation}}</p>
{{range .ImputationPlots}}
<h3>{{.Group}}</h3>
<img src="{{.Src}}" alt="Imputation histograms for {{.Group}}">
{{end}}

<h2>Normalisation</h2>
<p><strong>{{.Normaliser.Name}}.</strong> {{.Normaliser.Explanation}}</p>

<h2>Dimensionality Reduction</h2>
<p><strong>{{.Reducer.Name}}.</strong> {{.Reducer.Explanation}}</p>
{{if .ExplainedVariance}}<p>Explained variance by component: {{range $i, $ev := .ExplainedVariance}}{{if $i}}, {{end}}{{$ev}}{{end}}.</p>{{end}}
{{if .ProjectionPlot}}<img src="{{.ProjectionPlot}}" alt="Sample projection">{{end}}

<h2>Differential Expression</h2>
<p>Genes with an absolute log fold change above {{.LFCThreshold}} and a
p-value below {{.PThreshold}} were called significant.</p>
{{range .Comparisons}}
<h3>{{.GroupA}} vs {{.GroupB}}</h3>
<p>{{.Tested}} genes tested, {{.Significant}} significant.
{{if .TablePath}}Full results: <a href="{{.TablePath}}">{{.TablePath}}</a>.{{end}}</p>
{{if .SignificantGenes}}<p class="muted">{{range $i, $g := .SignificantGenes}}{{if $i}}, {{end}}{{$g}}{{end}}</p>{{end}}
{{if .Volcano}}<img src="{{.Volcano}}" alt="Volcano plot for {{.Name}}">{{end}}
{{if .PathwayCount}}
<p>{{.PathwayCount}} enriched pathways.
{{if .PathwayTable}}Full table: <a href="{{.PathwayTable}}">{{.PathwayTable}}</a>.{{end}}</p>
{{if .PathwayPlot}}<img src="{{.PathwayPlot}}" alt="Pathway enrichment for {{.Name}}">{{end}}
{{end}}
{{end}}

</body>
</html>
`))
