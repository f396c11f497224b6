package analysis

// Package analysis orchestrates the full pipeline: scale, impute,
// normalise, project, test every pair of groups for differential
// expression and look the significant genes up in Enrichr. Entrypoints
// construct an Analysis, call Run once and hand the populated struct to
// the reporter.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/stmball/auto-bioinformatics/internal/dataset"
	"github.com/stmball/auto-bioinformatics/internal/diffexp"
	"github.com/stmball/auto-bioinformatics/internal/enrich"
	"github.com/stmball/auto-bioinformatics/internal/plotting"
	"github.com/stmball/auto-bioinformatics/internal/transform"
)

// DefaultGeneSets are the Enrichr libraries queried when none are
// configured.
var DefaultGeneSets = []string{"KEGG_2019_Human", "MSigDB_Hallmark_2020"}

// errTooFewCompleteGenes is returned when imputation leaves fewer than
// two genes observed across every sample, so nothing can be projected.
var errTooFewCompleteGenes = errors.New("analysis: too few complete genes for projection")

// Comparison is one pairwise differential expression result plus the
// artefacts generated for it.
type Comparison struct {
	*diffexp.Comparison

	SignificantGenes []string
	VolcanoPath      string
	TablePath        string

	Pathways         []enrich.Pathway
	PathwayPlotPath  string
	PathwayTablePath string
}

// Analysis holds the pipeline configuration and, after Run, its results.
type Analysis struct {
	Data   *dataset.Dataset
	Groups []string

	PValueThreshold        float64
	LogFoldChangeThreshold float64
	GeneSets               []string
	Organism               string
	EnrichrBaseURL         string
	EnrichrCutoff          float64

	Scaler     transform.Scaler
	Imputer    transform.Imputer
	Normaliser transform.Normaliser
	Reducer    transform.Reducer

	PlotDir   string
	OutputDir string

	Logger      *log.Logger
	DryRun      bool
	Progress    bool
	Concurrency int
	EnrichrQPS  int

	// Populated by Run.
	MissingPercentage  float64
	ImputationPlots    map[string]string
	ProjectionPlotPath string
	ProcessedTablePath string
	Comparisons        []*Comparison
}

// New returns an Analysis over data with the default stages: log2
// scaling, KNN imputation, power normalisation and PCA.
func New(data *dataset.Dataset, groups []string) *Analysis {
	scaler, _ := transform.NewScaler("log2")
	imputer, _ := transform.NewImputer("knn")
	normaliser, _ := transform.NewNormaliser("power")
	reducer, _ := transform.NewReducer("pca")
	return &Analysis{
		Data:                   data,
		Groups:                 groups,
		PValueThreshold:        0.05,
		LogFoldChangeThreshold: 1,
		GeneSets:               append([]string{}, DefaultGeneSets...),
		Organism:               "Human",
		EnrichrCutoff:          0.5,
		Scaler:                 scaler,
		Imputer:                imputer,
		Normaliser:             normaliser,
		Reducer:                reducer,
		PlotDir:                "img",
		OutputDir:              "out",
		Logger:                 log.New(io.Discard),
		Concurrency:            min(4, runtime.NumCPU()),
		EnrichrQPS:             1,
		ImputationPlots:        map[string]string{},
	}
}

// Run executes the pipeline. Enrichment failures on individual
// comparisons are logged and skipped; everything else is fatal.
func (a *Analysis) Run(ctx context.Context) error {
	if len(a.Groups) < 2 {
		return fmt.Errorf("analysis: need at least two groups, got %d", len(a.Groups))
	}
	cols, err := a.Data.ColumnsFor(a.Groups)
	if err != nil {
		return err
	}

	a.MissingPercentage, err = a.Data.MissingPercentage(a.Groups)
	if err != nil {
		return err
	}
	a.Logger.Info("starting analysis", "groups", a.Groups, "genes", a.Data.NumGenes(), "samples", len(cols), "missing_pct", fmt.Sprintf("%.2f", a.MissingPercentage))

	if !a.DryRun {
		if err := os.MkdirAll(a.PlotDir, 0o755); err != nil {
			return err
		}
		if err := os.MkdirAll(a.OutputDir, 0o755); err != nil {
			return err
		}
	}

	a.Data.CleanGeneNames()

	if err := a.scale(cols); err != nil {
		return err
	}
	if err := a.impute(); err != nil {
		return err
	}
	if err := a.normalise(cols); err != nil {
		return err
	}

	if !a.DryRun {
		a.ProcessedTablePath = filepath.Join(a.OutputDir, "imputed_and_normalised.xlsx")
		if err := a.Data.WriteXLSX(a.ProcessedTablePath, ""); err != nil {
			return err
		}
		a.Logger.Info("wrote processed table", "path", a.ProcessedTablePath)
	}

	if err := a.project(cols); err != nil {
		return err
	}

	return a.compareAll(ctx)
}

func (a *Analysis) scale(cols []string) error {
	m, err := a.Data.Matrix(cols)
	if err != nil {
		return err
	}
	scaled, err := transform.FitTransform(a.Scaler, m)
	if err != nil {
		return fmt.Errorf("analysis: scale: %w", err)
	}
	a.Logger.Debug("scaled data", "scaler", a.Scaler.String())
	return a.Data.SetMatrix(cols, scaled)
}

// impute runs the imputer group by group so each condition's missing
// values are estimated only from its own samples.
func (a *Analysis) impute() error {
	var bar *pb.ProgressBar
	if a.Progress {
		bar = pb.StartNew(len(a.Groups))
		bar.Prefix("Imputing data")
	}
	for _, group := range a.Groups {
		gcols, err := a.Data.GroupColumns(group)
		if err != nil {
			return err
		}
		before, err := a.Data.Matrix(gcols)
		if err != nil {
			return err
		}
		after, err := transform.FitTransform(a.Imputer, before)
		if err != nil {
			return fmt.Errorf("analysis: impute group %s: %w", group, err)
		}
		if !a.DryRun {
			path := filepath.Join(a.PlotDir, fmt.Sprintf("imputation_%s.png", group))
			hist := &plotting.ImputationHist{Before: before, After: after, Columns: gcols, OutputFile: path}
			if err := hist.Plot(); err != nil {
				return fmt.Errorf("analysis: imputation plot for %s: %w", group, err)
			}
			a.ImputationPlots[group] = path
		}
		if err := a.Data.SetMatrix(gcols, after); err != nil {
			return err
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}
	a.Logger.Debug("imputed data", "imputer", a.Imputer.String())
	return nil
}

func (a *Analysis) normalise(cols []string) error {
	m, err := a.Data.Matrix(cols)
	if err != nil {
		return err
	}
	normalised, err := transform.FitTransform(a.Normaliser, m)
	if err != nil {
		return fmt.Errorf("analysis: normalise: %w", err)
	}
	a.Logger.Debug("normalised data", "normaliser", a.Normaliser.String())
	return a.Data.SetMatrix(cols, normalised)
}

// project fits the reducer on the complete rows (genes dropped by
// imputation stay NaN and cannot enter the decomposition) and renders
// the projection plot.
func (a *Analysis) project(cols []string) error {
	m, err := a.Data.Matrix(cols)
	if err != nil {
		return err
	}
	complete := dropIncompleteRows(m)
	if complete == nil {
		return errTooFewCompleteGenes
	}
	if r, _ := complete.Dims(); r < 2 {
		return errTooFewCompleteGenes
	}
	scores, err := transform.FitTransform(a.Reducer, complete)
	if err != nil {
		return fmt.Errorf("analysis: reduce: %w", err)
	}
	if a.DryRun {
		return nil
	}
	a.ProjectionPlotPath = filepath.Join(a.PlotDir, "pca.png")
	proj := &plotting.Projection{
		Scores:            scores,
		Columns:           cols,
		Groups:            a.Groups,
		ExplainedVariance: a.Reducer.ExplainedVariance(),
		Title:             fmt.Sprintf("%s Projection", a.Reducer),
		OutputFile:        a.ProjectionPlotPath,
	}
	if err := proj.Plot(); err != nil {
		return fmt.Errorf("analysis: projection plot: %w", err)
	}
	return nil
}

// compareAll runs every pairwise comparison on a bounded worker pool.
// Enrichr lookups across workers share one rate-limiting ticker.
func (a *Analysis) compareAll(ctx context.Context) error {
	type pair struct{ i, a, b int }
	var pairs []pair
	idx := 0
	for i := 0; i < len(a.Groups); i++ {
		for j := i + 1; j < len(a.Groups); j++ {
			pairs = append(pairs, pair{i: idx, a: i, b: j})
			idx++
		}
	}
	a.Comparisons = make([]*Comparison, len(pairs))

	var bar *pb.ProgressBar
	if a.Progress {
		bar = pb.StartNew(len(pairs))
		bar.Prefix("Comparing groups")
	}

	qps := a.EnrichrQPS
	if qps <= 0 {
		qps = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(qps))
	defer ticker.Stop()

	concurrency := a.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	tasks := make(chan pair)
	errs := make(chan error, len(pairs))
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range tasks {
				cmp, err := a.compare(ctx, a.Groups[p.a], a.Groups[p.b], ticker)
				if err != nil {
					errs <- fmt.Errorf("analysis: %s vs %s: %w", a.Groups[p.a], a.Groups[p.b], err)
				} else {
					a.Comparisons[p.i] = cmp
				}
				if bar != nil {
					bar.Increment()
				}
			}
		}()
	}
	for _, p := range pairs {
		tasks <- p
	}
	close(tasks)
	wg.Wait()
	if bar != nil {
		bar.Finish()
	}
	close(errs)
	if err := <-errs; err != nil {
		return err
	}
	return nil
}

func (a *Analysis) compare(ctx context.Context, groupA, groupB string, ticker *time.Ticker) (*Comparison, error) {
	base, err := diffexp.Compare(a.Data, groupA, groupB)
	if err != nil {
		return nil, err
	}
	cmp := &Comparison{Comparison: base}
	cmp.SignificantGenes = base.Significant(a.PValueThreshold, a.LogFoldChangeThreshold)
	a.Logger.Info("compared groups", "a", groupA, "b", groupB, "genes", len(base.Results), "significant", len(cmp.SignificantGenes))

	if a.DryRun {
		return cmp, nil
	}

	cmp.TablePath = filepath.Join(a.OutputDir, base.Name()+"_de_analysis.xlsx")
	if err := base.WriteXLSX(cmp.TablePath, a.Data); err != nil {
		return nil, err
	}

	lfc := make([]float64, len(base.Results))
	ps := make([]float64, len(base.Results))
	labels := make([]string, len(base.Results))
	for i, r := range base.Results {
		lfc[i], ps[i], labels[i] = r.LogFoldChange, r.P, r.Gene
	}
	cmp.VolcanoPath = filepath.Join(a.PlotDir, base.Name()+"_volcano.png")
	volcano := &plotting.Volcano{
		LogFoldChanges:         lfc,
		PValues:                ps,
		Labels:                 labels,
		LogFoldChangeThreshold: a.LogFoldChangeThreshold,
		PValueThreshold:        a.PValueThreshold,
		OutputFile:             cmp.VolcanoPath,
	}
	if err := volcano.Plot(); err != nil {
		return nil, err
	}

	if len(cmp.SignificantGenes) == 0 || len(a.GeneSets) == 0 {
		return cmp, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ticker.C: // rate limit Enrichr lookups
	}
	baseURL := a.EnrichrBaseURL
	if baseURL == "" {
		baseURL = enrich.BaseURLForOrganism(a.Organism)
	}
	pathways, err := enrich.Run(ctx, baseURL, cmp.SignificantGenes, base.Name(), a.GeneSets, a.EnrichrCutoff)
	if err != nil {
		// Enrichment is best-effort: a service failure should not sink
		// the comparisons already computed.
		a.Logger.Warn("pathway enrichment failed", "comparison", base.Name(), "err", err)
		return cmp, nil
	}
	cmp.Pathways = pathways
	if len(pathways) == 0 {
		return cmp, nil
	}

	cmp.PathwayTablePath = filepath.Join(a.OutputDir, base.Name()+"_pathways.xlsx")
	if err := enrich.WriteXLSX(cmp.PathwayTablePath, pathways); err != nil {
		return nil, err
	}
	cmp.PathwayPlotPath = filepath.Join(a.PlotDir, base.Name()+"_pathways.png")
	bars := &plotting.PathwayBars{Pathways: pathways, OutputFile: cmp.PathwayPlotPath}
	if err := bars.Plot(); err != nil {
		a.Logger.Warn("could not plot pathway bar chart", "comparison", base.Name(), "err", err)
		cmp.PathwayPlotPath = ""
	}
	return cmp, nil
}

// dropIncompleteRows returns the rows of m with no NaN cells, or nil when
// no row is complete. Imputation can leave every gene with a NaN row in
// some group, so the empty case is reachable from valid input.
func dropIncompleteRows(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	var rows [][]float64
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, m)
		ok := true
		for _, v := range row {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	out := mat.NewDense(len(rows), c, nil)
	for i, row := range rows {
		out.SetRow(i, row)
	}
	return out
}
