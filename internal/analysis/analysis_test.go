package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stmball/auto-bioinformatics/internal/dataset"
	"github.com/stmball/auto-bioinformatics/internal/transform"
)

const testCSV = `Gene,Ctrl_1,Ctrl_2,Ctrl_3,Drug_1,Drug_2,Drug_3
TP53,100,110,90,400,420,380
BRCA1,50,55,45,52,48,50
MYC,200,210,0,820,790,805
EGFR,30,28,32,29,31,30
AKT1,400,390,410,95,105,100
GAPDH,1000,980,1020,1010,990,1005
`

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(testCSV), ',', "Gene")
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	return ds
}

func testAnalysis(t *testing.T, ds *dataset.Dataset) *Analysis {
	t.Helper()
	a := New(ds, []string{"Ctrl", "Drug"})
	dir := t.TempDir()
	a.PlotDir = filepath.Join(dir, "img")
	a.OutputDir = filepath.Join(dir, "out")
	a.GeneSets = nil // skip Enrichr
	var err error
	if a.Imputer, err = transform.NewImputer("mean"); err != nil {
		t.Fatalf("NewImputer failed: %v", err)
	}
	if a.Normaliser, err = transform.NewNormaliser("standard"); err != nil {
		t.Fatalf("NewNormaliser failed: %v", err)
	}
	return a
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected output file %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Fatalf("output file %s is empty", path)
	}
}

func TestRunProducesArtefacts(t *testing.T) {
	a := testAnalysis(t, testDataset(t))
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mustExist(t, a.ProcessedTablePath)
	mustExist(t, a.ProjectionPlotPath)
	for _, group := range a.Groups {
		path, ok := a.ImputationPlots[group]
		if !ok {
			t.Fatalf("no imputation plot recorded for group %s", group)
		}
		mustExist(t, path)
	}

	if len(a.Comparisons) != 1 {
		t.Fatalf("expected 1 comparison, got %d", len(a.Comparisons))
	}
	cmp := a.Comparisons[0]
	if cmp.GroupA != "Ctrl" || cmp.GroupB != "Drug" {
		t.Fatalf("unexpected comparison %s vs %s", cmp.GroupA, cmp.GroupB)
	}
	mustExist(t, cmp.TablePath)
	mustExist(t, cmp.VolcanoPath)
	if len(cmp.Results) == 0 {
		t.Fatal("comparison has no results")
	}
	if a.MissingPercentage <= 0 {
		t.Fatalf("expected nonzero missing percentage, got %f", a.MissingPercentage)
	}
}

func TestRunFindsSignificantGenes(t *testing.T) {
	a := testAnalysis(t, testDataset(t))
	// Column standardisation compresses fold changes, so use a looser
	// cutoff than the production default.
	a.LogFoldChangeThreshold = 0.5
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	sig := a.Comparisons[0].SignificantGenes
	if len(sig) == 0 {
		t.Fatal("expected significant genes between Ctrl and Drug")
	}
	for _, gene := range sig {
		if gene == "GAPDH" {
			t.Fatal("GAPDH should not be significant")
		}
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	a := testAnalysis(t, testDataset(t))
	a.DryRun = true
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(a.PlotDir); !os.IsNotExist(err) {
		t.Fatalf("dry run created plot dir: %v", err)
	}
	if _, err := os.Stat(a.OutputDir); !os.IsNotExist(err) {
		t.Fatalf("dry run created output dir: %v", err)
	}
	if a.ProcessedTablePath != "" || a.ProjectionPlotPath != "" {
		t.Fatal("dry run recorded output paths")
	}
	if len(a.Comparisons) != 1 || a.Comparisons[0] == nil {
		t.Fatal("dry run should still run comparisons")
	}
}

// Every gene here is observed only once in one of its groups, so the KNN
// imputer drops it there and no gene survives with a complete row. The
// projection step must reject this instead of panicking.
const incompleteCSV = `Gene,Ctrl_1,Ctrl_2,Ctrl_3,Drug_1,Drug_2,Drug_3
G1,0,0,90,400,420,380
G2,50,55,45,0,0,50
G3,0,0,195,820,790,805
G4,30,28,32,0,0,30
G5,0,0,410,95,105,100
G6,1000,980,1020,0,0,1005
`

func TestRunNoCompleteGenes(t *testing.T) {
	ds, err := dataset.ReadCSV(strings.NewReader(incompleteCSV), ',', "Gene")
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	a := New(ds, []string{"Ctrl", "Drug"})
	dir := t.TempDir()
	a.PlotDir = filepath.Join(dir, "img")
	a.OutputDir = filepath.Join(dir, "out")
	a.GeneSets = nil

	err = a.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when no gene is complete across all samples")
	}
	if !strings.Contains(err.Error(), "too few complete genes") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunRejectsSingleGroup(t *testing.T) {
	a := testAnalysis(t, testDataset(t))
	a.Groups = []string{"Ctrl"}
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error for a single group")
	}
}

func TestRunUnknownGroup(t *testing.T) {
	a := testAnalysis(t, testDataset(t))
	a.Groups = []string{"Ctrl", "Placebo"}
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error for unmatched group")
	}
}
