package plotting

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/stmball/auto-bioinformatics/internal/enrich"
)

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

func TestVolcanoShapeMismatch(t *testing.T) {
	v := &Volcano{
		LogFoldChanges: []float64{1, 2},
		PValues:        []float64{0.01},
		Labels:         []string{"A", "B"},
	}
	if err := v.Plot(); err != ErrShapeMismatch {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestVolcanoWritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "volcano.png")
	v := &Volcano{
		LogFoldChanges:         []float64{-2.5, -0.2, 0.1, 3},
		PValues:                []float64{0.001, 0.4, 0.9, 0.0001},
		Labels:                 []string{"DOWN", "X", "Y", "UP"},
		LogFoldChangeThreshold: 1,
		PValueThreshold:        0.05,
		OutputFile:             out,
	}
	if err := v.Plot(); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	mustExist(t, out)
}

func TestVolcanoZeroPValue(t *testing.T) {
	out := filepath.Join(t.TempDir(), "volcano.png")
	v := &Volcano{
		LogFoldChanges:         []float64{-2.5, 0.1, 3},
		PValues:                []float64{0.001, 0.9, 0},
		Labels:                 []string{"DOWN", "X", "UP"},
		LogFoldChangeThreshold: 1,
		PValueThreshold:        0.05,
		OutputFile:             out,
	}
	if err := v.Plot(); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	mustExist(t, out)
}

func TestImputationHistWritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "imputation.png")
	before := mat.NewDense(6, 2, []float64{
		1, 5,
		0, 6,
		3, 0,
		4, 8,
		2, math.NaN(),
		5, 7,
	})
	after := mat.NewDense(6, 2, []float64{
		1, 5,
		2.5, 6,
		3, 6.5,
		4, 8,
		2, 6.8,
		5, 7,
	})
	h := &ImputationHist{
		Before:     before,
		After:      after,
		Columns:    []string{"Ctrl_1", "Ctrl_2"},
		Bins:       5,
		OutputFile: out,
	}
	if err := h.Plot(); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	mustExist(t, out)
}

func TestProjectionWritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "pca.png")
	scores := mat.NewDense(4, 2, []float64{
		-1, 0.5,
		-1.2, 0.4,
		1.1, -0.5,
		1, -0.4,
	})
	pr := &Projection{
		Scores:            scores,
		Columns:           []string{"Ctrl_1", "Ctrl_2", "Drug_1", "Drug_2"},
		Groups:            []string{"Ctrl", "Drug"},
		ExplainedVariance: []float64{0.8, 0.15},
		Title:             "PCA Projection",
		OutputFile:        out,
	}
	if err := pr.Plot(); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	mustExist(t, out)
}

func TestPathwayBarsWritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "pathways.png")
	pb := &PathwayBars{
		Pathways: []enrich.Pathway{
			{GeneSet: "KEGG_2019_Human", Term: "p53 signaling pathway", AdjustedP: 0.004},
			{GeneSet: "KEGG_2019_Human", Term: "Cell cycle", AdjustedP: 0.03},
			{GeneSet: "MSigDB_Hallmark_2020", Term: "Apoptosis", AdjustedP: 0.01},
		},
		OutputFile: out,
	}
	if err := pb.Plot(); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	mustExist(t, out)
}
