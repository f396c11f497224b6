package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stmball/auto-bioinformatics/internal/analysis"
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

func ranAnalysis(t *testing.T) *analysis.Analysis {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(testCSV), ',', "Gene")
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	a := analysis.New(ds, []string{"Ctrl", "Drug"})
	dir := t.TempDir()
	a.PlotDir = filepath.Join(dir, "img")
	a.OutputDir = filepath.Join(dir, "out")
	a.GeneSets = nil
	if a.Imputer, err = transform.NewImputer("mean"); err != nil {
		t.Fatalf("NewImputer failed: %v", err)
	}
	if a.Normaliser, err = transform.NewNormaliser("standard"); err != nil {
		t.Fatalf("NewNormaliser failed: %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return a
}

func TestGenerateWritesHTML(t *testing.T) {
	a := ranAnalysis(t)
	r := &Reporter{Analysis: a, Name: "DRD4 Omics Report"}
	if err := r.Generate(); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	out := filepath.Join(a.OutputDir, "report.html")
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	html := string(data)
	for _, want := range []string{
		"DRD4 Omics Report",
		"Ctrl vs Drug",
		a.Scaler.String(),
		a.Imputer.String(),
		"../img/pca.png",
		"../img/Ctrl_Drug_volcano.png",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("report missing %q", want)
		}
	}
}

func TestGenerateCustomPath(t *testing.T) {
	a := ranAnalysis(t)
	out := filepath.Join(t.TempDir(), "custom", "analysis.html")
	r := &Reporter{Analysis: a, OutputPath: out}
	if err := r.Generate(); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(data), "Omics Analysis Report") {
		t.Fatal("default title missing")
	}
}

func TestGenerateNoAnalysis(t *testing.T) {
	r := &Reporter{}
	if err := r.Generate(); err == nil {
		t.Fatal("expected error without an analysis")
	}
}
