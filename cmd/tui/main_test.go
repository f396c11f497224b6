package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stmball/auto-bioinformatics/internal/analysis"
	"github.com/stmball/auto-bioinformatics/internal/diffexp"
)

const setupCSV = `Gene,Ctrl_1,Ctrl_2,Ctrl_3,Drug_1,Drug_2,Drug_3
TP53,100,110,90,400,420,380
BRCA1,50,55,45,52,48,50
MYC,200,210,195,820,790,805
EGFR,30,28,32,29,31,30
AKT1,400,390,410,95,105,100
GAPDH,1000,980,1020,1010,990,1005
`

// setupModel fills the setup form with a runnable configuration rooted
// in a temporary directory.
func setupModel(t *testing.T) (model, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(csvPath, []byte(setupCSV), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	m := initialModel()
	m.inputs[fieldInput].SetValue(csvPath)
	m.inputs[fieldGroups].SetValue("Ctrl,Drug")
	m.inputs[fieldGeneSets].SetValue("none")
	m.inputs[fieldOutputDir].SetValue(dir)
	return m, dir
}

func TestRunAnalysisWritesReport(t *testing.T) {
	m, dir := setupModel(t)
	m.inputs[fieldReport].SetValue("y")

	msg := m.runAnalysis()()
	done, ok := msg.(analysisDoneMsg)
	if !ok {
		t.Fatalf("unexpected message type %T", msg)
	}
	if done.err != nil {
		t.Fatalf("analysis failed: %v", done.err)
	}
	want := filepath.Join(dir, "out", "report.html")
	if done.reportPath != want {
		t.Fatalf("report path = %q, want %q", done.reportPath, want)
	}
	info, err := os.Stat(done.reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("report file is empty")
	}
}

func TestRunAnalysisSkipsReport(t *testing.T) {
	m, dir := setupModel(t)
	m.inputs[fieldReport].SetValue("n")

	msg := m.runAnalysis()()
	done, ok := msg.(analysisDoneMsg)
	if !ok {
		t.Fatalf("unexpected message type %T", msg)
	}
	if done.err != nil {
		t.Fatalf("analysis failed: %v", done.err)
	}
	if done.reportPath != "" {
		t.Fatalf("unexpected report path %q", done.reportPath)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "report.html")); !os.IsNotExist(err) {
		t.Fatalf("report should not have been written: %v", err)
	}
}

func TestWantsReport(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"y", true},
		{"Yes", true},
		{" Y ", true},
		{"n", false},
		{"no", false},
		{"maybe", false},
	}
	for _, c := range cases {
		if got := wantsReport(c.in); got != c.want {
			t.Fatalf("wantsReport(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCycleMode(t *testing.T) {
	m := initialModel()
	if m.currentMode != modeSignificant {
		t.Fatalf("expected initial mode significant, got %v", m.currentMode)
	}
	m = m.cycleMode()
	if m.currentMode != modeAllGenes {
		t.Fatalf("expected all genes, got %v", m.currentMode)
	}
	m = m.cycleMode()
	if m.currentMode != modePathways {
		t.Fatalf("expected pathways, got %v", m.currentMode)
	}
	m = m.cycleMode()
	if m.currentMode != modeSignificant {
		t.Fatalf("expected significant, got %v", m.currentMode)
	}
}

func TestBuildRightLinesWrap(t *testing.T) {
	m := initialModel()
	m.width = 120
	m.height = 40
	genes := make([]string, 50)
	for i := range genes {
		genes[i] = fmt.Sprintf("GENE%02d", i)
	}
	cmp := &analysis.Comparison{
		Comparison:       &diffexp.Comparison{GroupA: "Ctrl", GroupB: "Drug"},
		SignificantGenes: genes,
	}
	lines := m.buildRightLines(cmp)
	if len(lines) < 4 {
		t.Fatalf("expected wrapped gene list, got %d lines", len(lines))
	}
}

func TestSetupRequiresGroups(t *testing.T) {
	m := initialModel()
	m.inputs[fieldInput].SetValue("data.xlsx")
	m.inputs[fieldGroups].SetValue("Control")
	m.focused = len(m.inputs) - 1
	next, _ := m.updateSetup(tea.KeyMsg{Type: tea.KeyEnter})
	got := next.(model)
	if got.screen != screenSetup {
		t.Fatalf("expected to stay on setup screen, got %v", got.screen)
	}
	if got.errMsg == "" {
		t.Fatal("expected validation error for a single group")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" Control , Treated ,, ")
	if len(got) != 2 || got[0] != "Control" || got[1] != "Treated" {
		t.Fatalf("splitList = %v", got)
	}
}

func TestWrap(t *testing.T) {
	lines := wrap(strings.Repeat("a", 25), 10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[2] != "aaaaa" {
		t.Fatalf("unexpected last line %q", lines[2])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate changed short string: %q", got)
	}
	if got := truncate(strings.Repeat("x", 20), 10); len([]rune(got)) != 10 {
		t.Fatalf("truncate did not cap length: %q", got)
	}
}
