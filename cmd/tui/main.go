package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/stmball/auto-bioinformatics/internal/analysis"
	"github.com/stmball/auto-bioinformatics/internal/dataset"
	"github.com/stmball/auto-bioinformatics/internal/report"
)

// Colors for modern design
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	surfaceColor   = lipgloss.Color("#1F2937") // Dark gray
	textColor      = lipgloss.Color("#F3F4F6") // Light gray
	mutedColor     = lipgloss.Color("#9CA3AF") // Muted gray
	borderColor    = lipgloss.Color("#374151") // Border gray
	dangerColor    = lipgloss.Color("#EF4444") // Red
)

// Styles
var (
	containerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Align(lipgloss.Center)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(surfaceColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	upStyle       = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)
	downStyle     = lipgloss.NewStyle().Foreground(dangerColor).Bold(true)
	pathwayStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	fieldStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle    = lipgloss.NewStyle().Foreground(dangerColor).Bold(true)
	sectionStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	geneLineStyle = lipgloss.NewStyle().Foreground(textColor)
)

type listItem struct {
	cmp *analysis.Comparison
}

func (i listItem) FilterValue() string { return i.cmp.Name() }

func (i listItem) Title() string {
	return fmt.Sprintf("%s vs %s", i.cmp.GroupA, i.cmp.GroupB)
}

func (i listItem) Description() string {
	sig := upStyle.Render(fmt.Sprintf("%d significant", len(i.cmp.SignificantGenes)))
	pw := pathwayStyle.Render(fmt.Sprintf("%d pathways", len(i.cmp.Pathways)))
	return fmt.Sprintf("Genes: %d    %s    %s", len(i.cmp.Results), sig, pw)
}

type mode int

const (
	modeSignificant mode = iota
	modeAllGenes
	modePathways
)

func (m mode) String() string {
	switch m {
	case modeSignificant:
		return "Significant Genes"
	case modeAllGenes:
		return "All Genes"
	case modePathways:
		return "Pathways"
	default:
		return "Unknown"
	}
}

type screen int

const (
	screenSetup screen = iota
	screenRunning
	screenResults
)

// Setup form field order.
const (
	fieldInput = iota
	fieldSheet
	fieldGeneCol
	fieldGroups
	fieldGeneSets
	fieldOutputDir
	fieldReport
	fieldCount
)

type analysisDoneMsg struct {
	analysis   *analysis.Analysis
	reportPath string
	err        error
}

type model struct {
	screen  screen
	inputs  []textinput.Model
	focused int
	errMsg  string

	list             list.Model
	analysis         *analysis.Analysis
	reportPath       string
	currentMode      mode
	showHelp         bool
	width            int
	height           int
	totalComparisons int
	selectedIndex    int
}

func initialModel() model {
	inputs := make([]textinput.Model, fieldCount)
	placeholders := []string{
		"path to expression table (.xlsx, .csv, .tsv)",
		"sheet name (xlsx only, blank for first)",
		"gene column name (default: Gene)",
		"groups, comma separated (e.g. Control,Treated)",
		"Enrichr gene sets, comma separated (blank for defaults, 'none' to skip)",
		"output directory (blank for current directory)",
		"write HTML report? (y/n, default y)",
	}
	for i := range inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 256
		ti.Width = 60
		inputs[i] = ti
	}
	inputs[fieldInput].Focus()

	return model{
		screen:      screenSetup,
		inputs:      inputs,
		currentMode: modeSignificant,
	}
}

// cycleMode advances the right-panel view to the next mode, wrapping
// back to significant genes.
func (m model) cycleMode() model {
	m.currentMode = (m.currentMode + 1) % 3
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

// runAnalysis builds and runs the pipeline off the UI goroutine.
func (m model) runAnalysis() tea.Cmd {
	input := strings.TrimSpace(m.inputs[fieldInput].Value())
	sheet := strings.TrimSpace(m.inputs[fieldSheet].Value())
	geneCol := strings.TrimSpace(m.inputs[fieldGeneCol].Value())
	if geneCol == "" {
		geneCol = "Gene"
	}
	groups := splitList(m.inputs[fieldGroups].Value())
	geneSets := m.inputs[fieldGeneSets].Value()
	outputDir := strings.TrimSpace(m.inputs[fieldOutputDir].Value())
	wantReport := wantsReport(m.inputs[fieldReport].Value())

	return func() tea.Msg {
		data, err := dataset.Open(input, sheet, geneCol)
		if err != nil {
			return analysisDoneMsg{err: err}
		}
		a := analysis.New(data, groups)
		a.Logger = log.New(io.Discard) // logs would fight the UI for the terminal
		if outputDir != "" {
			a.PlotDir = filepath.Join(outputDir, "img")
			a.OutputDir = filepath.Join(outputDir, "out")
		}
		switch strings.TrimSpace(geneSets) {
		case "":
		case "none":
			a.GeneSets = nil
		default:
			a.GeneSets = splitList(geneSets)
		}
		if err := a.Run(context.Background()); err != nil {
			return analysisDoneMsg{err: err}
		}
		var reportPath string
		if wantReport {
			rep := &report.Reporter{Analysis: a}
			if err := rep.Generate(); err != nil {
				return analysisDoneMsg{err: err}
			}
			reportPath = filepath.Join(a.OutputDir, "report.html")
		}
		return analysisDoneMsg{analysis: a, reportPath: reportPath}
	}
}

// wantsReport interprets the report-toggle field; blank means yes.
func wantsReport(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Left panel takes 1/3 of width
		if m.screen == screenResults {
			m.list.SetWidth(msg.Width / 3)
			m.list.SetHeight(msg.Height - 4)
		}
		return m, nil

	case analysisDoneMsg:
		if msg.err != nil {
			m.screen = screenSetup
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.analysis = msg.analysis
		m.reportPath = msg.reportPath
		m.screen = screenResults
		items := make([]list.Item, 0, len(msg.analysis.Comparisons))
		for _, cmp := range msg.analysis.Comparisons {
			if cmp != nil {
				items = append(items, listItem{cmp: cmp})
			}
		}
		l := list.New(items, list.NewDefaultDelegate(), m.width/3, m.height-4)
		l.Title = "Comparisons"
		l.SetShowStatusBar(false)
		l.SetShowPagination(true)
		l.SetFilteringEnabled(true)
		m.list = l
		m.totalComparisons = len(items)
		return m, nil

	case tea.KeyMsg:
		if m.screen == screenSetup {
			return m.updateSetup(msg)
		}
		if m.screen == screenRunning {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "h":
			m.showHelp = !m.showHelp
			return m, nil

		case "tab", "m":
			return m.cycleMode(), nil

		case "1":
			m.currentMode = modeSignificant
			return m, nil

		case "2":
			m.currentMode = modeAllGenes
			return m, nil

		case "3":
			m.currentMode = modePathways
			return m, nil
		}
	}

	if m.screen == screenSetup {
		var cmd tea.Cmd
		m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
		return m, cmd
	}
	if m.screen != screenResults {
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.selectedIndex = m.list.Index()
	return m, cmd
}

func (m model) updateSetup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "tab", "down":
		m.focused = (m.focused + 1) % len(m.inputs)
		return m.refocus(), nil

	case "shift+tab", "up":
		m.focused = (m.focused + len(m.inputs) - 1) % len(m.inputs)
		return m.refocus(), nil

	case "enter":
		if m.focused < len(m.inputs)-1 {
			m.focused++
			return m.refocus(), nil
		}
		if strings.TrimSpace(m.inputs[fieldInput].Value()) == "" {
			m.errMsg = "input table path is required"
			return m, nil
		}
		if len(splitList(m.inputs[fieldGroups].Value())) < 2 {
			m.errMsg = "at least two groups are required"
			return m, nil
		}
		m.errMsg = ""
		m.screen = screenRunning
		return m, m.runAnalysis()
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

func (m model) refocus() model {
	for i := range m.inputs {
		if i == m.focused {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return m
}

func (m model) View() string {
	switch m.screen {
	case screenSetup:
		return m.renderSetup()
	case screenRunning:
		return m.renderRunning()
	}

	if m.width == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelpModal()
	}

	main := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderLeftPanel(),
		m.renderRightPanel(),
	)
	return lipgloss.JoinVertical(
		lipgloss.Left,
		main,
		m.renderStatusBar(),
	)
}

func (m model) renderSetup() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Omics Analysis Setup"))
	b.WriteString("\n\n")
	labels := []string{"Input table", "Sheet", "Gene column", "Groups", "Gene sets", "Output directory", "Report"}
	for i, ti := range m.inputs {
		b.WriteString(fieldStyle.Render(labels[i]))
		b.WriteString("\n")
		b.WriteString(ti.View())
		b.WriteString("\n\n")
	}
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("Error: " + m.errMsg))
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render("tab/enter to move between fields, enter on the last field to run, esc to quit"))

	box := containerStyle.Render(b.String())
	if m.width == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m model) renderRunning() string {
	msg := titleStyle.Render("Running analysis...") + "\n\n" +
		helpStyle.Render("Scaling, imputing, normalising and comparing groups. This can take a while\nwhen pathway enrichment is enabled.")
	box := containerStyle.Render(msg)
	if m.width == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m model) renderLeftPanel() string {
	listWidth := m.width / 3
	return containerStyle.
		Width(listWidth - 2).
		Height(m.height - 4).
		Render(m.list.View())
}

func (m model) renderRightPanel() string {
	rightWidth := (m.width * 2) / 3

	selectedItem := m.list.SelectedItem()
	if selectedItem == nil {
		return containerStyle.
			Width(rightWidth - 2).
			Height(m.height - 4).
			Render("No comparison selected")
	}

	cmp := selectedItem.(listItem).cmp
	lines := m.buildRightLines(cmp)

	header := titleStyle.Render(fmt.Sprintf("%s vs %s", cmp.GroupA, cmp.GroupB))
	panelContent := lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		strings.Join(lines, "\n"),
	)

	return containerStyle.
		Width(rightWidth - 2).
		Height(m.height - 4).
		Render(panelContent)
}

// buildRightLines renders the detail panel content for the current mode,
// wrapped to the panel width.
func (m model) buildRightLines(cmp *analysis.Comparison) []string {
	width := m.width*2/3 - 6
	if width < 20 {
		width = 20
	}

	var lines []string
	switch m.currentMode {
	case modeSignificant:
		lines = append(lines, sectionStyle.Render("Significant Genes:"), "")
		if len(cmp.SignificantGenes) == 0 {
			lines = append(lines, fieldStyle.Render("No significant genes for this comparison"))
			break
		}
		lines = append(lines, wrap(strings.Join(cmp.SignificantGenes, ", "), width)...)

	case modeAllGenes:
		lines = append(lines, sectionStyle.Render("All Genes:"), "")
		for _, r := range cmp.Results {
			marker := " "
			style := geneLineStyle
			if r.LogFoldChange > 0 {
				marker, style = "+", upStyle
			} else if r.LogFoldChange < 0 {
				marker, style = "-", downStyle
			}
			line := fmt.Sprintf("%s %-20s LFC %+.3f  p %.4g", marker, r.Gene, r.LogFoldChange, r.P)
			lines = append(lines, style.Render(truncate(line, width)))
		}

	case modePathways:
		lines = append(lines, sectionStyle.Render("Enriched Pathways:"), "")
		if len(cmp.Pathways) == 0 {
			lines = append(lines, fieldStyle.Render("No enriched pathways for this comparison"))
			break
		}
		for _, pw := range cmp.Pathways {
			line := fmt.Sprintf("%s  (adj p %.3g, %s)", pw.Term, pw.AdjustedP, pw.GeneSet)
			lines = append(lines, pathwayStyle.Render(truncate(line, width)))
		}
	}
	return lines
}

// wrap splits s into lines of at most width runes.
func wrap(s string, width int) []string {
	var lines []string
	runes := []rune(s)
	for len(runes) > width {
		lines = append(lines, string(runes[:width]))
		runes = runes[width:]
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

func (m model) renderStatusBar() string {
	leftInfo := fmt.Sprintf("📊 %d/%d comparisons", m.selectedIndex+1, m.totalComparisons)
	centerInfo := fmt.Sprintf("Mode: %s", m.currentMode.String())
	rightInfo := "Press 'h' for help • 'q' to quit"

	totalUsed := len(leftInfo) + len(centerInfo) + len(rightInfo)
	spacing := m.width - totalUsed - 6

	var statusContent string
	if spacing > 0 {
		leftSpacing := spacing / 2
		rightSpacing := spacing - leftSpacing
		statusContent = fmt.Sprintf("%s%s%s%s%s",
			leftInfo,
			strings.Repeat(" ", leftSpacing),
			centerInfo,
			strings.Repeat(" ", rightSpacing),
			rightInfo,
		)
	} else {
		// Fallback for narrow terminals
		statusContent = fmt.Sprintf("%s | %s", leftInfo, centerInfo)
	}

	return statusBarStyle.
		Width(m.width).
		Render(statusContent)
}

func (m model) renderHelpModal() string {
	helpContent := `🧬 Omics Analysis Browser - Help

Navigation:
  ↑/↓, j/k     Navigate comparisons
  /            Filter comparisons
  tab, m       Cycle view mode

View Modes:
  1            Significant genes
  2            All genes with fold change and p-value
  3            Enriched pathways

General:
  h            Toggle this help
  q, Ctrl+C    Quit application

Current Mode: ` + m.currentMode.String() + `
Comparisons: ` + fmt.Sprintf("%d", m.totalComparisons) + `
`
	if m.reportPath != "" {
		helpContent += "Report: " + m.reportPath + "\n"
	}

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(surfaceColor).
		Foreground(textColor).
		Width(60).
		Align(lipgloss.Center)

	modal := modalStyle.Render(helpContent)
	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal,
	)
}

func main() {
	p := tea.NewProgram(initialModel(), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v", err)
		os.Exit(1)
	}
}
