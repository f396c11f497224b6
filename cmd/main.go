package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stmball/auto-bioinformatics/internal/analysis"
	"github.com/stmball/auto-bioinformatics/internal/config"
	"github.com/stmball/auto-bioinformatics/internal/dataset"
	"github.com/stmball/auto-bioinformatics/internal/enrich"
	"github.com/stmball/auto-bioinformatics/internal/report"
	"github.com/stmball/auto-bioinformatics/internal/transform"
)

// version is the program version. It can be overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

// timestampWriter prefixes each flushed line with an RFC3339 timestamp.
type timestampWriter struct {
	w   io.Writer
	buf bytes.Buffer
	mu  sync.Mutex
}

// Write buffers bytes until a newline is found; for each full line, write a timestamped
// line to the underlying writer. Partial lines are kept in the buffer.
func (t *timestampWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	total := n
	for {
		line, err := t.buf.ReadString('\n')
		if err != nil {
			break
		}
		ts := time.Now().Format(time.RFC3339)
		if _, err := t.w.Write([]byte(ts + " " + line)); err != nil {
			return total, err
		}
	}
	return total, nil
}

// terminalWriter wraps an io.Writer and exposes an Fd method so libraries that
// inspect the file descriptor (for TTY detection) can work with wrapped writers.
type terminalWriter struct {
	w  io.Writer
	fd uintptr
}

func (tw *terminalWriter) Write(p []byte) (int, error) { return tw.w.Write(p) }

// Fd exposes the underlying file descriptor (e.g., os.Stderr.Fd()).
func (tw *terminalWriter) Fd() uintptr { return tw.fd }

// resolveThreshold picks a significance threshold: a flag passed on the
// command line wins over the config file, which wins over the built-in
// default. Flag presence matters here because an explicit flag value can
// equal the default.
func resolveThreshold(flagSet bool, flagValue, configValue, fallback float64) float64 {
	if flagSet {
		return flagValue
	}
	if configValue > 0 {
		return configValue
	}
	return fallback
}

// splitList turns a comma-separated flag value into trimmed entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	// CLI flags
	inputFlag := flag.String("in", "", "input expression table (.xlsx, .csv or .tsv)")
	sheetFlag := flag.String("sheet", "", "sheet name for xlsx input (defaults to the first sheet)")
	geneColFlag := flag.String("gene-col", "Gene", "name of the gene identifier column")
	groupsFlag := flag.String("groups", "", "comma-separated group identifiers matched against column names")
	pFlag := flag.Float64("p", 0.05, "p-value threshold for significance")
	lfcFlag := flag.Float64("lfc", 1, "absolute log fold change threshold for significance")
	geneSetsFlag := flag.String("gene-sets", "", "comma-separated Enrichr gene-set libraries (empty for defaults, 'none' to skip enrichment)")
	organismFlag := flag.String("organism", "", "Enrichr organism (Human, Fly, Yeast, Worm, Fish)")
	scalerFlag := flag.String("scaler", "", "scaler to use: "+strings.Join(transform.ScalerNames(), ", "))
	imputerFlag := flag.String("imputer", "", "imputer to use: "+strings.Join(transform.ImputerNames(), ", "))
	normaliserFlag := flag.String("normaliser", "", "normaliser to use: "+strings.Join(transform.NormaliserNames(), ", "))
	reducerFlag := flag.String("reducer", "", "reducer to use: "+strings.Join(transform.ReducerNames(), ", "))
	plotsFlag := flag.String("plots", "", "directory for generated figures")
	outFlag := flag.String("out", "", "directory for generated tables and the report")
	reportFlag := flag.String("report", "", "report title")
	configFlag := flag.String("config", "", "path to config.json (optional)")
	dryRun := flag.Bool("dry-run", false, "perform a dry run without writing outputs or calling external services")
	verbose := flag.Bool("verbose", false, "enable verbose (debug) logging")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if *versionFlag {
		fmt.Println("autobio", version)
		return
	}

	// load config (optional file)
	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	// merge CLI flags into config (flags override config when provided)
	if *inputFlag != "" {
		cfg.InputPath = *inputFlag
	}
	if *sheetFlag != "" {
		cfg.Sheet = *sheetFlag
	}
	if *geneColFlag != "" {
		cfg.GeneColumn = *geneColFlag
	}
	if *groupsFlag != "" {
		cfg.Groups = splitList(*groupsFlag)
	}
	if *organismFlag != "" {
		cfg.Organism = *organismFlag
	}
	if *scalerFlag != "" {
		cfg.Scaler = *scalerFlag
	}
	if *imputerFlag != "" {
		cfg.Imputer = *imputerFlag
	}
	if *normaliserFlag != "" {
		cfg.Normaliser = *normaliserFlag
	}
	if *reducerFlag != "" {
		cfg.Reducer = *reducerFlag
	}
	if *plotsFlag != "" {
		cfg.PlotDir = *plotsFlag
	}
	if *outFlag != "" {
		cfg.OutputDir = *outFlag
	}
	if *reportFlag != "" {
		cfg.ReportName = *reportFlag
	}
	if *dryRun {
		cfg.DryRun = true
	}
	switch *geneSetsFlag {
	case "":
	case "none":
		cfg.GeneSets = []string{}
	default:
		cfg.GeneSets = splitList(*geneSetsFlag)
	}

	// configure logger output
	var loggerOut io.Writer = os.Stderr
	var logFileHandle *os.File
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			// write to both stderr and file so running interactively still shows logs
			loggerOut = io.MultiWriter(os.Stderr, f)
			logFileHandle = f
			defer func() { _ = logFileHandle.Close() }()
		}
	}
	// If stderr is a terminal-like device, force colors for libraries that honor FORCE_COLOR.
	if fi, err := os.Stderr.Stat(); err == nil {
		if fi.Mode()&os.ModeCharDevice != 0 {
			_ = os.Setenv("FORCE_COLOR", "1")
		}
	}
	// create logger backed by the timestamping writer and expose Fd so charm.log can detect TTY
	tw := &timestampWriter{w: loggerOut}
	termW := &terminalWriter{w: tw, fd: os.Stderr.Fd()}
	logger := log.New(termW)

	// apply log level from flags/config (flags override config)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			logger.SetLevel(log.DebugLevel)
		case "info", "":
			logger.SetLevel(log.InfoLevel)
		case "warn", "warning":
			logger.SetLevel(log.WarnLevel)
		case "error":
			logger.SetLevel(log.ErrorLevel)
		default:
			logger.SetLevel(log.InfoLevel)
			logger.Warn("unknown log_level in config.json, defaulting to info", "provided", cfg.LogLevel)
		}
	}

	if cfg.InputPath == "" {
		logger.Fatal("no input table given; pass -in or set input_path in config.json")
	}
	if len(cfg.Groups) < 2 {
		logger.Fatal("need at least two groups; pass -groups or set groups in config.json")
	}

	logger.Debug("loaded config", "input_path", cfg.InputPath, "groups", cfg.Groups, "plot_dir", cfg.PlotDir, "output_dir", cfg.OutputDir, "log_file", cfg.LogFile, "log_level", cfg.LogLevel)
	logger.Info("starting autobio", "input_path", cfg.InputPath, "groups", cfg.Groups, "enrichr_cache_path", cfg.EnrichrCachePath, "enrichr_cache_ttl_secs", cfg.EnrichrCacheTTLSecs)

	// apply enrichr cache config
	if cfg.EnrichrCachePath != "" {
		absPath, aerr := filepath.Abs(cfg.EnrichrCachePath)
		if aerr == nil {
			enrich.SetCacheFilePath(absPath)
			logger.Info("enrichr cache path set from config (absolute)", "path", absPath)
		} else {
			enrich.SetCacheFilePath(cfg.EnrichrCachePath)
			logger.Info("enrichr cache path set from config", "path", cfg.EnrichrCachePath)
		}
		defer enrich.FlushCache()
	}
	if cfg.EnrichrCacheTTLSecs > 0 {
		enrich.SetCacheTTLSeconds(cfg.EnrichrCacheTTLSecs)
	}

	geneCol := cfg.GeneColumn
	if geneCol == "" {
		geneCol = "Gene"
	}
	data, err := dataset.Open(cfg.InputPath, cfg.Sheet, geneCol)
	if err != nil {
		logger.Fatal("failed to read input table", "path", cfg.InputPath, "err", err)
	}
	logger.Info("parsed input table", "path", cfg.InputPath, "genes", data.NumGenes(), "columns", len(data.Columns()))

	a := analysis.New(data, cfg.Groups)
	a.Logger = logger
	a.Progress = true
	a.DryRun = cfg.DryRun
	a.PValueThreshold = resolveThreshold(setFlags["p"], *pFlag, cfg.PValueThreshold, a.PValueThreshold)
	a.LogFoldChangeThreshold = resolveThreshold(setFlags["lfc"], *lfcFlag, cfg.LogFoldChangeThreshold, a.LogFoldChangeThreshold)
	if cfg.GeneSets != nil {
		a.GeneSets = cfg.GeneSets
	}
	if cfg.Organism != "" {
		a.Organism = cfg.Organism
	}
	if cfg.EnrichrBaseURL != "" {
		a.EnrichrBaseURL = cfg.EnrichrBaseURL
	}
	if cfg.PlotDir != "" {
		a.PlotDir = cfg.PlotDir
	}
	if cfg.OutputDir != "" {
		a.OutputDir = cfg.OutputDir
	}
	if cfg.Scaler != "" {
		if a.Scaler, err = transform.NewScaler(cfg.Scaler); err != nil {
			logger.Fatal("unknown scaler", "name", cfg.Scaler, "available", transform.ScalerNames())
		}
	}
	if cfg.Imputer != "" {
		if a.Imputer, err = transform.NewImputer(cfg.Imputer); err != nil {
			logger.Fatal("unknown imputer", "name", cfg.Imputer, "available", transform.ImputerNames())
		}
	}
	if cfg.Normaliser != "" {
		if a.Normaliser, err = transform.NewNormaliser(cfg.Normaliser); err != nil {
			logger.Fatal("unknown normaliser", "name", cfg.Normaliser, "available", transform.NormaliserNames())
		}
	}
	if cfg.Reducer != "" {
		if a.Reducer, err = transform.NewReducer(cfg.Reducer); err != nil {
			logger.Fatal("unknown reducer", "name", cfg.Reducer, "available", transform.ReducerNames())
		}
	}

	start := time.Now()
	if err := a.Run(context.Background()); err != nil {
		logger.Fatal("analysis failed", "err", err)
	}
	logger.Info("analysis finished", "duration_ms", time.Since(start).Milliseconds(), "comparisons", len(a.Comparisons))

	if cfg.DryRun {
		logger.Info("dry-run: would write report", "comparisons", len(a.Comparisons))
		return
	}

	r := &report.Reporter{Analysis: a, Name: cfg.ReportName, OutputPath: cfg.ReportPath}
	if err := r.Generate(); err != nil {
		logger.Fatal("failed to write report", "err", err)
	}
	out := cfg.ReportPath
	if out == "" {
		out = filepath.Join(a.OutputDir, "report.html")
	}
	logger.Info("wrote report", "path", out)
}
