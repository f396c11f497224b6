package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stmball/auto-bioinformatics/internal/analysis"
	"github.com/stmball/auto-bioinformatics/internal/dataset"
	"github.com/stmball/auto-bioinformatics/internal/report"
	"github.com/stmball/auto-bioinformatics/internal/transform"
)

var templates *template.Template

// builtinTemplates keeps the server usable without a templates directory:
// a jobs overview page and a single-job page.
const builtinTemplates = `
{{define "base.html"}}<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Analysis Jobs</title>
<style>body{font-family:sans-serif;max-width:50rem;margin:2rem auto}td,th{border:1px solid #ccc;padding:0.3rem 0.6rem}table{border-collapse:collapse}</style>
</head><body>
<h1>Analysis Jobs</h1>
<table><tr><th>ID</th><th>Name</th><th>State</th><th>Updated</th></tr>
{{range .Jobs}}<tr><td><a href="/job/{{.ID}}">{{.ID}}</a></td><td>{{.Name}}</td><td>{{.State}}</td><td>{{.UpdatedAt.Format "2006-01-02 15:04:05"}}</td></tr>{{end}}
</table>
<p>Submit analyses with POST /api/analyze.</p>
</body></html>{{end}}

{{define "job.html"}}<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Job {{.ID}}</title></head><body>
<h1>Job {{.ID}}</h1>
<p>Name: {{.Name}}</p>
<p>State: {{.State}}</p>
{{if .Message}}<p>Message: {{.Message}}</p>{{end}}
{{if .ReportPath}}<p><a href="/files/{{.ReportPath}}">View report</a></p>{{end}}
<p><a href="/">Back to all jobs</a></p>
</body></html>{{end}}
`

// loadTemplates parses every .html file under dir; when dir is missing the
// built-in templates are used instead.
func loadTemplates(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		t, err := template.New("").Parse(builtinTemplates)
		if err != nil {
			return err
		}
		templates = t
		return nil
	}
	t := template.New("")
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".html") {
			if _, err := t.ParseFiles(path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	templates = t
	return nil
}

// statusResponseWriter captures status and bytes written for logging
type statusResponseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// loggingMiddleware logs each request with method, path, status, size and duration
func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w}
		next.ServeHTTP(srw, r)
		if srw.status == 0 {
			srw.status = http.StatusOK
		}
		duration := time.Since(start)
		logger.Printf("%s - %s %s %d %dB %s %q",
			r.RemoteAddr, r.Method, r.URL.RequestURI(), srw.status, srw.written, duration, r.UserAgent())
	})
}

// analyzeRequest is the POST /api/analyze payload: pipeline settings plus
// the expression table inline.
type analyzeRequest struct {
	Name                   string   `json:"name"`
	GeneColumn             string   `json:"gene_column"`
	Groups                 []string `json:"groups"`
	GeneSets               []string `json:"gene_sets"`
	Organism               string   `json:"organism"`
	Scaler                 string   `json:"scaler"`
	Imputer                string   `json:"imputer"`
	Normaliser             string   `json:"normaliser"`
	Reducer                string   `json:"reducer"`
	PValueThreshold        float64  `json:"p_value_threshold"`
	LogFoldChangeThreshold float64  `json:"log_fold_change_threshold"`

	Data struct {
		Genes   []string             `json:"genes"`
		Columns []string             `json:"columns"`
		Values  map[string][]float64 `json:"values"`
	} `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiRootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"endpoints": []string{
				"GET /api/list_scalers",
				"GET /api/list_imputers",
				"GET /api/list_normalisers",
				"GET /api/list_reducers",
				"POST /api/analyze",
				"GET /api/jobs",
				"GET /api/job/{id}",
			},
		})
	}
}

// listHandler serves one of the transform registries as a JSON array.
func listHandler(names func() []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, names())
	}
}

// buildAnalysis turns an API request into a configured Analysis.
func buildAnalysis(req analyzeRequest) (*analysis.Analysis, error) {
	geneCol := req.GeneColumn
	if geneCol == "" {
		geneCol = "Gene"
	}
	ds, err := dataset.New(geneCol, req.Data.Genes, req.Data.Columns, req.Data.Values)
	if err != nil {
		return nil, err
	}
	if len(req.Groups) < 2 {
		return nil, fmt.Errorf("need at least two groups")
	}
	a := analysis.New(ds, req.Groups)
	if req.GeneSets != nil {
		a.GeneSets = req.GeneSets
	}
	if req.Organism != "" {
		a.Organism = req.Organism
	}
	if req.PValueThreshold > 0 {
		a.PValueThreshold = req.PValueThreshold
	}
	if req.LogFoldChangeThreshold > 0 {
		a.LogFoldChangeThreshold = req.LogFoldChangeThreshold
	}
	if req.Scaler != "" {
		if a.Scaler, err = transform.NewScaler(req.Scaler); err != nil {
			return nil, err
		}
	}
	if req.Imputer != "" {
		if a.Imputer, err = transform.NewImputer(req.Imputer); err != nil {
			return nil, err
		}
	}
	if req.Normaliser != "" {
		if a.Normaliser, err = transform.NewNormaliser(req.Normaliser); err != nil {
			return nil, err
		}
	}
	if req.Reducer != "" {
		if a.Reducer, err = transform.NewReducer(req.Reducer); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// runJob executes a queued analysis in the background and records the
// outcome on the job.
func runJob(id string, a *analysis.Analysis, name, workDir string, logger *log.Logger) {
	updateJob(id, func(j *AnalysisJob) { j.State = "running" })

	a.PlotDir = filepath.Join(workDir, id, "img")
	a.OutputDir = filepath.Join(workDir, id, "out")
	if err := a.Run(context.Background()); err != nil {
		logger.Printf("job %s failed: %v", id, err)
		updateJob(id, func(j *AnalysisJob) { j.State = "failed"; j.Message = err.Error() })
		return
	}

	rep := &report.Reporter{Analysis: a, Name: name}
	if err := rep.Generate(); err != nil {
		logger.Printf("job %s report failed: %v", id, err)
		updateJob(id, func(j *AnalysisJob) { j.State = "failed"; j.Message = err.Error() })
		return
	}
	relReport, _ := filepath.Rel(workDir, filepath.Join(a.OutputDir, "report.html"))
	updateJob(id, func(j *AnalysisJob) {
		j.State = "done"
		j.ReportPath = filepath.ToSlash(relReport)
	})
	logger.Printf("job %s finished: %d comparisons", id, len(a.Comparisons))
}

func analyzeHandler(workDir string, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		a, err := buildAnalysis(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		now := time.Now().UTC()
		job := &AnalysisJob{
			ID:        fmt.Sprintf("job-%d", now.UnixNano()),
			Name:      req.Name,
			State:     "queued",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := registerJob(job); err != nil {
			http.Error(w, "failed to persist job: "+err.Error(), http.StatusInternalServerError)
			return
		}
		go runJob(job.ID, a, req.Name, workDir, logger)

		writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "state": job.State})
	}
}

func jobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listJobs())
	}
}

func jobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 4 || parts[3] == "" {
			http.Error(w, "missing job id", http.StatusBadRequest)
			return
		}
		job, ok := getJob(parts[3])
		if !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func indexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := struct{ Jobs []AnalysisJob }{Jobs: listJobs()}
		if err := templates.ExecuteTemplate(w, "base.html", page); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func jobPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "missing job id", http.StatusBadRequest)
			return
		}
		job, ok := getJob(parts[2])
		if !ok {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if err := templates.ExecuteTemplate(w, "job.html", job); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	templatesDir := flag.String("templates", "web/templates", "directory with HTML templates (optional)")
	workDir := flag.String("work", "jobs", "directory for per-job figures, tables and reports")
	jobsPathFlag := flag.String("jobs", "jobs.json", "path to the job store (json file or sqlite database)")
	jobsStoreFlag := flag.String("jobs-store", "json", "job store backend: json or sqlite")
	logFile := flag.String("log", "", "path to write access logs (optional). If empty, logs go to stdout only")
	flag.Parse()

	if err := loadTemplates(*templatesDir); err != nil {
		log.Fatalf("failed to load templates: %v", err)
	}

	jobsStore = *jobsStoreFlag
	jobsPath = *jobsPathFlag
	if err := initJobsStore(); err != nil {
		log.Fatalf("failed to open job store: %v", err)
	}
	if jobsDB != nil {
		defer jobsDB.Close()
	}
	if err := os.MkdirAll(*workDir, 0o755); err != nil {
		log.Fatalf("failed to create work dir: %v", err)
	}

	// configure logger
	var out io.Writer = os.Stdout
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		out = io.MultiWriter(os.Stdout, f)
	}
	logger := log.New(out, "autobio: ", log.LstdFlags)

	mux := http.NewServeMux()
	mux.HandleFunc("/", indexHandler())
	mux.HandleFunc("/job/", jobPageHandler())
	mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(*workDir))))
	mux.HandleFunc("/api", apiRootHandler())
	mux.HandleFunc("/api/list_scalers", listHandler(transform.ScalerNames))
	mux.HandleFunc("/api/list_imputers", listHandler(transform.ImputerNames))
	mux.HandleFunc("/api/list_normalisers", listHandler(transform.NormaliserNames))
	mux.HandleFunc("/api/list_reducers", listHandler(transform.ReducerNames))
	mux.HandleFunc("/api/analyze", analyzeHandler(*workDir, logger))
	mux.HandleFunc("/api/jobs", jobsHandler())
	mux.HandleFunc("/api/job/", jobHandler())

	handler := loggingMiddleware(logger, mux)

	srv := &http.Server{Addr: *addr, Handler: handler, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}
	fmt.Printf("serving analysis API at http://%s/ (jobs=%s store=%s)\n", *addr, jobsPath, jobsStore)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
