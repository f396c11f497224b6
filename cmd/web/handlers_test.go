package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stmball/auto-bioinformatics/internal/transform"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestListScalersHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/list_scalers", nil)
	rec := httptest.NewRecorder()
	listHandler(transform.ScalerNames)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	found := false
	for _, n := range names {
		if n == "log2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected log2 in scalers, got %v", names)
	}
}

func TestAnalyzeHandlerRejectsBadBody(t *testing.T) {
	resetJobs(t, "json")
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	analyzeHandler(t.TempDir(), testLogger())(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyzeHandlerRejectsGet(t *testing.T) {
	resetJobs(t, "json")
	req := httptest.NewRequest(http.MethodGet, "/api/analyze", nil)
	rec := httptest.NewRecorder()
	analyzeHandler(t.TempDir(), testLogger())(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

const analyzeBody = `{
  "name": "ctrl vs drug",
  "groups": ["Ctrl", "Drug"],
  "gene_sets": [],
  "imputer": "mean",
  "normaliser": "standard",
  "data": {
    "genes": ["TP53", "BRCA1", "MYC", "EGFR", "AKT1", "GAPDH"],
    "columns": ["Ctrl_1", "Ctrl_2", "Ctrl_3", "Drug_1", "Drug_2", "Drug_3"],
    "values": {
      "Ctrl_1": [100, 50, 200, 30, 400, 1000],
      "Ctrl_2": [110, 55, 210, 28, 390, 980],
      "Ctrl_3": [90, 45, 195, 32, 410, 1020],
      "Drug_1": [400, 52, 820, 29, 95, 1010],
      "Drug_2": [420, 48, 790, 31, 105, 990],
      "Drug_3": [380, 50, 805, 30, 100, 1005]
    }
  }
}`

func TestAnalyzeHandlerRunsJob(t *testing.T) {
	resetJobs(t, "json")
	work := t.TempDir()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(analyzeBody))
	rec := httptest.NewRecorder()
	analyzeHandler(work, testLogger())(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	id := resp["id"]
	if id == "" || resp["state"] != "queued" {
		t.Fatalf("unexpected response: %v", resp)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		job, ok := getJob(id)
		if !ok {
			t.Fatal("job vanished from registry")
		}
		if job.State == "done" {
			if job.ReportPath == "" {
				t.Fatal("finished job has no report path")
			}
			if filepath.Base(job.ReportPath) != "report.html" {
				t.Fatalf("unexpected report path %q", job.ReportPath)
			}
			break
		}
		if job.State == "failed" {
			t.Fatalf("job failed: %s", job.Message)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, state %q", job.State)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestBuildAnalysisValidation(t *testing.T) {
	var req analyzeRequest
	if _, err := buildAnalysis(req); err == nil {
		t.Fatal("expected error for empty request")
	}

	if err := json.Unmarshal([]byte(analyzeBody), &req); err != nil {
		t.Fatalf("fixture unmarshal failed: %v", err)
	}
	req.Scaler = "no-such-scaler"
	if _, err := buildAnalysis(req); err == nil {
		t.Fatal("expected error for unknown scaler")
	}
}

func TestJobHandlerNotFound(t *testing.T) {
	resetJobs(t, "json")
	req := httptest.NewRequest(http.MethodGet, "/api/job/nope", nil)
	rec := httptest.NewRecorder()
	jobHandler()(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestIndexHandlerRendersJobs(t *testing.T) {
	resetJobs(t, "json")
	if err := loadTemplates(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Fatalf("loadTemplates failed: %v", err)
	}
	now := time.Now().UTC()
	if err := registerJob(&AnalysisJob{ID: "j9", Name: "demo", State: "done", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("registerJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	indexHandler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "j9") {
		t.Fatal("index page missing job id")
	}
}
