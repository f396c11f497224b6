package main

import (
	"path/filepath"
	"testing"
	"time"
)

func resetJobs(t *testing.T, store string) {
	t.Helper()
	jobsMu.Lock()
	jobsByID = map[string]*AnalysisJob{}
	jobsMu.Unlock()
	jobsStore = store
	if store == "sqlite" {
		jobsPath = filepath.Join(t.TempDir(), "jobs.db")
	} else {
		jobsPath = filepath.Join(t.TempDir(), "jobs.json")
	}
	if err := initJobsStore(); err != nil {
		t.Fatalf("initJobsStore failed: %v", err)
	}
	t.Cleanup(func() {
		if jobsDB != nil {
			jobsDB.Close()
			jobsDB = nil
		}
	})
}

func TestJSONSaveLoadJobs(t *testing.T) {
	resetJobs(t, "json")
	now := time.Now().UTC()
	jobs := []AnalysisJob{{ID: "j1", Name: "run 1", State: "queued", CreatedAt: now, UpdatedAt: now}}
	if err := saveJobs(jobsPath, jobs); err != nil {
		t.Fatalf("saveJobs failed: %v", err)
	}
	got, err := loadJobs(jobsPath)
	if err != nil {
		t.Fatalf("loadJobs failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "j1" {
		t.Fatalf("unexpected jobs loaded: %#v", got)
	}
}

func TestJSONLoadJobsMissingFile(t *testing.T) {
	resetJobs(t, "json")
	got, err := loadJobs(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no jobs, got %#v", got)
	}
}

func TestRegisterAndUpdateJob(t *testing.T) {
	resetJobs(t, "json")
	now := time.Now().UTC()
	if err := registerJob(&AnalysisJob{ID: "j2", State: "queued", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("registerJob failed: %v", err)
	}
	updateJob("j2", func(j *AnalysisJob) { j.State = "done"; j.ReportPath = "j2/out/report.html" })

	got, ok := getJob("j2")
	if !ok {
		t.Fatal("job not found after register")
	}
	if got.State != "done" || got.ReportPath != "j2/out/report.html" {
		t.Fatalf("unexpected job after update: %#v", got)
	}
	// persisted too
	loaded, err := loadJobs(jobsPath)
	if err != nil {
		t.Fatalf("loadJobs failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].State != "done" {
		t.Fatalf("unexpected persisted jobs: %#v", loaded)
	}
}
