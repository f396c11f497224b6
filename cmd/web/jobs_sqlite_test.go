package main

import (
	"testing"
	"time"
)

func TestSaveLoadJobs_SQLite(t *testing.T) {
	resetJobs(t, "sqlite")

	now := time.Now().UTC().Truncate(time.Second)
	jobs := []AnalysisJob{{ID: "j1", Name: "run 1", State: "queued", CreatedAt: now, UpdatedAt: now}}
	if err := saveJobs(jobsPath, jobs); err != nil {
		t.Fatalf("saveJobs failed: %v", err)
	}
	loaded, err := loadJobs(jobsPath)
	if err != nil {
		t.Fatalf("loadJobs failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "j1" {
		t.Fatalf("unexpected loaded jobs: %#v", loaded)
	}
	if !loaded[0].CreatedAt.Equal(now) {
		t.Fatalf("created_at round trip: got %v, want %v", loaded[0].CreatedAt, now)
	}
}

func TestSQLiteUpsert(t *testing.T) {
	resetJobs(t, "sqlite")

	now := time.Now().UTC().Truncate(time.Second)
	job := AnalysisJob{ID: "j1", State: "queued", CreatedAt: now, UpdatedAt: now}
	if err := saveJobs(jobsPath, []AnalysisJob{job}); err != nil {
		t.Fatalf("saveJobs failed: %v", err)
	}
	job.State = "done"
	if err := saveJobs(jobsPath, []AnalysisJob{job}); err != nil {
		t.Fatalf("second saveJobs failed: %v", err)
	}
	loaded, err := loadJobs(jobsPath)
	if err != nil {
		t.Fatalf("loadJobs failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].State != "done" {
		t.Fatalf("expected single upserted row, got %#v", loaded)
	}
}
