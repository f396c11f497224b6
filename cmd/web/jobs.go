package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// AnalysisJob tracks one background pipeline run submitted through the API.
type AnalysisJob struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	State      string    `json:"state"` // queued, running, done, failed
	Message    string    `json:"message,omitempty"`
	ReportPath string    `json:"report_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Job persistence. jobsStore selects the backend: "json" writes the whole
// list to jobsPath, "sqlite" upserts rows into jobsDB.
var (
	jobsMu    sync.Mutex
	jobsByID  = map[string]*AnalysisJob{}
	jobsStore = "json"
	jobsPath  = "jobs.json"
	jobsDB    *sql.DB
)

const jobsSchema = `CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    name TEXT,
    state TEXT,
    message TEXT,
    report_path TEXT,
    created_at TEXT,
    updated_at TEXT
)`

// initJobsStore opens the configured backend and loads any persisted jobs
// into the in-memory registry.
func initJobsStore() error {
	if jobsStore == "sqlite" {
		db, err := sql.Open("sqlite", jobsPath)
		if err != nil {
			return err
		}
		if _, err := db.Exec(jobsSchema); err != nil {
			db.Close()
			return err
		}
		jobsDB = db
	}
	jobs, err := loadJobs(jobsPath)
	if err != nil {
		return err
	}
	jobsMu.Lock()
	defer jobsMu.Unlock()
	for i := range jobs {
		j := jobs[i]
		jobsByID[j.ID] = &j
	}
	return nil
}

// saveJobs persists the full job list to the configured store.
func saveJobs(path string, jobs []AnalysisJob) error {
	if jobsStore == "sqlite" {
		if jobsDB == nil {
			return fmt.Errorf("sqlite store not initialised")
		}
		tx, err := jobsDB.Begin()
		if err != nil {
			return err
		}
		for _, j := range jobs {
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO jobs (id, name, state, message, report_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				j.ID, j.Name, j.State, j.Message, j.ReportPath,
				j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339),
			); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// loadJobs reads all jobs back from the configured store. A missing JSON
// file is not an error: the server starts with an empty registry.
func loadJobs(path string) ([]AnalysisJob, error) {
	if jobsStore == "sqlite" {
		if jobsDB == nil {
			return nil, fmt.Errorf("sqlite store not initialised")
		}
		rows, err := jobsDB.Query(`SELECT id, name, state, message, report_path, created_at, updated_at FROM jobs`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var jobs []AnalysisJob
		for rows.Next() {
			var j AnalysisJob
			var created, updated string
			if err := rows.Scan(&j.ID, &j.Name, &j.State, &j.Message, &j.ReportPath, &created, &updated); err != nil {
				return nil, err
			}
			j.CreatedAt, _ = time.Parse(time.RFC3339, created)
			j.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
			jobs = append(jobs, j)
		}
		return jobs, rows.Err()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var jobs []AnalysisJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// registerJob adds a job to the registry and persists the registry.
func registerJob(j *AnalysisJob) error {
	jobsMu.Lock()
	jobsByID[j.ID] = j
	snapshot := snapshotJobsLocked()
	jobsMu.Unlock()
	return saveJobs(jobsPath, snapshot)
}

// updateJob mutates a job under the registry lock and persists the result.
func updateJob(id string, fn func(*AnalysisJob)) {
	jobsMu.Lock()
	if j, ok := jobsByID[id]; ok {
		fn(j)
		j.UpdatedAt = time.Now().UTC()
	}
	snapshot := snapshotJobsLocked()
	jobsMu.Unlock()
	_ = saveJobs(jobsPath, snapshot)
}

func getJob(id string) (AnalysisJob, bool) {
	jobsMu.Lock()
	defer jobsMu.Unlock()
	j, ok := jobsByID[id]
	if !ok {
		return AnalysisJob{}, false
	}
	return *j, true
}

func listJobs() []AnalysisJob {
	jobsMu.Lock()
	defer jobsMu.Unlock()
	return snapshotJobsLocked()
}

// snapshotJobsLocked copies the registry, newest first. Callers must hold
// jobsMu.
func snapshotJobsLocked() []AnalysisJob {
	jobs := make([]AnalysisJob, 0, len(jobsByID))
	for _, j := range jobsByID {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs
}
