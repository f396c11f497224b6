package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	InputPath              string   `json:"input_path"`
	Sheet                  string   `json:"sheet"`
	GeneColumn             string   `json:"gene_column"`
	Groups                 []string `json:"groups"`
	PValueThreshold        float64  `json:"p_value_threshold"`
	LogFoldChangeThreshold float64  `json:"log_fold_change_threshold"`
	GeneSets               []string `json:"gene_sets"`
	Organism               string   `json:"organism"`
	Scaler                 string   `json:"scaler"`
	Imputer                string   `json:"imputer"`
	Normaliser             string   `json:"normaliser"`
	Reducer                string   `json:"reducer"`
	PlotDir                string   `json:"plot_dir"`
	OutputDir              string   `json:"output_dir"`
	ReportName             string   `json:"report_name"`
	ReportPath             string   `json:"report_path"`
	LogFile                string   `json:"log_file"`
	LogLevel               string   `json:"log_level"`
	EnrichrBaseURL         string   `json:"enrichr_base_url"`
	EnrichrCachePath       string   `json:"enrichr_cache_path"`
	EnrichrCacheTTLSecs    int64    `json:"enrichr_cache_ttl_seconds"`
	DryRun                 bool     `json:"dry_run"`
}

// LoadConfig loads a JSON config from the given path. If path is empty, looks for ./config.json.
// A missing file is not an error: defaults are returned so flags can fill the gaps.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}
	f, err := os.Open(path)
	if err != nil {
		// not fatal: return defaults
		return &Config{}, nil
	}
	defer f.Close()
	var c Config
	dec := json.NewDecoder(f)
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
