package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// File is the YAML form of the settings that are tedious to repeat on the
// command line.
type File struct {
	BatchID      string `yaml:"batch_id"`
	ProjectID    string `yaml:"project_id"`
	CaseID       string `yaml:"case_id"`
	OutputBucket string `yaml:"output_bucket"`
	OutputPrefix string `yaml:"output_prefix"`
	Workers      int    `yaml:"workers"`
	LogLevel     string `yaml:"log_level"`
	Banner       struct {
		MaxAlnum       int `yaml:"max_alnum"`
		Residual       int `yaml:"residual"`
		DerivedMinimum int `yaml:"derived_min"`
	} `yaml:"banner"`
	Filters struct {
		IncludeHeader []string `yaml:"include_header"`
		IncludeBody   []string `yaml:"include_body"`
		ExcludeHeader []string `yaml:"exclude_header"`
		ExcludeBody   []string `yaml:"exclude_body"`
		IncludePath   []string `yaml:"include_path"`
		ExcludePath   []string `yaml:"exclude_path"`
	} `yaml:"filters"`
	IMAP struct {
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
		User   string `yaml:"user"`
		Folder string `yaml:"folder"`
	} `yaml:"imap"`
}

// LoadFile reads and decodes a YAML config file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &f, nil
}

// apply copies file values into cfg for every flag that was not set on the
// command line.
func (f *File) apply(cfg *Config, changed func(string) bool) {
	setString := func(flag string, dst *string, v string) {
		if v != "" && !changed(flag) {
			*dst = v
		}
	}
	setInt := func(flag string, dst *int, v int) {
		if v != 0 && !changed(flag) {
			*dst = v
		}
	}
	setArray := func(flag string, dst *[]string, v []string) {
		if len(v) > 0 && !changed(flag) {
			*dst = v
		}
	}

	setString("batch-id", &cfg.BatchID, f.BatchID)
	setString("project-id", &cfg.ProjectID, f.ProjectID)
	setString("case-id", &cfg.CaseID, f.CaseID)
	setString("output-bucket", &cfg.OutputBucket, f.OutputBucket)
	setString("output-prefix", &cfg.OutputPrefix, f.OutputPrefix)
	setInt("workers", &cfg.Workers, f.Workers)
	setString("log-level", &cfg.LogLevel, f.LogLevel)
	setInt("banner-max-alnum", &cfg.BannerMaxAlnum, f.Banner.MaxAlnum)
	setInt("banner-residual", &cfg.BannerResidual, f.Banner.Residual)
	setInt("derived-text-min", &cfg.DerivedTextMinLen, f.Banner.DerivedMinimum)
	setArray("include-header", &cfg.IncludeHeader, f.Filters.IncludeHeader)
	setArray("include-body", &cfg.IncludeBody, f.Filters.IncludeBody)
	setArray("exclude-header", &cfg.ExcludeHeader, f.Filters.ExcludeHeader)
	setArray("exclude-body", &cfg.ExcludeBody, f.Filters.ExcludeBody)
	setArray("include-path", &cfg.IncludePath, f.Filters.IncludePath)
	setArray("exclude-path", &cfg.ExcludePath, f.Filters.ExcludePath)
	setString("imap-host", &cfg.IMAPHost, f.IMAP.Host)
	setInt("imap-port", &cfg.IMAPPort, f.IMAP.Port)
	setString("imap-user", &cfg.IMAPUser, f.IMAP.User)
	setString("imap-folder", &cfg.IMAPFolder, f.IMAP.Folder)
}
