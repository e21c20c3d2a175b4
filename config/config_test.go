package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func parse(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	t.Setenv("BATCH_ID", "")
	t.Setenv("PROJECT_ID", "")
	t.Setenv("CASE_ID", "")
	t.Setenv("IMAP_PASS", "")

	cmd := &cobra.Command{Use: "test"}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return LoadConfig(cmd)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := parse(t, "--input", "in/", "--output", "out", "--batch-id", " b1 ", "--output-prefix", "runs/b1", "--log-level", "WARNING")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.InputDir != "in" || cfg.OutputDir != "out" {
		t.Errorf("dirs = %q, %q", cfg.InputDir, cfg.OutputDir)
	}
	if cfg.BatchID != "b1" {
		t.Errorf("BatchID = %q", cfg.BatchID)
	}
	if cfg.OutputPrefix != "runs/b1/" {
		t.Errorf("OutputPrefix = %q", cfg.OutputPrefix)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Workers != 1 || !cfg.Rejects || cfg.BannerMaxAlnum != 220 || cfg.BannerResidual != 40 || cfg.DerivedTextMinLen != 20 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", []string{"--output", "o", "--batch-id", "b"}, "--input or --imap-host"},
		{"both sources", []string{"--input", "i", "--imap-host", "h", "--output", "o", "--batch-id", "b"}, "mutually exclusive"},
		{"no batch", []string{"--input", "i", "--output", "o"}, "batch id"},
		{"workers", []string{"--input", "i", "--output", "o", "--batch-id", "b", "--workers", "0"}, "--workers"},
		{"imap user", []string{"--imap-host", "h", "--output", "o", "--batch-id", "b"}, "--imap-user"},
		{"filters", []string{"--input", "i", "--output", "o", "--batch-id", "b", "--include-body", "x", "--exclude-header", "y"}, "mutually exclusive"},
		{"log level", []string{"--input", "i", "--output", "o", "--batch-id", "b", "--log-level", "loud"}, "--log-level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extract.yaml")
	content := `batch_id: from-file
project_id: p7
workers: 4
banner:
  max_alnum: 300
filters:
  exclude_path:
    - '\.tmp$'
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := parse(t, "--config", path, "--input", "i", "--output", "o", "--workers", "2")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.BatchID != "from-file" || cfg.ProjectID != "p7" {
		t.Errorf("identifiers = %q, %q", cfg.BatchID, cfg.ProjectID)
	}
	if cfg.Workers != 2 {
		t.Errorf("explicit flag should win, Workers = %d", cfg.Workers)
	}
	if cfg.BannerMaxAlnum != 300 || cfg.BannerResidual != 40 {
		t.Errorf("banner = %d/%d", cfg.BannerMaxAlnum, cfg.BannerResidual)
	}
	if len(cfg.ExcludePath) != 1 || cfg.ExcludePath[0] != `\.tmp$` {
		t.Errorf("ExcludePath = %v", cfg.ExcludePath)
	}
}

func TestLoadConfig_UnknownFileKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("batchid: typo\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := parse(t, "--config", path, "--input", "i", "--output", "o", "--batch-id", "b"); err == nil {
		t.Fatal("expected strict decoding error")
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("BATCH_ID", "env-batch")
	cmd := &cobra.Command{Use: "test"}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Parse([]string{"--input", "i", "--output", "o"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.BatchID != "env-batch" {
		t.Errorf("BatchID = %q", cfg.BatchID)
	}
}
