package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Config captures all command-line options required to run an extraction.
type Config struct {
	InputDir     string
	OutputDir    string
	BatchID      string
	ProjectID    string
	CaseID       string
	OutputBucket string
	OutputPrefix string
	Workers      int
	Rejects      bool
	NoProgress   bool
	LogLevel     string
	LogDir       string

	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
	IncludePath   []string
	ExcludePath   []string

	BannerMaxAlnum    int
	BannerResidual    int
	DerivedTextMinLen int

	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	IMAPFolder         string
}

// UsesIMAP reports whether messages are fetched from an IMAP folder instead
// of a local directory.
func (c Config) UsesIMAP() bool {
	return c.IMAPHost != ""
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("config", "", "Optional YAML file with defaults for batch, output and heuristic settings")
	flags.String("input", "", "Directory of extracted mail-store files")
	flags.String("output", "", "Directory receiving the NDJSON/CSV artifacts, attachment blobs and manifest")
	flags.String("batch-id", "", "Identifier of the extraction batch (falls back to BATCH_ID env var)")
	flags.String("project-id", "", "Optional project identifier (falls back to PROJECT_ID env var)")
	flags.String("case-id", "", "Optional case identifier (falls back to CASE_ID env var)")
	flags.String("output-bucket", "", "Bucket name recorded on attachment records")
	flags.String("output-prefix", "", "Key prefix for attachment storage keys and artifacts")
	flags.Int("workers", 1, "Number of files processed concurrently")
	flags.Bool("rejects", true, "Write messages that fail to parse to rejects.mbox")
	flags.Bool("no-progress", false, "Disable the progress bar")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stdout only when empty)")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	flags.StringArray("include-path", nil, "Regex allow-list applied to input file paths")
	flags.StringArray("exclude-path", nil, "Regex block-list applied to input file paths")
	flags.Int("banner-max-alnum", 220, "Alphanumeric length below which plain text mentioning 'external' may be a banner")
	flags.Int("banner-residual", 40, "Alphanumeric length plain text may keep after banner removal and still count as banner")
	flags.Int("derived-text-min", 20, "Minimum alphanumeric length of plain text derived from HTML")
	flags.String("imap-host", "", "Read messages from this IMAP server instead of --input")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("imap-folder", "INBOX", "IMAP folder to extract")

	return cmd.MarkFlagRequired("output")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
// Values from --config fill in flags the user did not set explicitly.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	var (
		cfg Config
		err error
	)

	getString := func(name string, dst *string) {
		if err == nil {
			*dst, err = flags.GetString(name)
		}
	}
	getInt := func(name string, dst *int) {
		if err == nil {
			*dst, err = flags.GetInt(name)
		}
	}
	getBool := func(name string, dst *bool) {
		if err == nil {
			*dst, err = flags.GetBool(name)
		}
	}
	getArray := func(name string, dst *[]string) {
		if err == nil {
			*dst, err = flags.GetStringArray(name)
		}
	}

	var configPath string
	getString("config", &configPath)
	getString("input", &cfg.InputDir)
	getString("output", &cfg.OutputDir)
	getString("batch-id", &cfg.BatchID)
	getString("project-id", &cfg.ProjectID)
	getString("case-id", &cfg.CaseID)
	getString("output-bucket", &cfg.OutputBucket)
	getString("output-prefix", &cfg.OutputPrefix)
	getInt("workers", &cfg.Workers)
	getBool("rejects", &cfg.Rejects)
	getBool("no-progress", &cfg.NoProgress)
	getString("log-level", &cfg.LogLevel)
	getString("log-dir", &cfg.LogDir)
	getArray("include-header", &cfg.IncludeHeader)
	getArray("include-body", &cfg.IncludeBody)
	getArray("exclude-header", &cfg.ExcludeHeader)
	getArray("exclude-body", &cfg.ExcludeBody)
	getArray("include-path", &cfg.IncludePath)
	getArray("exclude-path", &cfg.ExcludePath)
	getInt("banner-max-alnum", &cfg.BannerMaxAlnum)
	getInt("banner-residual", &cfg.BannerResidual)
	getInt("derived-text-min", &cfg.DerivedTextMinLen)
	getString("imap-host", &cfg.IMAPHost)
	getInt("imap-port", &cfg.IMAPPort)
	getString("imap-user", &cfg.IMAPUser)
	getString("imap-pass", &cfg.IMAPPass)
	getBool("use-tls", &cfg.UseTLS)
	getBool("insecure-skip-verify", &cfg.InsecureSkipVerify)
	getString("imap-folder", &cfg.IMAPFolder)
	if err != nil {
		return Config{}, err
	}

	if configPath != "" {
		file, err := LoadFile(configPath)
		if err != nil {
			return Config{}, err
		}
		file.apply(&cfg, flags.Changed)
	}

	applyEnv(&cfg)
	cfg = normalize(cfg)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.BatchID == "" {
		cfg.BatchID = os.Getenv("BATCH_ID")
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = os.Getenv("PROJECT_ID")
	}
	if cfg.CaseID == "" {
		cfg.CaseID = os.Getenv("CASE_ID")
	}
	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}
}

func normalize(cfg Config) Config {
	cfg.BatchID = strings.TrimSpace(cfg.BatchID)
	cfg.ProjectID = strings.TrimSpace(cfg.ProjectID)
	cfg.CaseID = strings.TrimSpace(cfg.CaseID)

	if cfg.InputDir != "" {
		cfg.InputDir = filepath.Clean(cfg.InputDir)
	}
	if cfg.OutputDir != "" {
		cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	}
	if cfg.OutputPrefix != "" && !strings.HasSuffix(cfg.OutputPrefix, "/") {
		cfg.OutputPrefix += "/"
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.InputDir == "" && !cfg.UsesIMAP() {
		return fmt.Errorf("one of --input or --imap-host is required")
	}
	if cfg.InputDir != "" && cfg.UsesIMAP() {
		return fmt.Errorf("--input and --imap-host are mutually exclusive")
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("--output is required")
	}
	if cfg.BatchID == "" {
		return fmt.Errorf("batch id must be provided via --batch-id or BATCH_ID env var")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	if cfg.BannerMaxAlnum < 1 || cfg.BannerResidual < 1 || cfg.DerivedTextMinLen < 1 {
		return fmt.Errorf("banner thresholds must be positive")
	}
	if cfg.UsesIMAP() {
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required with --imap-host")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
