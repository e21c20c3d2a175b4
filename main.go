package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mailstore-extract/assemble"
	"github.com/dhcgn/mailstore-extract/body"
	"github.com/dhcgn/mailstore-extract/cmd"
	"github.com/dhcgn/mailstore-extract/config"
	"github.com/dhcgn/mailstore-extract/extract"
	"github.com/dhcgn/mailstore-extract/filter"
	"github.com/dhcgn/mailstore-extract/imap"
	"github.com/dhcgn/mailstore-extract/output"
	"github.com/dhcgn/mailstore-extract/progress"
	"github.com/dhcgn/mailstore-extract/runner"
	"github.com/dhcgn/mailstore-extract/source"
	"github.com/dhcgn/mailstore-extract/stats"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "mailstore-extract",
		Short:   "Extract email and attachment records from an extracted mail store",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting mailstore-extract", "version", version, "input", inputName(cfg), "output", cfg.OutputDir, "batch", cfg.BatchID, "workers", cfg.Workers)

			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewLoadCommand(), cmd.NewInspectCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func inputName(cfg config.Config) string {
	if cfg.UsesIMAP() {
		return fmt.Sprintf("imap://%s/%s", cfg.IMAPHost, cfg.IMAPFolder)
	}
	return cfg.InputDir
}

func run(cfg config.Config, logger *slog.Logger) error {
	r := runner.New(cfg, logger)
	stats.NewReporter(r, logger)

	f, err := filter.New(filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
		IncludePath:   cfg.IncludePath,
		ExcludePath:   cfg.ExcludePath,
	})
	if err != nil {
		return fmt.Errorf("filter.New: %w", err)
	}

	var total int
	if cfg.UsesIMAP() {
		src, err := imap.NewSource(r.Context(), imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Folder:             cfg.IMAPFolder,
		}, r, logger)
		if err != nil {
			return fmt.Errorf("imap.NewSource: %w", err)
		}
		total = src.Total()
	} else {
		producer, err := source.NewProducer(source.Options{Root: cfg.InputDir, Filter: f}, r, logger)
		if err != nil {
			return fmt.Errorf("source.NewProducer: %w", err)
		}
		total = producer.Total()
	}

	bar := progress.New(total, cfg.NoProgress, cfg.LogLevel)
	progress.NewProgressReporter(r, bar, logger)

	assembler := assemble.New(assemble.Options{
		BatchID:   cfg.BatchID,
		ProjectID: cfg.ProjectID,
		CaseID:    cfg.CaseID,
		Body: body.Options{
			MaxBannerAlnum:   cfg.BannerMaxAlnum,
			MaxResidualAlnum: cfg.BannerResidual,
			MinDerivedAlnum:  cfg.DerivedTextMinLen,
		},
	})
	extract.New(assembler, f, logger).Attach(r, cfg.Workers)

	if _, err := output.NewSink(output.Options{
		Dir:     cfg.OutputDir,
		Bucket:  cfg.OutputBucket,
		Prefix:  cfg.OutputPrefix,
		BatchID: cfg.BatchID,
		Source:  inputName(cfg),
		Rejects: cfg.Rejects,
		Version: version,
	}, r, logger); err != nil {
		return fmt.Errorf("output.NewSink: %w", err)
	}

	return r.Start()
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mailstore-extract-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
