package cmd

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mailstore-extract/store"
)

// NewLoadCommand returns the load subcommand, which loads an output
// directory into a SQLite database.
func NewLoadCommand() *cobra.Command {
	var (
		outputDir string
		dbPath    string
		batchID   string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load extracted CSV artifacts into a SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := db.LoadDir(cmd.Context(), outputDir, batchID)
			if err != nil {
				return fmt.Errorf("load %s: %w", outputDir, err)
			}

			slog.Info("batch loaded", "batch", res.BatchID, "db", dbPath, "emails", res.Emails, "attachments", res.Attachments)
			pterm.Success.Printf("Loaded batch %s\n", res.BatchID)
			pterm.Info.Printf("Emails: %d (with attachments: %d)\n", res.Emails, res.EmailsWithAttachments)
			pterm.Info.Printf("Attachments: %d\n", res.Attachments)
			return nil
		},
	}

	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory of an extraction run")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite database")
	cmd.Flags().StringVar(&batchID, "batch-id", "", "Batch to load (default: batch of the manifest)")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
