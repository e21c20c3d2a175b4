// Package cmd holds the auxiliary subcommands.
package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mailstore-extract/attachment"
	"github.com/dhcgn/mailstore-extract/filter"
	"github.com/dhcgn/mailstore-extract/mimetree"
	"github.com/dhcgn/mailstore-extract/model"
	"github.com/dhcgn/mailstore-extract/segment"
	"github.com/dhcgn/mailstore-extract/source"
	"github.com/dhcgn/mailstore-extract/stats"
)

var headersToTrack = []string{"Delivered-To", "Subject", "From", "To"}

// Inspection holds the counters of one inspect pass.
type Inspection struct {
	Files       int
	MailFiles   int
	MboxFiles   int
	Skipped     int
	Unreadable  int
	Messages    int
	Filtered    int
	Dropped     int
	Attachments int
	Headers     map[string]map[string]int
}

func newInspection() *Inspection {
	in := &Inspection{Headers: make(map[string]map[string]int)}
	for _, h := range headersToTrack {
		in.Headers[h] = make(map[string]int)
	}
	return in
}

// Inspect segments and parses every file below root without writing output.
// progress, if set, is called after every parsed message.
func Inspect(root string, f *filter.Filter, progress func(*Inspection)) (*Inspection, error) {
	files, err := source.Scan(root, f)
	if err != nil {
		return nil, err
	}

	in := newInspection()
	for _, rel := range files {
		in.Files++
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			in.Unreadable++
			continue
		}

		msgs := segment.Segment(model.RawBlob{RelPath: rel, Data: data})
		switch {
		case len(msgs) == 0:
			in.Skipped++
			continue
		case segment.LooksLikeMbox(data):
			in.MboxFiles++
		default:
			in.MailFiles++
		}

		for _, msg := range msgs {
			if f != nil && !f.AllowsMessage(msg.Data) {
				in.Filtered++
				continue
			}
			tree, err := mimetree.Parse(msg.Data)
			if err != nil {
				in.Dropped++
				continue
			}

			in.Messages++
			for _, name := range headersToTrack {
				if value, ok := tree.Header.First(name); ok && value != "" {
					in.Headers[name][value]++
				}
			}
			in.Attachments += len(attachment.Extract(tree).Parts)

			if progress != nil {
				progress(in)
			}
		}
	}
	return in, nil
}

// NewInspectCommand returns the inspect subcommand.
func NewInspectCommand() *cobra.Command {
	var (
		reportDir string
		topN      int
		opts      filter.Options
	)

	cmd := &cobra.Command{
		Use:   "inspect [input dir]",
		Short: "Analyse an extracted mail store and show statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			fmt.Println("Analyzing mail store:", root)

			f, err := filter.New(opts)
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			printStats := func(in *Inspection) {
				// ANSI escape code to clear screen and move cursor to top-left
				fmt.Print("\033[H\033[2J")
				printInspection(in, f, topN)
			}

			in, err := Inspect(root, f, func(in *Inspection) {
				if in.Messages%250 == 0 {
					printStats(in)
				}
			})
			if err != nil {
				return fmt.Errorf("inspect %s: %w", root, err)
			}
			printStats(in)

			if err := saveCSVReports(in.Headers, headersToTrack, reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			fmt.Printf("\nReports saved to directory: %s\n", reportDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	cmd.Flags().StringArrayVar(&opts.IncludeHeader, "include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	cmd.Flags().StringArrayVar(&opts.IncludeBody, "include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	cmd.Flags().StringArrayVar(&opts.ExcludeHeader, "exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	cmd.Flags().StringArrayVar(&opts.ExcludeBody, "exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	cmd.Flags().StringArrayVar(&opts.IncludePath, "include-path", nil, "Regex allow-list applied to relative file paths")
	cmd.Flags().StringArrayVar(&opts.ExcludePath, "exclude-path", nil, "Regex block-list applied to relative file paths")
	return cmd
}

func printInspection(in *Inspection, f *filter.Filter, topN int) {
	fmt.Printf("Scanned %d files (%d single messages, %d mbox, %d not mail, %d unreadable)\n",
		in.Files, in.MailFiles, in.MboxFiles, in.Skipped, in.Unreadable)

	total := in.Messages + in.Filtered
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(in.Filtered) / float64(total) * 100
	}
	fmt.Printf("Parsed %d messages (skipped %d by filters, %.2f%%, %d unparseable), %d attachments\n\n",
		in.Messages, in.Filtered, filterPercent, in.Dropped, in.Attachments)

	if f != nil {
		st := f.Stats()
		groups := []struct {
			title string
			stats filter.PatternStats
		}{
			{"Include Header Filters", st.IncludeHeader},
			{"Include Body Filters", st.IncludeBody},
			{"Exclude Header Filters", st.ExcludeHeader},
			{"Exclude Body Filters", st.ExcludeBody},
			{"Include Path Filters", st.IncludePath},
			{"Exclude Path Filters", st.ExcludePath},
		}
		printed := false
		for _, g := range groups {
			if len(g.stats.Patterns) == 0 {
				continue
			}
			printed = true
			fmt.Println(g.title + ":")
			printFilterHits(g.stats.Patterns, g.stats.Hits)
			fmt.Println()
		}
		if printed {
			fmt.Println("---")
			fmt.Println()
		}
	}

	for _, header := range headersToTrack {
		fmt.Printf("Top %d %s:\n", topN, header)
		stats.PrettyPrintTop(in.Headers[header], topN)
		fmt.Println()
	}
}

func saveCSVReports(counter map[string]map[string]int, headers []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, header := range headers {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeHeaderName(header)))
		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)
		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}
		for _, p := range stats.Top(counter[header], limit) {
			if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()
		if err := writer.Error(); err != nil {
			return err
		}
	}
	return nil
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func printFilterHits(patterns []string, hits map[string]int) {
	type pair struct {
		Pattern string
		Count   int
	}
	pairs := make([]pair, 0, len(patterns))
	for _, pattern := range patterns {
		pairs = append(pairs, pair{pattern, hits[pattern]})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Pattern < pairs[j].Pattern
	})

	for _, p := range pairs {
		if p.Count > 0 {
			fmt.Printf("  ✓ %s: %d hits\n", p.Pattern, p.Count)
		} else {
			fmt.Printf("  ✗ %s: 0 hits\n", p.Pattern)
		}
	}
}
