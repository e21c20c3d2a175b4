package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mailstore-extract/stats"
)

// Bar tracks scanned files against the input total.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	scanned int
	mu      sync.Mutex
	enabled bool
	stopped bool
}

// New creates a progress bar. It stays disabled when the total is unknown,
// when disabled explicitly or when logging is more verbose than info.
func New(total int, disabled bool, logLevel string) *Bar {
	bar := &Bar{
		total:   total,
		enabled: !disabled && total > 0 && (logLevel == "info" || logLevel == "warn" || logLevel == "error"),
	}

	if bar.enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Extracting").
			Start()
		bar.pb = pb
		pterm.Info.Printf("Files to scan: %d\n", total)
		pterm.Println()
	}

	return bar
}

func (b *Bar) Enabled() bool {
	return b.enabled
}

// Scanned is the number of files seen so far.
func (b *Bar) Scanned() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scanned
}

// Update advances the bar on scanned files and prints errors above it.
func (b *Bar) Update(evt stats.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.scanned++
		if b.pb == nil {
			return
		}
		b.pb.Increment()
		if evt.Path != "" {
			b.pb.UpdateTitle("Extracting: " + shorten(evt.Path, 40))
		}
	case stats.EventTypeError:
		if b.pb != nil && evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

func shorten(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return "..." + string(r[len(r)-(max-3):])
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	b.pb.Stop()
	pterm.Success.Println("Extraction complete!")
}

// Subscriber feeds stats events into the bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				b.Stop()
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter prints a pterm summary once the pipeline finishes.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)
	PrintSummary(pr.collector.Snapshot(), time.Since(pr.started))
	return nil
}

// PrintSummary renders the run counters.
func PrintSummary(summary stats.Summary, duration time.Duration) {
	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", duration.Round(time.Millisecond))
	pterm.Info.Printf("Files scanned: %d (skipped: %d)\n", summary.FilesScanned, summary.FilesSkipped)
	pterm.Info.Printf("Messages parsed: %d\n", summary.MessagesParsed)
	pterm.Info.Printf("Messages filtered: %d\n", summary.MessagesFiltered)
	pterm.Info.Printf("Messages dropped: %d\n", summary.MessagesDropped)
	pterm.Info.Printf("Emails written: %d\n", summary.EmailsWritten)
	pterm.Info.Printf("Attachments written: %d (skipped: %d)\n", summary.AttachmentsWritten, summary.AttachmentsSkipped)
	pterm.Info.Printf("Blobs stored: %d (duplicates: %d)\n", summary.BlobsStored, summary.BlobDuplicates)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}
