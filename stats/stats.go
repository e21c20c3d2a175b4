package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageSource  Stage = "source"
	StageExtract Stage = "extract"
	StageSink    Stage = "sink"
)

type EventType string

const (
	EventTypeScanned           EventType = "scanned"
	EventTypeFileSkipped       EventType = "file_skipped"
	EventTypeMessageParsed     EventType = "message_parsed"
	EventTypeMessageDropped    EventType = "message_dropped"
	EventTypeMessageFiltered   EventType = "message_filtered"
	EventTypeAttachmentSkipped EventType = "attachment_skipped"
	EventTypeEmailWritten      EventType = "email_written"
	EventTypeAttachmentWritten EventType = "attachment_written"
	EventTypeBlobStored        EventType = "blob_stored"
	EventTypeBlobDuplicate     EventType = "blob_duplicate"
	EventTypeError             EventType = "error"
)

type Event struct {
	Stage  Stage
	Type   EventType
	Path   string
	Index  int
	Err    error
	Detail string
}

type Summary struct {
	FilesScanned       int
	FilesSkipped       int
	MessagesParsed     int
	MessagesDropped    int
	MessagesFiltered   int
	AttachmentsSkipped int
	EmailsWritten      int
	AttachmentsWritten int
	BlobsStored        int
	BlobDuplicates     int
	Errors             int
	LastError          error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"filesScanned", s.FilesScanned,
		"filesSkipped", s.FilesSkipped,
		"messagesParsed", s.MessagesParsed,
		"messagesDropped", s.MessagesDropped,
		"messagesFiltered", s.MessagesFiltered,
		"attachmentsSkipped", s.AttachmentsSkipped,
		"emailsWritten", s.EmailsWritten,
		"attachmentsWritten", s.AttachmentsWritten,
		"blobsStored", s.BlobsStored,
		"blobDuplicates", s.BlobDuplicates,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Apply folds a single event into the summary.
func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.FilesScanned++
	case EventTypeFileSkipped:
		c.summary.FilesSkipped++
	case EventTypeMessageParsed:
		c.summary.MessagesParsed++
	case EventTypeMessageDropped:
		c.summary.MessagesDropped++
	case EventTypeMessageFiltered:
		c.summary.MessagesFiltered++
	case EventTypeAttachmentSkipped:
		c.summary.AttachmentsSkipped++
	case EventTypeEmailWritten:
		c.summary.EmailsWritten++
	case EventTypeAttachmentWritten:
		c.summary.AttachmentsWritten++
	case EventTypeBlobStored:
		c.summary.BlobsStored++
	case EventTypeBlobDuplicate:
		c.summary.BlobDuplicates++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// Pair is a counted value.
type Pair struct {
	Key   string
	Value int
}

// Top returns up to limit entries of m ordered by count, then key.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})
	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(m map[string]int, limit int) {
	for i, p := range Top(m, limit) {
		fmt.Printf("%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}
