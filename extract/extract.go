// Package extract runs the per-file pipeline: segmentation, filtering and
// record assembly.
package extract

import (
	"context"
	"log/slog"

	"github.com/dhcgn/mailstore-extract/assemble"
	"github.com/dhcgn/mailstore-extract/filter"
	"github.com/dhcgn/mailstore-extract/model"
	"github.com/dhcgn/mailstore-extract/segment"
	"github.com/dhcgn/mailstore-extract/stats"
)

// Pipeline is the part of the runner the workers depend on.
type Pipeline interface {
	Blobs() <-chan model.Envelope
	ResultWriter() chan<- model.FileResult
	EmitEvent(stats.Event)
	AddWorkers(name string, n int, fn func(context.Context) error)
}

type Extractor struct {
	assembler *assemble.Assembler
	filter    *filter.Filter
	logger    *slog.Logger
	pipeline  Pipeline
}

func New(a *assemble.Assembler, f *filter.Filter, logger *slog.Logger) *Extractor {
	return &Extractor{assembler: a, filter: f, logger: logger}
}

// Attach registers workers reading blobs from p. Each worker handles whole
// files, so message order within a file is preserved.
func (e *Extractor) Attach(p Pipeline, workers int) {
	e.pipeline = p
	p.AddWorkers("extract", workers, e.work)
}

func (e *Extractor) work(ctx context.Context) error {
	blobs := e.pipeline.Blobs()
	out := e.pipeline.ResultWriter()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-blobs:
			if !ok {
				return nil
			}

			var res model.FileResult
			if env.Err != nil {
				e.emit(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeError, Path: env.Blob.RelPath, Err: env.Err})
				e.emit(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeScanned, Path: env.Blob.RelPath})
				e.emit(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeFileSkipped, Path: env.Blob.RelPath})
				if e.logger != nil {
					e.logger.Warn("skipping unreadable file", "path", env.Blob.RelPath, "err", env.Err)
				}
				res = model.FileResult{Seq: env.Blob.Seq, RelPath: env.Blob.RelPath, Skipped: true}
			} else {
				res = e.Process(env.Blob)
				e.report(res)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- res:
			}
		}
	}
}

// Process extracts every message of blob. Failures are recorded on the
// result and never abort the file.
func (e *Extractor) Process(blob model.RawBlob) model.FileResult {
	res := model.FileResult{Seq: blob.Seq, RelPath: blob.RelPath}

	msgs := segment.Segment(blob)
	if len(msgs) == 0 {
		res.Skipped = true
		return res
	}

	for _, msg := range msgs {
		if e.filter != nil && !e.filter.AllowsMessage(msg.Data) {
			res.Filtered++
			continue
		}

		ext, skipped, err := e.assembler.Assemble(blob.RelPath, msg)
		if err != nil {
			res.Dropped = append(res.Dropped, model.DroppedMessage{Index: msg.Index, Data: msg.Data, Err: err})
			continue
		}
		res.AttachmentsSkipped += skipped
		res.Extractions = append(res.Extractions, ext)
	}
	return res
}

func (e *Extractor) report(res model.FileResult) {
	e.emit(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeScanned, Path: res.RelPath})
	if res.Skipped {
		e.emit(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeFileSkipped, Path: res.RelPath})
		if e.logger != nil {
			e.logger.Debug("file is not mail", "path", res.RelPath)
		}
		return
	}

	for _, ext := range res.Extractions {
		e.emit(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeMessageParsed, Path: res.RelPath, Index: ext.Email.SourceIndex})
	}
	for _, d := range res.Dropped {
		e.emit(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeMessageDropped, Path: res.RelPath, Index: d.Index, Err: d.Err})
		if e.logger != nil {
			e.logger.Warn("dropping unparseable message", "path", res.RelPath, "index", d.Index, "err", d.Err)
		}
	}
	for i := 0; i < res.Filtered; i++ {
		e.emit(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeMessageFiltered, Path: res.RelPath})
	}
	for i := 0; i < res.AttachmentsSkipped; i++ {
		e.emit(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeAttachmentSkipped, Path: res.RelPath})
	}
	if res.AttachmentsSkipped > 0 && e.logger != nil {
		e.logger.Debug("skipped undecodable attachments", "path", res.RelPath, "count", res.AttachmentsSkipped)
	}
}

func (e *Extractor) emit(evt stats.Event) {
	if e.pipeline != nil {
		e.pipeline.EmitEvent(evt)
	}
}
