// Package output writes extraction results as compressed NDJSON and CSV
// artifacts, content-addressed attachment blobs and a run manifest.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dhcgn/mailstore-extract/model"
	"github.com/dhcgn/mailstore-extract/state"
	"github.com/dhcgn/mailstore-extract/stats"
)

type Options struct {
	Dir     string
	Bucket  string
	Prefix  string
	BatchID string
	// Source describes the input for the manifest.
	Source  string
	Rejects bool
	Version string
}

// Pipeline is the part of the runner the sink depends on.
type Pipeline interface {
	Results() <-chan model.FileResult
	EmitEvent(stats.Event)
	AddStage(name string, fn func(context.Context) error)
}

// Sink consumes file results in scan order and writes every artifact.
type Sink struct {
	opts     Options
	pipeline Pipeline
	logger   *slog.Logger
	started  time.Time

	emailsJSON *artifact
	emailsCSV  *artifact
	attsJSON   *artifact
	attsCSV    *artifact
	tracker    *state.FileTracker
	blobs      *BlobStore
	rejects    *RejectWriter

	pending  map[int]model.FileResult
	next     int
	manifest Manifest
	done     bool
}

func NewSink(opts Options, p Pipeline, logger *slog.Logger) (*Sink, error) {
	s, err := Open(opts, logger)
	if err != nil {
		return nil, err
	}
	s.pipeline = p
	p.AddStage("sink", s.run)
	return s, nil
}

// Open prepares the output directory and artifact files without attaching
// the sink to a pipeline.
func Open(opts Options, logger *slog.Logger) (*Sink, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	s := &Sink{
		opts:    opts,
		logger:  logger,
		started: time.Now(),
		pending: make(map[int]model.FileResult),
	}

	var err error
	open := func(dst **artifact, name string, header []string) {
		if err != nil {
			return
		}
		*dst, err = createArtifact(opts.Dir, name)
		if err == nil && header != nil {
			err = (*dst).writeRow(header)
		}
	}
	open(&s.emailsJSON, EmailsNDJSON, nil)
	open(&s.emailsCSV, EmailsCSV, EmailColumns)
	open(&s.attsJSON, AttachmentsNDJSON, nil)
	open(&s.attsCSV, AttachmentsCSV, AttachmentColumns)
	if err != nil {
		s.abort()
		return nil, err
	}

	s.tracker, err = state.NewFileTracker(filepath.Join(opts.Dir, BlobDir))
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("blob index: %w", err)
	}
	s.blobs = NewBlobStore(opts.Dir, s.tracker)

	if opts.Rejects {
		s.rejects, err = NewRejectWriter(filepath.Join(opts.Dir, RejectsFile), s.started)
		if err != nil {
			s.abort()
			return nil, err
		}
	}

	s.manifest = Manifest{
		BatchID:      opts.BatchID,
		Source:       opts.Source,
		OutputDir:    opts.Dir,
		OutputBucket: opts.Bucket,
		OutputPrefix: opts.Prefix,
		SHA256:       make(map[string]string),
	}
	return s, nil
}

func (s *Sink) run(ctx context.Context) error {
	results := s.pipeline.Results()
	for {
		select {
		case <-ctx.Done():
			s.abort()
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				if err := s.drain(); err != nil {
					s.abort()
					return err
				}
				_, err := s.Finish()
				return err
			}
			if err := s.Add(res); err != nil {
				s.abort()
				return err
			}
		}
	}
}

// Add buffers res and writes every result that is now next in scan order.
func (s *Sink) Add(res model.FileResult) error {
	s.pending[res.Seq] = res
	for {
		next, ok := s.pending[s.next]
		if !ok {
			return nil
		}
		delete(s.pending, s.next)
		s.next++
		if err := s.write(next); err != nil {
			return err
		}
	}
}

// drain writes results left behind a gap in the sequence.
func (s *Sink) drain() error {
	if len(s.pending) == 0 {
		return nil
	}
	seqs := make([]int, 0, len(s.pending))
	for seq := range s.pending {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	if s.logger != nil {
		s.logger.Warn("file results missing from sequence", "expected", s.next, "pending", len(seqs))
	}
	for _, seq := range seqs {
		if err := s.write(s.pending[seq]); err != nil {
			return err
		}
		delete(s.pending, seq)
	}
	return nil
}

func (s *Sink) write(res model.FileResult) error {
	m := &s.manifest
	m.FilesScanned++
	if res.Skipped {
		m.FilesSkipped++
	}
	m.MessagesFiltered += res.Filtered
	m.AttachmentsSkipped += res.AttachmentsSkipped

	for _, d := range res.Dropped {
		m.MessagesDropped++
		if s.rejects != nil {
			if err := s.rejects.Write(res.RelPath, d.Index, d.Err, d.Data); err != nil {
				return err
			}
		}
	}

	for _, ext := range res.Extractions {
		if err := s.writeExtraction(ext); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) writeExtraction(ext model.Extraction) error {
	if err := s.emailsJSON.writeJSONLine(ext.Email); err != nil {
		return err
	}
	if err := s.emailsCSV.writeRow(EmailRow(ext.Email)); err != nil {
		return err
	}
	s.manifest.EmailsTotal++
	s.emit(stats.EventTypeEmailWritten, ext.Email.SourcePath, ext.Email.SourceIndex, "")

	for _, att := range ext.Attachments {
		rec := att.Record
		rec.StorageBucket = s.opts.Bucket
		rec.StorageKey = s.opts.Prefix + BlobKey(rec.AttachmentHash)

		stored, err := s.blobs.Put(rec.AttachmentHash, rec.ID, att.Data)
		if err != nil {
			return err
		}
		if stored {
			s.manifest.BlobsStored++
			s.emit(stats.EventTypeBlobStored, rec.SourcePath, ext.Email.SourceIndex, rec.AttachmentHash)
		} else {
			s.manifest.BlobDuplicates++
			s.emit(stats.EventTypeBlobDuplicate, rec.SourcePath, ext.Email.SourceIndex, rec.AttachmentHash)
		}

		if err := s.attsJSON.writeJSONLine(rec); err != nil {
			return err
		}
		if err := s.attsCSV.writeRow(AttachmentRow(rec)); err != nil {
			return err
		}
		s.manifest.AttachmentsTotal++
		s.emit(stats.EventTypeAttachmentWritten, rec.SourcePath, ext.Email.SourceIndex, rec.Filename)
	}
	return nil
}

func (s *Sink) emit(typ stats.EventType, path string, index int, detail string) {
	if s.pipeline == nil {
		return
	}
	s.pipeline.EmitEvent(stats.Event{Stage: stats.StageSink, Type: typ, Path: path, Index: index, Detail: detail})
}

// Finish closes every artifact and writes the manifest.
func (s *Sink) Finish() (Manifest, error) {
	if s.done {
		return s.manifest, nil
	}
	s.done = true

	m := &s.manifest
	for _, a := range []*artifact{s.emailsJSON, s.emailsCSV, s.attsJSON, s.attsCSV} {
		sum, err := a.close()
		if err != nil {
			return *m, err
		}
		m.SHA256[a.name] = sum
	}
	if err := s.tracker.Close(); err != nil {
		return *m, err
	}
	if s.rejects != nil {
		if err := s.rejects.Close(); err != nil {
			return *m, err
		}
		m.RejectsKey = s.opts.Prefix + RejectsFile
	}

	m.EmailsNDJSONKey = s.opts.Prefix + EmailsNDJSON
	m.EmailsCSVKey = s.opts.Prefix + EmailsCSV
	m.AttachmentsNDJSONKey = s.opts.Prefix + AttachmentsNDJSON
	m.AttachmentsCSVKey = s.opts.Prefix + AttachmentsCSV
	m.ManifestKey = s.opts.Prefix + ManifestFile
	m.DurationSeconds = time.Since(s.started).Seconds()
	m.SchemaVersion = SchemaVersion
	m.Version = s.opts.Version

	if err := writeManifest(s.opts.Dir, *m); err != nil {
		return *m, err
	}
	if s.logger != nil {
		s.logger.Info("manifest written",
			"path", filepath.Join(s.opts.Dir, ManifestFile),
			"emails", m.EmailsTotal,
			"attachments", m.AttachmentsTotal,
			"dropped", m.MessagesDropped)
	}
	return *m, nil
}

// Manifest returns the manifest as of the last written result.
func (s *Sink) Manifest() Manifest {
	return s.manifest
}

func (s *Sink) abort() {
	if s.done {
		return
	}
	s.done = true
	for _, a := range []*artifact{s.emailsJSON, s.emailsCSV, s.attsJSON, s.attsCSV} {
		if a != nil {
			a.abort()
		}
	}
	if s.tracker != nil {
		_ = s.tracker.Close()
	}
	if s.rejects != nil {
		_ = s.rejects.Close()
	}
}
