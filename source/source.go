// Package source walks an extracted mail-store directory and feeds its files
// into the pipeline in a stable order.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhcgn/mailstore-extract/filter"
	"github.com/dhcgn/mailstore-extract/model"
)

type Options struct {
	Root   string
	Filter *filter.Filter
}

// Pipeline is the part of the runner the producer writes to.
type Pipeline interface {
	BlobWriter() chan<- model.Envelope
	CloseBlobs()
	AddStage(name string, fn func(context.Context) error)
}

// Scan returns every regular file below root as a slash separated path
// relative to root, sorted. Paths rejected by f are left out.
func Scan(root string, f *filter.Filter) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		relPath = filepath.ToSlash(relPath)
		if f != nil && !f.AllowsPath(relPath) {
			return nil
		}
		files = append(files, relPath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

type Producer struct {
	root     string
	files    []string
	pipeline Pipeline
	logger   *slog.Logger
}

// NewProducer scans opts.Root and registers a stage sending every file to p.
func NewProducer(opts Options, p Pipeline, logger *slog.Logger) (*Producer, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, fmt.Errorf("input directory is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", root)
	}

	files, err := Scan(root, opts.Filter)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("input scanned", "root", root, "files", len(files))
	}

	producer := &Producer{root: root, files: files, pipeline: p, logger: logger}
	p.AddStage("source", producer.run)
	return producer, nil
}

// Total is the number of files the producer will send.
func (p *Producer) Total() int {
	return len(p.files)
}

func (p *Producer) run(ctx context.Context) error {
	defer p.pipeline.CloseBlobs()
	out := p.pipeline.BlobWriter()

	for seq, rel := range p.files {
		env := model.Envelope{Blob: model.RawBlob{RelPath: rel, Seq: seq}}
		data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
		if err != nil {
			env.Err = fmt.Errorf("read %s: %w", rel, err)
		} else {
			env.Blob.Data = data
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- env:
		}
	}
	return nil
}
