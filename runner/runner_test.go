package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dhcgn/mailstore-extract/config"
	"github.com/dhcgn/mailstore-extract/model"
	"github.com/dhcgn/mailstore-extract/stats"
)

func TestRunner_PipelineCompletes(t *testing.T) {
	r := New(config.Config{}, nil)

	r.AddStage("source", func(ctx context.Context) error {
		defer r.CloseBlobs()
		for i := 0; i < 10; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.BlobWriter() <- model.Envelope{Blob: model.RawBlob{Seq: i}}:
			}
		}
		return nil
	})

	r.AddWorkers("extract", 3, func(ctx context.Context) error {
		for env := range r.Blobs() {
			r.EmitEvent(stats.Event{Type: stats.EventTypeScanned})
			r.ResultWriter() <- model.FileResult{Seq: env.Blob.Seq}
		}
		return nil
	})

	var seen atomic.Int32
	r.AddStage("sink", func(ctx context.Context) error {
		for range r.Results() {
			seen.Add(1)
		}
		return nil
	})

	var scanned [2]atomic.Int32
	for i := range scanned {
		counter := &scanned[i]
		r.SubscribeStats("count", func(ctx context.Context, events <-chan stats.Event) error {
			for range events {
				counter.Add(1)
			}
			return nil
		})
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if seen.Load() != 10 {
		t.Errorf("sink saw %d results, want 10", seen.Load())
	}
	for i := range scanned {
		if scanned[i].Load() != 10 {
			t.Errorf("subscriber %d saw %d events, want 10", i, scanned[i].Load())
		}
	}
}

func TestRunner_FirstErrorCancels(t *testing.T) {
	r := New(config.Config{}, nil)
	boom := errors.New("boom")

	r.AddStage("failing", func(ctx context.Context) error {
		return boom
	})
	r.AddStage("blocked", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := r.Start()
	if !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want boom", err)
	}
}
