package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/mailstore-extract/config"
	"github.com/dhcgn/mailstore-extract/model"
	"github.com/dhcgn/mailstore-extract/stats"
)

type StageFunc = func(context.Context) error

type stage struct {
	name string
	fn   StageFunc
}

type subscriber struct {
	name   string
	events chan stats.Event
	fn     func(context.Context, <-chan stats.Event) error
}

// Runner wires the source, extract workers and sink together. Stages and
// stats subscribers are registered first and launched by Start.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	blobs   chan model.Envelope
	results chan model.FileResult

	stages      []stage
	subscribers []*subscriber
	started     bool

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeBlobsOnce   sync.Once
	closeResultsOnce sync.Once
	since            time.Time
}

func New(cfg config.Config, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		blobs:   make(chan model.Envelope, 32),
		results: make(chan model.FileResult, 32),
	}
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) BlobWriter() chan<- model.Envelope {
	return r.blobs
}

func (r *Runner) CloseBlobs() {
	r.closeBlobsOnce.Do(func() {
		close(r.blobs)
	})
}

func (r *Runner) Blobs() <-chan model.Envelope {
	return r.blobs
}

func (r *Runner) ResultWriter() chan<- model.FileResult {
	return r.results
}

func (r *Runner) Results() <-chan model.FileResult {
	return r.results
}

// EmitEvent delivers evt to every stats subscriber.
func (r *Runner) EmitEvent(evt stats.Event) {
	for _, sub := range r.subscribers {
		select {
		case <-r.ctx.Done():
			return
		case sub.events <- evt:
		}
	}
}

func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	if r.started {
		panic("runner: SubscribeStats after Start")
	}
	r.subscribers = append(r.subscribers, &subscriber{
		name:   name,
		events: make(chan stats.Event, 128),
		fn:     fn,
	})
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	if r.started {
		panic("runner: AddStage after Start")
	}
	r.stages = append(r.stages, stage{name: name, fn: fn})
}

// AddWorkers registers n copies of fn. The results channel is closed once
// all of them have returned.
func (r *Runner) AddWorkers(name string, n int, fn StageFunc) {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		r.AddStage(fmt.Sprintf("%s-%d", name, i), func(ctx context.Context) error {
			defer wg.Done()
			return fn(ctx)
		})
	}
	r.AddStage(name+"-closer", func(context.Context) error {
		wg.Wait()
		r.closeResults()
		return nil
	})
}

// Fail aborts the pipeline with err unless an earlier error was recorded.
func (r *Runner) Fail(err error) {
	r.fail(err)
}

func (r *Runner) Start() error {
	r.started = true
	r.since = time.Now()

	for _, sub := range r.subscribers {
		r.statsWG.Add(1)
		go func(sub *subscriber) {
			defer r.statsWG.Done()
			if err := sub.fn(r.ctx, sub.events); err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stats: %w", sub.name, err))
			}
		}(sub)
	}

	for _, st := range r.stages {
		r.workWG.Add(1)
		go func(st stage) {
			defer r.workWG.Done()
			if err := st.fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stage: %w", st.name, err))
			}
		}(st)
	}

	r.workWG.Wait()
	for _, sub := range r.subscribers {
		close(sub.events)
	}
	r.statsWG.Wait()

	r.cancel()

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

func (r *Runner) closeResults() {
	r.closeResultsOnce.Do(func() {
		close(r.results)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
