// Package batch runs the decklist pipeline over many images with bounded
// parallelism and progressive event emission.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/decklens/decklens/internal/pipeline"
)

// Input is one image of a batch.
type Input struct {
	Filename string
	Data     []byte
}

// Config controls batch execution.
type Config struct {
	// Parallel dispatches images to a worker pool instead of processing
	// them in input order on the calling goroutine.
	Parallel bool

	// MaxWorkers bounds the pool in parallel mode. The recognition engines
	// are not assumed safe for unbounded concurrent use, so keep this small.
	MaxWorkers int

	// StatusProcessing is the progress status string. Exposed for the HTTP
	// layer, which reports a validating phase of its own.
	StatusProcessing string
}

// DefaultConfig returns the documented batch defaults.
func DefaultConfig() Config {
	return Config{
		Parallel:         false,
		MaxWorkers:       2,
		StatusProcessing: "processing",
	}
}

// Orchestrator fans a batch of images through a shared pipeline.
type Orchestrator struct {
	pipe   *pipeline.Pipeline
	cfg    Config
	logger *slog.Logger
}

// New builds an orchestrator over the pipeline.
func New(pipe *pipeline.Pipeline, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if cfg.StatusProcessing == "" {
		cfg.StatusProcessing = DefaultConfig().StatusProcessing
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{pipe: pipe, cfg: cfg, logger: logger}
}

// ItemOutcome is one per-image entry of a buffered batch result, either a
// decklist or a failure.
type ItemOutcome struct {
	Index    int                      `json:"index"`
	Filename string                   `json:"filename"`
	Success  bool                     `json:"success"`
	Decklist *pipeline.DecklistResult `json:"decklist,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Type     string                   `json:"error_type,omitempty"`
}

// Result is the buffered outcome of a whole batch. Items are ordered by
// input index regardless of completion order.
type Result struct {
	Total           int           `json:"total"`
	Successful      int           `json:"successful"`
	Failed          int           `json:"failed"`
	AverageAccuracy *float64      `json:"average_accuracy"`
	Items           []ItemOutcome `json:"results"`
}

// Run processes the batch and buffers all outcomes. One image's failure
// never aborts the batch.
func (o *Orchestrator) Run(ctx context.Context, inputs []Input) (*Result, error) {
	res := &Result{
		Total: len(inputs),
		Items: make([]ItemOutcome, len(inputs)),
	}

	for ev := range o.Stream(ctx, inputs) {
		switch ev.Kind {
		case EventResult:
			p := ev.Result
			res.Items[p.Index] = ItemOutcome{
				Index:    p.Index,
				Filename: p.Filename,
				Success:  true,
				Decklist: p.Decklist,
			}
			res.Successful++
		case EventError:
			p := ev.Error
			res.Items[p.Index] = ItemOutcome{
				Index:    p.Index,
				Filename: p.Filename,
				Error:    p.Error,
				Type:     p.Type,
			}
			res.Failed++
		case EventComplete:
			res.AverageAccuracy = ev.Complete.AverageAccuracy
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// Stream processes the batch and emits events on the returned channel. The
// stream always ends with exactly one complete event and is then closed,
// even when every image fails. Cancelling the context stops dispatching new
// images; in-flight images drain.
func (o *Orchestrator) Stream(ctx context.Context, inputs []Input) <-chan Event {
	out := make(chan Event, len(inputs)*2+1)
	go func() {
		defer close(out)
		start := time.Now()

		var successful, failed int
		var accuracySum float64
		record := func(ev Event) {
			switch ev.Kind {
			case EventResult:
				successful++
				accuracySum += ev.Result.Decklist.Stats.Accuracy
			case EventError:
				failed++
			}
			out <- ev
		}

		if o.cfg.Parallel && len(inputs) > 1 {
			o.runParallel(ctx, inputs, record)
		} else {
			o.runSequential(ctx, inputs, record)
		}

		var avg *float64
		if successful > 0 {
			v := accuracySum / float64(successful)
			avg = &v
		}
		o.logger.Info("batch finished",
			"total", len(inputs),
			"successful", successful,
			"failed", failed,
			"duration", time.Since(start))
		out <- Event{Kind: EventComplete, Complete: &CompletePayload{
			Total:           len(inputs),
			Successful:      successful,
			Failed:          failed,
			AverageAccuracy: avg,
			ProcessingTime:  time.Since(start).Seconds(),
		}}
	}()
	return out
}

// runSequential processes inputs one at a time in input order, so event
// indices arrive strictly increasing.
func (o *Orchestrator) runSequential(ctx context.Context, inputs []Input, emit func(Event)) {
	for i, in := range inputs {
		if ctx.Err() != nil {
			o.emitCancelled(inputs, i, emit)
			return
		}
		emit(progressEvent(i+1, len(inputs), in.Filename, o.cfg.StatusProcessing))
		res, err := o.pipe.ProcessBytes(ctx, in.Data, in.Filename)
		if err != nil {
			emit(errorEvent(i, in.Filename, err.Error(), "processing"))
			continue
		}
		emit(resultEvent(i, in.Filename, res))
	}
}

type job struct {
	index int
	input Input
}

// runParallel dispatches inputs to a fixed worker pool. Progress and
// result/error keep their per-image relative order; across images the
// interleaving is unconstrained and consumers must use the carried index.
func (o *Orchestrator) runParallel(ctx context.Context, inputs []Input, emit func(Event)) {
	workers := min(o.cfg.MaxWorkers, len(inputs))
	// Unbuffered, so cancellation stops dispatch while in-flight images
	// drain.
	jobs := make(chan job)
	events := make(chan Event, len(inputs)*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				events <- progressEvent(j.index+1, len(inputs), j.input.Filename, o.cfg.StatusProcessing)
				res, err := o.pipe.ProcessBytes(ctx, j.input.Data, j.input.Filename)
				if err != nil {
					events <- errorEvent(j.index, j.input.Filename, err.Error(), "processing")
					continue
				}
				events <- resultEvent(j.index, j.input.Filename, res)
			}
		}()
	}

	dispatched := len(inputs)
	go func() {
		defer close(jobs)
		for i, in := range inputs {
			select {
			case jobs <- job{index: i, input: in}:
			case <-ctx.Done():
				dispatched = i
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(events)
	}()

	for ev := range events {
		emit(ev)
	}

	// Cancelled before full dispatch: report the undispatched tail.
	for i := dispatched; i < len(inputs); i++ {
		emit(errorEvent(i, inputs[i].Filename, "batch cancelled", "cancelled"))
	}
}

func (o *Orchestrator) emitCancelled(inputs []Input, from int, emit func(Event)) {
	for i := from; i < len(inputs); i++ {
		emit(errorEvent(i, inputs[i].Filename, "batch cancelled", "cancelled"))
	}
}
