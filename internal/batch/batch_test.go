package batch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decklens/decklens/internal/ocrengine"
	"github.com/decklens/decklens/internal/pipeline"
)

// fixedEngine returns the same token batch for every region. Stateless, so
// safe for the parallel workers.
type fixedEngine struct {
	tokens []ocrengine.Token
}

func (f *fixedEngine) Name() string { return "fixed" }

func (f *fixedEngine) Recognize(_ context.Context, _ image.Image) ([]ocrengine.Token, error) {
	return f.tokens, nil
}

func (f *fixedEngine) Close() error { return nil }

func toks(texts ...string) []ocrengine.Token {
	out := make([]ocrengine.Token, len(texts))
	for i, t := range texts {
		out[i] = ocrengine.Token{Text: t, Confidence: 0.9}
	}
	return out
}

func imageBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 200, 400))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 40, G: 40, B: 40, A: 255}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	engine := &fixedEngine{tokens: toks("易, 锋芒毕现", "主牌", "3x 背水一战")}
	pcfg := pipeline.DefaultConfig()
	pcfg.Segment.DetectBoundary = false
	pipe, err := pipeline.NewBuilder().WithConfig(pcfg).WithEngine(engine).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pipe.Close() })
	return New(pipe, cfg, nil)
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestStreamSequentialOrder(t *testing.T) {
	o := newOrchestrator(t, DefaultConfig())
	img := imageBytes(t)
	inputs := []Input{
		{Filename: "a.png", Data: img},
		{Filename: "b.png", Data: img},
		{Filename: "c.png", Data: img},
	}

	events := collect(o.Stream(context.Background(), inputs))
	require.Len(t, events, 7)

	// progress then result per image, indices strictly increasing.
	lastIndex := -1
	for i := 0; i < 6; i += 2 {
		require.Equal(t, EventProgress, events[i].Kind)
		require.Equal(t, EventResult, events[i+1].Kind)
		assert.Greater(t, events[i+1].Result.Index, lastIndex)
		lastIndex = events[i+1].Result.Index
	}

	last := events[len(events)-1]
	require.Equal(t, EventComplete, last.Kind)
	assert.Equal(t, 3, last.Complete.Total)
	assert.Equal(t, 3, last.Complete.Successful)
	assert.Zero(t, last.Complete.Failed)
	require.NotNil(t, last.Complete.AverageAccuracy)
	assert.InDelta(t, 100.0, *last.Complete.AverageAccuracy, 1e-9)
	assert.GreaterOrEqual(t, last.Complete.ProcessingTime, 0.0)
}

func TestStreamIsolatesFailures(t *testing.T) {
	o := newOrchestrator(t, DefaultConfig())
	img := imageBytes(t)
	inputs := []Input{
		{Filename: "a.png", Data: img},
		{Filename: "broken.png", Data: []byte("not an image")},
		{Filename: "c.png", Data: img},
	}

	events := collect(o.Stream(context.Background(), inputs))
	var results, errs int
	for _, ev := range events {
		switch ev.Kind {
		case EventResult:
			results++
		case EventError:
			errs++
			assert.Equal(t, 1, ev.Error.Index)
			assert.Equal(t, "broken.png", ev.Error.Filename)
			assert.Equal(t, "processing", ev.Error.Type)
		}
	}
	assert.Equal(t, 2, results)
	assert.Equal(t, 1, errs)

	last := events[len(events)-1]
	require.Equal(t, EventComplete, last.Kind)
	assert.Equal(t, 2, last.Complete.Successful)
	assert.Equal(t, 1, last.Complete.Failed)
}

func TestStreamParallelIndexMultiset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parallel = true
	cfg.MaxWorkers = 3
	o := newOrchestrator(t, cfg)

	img := imageBytes(t)
	inputs := make([]Input, 6)
	for i := range inputs {
		inputs[i] = Input{Filename: "deck.png", Data: img}
	}

	events := collect(o.Stream(context.Background(), inputs))

	seen := make(map[int]int)
	completes := 0
	for _, ev := range events {
		switch ev.Kind {
		case EventResult:
			seen[ev.Result.Index]++
		case EventError:
			seen[ev.Error.Index]++
		case EventComplete:
			completes++
		}
	}
	require.Len(t, seen, 6)
	for i := 0; i < 6; i++ {
		assert.Equal(t, 1, seen[i], "index %d", i)
	}
	assert.Equal(t, 1, completes)
	assert.Equal(t, EventComplete, events[len(events)-1].Kind)
}

func TestRunBuffersInInputOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parallel = true
	o := newOrchestrator(t, cfg)

	img := imageBytes(t)
	inputs := []Input{
		{Filename: "a.png", Data: img},
		{Filename: "broken.png", Data: []byte("nope")},
		{Filename: "c.png", Data: img},
	}

	res, err := o.Run(context.Background(), inputs)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 3)
	assert.True(t, res.Items[0].Success)
	assert.False(t, res.Items[1].Success)
	assert.Equal(t, "broken.png", res.Items[1].Filename)
	assert.True(t, res.Items[2].Success)
	require.NotNil(t, res.AverageAccuracy)
}

func TestAverageAccuracyNilWhenAllFail(t *testing.T) {
	o := newOrchestrator(t, DefaultConfig())
	inputs := []Input{{Filename: "x.png", Data: []byte("bad")}}

	res, err := o.Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Nil(t, res.AverageAccuracy)
}

func TestEmptyBatch(t *testing.T) {
	o := newOrchestrator(t, DefaultConfig())

	events := collect(o.Stream(context.Background(), nil))
	require.Len(t, events, 1)
	assert.Equal(t, EventComplete, events[0].Kind)
	assert.Zero(t, events[0].Complete.Total)
	assert.Nil(t, events[0].Complete.AverageAccuracy)
}

func TestCancelledBatchStillCompletes(t *testing.T) {
	o := newOrchestrator(t, DefaultConfig())
	img := imageBytes(t)
	inputs := []Input{
		{Filename: "a.png", Data: img},
		{Filename: "b.png", Data: img},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx, inputs)
	require.Error(t, err)
	assert.Equal(t, 2, res.Failed)

	for _, item := range res.Items {
		assert.False(t, item.Success)
	}
}

func TestBatchIsolationMatchesIndividualRuns(t *testing.T) {
	o := newOrchestrator(t, DefaultConfig())
	img := imageBytes(t)

	single, err := o.Run(context.Background(), []Input{{Filename: "a.png", Data: img}})
	require.NoError(t, err)

	mixed, err := o.Run(context.Background(), []Input{
		{Filename: "a.png", Data: img},
		{Filename: "broken.png", Data: []byte("junk")},
	})
	require.NoError(t, err)

	want := single.Items[0].Decklist
	got := mixed.Items[0].Decklist
	require.NotNil(t, got)

	// Identical apart from the generated ID.
	want.ID, got.ID = "", ""
	assert.Equal(t, want, got)
}
