package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decklens/decklens/internal/match"
	"github.com/decklens/decklens/internal/ocrengine"
	"github.com/decklens/decklens/internal/segment"
)

// scriptedEngine replays one token batch per Recognize call, in region
// order: metadata band first, then the card bands.
type scriptedEngine struct {
	batches [][]ocrengine.Token
	err     error
	calls   int
	closed  bool
}

func (s *scriptedEngine) Name() string { return "scripted" }

func (s *scriptedEngine) Recognize(_ context.Context, _ image.Image) ([]ocrengine.Token, error) {
	i := s.calls
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if i < len(s.batches) {
		return s.batches[i], nil
	}
	return nil, nil
}

func (s *scriptedEngine) Close() error {
	s.closed = true
	return nil
}

func toks(texts ...string) []ocrengine.Token {
	out := make([]ocrengine.Token, len(texts))
	for i, t := range texts {
		out[i] = ocrengine.Token{Text: t, Confidence: 0.9}
	}
	return out
}

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 1000))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 40, G: 40, B: 40, A: 255}), image.Point{}, draw.Src)
	return img
}

func buildPipeline(t *testing.T, engine ocrengine.Engine) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Segment.DetectBoundary = false
	p, err := NewBuilder().WithConfig(cfg).WithEngine(engine).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProcessImage(t *testing.T) {
	engine := &scriptedEngine{batches: [][]ocrengine.Token{
		toks("排名 92", "第一赛季区域公开赛-杭州赛区", "2025-11-01"),
		toks(
			"易, 锋芒毕现",
			"主牌",
			"3x 背水一战",
			"2x 决一死战",
			"战场",
			"战争学院",
			"符文",
			"6x 烈焰符文",
			"6x 静谧符文",
			"备牌",
			"2x 旋风连斩",
		),
	}}
	p := buildPipeline(t, engine)

	res, err := p.ProcessImage(context.Background(), testImage(), "deck.png")
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	require.NotNil(t, res.Metadata.Placement)
	assert.Equal(t, 92, *res.Metadata.Placement)
	require.NotNil(t, res.Metadata.Date)
	assert.Equal(t, "2025-11-01", *res.Metadata.Date)

	require.Len(t, res.Legend, 1)
	assert.Equal(t, "Master Yi, The Wuju Bladesman", res.Legend[0].NameCanonical)
	require.Len(t, res.MainDeck, 2)
	assert.Equal(t, "Blade's Edge", res.MainDeck[0].NameCanonical)
	assert.Equal(t, 3, res.MainDeck[0].Quantity)
	require.Len(t, res.Battlefields, 1)
	assert.Equal(t, 1, res.Battlefields[0].Quantity)
	assert.Len(t, res.Runes, 2)
	assert.Len(t, res.SideDeck, 1)

	// Stats cover every section by quantity.
	assert.Equal(t, 1+3+2+1+6+6+2, res.Stats.TotalCards)
	assert.Equal(t, res.Stats.TotalCards, res.Stats.MatchedCards)
	assert.InDelta(t, 100.0, res.Stats.Accuracy, 1e-9)
}

func TestProcessImageUnmatchedLowersAccuracy(t *testing.T) {
	engine := &scriptedEngine{batches: [][]ocrengine.Token{
		nil,
		toks("易, 锋芒毕现", "主牌", "1x 不存在的卡牌名称"),
	}}
	p := buildPipeline(t, engine)

	res, err := p.ProcessImage(context.Background(), testImage(), "deck.png")
	require.NoError(t, err)

	require.Len(t, res.MainDeck, 1)
	assert.Equal(t, match.TypeUnmatched, res.MainDeck[0].MatchType)
	assert.Equal(t, 2, res.Stats.TotalCards)
	assert.Equal(t, 1, res.Stats.MatchedCards)
	assert.InDelta(t, 50.0, res.Stats.Accuracy, 1e-9)
}

func TestProcessImageEmptyDeck(t *testing.T) {
	engine := &scriptedEngine{}
	p := buildPipeline(t, engine)

	res, err := p.ProcessImage(context.Background(), testImage(), "empty.png")
	require.NoError(t, err)
	assert.Zero(t, res.Stats.TotalCards)
	assert.InDelta(t, 100.0, res.Stats.Accuracy, 1e-9)
	assert.Nil(t, res.Metadata.Placement)
}

func TestProcessImageEngineFailureFatalWhenTotal(t *testing.T) {
	engine := &scriptedEngine{err: errors.New("engine down")}
	p := buildPipeline(t, engine)

	_, err := p.ProcessImage(context.Background(), testImage(), "deck.png")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageExtracting, perr.Stage)
	assert.Equal(t, "deck.png", perr.Filename)
}

func TestProcessImageSegmentFailure(t *testing.T) {
	p := buildPipeline(t, &scriptedEngine{})

	_, err := p.ProcessImage(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)), "tiny.png")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageSegmenting, perr.Stage)
}

func TestProcessBytesDecodeFailure(t *testing.T) {
	p := buildPipeline(t, &scriptedEngine{})

	_, err := p.ProcessBytes(context.Background(), []byte("not an image"), "bad.bin")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageSegmenting, perr.Stage)
}

func TestProcessImageContextCancelled(t *testing.T) {
	p := buildPipeline(t, &scriptedEngine{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessImage(ctx, testImage(), "deck.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessImageDeterministicSections(t *testing.T) {
	mk := func() *scriptedEngine {
		return &scriptedEngine{batches: [][]ocrengine.Token{
			nil,
			toks("易, 锋芒毕现", "主牌", "3x 背水一战"),
		}}
	}
	p1 := buildPipeline(t, mk())
	p2 := buildPipeline(t, mk())

	r1, err := p1.ProcessImage(context.Background(), testImage(), "a.png")
	require.NoError(t, err)
	r2, err := p2.ProcessImage(context.Background(), testImage(), "a.png")
	require.NoError(t, err)

	// Everything except the generated ID matches.
	r1.ID, r2.ID = "", ""
	assert.Equal(t, r1, r2)
}

func TestPipelineClose(t *testing.T) {
	engine := &scriptedEngine{}
	cfg := DefaultConfig()
	cfg.Segment = segment.DefaultConfig()
	p, err := NewBuilder().WithConfig(cfg).WithEngine(engine).Build()
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, engine.closed)
}
