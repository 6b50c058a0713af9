package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"github.com/google/uuid"

	"github.com/decklens/decklens/internal/deckparse"
	"github.com/decklens/decklens/internal/metadata"
	"github.com/decklens/decklens/internal/ocrengine"
	"github.com/decklens/decklens/internal/segment"
)

// Stage names the pipeline step an image is in.
type Stage string

const (
	StageSegmenting Stage = "segmenting"
	StageExtracting Stage = "extracting"
	StageParsing    Stage = "parsing"
	StageMatching   Stage = "matching"
	StageComplete   Stage = "complete"
	StageFailed     Stage = "failed"
)

// Error is a per-image pipeline failure, fatal for that image only.
type Error struct {
	Stage    Stage
	Filename string
	Err      error
}

func (e *Error) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s: %s: %v", e.Filename, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (p *Pipeline) fail(stage Stage, filename string, err error) error {
	p.logger.Warn("image failed", "filename", filename, "stage", stage, "error", err)
	return &Error{Stage: stage, Filename: filename, Err: err}
}

// ProcessFile decodes and processes one image file.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*DecklistResult, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: caller-provided image path
	if err != nil {
		return nil, p.fail(StageFailed, path, err)
	}
	return p.ProcessBytes(ctx, data, path)
}

// ProcessBytes decodes raw image bytes and processes the image.
func (p *Pipeline) ProcessBytes(ctx context.Context, data []byte, filename string) (*DecklistResult, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, p.fail(StageSegmenting, filename, fmt.Errorf("decode image: %w", err))
	}
	p.logger.Debug("image decoded", "filename", filename, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return p.ProcessImage(ctx, img, filename)
}

// ProcessImage runs the full pipeline on a decoded image. Sub-step failures
// degrade to empty data; only segmentation or whole-image extraction failure
// is fatal for the image.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image, filename string) (*DecklistResult, error) {
	stage := StageSegmenting
	regions, crops, err := segment.Split(img, p.cfg.Segment)
	if err != nil {
		return nil, p.fail(stage, filename, err)
	}

	stage = StageExtracting
	var metaTokens, cardTokens []ocrengine.Token
	extracted := false
	for i, region := range regions {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(stage, filename, err)
		}
		tokens, err := p.engine.Recognize(ctx, crops[i])
		if err != nil {
			// Engine failure for a region degrades to zero tokens.
			p.logger.Warn("extraction failed for region",
				"filename", filename, "kind", region.Kind, "error", err)
			continue
		}
		extracted = true
		switch region.Kind {
		case segment.KindMetadata:
			metaTokens = append(metaTokens, tokens...)
		case segment.KindCards:
			cardTokens = append(cardTokens, tokens...)
		}
	}
	if !extracted {
		return nil, p.fail(stage, filename, fmt.Errorf("no region produced tokens"))
	}

	stage = StageParsing
	meta := metadata.Parse(metaTokens)
	parsed := deckparse.ParseWithTargets(cardTokens, p.cfg.Targets)

	stage = StageMatching
	result := &DecklistResult{
		ID:             uuid.NewString(),
		Metadata:       meta,
		UnparsedTokens: parsed.Unparsed,
	}
	for _, item := range parsed.Items {
		result.appendCard(item.Section, p.matcher.Resolve(item))
	}
	result.computeStats()

	stage = StageComplete
	p.logger.Info("image processed",
		"filename", filename,
		"stage", stage,
		"total_cards", result.Stats.TotalCards,
		"matched_cards", result.Stats.MatchedCards,
		"accuracy", result.Stats.Accuracy,
		"unparsed_tokens", result.UnparsedTokens)
	return result, nil
}
