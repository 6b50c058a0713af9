// Package pipeline composes segmentation, text extraction, parsing and
// catalog matching into a single decklist result per image.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/decklens/decklens/internal/catalog"
	"github.com/decklens/decklens/internal/deckparse"
	"github.com/decklens/decklens/internal/match"
	"github.com/decklens/decklens/internal/ocrengine"
	"github.com/decklens/decklens/internal/segment"
)

// Config holds configuration for the decklist pipeline and its components.
type Config struct {
	Segment segment.Config
	Engine  ocrengine.ONNXConfig
	Match   match.Config
	Targets deckparse.Targets
	Catalog catalog.Config
}

// DefaultConfig returns a pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Segment: segment.DefaultConfig(),
		Engine:  ocrengine.DefaultONNXConfig(),
		Match:   match.DefaultConfig(),
		Targets: deckparse.DefaultTargets(),
	}
}

// Pipeline converts one decklist image into a structured result. Safe for
// concurrent use once built; the engine is the only component whose
// concurrency limits callers must respect.
type Pipeline struct {
	cfg     Config
	engine  ocrengine.Engine
	catalog *catalog.Catalog
	matcher *match.Matcher
	logger  *slog.Logger
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg    Config
	engine ocrengine.Engine
	logger *slog.Logger
}

// NewBuilder creates a pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithModelPath sets the recognition model path.
func (b *Builder) WithModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Engine.ModelPath = path
	}
	return b
}

// WithDictionaryPath sets the recognition dictionary path.
func (b *Builder) WithDictionaryPath(path string) *Builder {
	if path != "" {
		b.cfg.Engine.DictPath = path
	}
	return b
}

// WithCatalogDataset overrides the embedded card dataset.
func (b *Builder) WithCatalogDataset(path string) *Builder {
	if path != "" {
		b.cfg.Catalog.DatasetPath = path
	}
	return b
}

// WithAliasPath sets the catalog alias overlay file.
func (b *Builder) WithAliasPath(path string) *Builder {
	if path != "" {
		b.cfg.Catalog.AliasPath = path
	}
	return b
}

// WithFuzzyThreshold sets the fuzzy match acceptance floor in [0,1].
func (b *Builder) WithFuzzyThreshold(v float64) *Builder {
	if v > 0 {
		b.cfg.Match.FuzzyThreshold = v
	}
	return b
}

// WithEngine injects a pre-built recognition engine instead of loading the
// ONNX model from config. The pipeline takes ownership and closes it.
func (b *Builder) WithEngine(e ocrengine.Engine) *Builder {
	b.engine = e
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Build loads the catalog and recognition engine and wires the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := catalog.Load(b.cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog loaded", "entries", cat.Size(), "base_names", cat.BaseNameCount())

	engine := b.engine
	if engine == nil {
		engine, err = ocrengine.NewONNXEngine(b.cfg.Engine)
		if err != nil {
			return nil, fmt.Errorf("init recognition engine: %w", err)
		}
	}

	return &Pipeline{
		cfg:     b.cfg,
		engine:  engine,
		catalog: cat,
		matcher: match.New(cat, b.cfg.Match, logger),
		logger:  logger,
	}, nil
}

// Catalog exposes the loaded catalog for diagnostics.
func (p *Pipeline) Catalog() *catalog.Catalog { return p.catalog }

// EngineName reports which recognition engine backs the pipeline.
func (p *Pipeline) EngineName() string { return p.engine.Name() }

// NumberMismatches reports how many matches disagreed with a printed card
// number.
func (p *Pipeline) NumberMismatches() int64 { return p.matcher.NumberMismatches() }

// Close releases the recognition engine.
func (p *Pipeline) Close() error {
	if p.engine != nil {
		return p.engine.Close()
	}
	return nil
}
