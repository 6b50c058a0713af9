package ocrengine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
)

// Composite chains a primary engine with a fallback. The fallback runs when
// the primary errors, returns no tokens, or its average confidence falls
// below MinConfidence. Whichever pass scores higher wins.
type Composite struct {
	primary       Engine
	fallback      Engine
	minConfidence float64
	logger        *slog.Logger
}

// NewComposite builds a composite engine. fallback may be nil, in which case
// the primary's result is returned as-is.
func NewComposite(primary, fallback Engine, minConfidence float64, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{
		primary:       primary,
		fallback:      fallback,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Name identifies the engine in results and logs.
func (c *Composite) Name() string {
	if c.fallback == nil {
		return c.primary.Name()
	}
	return c.primary.Name() + "+" + c.fallback.Name()
}

// Recognize runs the primary engine and falls back when its output is weak.
func (c *Composite) Recognize(ctx context.Context, region image.Image) ([]Token, error) {
	tokens, err := c.primary.Recognize(ctx, region)
	if err == nil && len(tokens) > 0 && AverageConfidence(tokens) >= c.minConfidence {
		return tokens, nil
	}
	if c.fallback == nil {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.primary.Name(), err)
		}
		return tokens, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if err != nil {
		c.logger.Warn("primary engine failed, trying fallback",
			"primary", c.primary.Name(), "fallback", c.fallback.Name(), "error", err)
	} else {
		c.logger.Debug("primary output weak, trying fallback",
			"primary", c.primary.Name(), "tokens", len(tokens),
			"avg_confidence", AverageConfidence(tokens))
	}

	fbTokens, fbErr := c.fallback.Recognize(ctx, region)
	if fbErr != nil {
		if err != nil {
			return nil, fmt.Errorf("%s: %w (fallback %s also failed: %v)",
				c.primary.Name(), err, c.fallback.Name(), fbErr)
		}
		// Keep the weak primary result over a failing fallback.
		return tokens, nil
	}
	if err != nil || len(tokens) == 0 {
		return fbTokens, nil
	}
	if AverageConfidence(fbTokens) > AverageConfidence(tokens) {
		return fbTokens, nil
	}
	return tokens, nil
}

// Close closes both engines, returning the first error seen.
func (c *Composite) Close() error {
	var first error
	if c.primary != nil {
		if err := c.primary.Close(); err != nil {
			first = err
		}
	}
	if c.fallback != nil {
		if err := c.fallback.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
