// Package ocrengine wraps external text recognition engines behind a single
// capability interface. Callers never learn which engine produced a token.
package ocrengine

import (
	"context"
	"image"
)

// Box is an axis-aligned token bounding box in region coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Token is one recognized text unit with its position and confidence in [0,1].
type Token struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Engine recognizes text in an image region. Implementations must be safe for
// use from the configured number of batch workers.
type Engine interface {
	// Name identifies the engine in diagnostics and /stats output.
	Name() string

	// Recognize extracts text tokens from the region image. A region with no
	// legible text yields an empty slice and a nil error; an error means the
	// engine itself failed and the caller should degrade to zero tokens.
	Recognize(ctx context.Context, region image.Image) ([]Token, error)

	Close() error
}

// AverageConfidence returns the mean token confidence, 0 for no tokens.
func AverageConfidence(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}
