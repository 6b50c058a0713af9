// Package segment splits a decklist image into the metadata band and the
// card-list bands the rest of the pipeline consumes.
package segment

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Kind labels what a region contains.
type Kind string

const (
	KindMetadata Kind = "metadata"
	KindCards    Kind = "cards"
)

// Region is one crop rectangle within the source image.
type Region struct {
	Kind Kind
	Rect image.Rectangle
}

// Config controls band geometry. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// MetadataFraction is the fallback height fraction of the metadata band
	// when color boundary detection is disabled or finds nothing.
	MetadataFraction float64

	// DetectBoundary scans the left edge for the transition from the
	// metadata panel background to the card panel background.
	DetectBoundary bool

	// SkipTopFraction excludes the top of the image from the boundary scan,
	// past any status bar or window chrome.
	SkipTopFraction float64

	// SampleXFraction is the horizontal sample position for the scan,
	// as a fraction of image width from the left edge.
	SampleXFraction float64

	// Columns splits the card band into equal vertical columns. Values
	// below 1 mean a single full-width band.
	Columns int
}

// DefaultConfig matches the known decklist screenshot template.
func DefaultConfig() Config {
	return Config{
		MetadataFraction: 0.20,
		DetectBoundary:   true,
		SkipTopFraction:  0.10,
		SampleXFraction:  0.05,
		Columns:          1,
	}
}

// Panel background colors of the decklist template. The metadata header and
// the card list render on distinct fills, which makes the boundary findable
// by a single column scan.
var (
	metadataBG = color.NRGBA{R: 0x1e, G: 0x30, B: 0x44, A: 0xff}
	cardsBG    = color.NRGBA{R: 0x01, G: 0x39, B: 0x50, A: 0xff}
)

const (
	colorMatchThreshold = 30.0
	requiredConsecutive = 5
)

// minDimension guards against images too small to carry any text.
const minDimension = 16

// Layout computes the crop rectangles for an image of the given size without
// touching pixel data. boundaryY is the first row of the card band.
func Layout(width, height, boundaryY, columns int) []Region {
	if boundaryY < 1 {
		boundaryY = 1
	}
	if boundaryY >= height {
		boundaryY = height - 1
	}
	regions := []Region{
		{Kind: KindMetadata, Rect: image.Rect(0, 0, width, boundaryY)},
	}
	if columns < 1 {
		columns = 1
	}
	colWidth := width / columns
	for c := 0; c < columns; c++ {
		x0 := c * colWidth
		x1 := x0 + colWidth
		if c == columns-1 {
			x1 = width
		}
		regions = append(regions, Region{Kind: KindCards, Rect: image.Rect(x0, boundaryY, x1, height)})
	}
	return regions
}

// Split crops an image into its metadata and card regions.
func Split(img image.Image, cfg Config) ([]Region, []image.Image, error) {
	if img == nil {
		return nil, nil, errors.New("image is nil")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < minDimension || h < minDimension {
		return nil, nil, fmt.Errorf("image too small to segment: %dx%d", w, h)
	}

	boundaryY := int(float64(h) * cfg.MetadataFraction)
	if cfg.DetectBoundary {
		if y, ok := detectBoundary(img, cfg); ok {
			boundaryY = y
		}
	}

	regions := Layout(w, h, boundaryY, cfg.Columns)
	crops := make([]image.Image, len(regions))
	for i, r := range regions {
		crops[i] = imaging.Crop(img, r.Rect)
	}
	return regions, crops, nil
}

// detectBoundary scans a single column downward for the first run of card
// panel pixels. Returns the row where the card band begins.
func detectBoundary(img image.Image, cfg Config) (int, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	skip := int(float64(h) * cfg.SkipTopFraction)
	sampleX := b.Min.X + int(float64(w)*cfg.SampleXFraction)
	if sampleX >= b.Max.X {
		sampleX = b.Max.X - 1
	}

	consecutive := 0
	for y := b.Min.Y + skip; y < b.Max.Y; y++ {
		px := img.At(sampleX, y)
		dCards := colorDistance(px, cardsBG)
		dMeta := colorDistance(px, metadataBG)
		if dCards < dMeta && dCards < colorMatchThreshold {
			consecutive++
			if consecutive >= requiredConsecutive {
				return y - b.Min.Y - requiredConsecutive + 1, true
			}
		} else {
			consecutive = 0
		}
	}
	return 0, false
}

func colorDistance(a color.Color, b color.NRGBA) float64 {
	ar, ag, ab, _ := a.RGBA()
	dr := float64(ar>>8) - float64(b.R)
	dg := float64(ag>>8) - float64(b.G)
	db := float64(ab>>8) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}
