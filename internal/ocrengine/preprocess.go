package ocrengine

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/decklens/decklens/internal/mempool"
)

// lineStrip is one horizontal text line candidate within a region.
type lineStrip struct {
	img image.Image
	box Box
}

// inkThreshold separates text pixels from background on the luminance axis.
// Decklist screenshots render light text on dark panels and dark text on
// light panels, so a row counts as inked when it deviates from the region's
// dominant luminance.
const inkThreshold = 40.0

// minLineHeight discards speckle rows that survive thresholding.
const minLineHeight = 6

// splitLines slices a region into horizontal text line strips using a row
// luminance profile. Regions that already fit a single line come back whole.
func splitLines(region image.Image) []lineStrip {
	b := region.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	gray := imaging.Grayscale(region)
	background := dominantLuminance(gray)

	inked := make([]bool, h)
	for y := 0; y < h; y++ {
		var deviating int
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(gray.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			if absDiff(float64(c.Y), background) > inkThreshold {
				deviating++
			}
		}
		// A text row has a visible but minority share of ink pixels.
		inked[y] = deviating > w/100
	}

	var strips []lineStrip
	start := -1
	for y := 0; y <= h; y++ {
		isInk := y < h && inked[y]
		switch {
		case isInk && start < 0:
			start = y
		case !isInk && start >= 0:
			if y-start >= minLineHeight {
				crop := imaging.Crop(region, image.Rect(b.Min.X, b.Min.Y+start, b.Max.X, b.Min.Y+y))
				strips = append(strips, lineStrip{
					img: crop,
					box: Box{X: 0, Y: start, W: w, H: y - start},
				})
			}
			start = -1
		}
	}

	if len(strips) == 0 {
		return []lineStrip{{img: region, box: Box{X: 0, Y: 0, W: w, H: h}}}
	}
	return strips
}

func dominantLuminance(img image.Image) float64 {
	b := img.Bounds()
	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		for x := b.Min.X; x < b.Max.X; x += 2 {
			c := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			hist[c.Y]++
		}
	}
	best := 0
	for v := range hist {
		if hist[v] > hist[best] {
			best = v
		}
	}
	return float64(best)
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// resizeForRecognition scales a line strip to the model's fixed input height,
// preserving aspect ratio, clamping to maxWidth and right-padding the width
// to a multiple when requested.
func resizeForRecognition(img image.Image, targetHeight, maxWidth, padToMultiple int) (image.Image, int, error) {
	if img == nil {
		return nil, 0, errors.New("input image is nil")
	}
	if targetHeight <= 0 {
		return nil, 0, fmt.Errorf("invalid target height: %d", targetHeight)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, 0, errors.New("empty line strip")
	}

	scale := float64(targetHeight) / float64(h)
	newW := int(float64(w) * scale)
	if newW < 1 {
		newW = 1
	}
	if maxWidth > 0 && newW > maxWidth {
		newW = maxWidth
	}

	resized := imaging.Resize(img, newW, targetHeight, imaging.Lanczos)

	outW := newW
	if padToMultiple > 0 {
		if rem := newW % padToMultiple; rem != 0 {
			outW = newW + (padToMultiple - rem)
		}
	}
	if outW == newW {
		return resized, outW, nil
	}
	canvas := imaging.New(outW, targetHeight, color.Black)
	canvas = imaging.Paste(canvas, resized, image.Pt(0, 0))
	return canvas, outW, nil
}

// normalizeNCHW converts an image to a float32 [1,3,H,W] tensor scaled to
// [-1,1], the PaddleOCR recognition input convention. The buffer comes from
// mempool and the caller must return it with PutFloat32.
func normalizeNCHW(img image.Image) ([]float32, []int64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := mempool.GetFloat32(3 * h * w)
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = float32(r>>8)/127.5 - 1
			data[plane+i] = float32(g>>8)/127.5 - 1
			data[2*plane+i] = float32(bl>>8)/127.5 - 1
		}
	}
	return data, []int64{1, 3, int64(h), int64(w)}
}
