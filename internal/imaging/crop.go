package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
)

// Decode reads a screenshot in any format the imaging package registers
// (PNG, JPEG, GIF, BMP, TIFF).
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has zero area (%dx%d)", b.Dx(), b.Dy())
	}
	return img, nil
}

// Options tunes the preprocessing applied to a crop before recognition.
type Options struct {
	Grayscale bool
	Contrast  float64 // percentage, -100..100
	Sharpen   float64 // sigma; 0 disables
	MinHeight int     // crops shorter than this are upscaled; 0 disables
}

// DefaultOptions is tuned for light game UI text on dark backgrounds.
var DefaultOptions = Options{
	Grayscale: true,
	Contrast:  15,
	Sharpen:   0.7,
	MinHeight: 120,
}

// CropRegion extracts rect from img. rect is expressed in the image's own
// 0-based coordinate space and is intersected with the image bounds.
func CropRegion(img image.Image, rect image.Rectangle) (*image.NRGBA, error) {
	b := img.Bounds()
	rect = rect.Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("crop region %v is empty within image bounds %v", rect, b)
	}
	return imaging.Crop(img, rect), nil
}

// Prepare applies the preprocessing pipeline to a cropped region.
func Prepare(img image.Image, opts Options) *image.NRGBA {
	out := imaging.Clone(img)
	if opts.Grayscale {
		out = imaging.Grayscale(out)
	}
	if opts.Contrast != 0 {
		out = imaging.AdjustContrast(out, opts.Contrast)
	}
	if opts.Sharpen > 0 {
		out = imaging.Sharpen(out, opts.Sharpen)
	}
	if opts.MinHeight > 0 && out.Bounds().Dy() < opts.MinHeight {
		out = imaging.Resize(out, 0, opts.MinHeight, imaging.Lanczos)
	}
	return out
}

// EncodePNG serializes a crop for engines that take encoded bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}

// RegionPNG crops, preprocesses and encodes one region in a single call.
func RegionPNG(img image.Image, rect image.Rectangle, opts Options) ([]byte, error) {
	cropped, err := CropRegion(img, rect)
	if err != nil {
		return nil, err
	}
	return EncodePNG(Prepare(cropped, opts))
}
