package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCropRegion(t *testing.T) {
	img := createInMemoryImage(200, 100, color.RGBA{255, 0, 0, 255})

	cropped, err := CropRegion(img, image.Rect(10, 20, 70, 60))
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	if cropped.Bounds().Dx() != 60 || cropped.Bounds().Dy() != 40 {
		t.Errorf("dimensions: got %dx%d, want 60x40", cropped.Bounds().Dx(), cropped.Bounds().Dy())
	}
}

func TestCropRegion_ClipsToBounds(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{0, 255, 0, 255})

	cropped, err := CropRegion(img, image.Rect(80, 80, 150, 150))
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	if cropped.Bounds().Dx() != 20 || cropped.Bounds().Dy() != 20 {
		t.Errorf("dimensions: got %dx%d, want 20x20", cropped.Bounds().Dx(), cropped.Bounds().Dy())
	}
}

func TestCropRegion_NonZeroOrigin(t *testing.T) {
	full := createInMemoryImage(100, 100, color.RGBA{0, 0, 255, 255})
	sub := full.SubImage(image.Rect(50, 50, 100, 100))

	cropped, err := CropRegion(sub, image.Rect(0, 0, 10, 10))
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	if cropped.Bounds().Dx() != 10 || cropped.Bounds().Dy() != 10 {
		t.Errorf("dimensions: got %dx%d, want 10x10", cropped.Bounds().Dx(), cropped.Bounds().Dy())
	}
}

func TestCropRegion_Empty(t *testing.T) {
	img := createInMemoryImage(50, 50, color.White)

	tests := []struct {
		name string
		rect image.Rectangle
	}{
		{"zero area", image.Rect(10, 10, 10, 10)},
		{"outside", image.Rect(60, 60, 80, 80)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CropRegion(img, tt.rect); err == nil {
				t.Error("expected error for empty crop")
			}
		})
	}
}

func TestPrepare_UpscalesShortCrops(t *testing.T) {
	img := createInMemoryImage(40, 20, color.RGBA{200, 200, 200, 255})

	out := Prepare(img, Options{Grayscale: true, MinHeight: 60})
	if out.Bounds().Dy() != 60 {
		t.Errorf("height: got %d, want 60", out.Bounds().Dy())
	}
	if out.Bounds().Dx() != 120 {
		t.Errorf("width should keep aspect ratio: got %d, want 120", out.Bounds().Dx())
	}
}

func TestRegionPNG_RoundTrip(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{10, 20, 30, 255})

	data, err := RegionPNG(img, image.Rect(0, 0, 50, 50), Options{})
	if err != nil {
		t.Fatalf("RegionPNG failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 50 {
		t.Errorf("width: got %d, want 50", decoded.Bounds().Dx())
	}
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createInMemoryImage(8, 4, color.Black)); err != nil {
		t.Fatal(err)
	}
	img, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("dimensions: got %v", img.Bounds())
	}

	if _, err := Decode(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestDecode_Formats(t *testing.T) {
	src := createInMemoryImage(8, 4, color.White)
	for _, format := range []imaging.Format{imaging.JPEG, imaging.GIF, imaging.BMP, imaging.TIFF} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := imaging.Encode(&buf, src, format); err != nil {
				t.Fatal(err)
			}
			img, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
				t.Errorf("dimensions: got %v", img.Bounds())
			}
		})
	}
}
