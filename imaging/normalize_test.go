package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodeTestImage(t *testing.T, w, h int, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func TestSanitizeReEncodesAsPNG(t *testing.T) {
	raw := encodeTestImage(t, 32, 24, "jpeg")

	out, err := Sanitize(raw, "image/jpeg")
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	if out.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", out.MimeType)
	}
	if out.Width != 32 || out.Height != 24 {
		t.Errorf("dimensions = %dx%d, want 32x24", out.Width, out.Height)
	}

	if _, err := png.Decode(bytes.NewReader(out.Data)); err != nil {
		t.Errorf("output is not valid PNG: %v", err)
	}
}

func TestSanitizeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmptyImage},
		{"garbage", []byte("not an image at all"), ErrInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sanitize(tt.data, "image/png")
			if !errors.Is(err, tt.want) {
				t.Errorf("Sanitize = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSanitizeRejectsOversizedFile(t *testing.T) {
	oversized := make([]byte, MaxInputBytes+1)
	if _, err := Sanitize(oversized, "image/png"); err == nil {
		t.Error("Sanitize accepted a file above the byte limit")
	}
}

func TestFinalizeProviderImageCropsWatermark(t *testing.T) {
	raw := encodeTestImage(t, 64, 64, "png")

	out, err := FinalizeProviderImage(raw, "image/png")
	if err != nil {
		t.Fatalf("FinalizeProviderImage: %v", err)
	}
	if out.Width != 64 {
		t.Errorf("width = %d, want 64", out.Width)
	}
	if out.Height != 64-WatermarkCropPx {
		t.Errorf("height = %d, want %d (watermark bar cropped)", out.Height, 64-WatermarkCropPx)
	}
}

func TestFinalizeProviderImageDownscalesLargeResults(t *testing.T) {
	// 4096x3072 = 12MP, above the 8MP provider cap.
	raw := encodeTestImage(t, 4096, 3072, "png")

	out, err := FinalizeProviderImage(raw, "image/png")
	if err != nil {
		t.Fatalf("FinalizeProviderImage: %v", err)
	}
	if out.Width*out.Height > MaxProviderPixels {
		t.Errorf("result %dx%d still above the pixel cap", out.Width, out.Height)
	}

	// Aspect ratio preserved within rounding error.
	ratio := float64(out.Width) / float64(out.Height+WatermarkCropPx)
	if ratio < 1.32 || ratio > 1.35 {
		t.Errorf("aspect ratio drifted to %.3f, want ~4:3", ratio)
	}
}

func TestPadToAspect(t *testing.T) {
	raw := encodeTestImage(t, 100, 100, "png")

	out, err := PadToAspect(raw, "image/png", 16, 9)
	if err != nil {
		t.Fatalf("PadToAspect: %v", err)
	}
	if out.Width != OutpaintCanvasEdge {
		t.Errorf("canvas width = %d, want %d", out.Width, OutpaintCanvasEdge)
	}
	wantH := 576 // 1024 / (16/9)
	if out.Height != wantH {
		t.Errorf("canvas height = %d, want %d", out.Height, wantH)
	}

	img, err := png.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("decoding canvas: %v", err)
	}

	// Corners must be the black fill the model is asked to outpaint.
	r, g, b, _ := img.At(0, 0).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("corner pixel = (%d,%d,%d), want black", r, g, b)
	}

	// Center carries the contained source image.
	r, g, b, _ = img.At(out.Width/2, out.Height/2).RGBA()
	if r == 0 && g == 0 && b == 0 {
		t.Error("center pixel is black; source image missing from the canvas")
	}
}

func TestPadToAspectPortrait(t *testing.T) {
	raw := encodeTestImage(t, 100, 100, "png")

	out, err := PadToAspect(raw, "image/png", 9, 16)
	if err != nil {
		t.Fatalf("PadToAspect: %v", err)
	}
	if out.Height != OutpaintCanvasEdge {
		t.Errorf("canvas height = %d, want %d", out.Height, OutpaintCanvasEdge)
	}
	if out.Width >= out.Height {
		t.Errorf("canvas %dx%d is not portrait", out.Width, out.Height)
	}
}

func TestPadToAspectRejectsBadRatio(t *testing.T) {
	raw := encodeTestImage(t, 10, 10, "png")

	for _, dims := range [][2]int{{0, 9}, {16, 0}, {-1, 9}} {
		if _, err := PadToAspect(raw, "image/png", dims[0], dims[1]); !errors.Is(err, ErrInvalidAspect) {
			t.Errorf("PadToAspect(%v) = %v, want ErrInvalidAspect", dims, err)
		}
	}
}

func TestEncodeJPEG(t *testing.T) {
	raw := encodeTestImage(t, 16, 16, "png")
	normalized, err := Sanitize(raw, "image/png")
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}

	out, err := EncodeJPEG(normalized, 90)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	if out.MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q, want image/jpeg", out.MimeType)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out.Data)); err != nil {
		t.Errorf("output is not valid JPEG: %v", err)
	}
}
