// Package imaging provides image normalization for the studio pipeline:
// sanitizing uploads, finalizing provider output, and preparing outpainting
// canvases. All functions are pure; callers own the returned buffers.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	imgdraw "image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Normalization errors
var (
	ErrEmptyImage    = errors.New("imaging: empty image data")
	ErrInvalidImage  = errors.New("imaging: invalid image data")
	ErrInvalidAspect = errors.New("imaging: invalid target aspect ratio")
)

// Limits enforced by Sanitize. Oversized inputs fail with a descriptive
// error instead of exhausting memory during decode or re-encode.
const (
	// MaxInputBytes caps accepted file size (18MB).
	MaxInputBytes = 18 * 1024 * 1024

	// MaxInputPixels caps decoded dimensions (16 megapixels).
	MaxInputPixels = 16 * 1024 * 1024

	// MaxProviderPixels caps images returned by a provider before the
	// watermark crop (8 megapixels); larger results are downscaled.
	MaxProviderPixels = 8 * 1024 * 1024

	// WatermarkCropPx is the height of the black bar some hosted models
	// append at the bottom of every result.
	WatermarkCropPx = 8

	// OutpaintCanvasEdge is the long edge of the canvas built by
	// PadToAspect, targeting roughly one megapixel.
	OutpaintCanvasEdge = 1024
)

// Normalized is the result of a normalization operation: PNG-encoded bytes
// plus the decoded dimensions.
type Normalized struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Sanitize decodes raw image data, enforces size and pixel limits, strips
// metadata by re-encoding, and returns a clean PNG payload.
//
// The declared MIME type is advisory only; the actual format is detected
// from the data. Corrupt or oversized inputs fail with a fatal error.
func Sanitize(raw []byte, declaredMime string) (*Normalized, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyImage
	}
	if len(raw) > MaxInputBytes {
		return nil, fmt.Errorf("imaging: image file size (%.1fMB) exceeds the limit of %dMB",
			float64(len(raw))/1024/1024, MaxInputBytes/1024/1024)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width*cfg.Height > MaxInputPixels {
		return nil, fmt.Errorf("imaging: image dimensions (%dx%d) are too large; use an image under %d megapixels",
			cfg.Width, cfg.Height, MaxInputPixels/1024/1024)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return encodePNG(img)
}

// FinalizeProviderImage is the final processing step for every image
// returned by a remote provider. It sanitizes the payload, downscales
// anything above MaxProviderPixels, and crops the watermark bar from the
// bottom edge.
func FinalizeProviderImage(data []byte, mimeType string) (*Normalized, error) {
	sanitized, err := Sanitize(data, mimeType)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(sanitized.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	if w*h > MaxProviderPixels {
		ratio := float64(w) / float64(h)
		h = int(math.Round(math.Sqrt(float64(MaxProviderPixels) / ratio)))
		w = int(math.Round(float64(h) * ratio))
		img = scale(img, w, h)
	}

	finalH := h - WatermarkCropPx
	if finalH < 1 {
		finalH = 1
	}

	cropped := image.NewRGBA(image.Rect(0, 0, w, finalH))
	imgdraw.Draw(cropped, cropped.Bounds(), img, img.Bounds().Min, imgdraw.Src)

	return encodePNG(cropped)
}

// PadToAspect places the source image on a black canvas of the target
// aspect ratio, object-fit-contain style. The canvas targets roughly one
// megapixel with its long edge at OutpaintCanvasEdge. The black margins are
// the regions an edit model is expected to outpaint.
func PadToAspect(raw []byte, mimeType string, ratioW, ratioH int) (*Normalized, error) {
	if ratioW <= 0 || ratioH <= 0 {
		return nil, ErrInvalidAspect
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	srcW := src.Bounds().Dx()
	srcH := src.Bounds().Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("%w: source image has zero dimensions", ErrInvalidImage)
	}

	targetRatio := float64(ratioW) / float64(ratioH)
	var canvasW, canvasH int
	if targetRatio >= 1 {
		canvasW = OutpaintCanvasEdge
		canvasH = int(math.Round(float64(OutpaintCanvasEdge) / targetRatio))
	} else {
		canvasH = OutpaintCanvasEdge
		canvasW = int(math.Round(float64(OutpaintCanvasEdge) * targetRatio))
	}

	// Contain: scale to fit entirely inside the canvas, centered.
	s := math.Min(float64(canvasW)/float64(srcW), float64(canvasH)/float64(srcH))
	drawW := int(math.Round(float64(srcW) * s))
	drawH := int(math.Round(float64(srcH) * s))
	offsetX := (canvasW - drawW) / 2
	offsetY := (canvasH - drawH) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	imgdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, imgdraw.Src)

	scaled := scale(src, drawW, drawH)
	target := image.Rect(offsetX, offsetY, offsetX+drawW, offsetY+drawH)
	imgdraw.Draw(canvas, target, scaled, scaled.Bounds().Min, imgdraw.Over)

	return encodePNG(canvas)
}

// scale resizes img to w x h using high-quality Catmull-Rom interpolation.
func scale(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// encodePNG renders img to a PNG Normalized payload.
func encodePNG(img image.Image) (*Normalized, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imaging: failed to encode image: %w", err)
	}
	return &Normalized{
		Data:     buf.Bytes(),
		MimeType: "image/png",
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
	}, nil
}

// EncodeJPEG re-encodes a normalized image as JPEG at the given quality.
// Useful when a provider requires JPEG inputs.
func EncodeJPEG(n *Normalized, quality int) (*Normalized, error) {
	img, _, err := image.Decode(bytes.NewReader(n.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: failed to encode jpeg: %w", err)
	}
	return &Normalized{
		Data:     buf.Bytes(),
		MimeType: "image/jpeg",
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
	}, nil
}
