// Package genimg provides remote image generation providers and the
// error classification contract consumed by the batch pipeline.
//
// provider.go defines the Provider interface and request/result types.
// Each provider (Gemini, OpenAI) implements this interface so the studio
// layer can swap generation backends without touching workflow code.
package genimg

import (
	"context"
	"fmt"
)

// AspectRatio is the requested output shape for a generation call.
// "source" keeps the source image's shape and is only meaningful for edits.
type AspectRatio string

// Supported aspect ratios. These mirror what the hosted models accept.
const (
	AspectSource      AspectRatio = "source"
	AspectSquare      AspectRatio = "1:1"
	AspectWidescreen  AspectRatio = "16:9"
	AspectPortrait    AspectRatio = "9:16"
	AspectTraditional AspectRatio = "3:4"
	AspectClassic     AspectRatio = "4:3"
)

// Valid reports whether a is one of the supported aspect ratios.
func (a AspectRatio) Valid() bool {
	switch a {
	case AspectSource, AspectSquare, AspectWidescreen, AspectPortrait, AspectTraditional, AspectClassic:
		return true
	}
	return false
}

// Dimensions returns the width/height proportions of the ratio.
// Returns ok=false for AspectSource, which has no fixed shape.
func (a AspectRatio) Dimensions() (w, h int, ok bool) {
	switch a {
	case AspectSquare:
		return 1, 1, true
	case AspectWidescreen:
		return 16, 9, true
	case AspectPortrait:
		return 9, 16, true
	case AspectTraditional:
		return 3, 4, true
	case AspectClassic:
		return 4, 3, true
	}
	return 0, 0, false
}

// ImageResult is the payload of one successful generation or edit call.
type ImageResult struct {
	// Data is the raw encoded image bytes.
	Data []byte

	// MimeType is the encoding of Data (image/png or image/jpeg).
	MimeType string

	// Width and Height are the pixel dimensions of the decoded image.
	Width  int
	Height int
}

// SourceImage is one staged input to an edit call.
type SourceImage struct {
	Data     []byte
	MimeType string
}

// GenerateRequest describes a single text-to-image call.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    AspectRatio

	// Seed, when non-nil, requests deterministic generation.
	Seed *uint32
}

// EditRequest describes a single image-edit call over 1..8 source images.
type EditRequest struct {
	Sources        []SourceImage
	Prompt         string
	NegativePrompt string
	AspectRatio    AspectRatio
	Seed           *uint32
}

// MaxEditSources is the maximum number of source images an edit accepts.
const MaxEditSources = 8

// Validate checks structural preconditions before any remote call is made.
func (r EditRequest) Validate() error {
	if len(r.Sources) == 0 {
		return &ValidationError{Message: "at least one source image is required for editing"}
	}
	if len(r.Sources) > MaxEditSources {
		return &ValidationError{Message: fmt.Sprintf("at most %d source images are supported, got %d", MaxEditSources, len(r.Sources))}
	}
	if !r.AspectRatio.Valid() {
		return &ValidationError{Message: fmt.Sprintf("invalid aspect ratio %q", r.AspectRatio)}
	}
	return nil
}

// Validate checks structural preconditions before any remote call is made.
func (r GenerateRequest) Validate() error {
	if r.Prompt == "" {
		return &ValidationError{Message: "prompt cannot be empty"}
	}
	if !r.AspectRatio.Valid() {
		return &ValidationError{Message: fmt.Sprintf("invalid aspect ratio %q", r.AspectRatio)}
	}
	return nil
}

// Provider is the interface for hosted image generation backends.
//
// Every call either resolves with an ImageResult or fails with a classified
// error: *RateLimitError (retryable), *QuotaError (fatal), or anything else
// (fatal). See ClassifyAPIError.
type Provider interface {
	// Generate creates one image from a prompt.
	Generate(ctx context.Context, req GenerateRequest) (*ImageResult, error)

	// Edit produces one image from 1..8 source images plus an instruction
	// prompt.
	Edit(ctx context.Context, req EditRequest) (*ImageResult, error)

	// Elaborate rewrites a terse user prompt into a more descriptive one.
	// This is a single-shot text call, never routed through the batch
	// pipeline.
	Elaborate(ctx context.Context, prompt string) (string, error)
}
