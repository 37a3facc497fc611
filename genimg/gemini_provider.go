// Package genimg provides remote image generation providers and the
// error classification contract consumed by the batch pipeline.
//
// gemini_provider.go implements Provider on top of the Google GenAI SDK:
// an Imagen model for text-to-image, a flash image model for edits, and a
// flash text model for prompt elaboration.
package genimg

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"imagestudio/imaging"
)

// Default Gemini model identifiers.
const (
	DefaultImagenModel     = "imagen-4.0-generate-001"
	DefaultGeminiEditModel = "gemini-2.5-flash-image-preview"
	DefaultGeminiTextModel = "gemini-2.5-flash"
)

// GeminiProviderConfig holds configuration for the Gemini provider.
type GeminiProviderConfig struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// GenerateModel is the Imagen model for text-to-image calls.
	GenerateModel string

	// EditModel is the multimodal model for image edits.
	EditModel string

	// TextModel is the model used for prompt elaboration.
	TextModel string
}

// DefaultGeminiProviderConfig returns sensible defaults for Gemini.
func DefaultGeminiProviderConfig(apiKey string) GeminiProviderConfig {
	return GeminiProviderConfig{
		APIKey:        apiKey,
		GenerateModel: DefaultImagenModel,
		EditModel:     DefaultGeminiEditModel,
		TextModel:     DefaultGeminiTextModel,
	}
}

// GeminiProvider implements Provider using the hosted Gemini API.
//
// Thread Safety: GeminiProvider is safe for concurrent use; the underlying
// client handles connection pooling.
type GeminiProvider struct {
	client *genai.Client
	config GeminiProviderConfig
}

// NewGeminiProvider creates a Gemini-backed image generation provider.
//
// Returns an error if the API key is missing or the client cannot be
// constructed.
func NewGeminiProvider(ctx context.Context, cfg GeminiProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genimg: Gemini API key is required")
	}
	if cfg.GenerateModel == "" {
		cfg.GenerateModel = DefaultImagenModel
	}
	if cfg.EditModel == "" {
		cfg.EditModel = DefaultGeminiEditModel
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultGeminiTextModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genimg: failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: cfg,
	}, nil
}

// Generate creates one image from a prompt via the Imagen model.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*ImageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Imagen has no notion of "keep the source shape"; fall back to square.
	aspect := string(req.AspectRatio)
	if req.AspectRatio == AspectSource {
		aspect = string(AspectSquare)
	}

	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    aspect,
		NegativePrompt: req.NegativePrompt,
	}
	if req.Seed != nil {
		cfg.Seed = genai.Ptr(int32(*req.Seed))
	}

	resp, err := p.client.Models.GenerateImages(ctx, p.config.GenerateModel, req.Prompt, cfg)
	if err != nil {
		return nil, ClassifyAPIError(err)
	}

	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		return nil, fmt.Errorf("genimg: the API did not return an image; this might be due to safety filters")
	}

	img := resp.GeneratedImages[0].Image
	return finalizeResult(img.ImageBytes, "image/jpeg")
}

// Edit produces one image from the staged source images plus an instruction
// prompt. Each source is attached as inline image data ahead of the text
// part, so the prompt can reference sources positionally (@img1..@img8).
func (p *GeminiProvider) Edit(ctx context.Context, req EditRequest) (*ImageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	parts := make([]*genai.Part, 0, len(req.Sources)+1)
	for _, src := range req.Sources {
		parts = append(parts, genai.NewPartFromBytes(src.Data, src.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	content := &genai.Content{Parts: parts}

	resp, err := p.client.Models.GenerateContent(
		ctx,
		p.config.EditModel,
		[]*genai.Content{content},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	)
	if err != nil {
		return nil, ClassifyAPIError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("genimg: the API returned no candidates")
	}

	candidate := resp.Candidates[0]
	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return finalizeResult(part.InlineData.Data, part.InlineData.MIMEType)
		}
	}

	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("genimg: the edit was blocked due to safety settings; the model may have refused to generate the requested content")
	}

	var textResponse string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			textResponse = part.Text
			break
		}
	}
	return nil, fmt.Errorf("genimg: the API did not return an image (reason: %s, response: %s)",
		orUnknown(string(candidate.FinishReason)), orUnknown(textResponse))
}

// Elaborate rewrites a terse prompt into a more descriptive one via the
// text model.
func (p *GeminiProvider) Elaborate(ctx context.Context, prompt string) (string, error) {
	instruction := fmt.Sprintf(
		"You are a creative assistant. Elaborate on the following user prompt for an image generation tool. "+
			"Make it more descriptive and evocative. Do not add any conversational text, just the elaborated prompt. "+
			"User prompt: %q", prompt)

	resp, err := p.client.Models.GenerateContent(
		ctx,
		p.config.TextModel,
		genai.Text(instruction),
		&genai.GenerateContentConfig{
			StopSequences: []string{"\n"},
			Temperature:   genai.Ptr(float32(0.8)),
		},
	)
	if err != nil {
		return "", ClassifyAPIError(err)
	}

	elaborated := strings.TrimSpace(resp.Text())
	if elaborated == "" {
		return "", fmt.Errorf("genimg: the model returned an empty elaboration")
	}
	return elaborated, nil
}

// finalizeResult runs provider output through the shared normalization step
// (sanitize, downscale, watermark crop) and wraps it as an ImageResult.
func finalizeResult(data []byte, mimeType string) (*ImageResult, error) {
	finalized, err := imaging.FinalizeProviderImage(data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("genimg: failed to process returned image: %w", err)
	}
	return &ImageResult{
		Data:     finalized.Data,
		MimeType: finalized.MimeType,
		Width:    finalized.Width,
		Height:   finalized.Height,
	}, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
