// Package genimg provides remote image generation providers and the
// error classification contract consumed by the batch pipeline.
//
// openai_provider.go implements Provider using the OpenAI API: DALL-E for
// generation, the image-edit endpoint for edits, and a chat model for
// prompt elaboration.
package genimg

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"imagestudio/imaging"
)

// Default OpenAI model identifiers.
const (
	DefaultDallEModel      = "dall-e-3"
	DefaultDallEEditModel  = "dall-e-2"
	DefaultOpenAITextModel = "gpt-4o-mini"
)

// OpenAIProviderConfig holds configuration for the OpenAI provider.
type OpenAIProviderConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API endpoint (default: https://api.openai.com/v1).
	BaseURL string

	// GenerateModel is the image model for text-to-image calls.
	GenerateModel string

	// EditModel is the image model for edit calls. Only DALL-E 2 supports
	// the edit endpoint.
	EditModel string

	// TextModel is the chat model used for prompt elaboration.
	TextModel string

	// TempDir is where edit source images are spooled; the edit endpoint
	// requires file uploads. Default: os.TempDir().
	TempDir string
}

// DefaultOpenAIProviderConfig returns sensible defaults for OpenAI.
func DefaultOpenAIProviderConfig(apiKey string) OpenAIProviderConfig {
	return OpenAIProviderConfig{
		APIKey:        apiKey,
		BaseURL:       "https://api.openai.com/v1",
		GenerateModel: DefaultDallEModel,
		EditModel:     DefaultDallEEditModel,
		TextModel:     DefaultOpenAITextModel,
	}
}

// OpenAIProvider implements Provider for OpenAI image generation.
//
// Model limitations relative to Gemini:
//   - Negative prompts are not a first-class parameter; they are folded
//     into the prompt text as an "Avoid:" clause.
//   - The edit endpoint accepts a single square PNG, so only the first
//     staged source image is used.
//
// Thread Safety: OpenAIProvider is safe for concurrent use.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIProviderConfig
}

// NewOpenAIProvider creates an OpenAI-backed image generation provider.
func NewOpenAIProvider(cfg OpenAIProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genimg: OpenAI API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.GenerateModel == "" {
		cfg.GenerateModel = DefaultDallEModel
	}
	if cfg.EditModel == "" {
		cfg.EditModel = DefaultDallEEditModel
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultOpenAITextModel
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Generate creates one image from a prompt via DALL-E.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*ImageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt = fmt.Sprintf("%s. Avoid: %s", prompt, req.NegativePrompt)
	}

	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.config.GenerateModel,
		N:              1,
		Size:           dalleSizeFor(req.AspectRatio),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("genimg: the API did not return an image; this might be due to safety filters")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("genimg: failed to decode image payload: %w", err)
	}

	return finalizeResult(data, "image/png")
}

// Edit produces one image from the first staged source plus an instruction
// prompt via the DALL-E edit endpoint.
func (p *OpenAIProvider) Edit(ctx context.Context, req EditRequest) (*ImageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt = fmt.Sprintf("%s. Avoid: %s", prompt, req.NegativePrompt)
	}

	// The edit endpoint wants a square PNG file upload.
	src := req.Sources[0]
	sanitized, err := imaging.Sanitize(src.Data, src.MimeType)
	if err != nil {
		return nil, fmt.Errorf("genimg: invalid source image: %w", err)
	}

	file, err := os.CreateTemp(p.config.TempDir, "edit_source_*.png")
	if err != nil {
		return nil, fmt.Errorf("genimg: failed to spool source image: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)

	if _, err := file.Write(sanitized.Data); err != nil {
		file.Close()
		return nil, fmt.Errorf("genimg: failed to spool source image: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("genimg: failed to rewind source image: %w", err)
	}
	defer file.Close()

	resp, err := p.client.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          file,
		Prompt:         prompt,
		Model:          p.config.EditModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("genimg: the API did not return an edited image")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("genimg: failed to decode image payload: %w", err)
	}

	return finalizeResult(data, "image/png")
}

// Elaborate rewrites a terse prompt into a more descriptive one.
func (p *OpenAIProvider) Elaborate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.config.TextModel,
		Temperature: 0.8,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(
					"You are a creative assistant. Elaborate on the following user prompt for an image generation tool. "+
						"Make it more descriptive and evocative. Do not add any conversational text, just the elaborated prompt. "+
						"User prompt: %q", prompt),
			},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("genimg: the model returned no choices")
	}
	elaborated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if elaborated == "" {
		return "", fmt.Errorf("genimg: the model returned an empty elaboration")
	}
	return elaborated, nil
}

// dalleSizeFor maps an aspect ratio onto the nearest supported DALL-E 3
// output size.
func dalleSizeFor(a AspectRatio) string {
	switch a {
	case AspectWidescreen, AspectClassic:
		return openai.CreateImageSize1792x1024
	case AspectPortrait, AspectTraditional:
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

// classifyOpenAIError maps OpenAI API errors onto the shared taxonomy using
// the structured error type when available, falling back to message
// matching.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
			return &QuotaError{
				Message: "Usage quota for this model has been exceeded. Please try again later.",
				Cause:   err,
			}
		}
		if apiErr.HTTPStatusCode == 429 {
			return &RateLimitError{
				Message: "API rate limit reached. You may be generating images too quickly. Please wait a moment.",
				Cause:   err,
			}
		}
	}

	return ClassifyAPIError(err)
}
