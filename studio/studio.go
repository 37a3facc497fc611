// Package studio orchestrates the generation workflows: composing prompts,
// driving the batch engine against a remote provider, and maintaining the
// persisted image histories and the edit staging list.
package studio

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imagestudio/core"
	"imagestudio/genimg"
	"imagestudio/history"
	"imagestudio/imaging"
	"imagestudio/pipeline"
	"imagestudio/prompt"
)

// Persisted collection names.
const (
	GenerationCollection = "generation"
	EditCollection       = "edit"
)

// SettingsStore persists user settings and image collections across
// sessions. *db.Repository satisfies this.
type SettingsStore interface {
	history.Saver
	LoadCollection(ctx context.Context, name string) ([]history.GeneratedImage, error)
	GetSetting(ctx context.Context, key, defaultValue string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Config wires a Studio together.
type Config struct {
	Provider genimg.Provider
	Engine   *pipeline.Engine
	Store    SettingsStore // optional; nil disables persistence
	Logger   *zap.Logger
}

// Studio is the application workflow layer.
type Studio struct {
	compositor *prompt.Compositor
	catalog    *prompt.Catalog
	modifiers  *prompt.Catalog
	provider   genimg.Provider
	engine     *pipeline.Engine
	store      SettingsStore
	logger     *zap.Logger

	generation *history.History
	edits      *history.History
	staging    *history.StagingList
}

// New creates a Studio. The style catalog is loaded from the embedded
// definitions; the modifier catalog for secondary styles is derived from it.
func New(cfg Config, compositor *prompt.Compositor) (*Studio, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("studio: provider is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("studio: engine is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("studio: logger is required")
	}
	if compositor == nil {
		return nil, fmt.Errorf("studio: compositor is required")
	}

	catalog, err := prompt.LoadCatalog()
	if err != nil {
		return nil, err
	}

	var saver history.Saver
	if cfg.Store != nil {
		saver = cfg.Store
	}
	generation, err := history.NewHistory(GenerationCollection, saver)
	if err != nil {
		return nil, err
	}
	edits, err := history.NewHistory(EditCollection, saver)
	if err != nil {
		return nil, err
	}

	return &Studio{
		compositor: compositor,
		catalog:    catalog,
		modifiers:  catalog.ModifierCatalog(),
		provider:   cfg.Provider,
		engine:     cfg.Engine,
		store:      cfg.Store,
		logger:     cfg.Logger.Named("studio"),
		generation: generation,
		edits:      edits,
		staging:    history.NewStagingList(),
	}, nil
}

// RestoreHistories loads both persisted collections into memory. Called
// once on startup; a missing store is a no-op.
func (s *Studio) RestoreHistories(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	gen, err := s.store.LoadCollection(ctx, GenerationCollection)
	if err != nil {
		return fmt.Errorf("studio: failed to load generation history: %w", err)
	}
	s.generation.Restore(gen)

	edits, err := s.store.LoadCollection(ctx, EditCollection)
	if err != nil {
		return fmt.Errorf("studio: failed to load edit history: %w", err)
	}
	s.edits.Restore(edits)

	s.logger.Info("Histories restored",
		zap.Int("generation", s.generation.Len()),
		zap.Int("edits", s.edits.Len()),
	)
	return nil
}

// GenerateParams describes one batch of text-to-image generations.
type GenerateParams struct {
	Description   string
	StyleName     string
	Style2Name    string
	ColorKey      string
	ExtraColorKey string
	GuidanceLevel int
	AspectRatio   genimg.AspectRatio
	Seed          string
	Count         int
}

// Generate runs a batch of generations through the engine. Prompts are
// re-composed per item so random-choice groups vary across the batch.
// Successful images land at the front of the generation history before
// the next item starts.
func (s *Studio) Generate(ctx context.Context, p GenerateParams) error {
	description := strings.TrimSpace(p.Description)
	if description == "" {
		description = core.DefaultDescription
	}
	if p.Count <= 0 {
		p.Count = 1
	}
	if p.GuidanceLevel == 0 {
		p.GuidanceLevel = 7
	}

	aspect := p.AspectRatio
	if aspect == "" {
		aspect = genimg.AspectSquare
	}

	style1, style2, err := s.resolveStyles(p.StyleName, p.Style2Name)
	if err != nil {
		return err
	}

	seed, err := ParseSeed(p.Seed)
	if err != nil {
		return err
	}

	return s.engine.Run(ctx, "image", p.Count, func(ctx context.Context, index int) error {
		composed := s.compositor.Compose(prompt.ComposeInput{
			Description:   description,
			NegativeBase:  core.DefaultNegativePrompt,
			Style1:        style1,
			Style2:        style2,
			ColorKey:      p.ColorKey,
			ExtraColorKey: p.ExtraColorKey,
			GuidanceLevel: p.GuidanceLevel,
		})

		result, err := s.provider.Generate(ctx, genimg.GenerateRequest{
			Prompt:         composed.Prompt,
			NegativePrompt: composed.NegativePrompt,
			AspectRatio:    aspect,
			Seed:           seed,
		})
		if err != nil {
			return err
		}
		// A stop raised while the call was in flight discards the result.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return s.generation.Prepend(ctx, history.GeneratedImage{
			ID:       uuid.New(),
			Data:     result.Data,
			MimeType: result.MimeType,
			Prompt:   composed.Prompt,
			Width:    result.Width,
			Height:   result.Height,
		})
	})
}

// EditParams describes one batch of image edits over the staged sources.
type EditParams struct {
	Prompt      string
	StyleName   string
	AspectRatio genimg.AspectRatio
	Seed        string
	Count       int
}

// Edit runs a batch of edits against the staged source images.
//
// The prompt is validated before any remote call: an @img reference with
// nothing staged fails immediately. An @style token is spliced with the
// resolved style fragment. With exactly one source and a fixed target
// ratio, the source is padded onto a larger canvas so the model outpaints
// the margins.
func (s *Studio) Edit(ctx context.Context, p EditParams) error {
	promptText := strings.TrimSpace(p.Prompt)
	if promptText == "" {
		return &genimg.ValidationError{Message: "edit prompt cannot be empty"}
	}
	if p.Count <= 0 {
		p.Count = 1
	}

	aspect := p.AspectRatio
	if aspect == "" {
		aspect = genimg.AspectSource
	}

	staged := s.staging.Items()
	if err := prompt.ValidateImageRefs(promptText, len(staged)); err != nil {
		return &genimg.ValidationError{Message: err.Error()}
	}
	if len(staged) == 0 {
		return &genimg.ValidationError{Message: "stage at least one image before editing"}
	}

	if prompt.HasStyleReference(promptText) {
		styleName := p.StyleName
		if styleName == "" {
			styleName = prompt.NoStyleName
		}
		style, ok := s.catalog.ByName(styleName)
		if !ok {
			return &genimg.ValidationError{Message: fmt.Sprintf("unknown style %q for @style reference", styleName)}
		}
		fragment := s.compositor.ResolveStyleFragment(style)
		promptText = prompt.SpliceStyleReference(promptText, prompt.StyleReferenceToken, fragment)
	}

	sources, err := s.prepareSources(staged, aspect)
	if err != nil {
		return err
	}

	seed, err := ParseSeed(p.Seed)
	if err != nil {
		return err
	}

	return s.engine.Run(ctx, "edit", p.Count, func(ctx context.Context, index int) error {
		result, err := s.provider.Edit(ctx, genimg.EditRequest{
			Sources:     sources,
			Prompt:      promptText,
			AspectRatio: aspect,
			Seed:        seed,
		})
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return s.edits.Prepend(ctx, history.GeneratedImage{
			ID:       uuid.New(),
			Data:     result.Data,
			MimeType: result.MimeType,
			Prompt:   promptText,
			Width:    result.Width,
			Height:   result.Height,
		})
	})
}

// prepareSources converts staged images to provider sources. A single
// source headed for a fixed aspect ratio is placed on an outpainting
// canvas first.
func (s *Studio) prepareSources(staged []history.GeneratedImage, aspect genimg.AspectRatio) ([]genimg.SourceImage, error) {
	sources := make([]genimg.SourceImage, len(staged))
	for i, img := range staged {
		sources[i] = genimg.SourceImage{Data: img.Data, MimeType: img.MimeType}
	}

	if len(sources) == 1 {
		if w, h, ok := aspect.Dimensions(); ok {
			padded, err := imaging.PadToAspect(sources[0].Data, sources[0].MimeType, w, h)
			if err != nil {
				return nil, fmt.Errorf("studio: failed to prepare outpaint canvas: %w", err)
			}
			sources[0] = genimg.SourceImage{Data: padded.Data, MimeType: padded.MimeType}
		}
	}
	return sources, nil
}

// Elaborate expands a terse description via the provider's text model.
// A blank description elaborates the default one.
func (s *Studio) Elaborate(ctx context.Context, description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		description = core.DefaultDescription
	}
	return s.provider.Elaborate(ctx, description)
}

// StageForEdit stages a history image (from either collection) as an edit
// source.
func (s *Studio) StageForEdit(id uuid.UUID) error {
	for _, img := range s.generation.Items() {
		if img.ID == id {
			s.staging.Add(img)
			return nil
		}
	}
	for _, img := range s.edits.Items() {
		if img.ID == id {
			s.staging.Add(img)
			return nil
		}
	}
	return fmt.Errorf("studio: no history image with ID %s", id)
}

// ImportImage sanitizes external image data and stages it as an edit
// source. Returns the staged entry.
func (s *Studio) ImportImage(data []byte, mimeType string) (history.GeneratedImage, error) {
	normalized, err := imaging.Sanitize(data, mimeType)
	if err != nil {
		return history.GeneratedImage{}, err
	}

	img := history.GeneratedImage{
		ID:       uuid.New(),
		Data:     normalized.Data,
		MimeType: normalized.MimeType,
		Prompt:   "imported image",
		Width:    normalized.Width,
		Height:   normalized.Height,
	}
	s.staging.Add(img)
	return img, nil
}

// Unstage removes an image from the staging list.
func (s *Studio) Unstage(id uuid.UUID) { s.staging.Remove(id) }

// Staged returns the staged edit sources in slot order.
func (s *Studio) Staged() []history.GeneratedImage { return s.staging.Items() }

// GenerationHistory returns the generation history, newest first.
func (s *Studio) GenerationHistory() []history.GeneratedImage { return s.generation.Items() }

// EditHistory returns the edit history, newest first.
func (s *Studio) EditHistory() []history.GeneratedImage { return s.edits.Items() }

// RemoveFromHistory deletes an image from whichever collection holds it.
func (s *Studio) RemoveFromHistory(ctx context.Context, id uuid.UUID) error {
	if err := s.generation.Remove(ctx, id); err != nil {
		return err
	}
	return s.edits.Remove(ctx, id)
}

// ClearHistories empties both collections.
func (s *Studio) ClearHistories(ctx context.Context) error {
	if err := s.generation.Clear(ctx); err != nil {
		return err
	}
	return s.edits.Clear(ctx)
}

// Session exposes the engine session for status polling and cancellation.
func (s *Studio) Session() *pipeline.Session { return s.engine.Session() }

// Catalog returns the primary style catalog.
func (s *Studio) Catalog() *prompt.Catalog { return s.catalog }

// resolveStyles maps style names to templates. Empty names resolve to the
// "No style" entry; unknown names fail.
func (s *Studio) resolveStyles(name1, name2 string) (prompt.StyleTemplate, prompt.StyleTemplate, error) {
	if name1 == "" {
		name1 = prompt.NoStyleName
	}
	if name2 == "" {
		name2 = prompt.NoStyleName
	}

	style1, ok := s.catalog.ByName(name1)
	if !ok {
		return prompt.StyleTemplate{}, prompt.StyleTemplate{}, &genimg.ValidationError{
			Message: fmt.Sprintf("unknown style %q", name1)}
	}
	style2, ok := s.modifiers.ByName(name2)
	if !ok {
		return prompt.StyleTemplate{}, prompt.StyleTemplate{}, &genimg.ValidationError{
			Message: fmt.Sprintf("unknown secondary style %q", name2)}
	}
	return style1, style2, nil
}

// ParseSeed parses an optional seed string. Blank means "random"; anything
// else must be an unsigned 32-bit integer.
func ParseSeed(s string) (*uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, &genimg.ValidationError{Message: fmt.Sprintf("invalid seed %q: must be an integer between 0 and %d", s, math.MaxUint32)}
	}
	seed := uint32(v)
	return &seed, nil
}
