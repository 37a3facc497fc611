// Package prompt implements the prompt compositor: expanding random-choice
// groups, merging user descriptions with style templates and modifier
// phrases, and validating image references before any remote call.
package prompt

import (
	"errors"
	"math/rand"
	"regexp"
	"strings"
)

// Placeholder tokens recognized inside style templates and edit prompts.
const (
	DescriptionPlaceholder = "[input.description]"
	NegativePlaceholder    = "[input.negative]"
	StyleReferenceToken    = "@style"
)

// ErrImageRefWithoutSources is returned by ValidateImageRefs when a prompt
// references an @img slot but no source images are staged.
var ErrImageRefWithoutSources = errors.New(
	"prompt uses an @img reference, but no images have been staged; stage an image or remove the reference")

var (
	choiceGroupRe = regexp.MustCompile(`\{([^}]+)\}`)
	imageRefRe    = regexp.MustCompile(`@img[1-8]`)
	dupSepRe      = regexp.MustCompile(`, ,`)
)

// Compositor expands templates into final prompt strings. The random source
// is injected so tests can force deterministic expansions.
type Compositor struct {
	rng *rand.Rand
}

// NewCompositor creates a Compositor backed by the given random source.
func NewCompositor(src rand.Source) *Compositor {
	return &Compositor{rng: rand.New(src)}
}

// ResolveRandomChoices replaces every non-overlapping {a|b|c} group with one
// alternative chosen uniformly at random, independently per group. Groups do
// not nest; malformed or unterminated groups are left verbatim. Text without
// groups passes through unchanged.
func (c *Compositor) ResolveRandomChoices(text string) string {
	return choiceGroupRe.ReplaceAllStringFunc(text, func(group string) string {
		content := group[1 : len(group)-1]
		options := strings.Split(content, "|")
		return strings.TrimSpace(options[c.rng.Intn(len(options))])
	})
}

// ComposeInput carries everything Compose needs to build one prompt pair.
type ComposeInput struct {
	// Description is the raw user text, inserted verbatim.
	Description string

	// NegativeBase is used as the negative prompt when the primary style
	// carries no negative template.
	NegativeBase string

	// Style1 is the primary style; its template contains the description
	// placeholder.
	Style1 StyleTemplate

	// Style2 is a modifier-only style with no description placeholder.
	Style2 StyleTemplate

	// ColorKey and ExtraColorKey select modifier phrases from the static
	// lookup tables. Unknown keys resolve to the empty string.
	ColorKey      string
	ExtraColorKey string

	// GuidanceLevel maps to a qualitative strictness phrase by fixed
	// thresholds.
	GuidanceLevel int
}

// ComposedPrompt is the result of Compose.
type ComposedPrompt struct {
	Prompt         string
	NegativePrompt string
}

// Compose merges the description, styles, and modifiers into the final
// positive prompt and resolves the negative prompt.
//
// Assembly order: style1 (description substituted, choices resolved),
// style2 (choices resolved), color phrase, extra-color phrase, guidance
// phrase. Empty parts and the lone "." placeholder are skipped; the rest
// join with ", ".
func (c *Compositor) Compose(in ComposeInput) ComposedPrompt {
	style1Text := strings.ReplaceAll(in.Style1.PromptTemplate, DescriptionPlaceholder, in.Description)
	style1Text = c.ResolveRandomChoices(style1Text)

	style2Text := c.ResolveRandomChoices(in.Style2.PromptTemplate)

	parts := []string{
		style1Text,
		style2Text,
		ColorPhrase(in.ColorKey),
		ExtraColorPhrase(in.ExtraColorKey),
		GuidancePhrase(in.GuidanceLevel),
	}

	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		kept = append(kept, part)
	}

	negative := in.NegativeBase
	if in.Style1.NegativeTemplate != "" {
		negative = c.ResolveRandomChoices(
			strings.ReplaceAll(in.Style1.NegativeTemplate, NegativePlaceholder, ""))
	}

	return ComposedPrompt{
		Prompt:         strings.Join(kept, ", "),
		NegativePrompt: negative,
	}
}

// ResolveStyleFragment renders a style's template as a standalone modifier
// fragment: the description placeholder is stripped, separator punctuation
// left behind by the removal is collapsed, and random choices are resolved.
func (c *Compositor) ResolveStyleFragment(style StyleTemplate) string {
	fragment := strings.ReplaceAll(style.PromptTemplate, DescriptionPlaceholder, "")
	fragment = collapseSeparators(fragment)
	return c.ResolveRandomChoices(fragment)
}

// SpliceStyleReference substitutes a single occurrence of token in prompt
// with the resolved fragment, collapsing duplicate separators and trimming
// any leading separator the substitution leaves behind.
func SpliceStyleReference(promptText, token, resolved string) string {
	out := strings.Replace(promptText, token, resolved, 1)
	return collapseSeparators(out)
}

// ValidateImageRefs checks that a prompt referencing @img1..@img8 has at
// least one staged source image. It must run before any remote call.
func ValidateImageRefs(promptText string, stagedCount int) error {
	if imageRefRe.MatchString(promptText) && stagedCount == 0 {
		return ErrImageRefWithoutSources
	}
	return nil
}

// HasStyleReference reports whether the prompt contains the @style token.
func HasStyleReference(promptText string) bool {
	return strings.Contains(promptText, StyleReferenceToken)
}

// GuidancePhrase maps a numeric guidance level onto a qualitative
// strictness phrase. Levels in (5..7] carry no phrase.
func GuidancePhrase(level int) string {
	switch {
	case level < 5:
		return "artistic interpretation, creative, painterly"
	case level > 10:
		return "masterpiece, highly detailed, high quality, sharp focus, adhering strictly to the prompt description"
	case level > 7:
		return "sharp focus, detailed, high fidelity"
	}
	return ""
}

// collapseSeparators removes ", ," doubles and leading/trailing separator
// debris left behind by placeholder or token removal.
func collapseSeparators(s string) string {
	for dupSepRe.MatchString(s) {
		s = dupSepRe.ReplaceAllString(s, ",")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ",")
	return strings.TrimSpace(s)
}
