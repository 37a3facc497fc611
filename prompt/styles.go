package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var stylesYAML []byte

// NoStyleName is the catalog entry that applies no styling at all.
const NoStyleName = "No style"

// StyleTemplate is one named, category-grouped prompt template. The prompt
// template may contain the description placeholder and {a|b|c} random-choice
// groups; the negative template is optional.
type StyleTemplate struct {
	Category         string `yaml:"category"`
	Name             string `yaml:"name"`
	PromptTemplate   string `yaml:"prompt"`
	NegativeTemplate string `yaml:"negative,omitempty"`
}

// Catalog is an ordered, name-indexed set of style templates.
type Catalog struct {
	styles []StyleTemplate
	byName map[string]StyleTemplate
}

// LoadCatalog parses the embedded style catalog. Names must be unique.
func LoadCatalog() (*Catalog, error) {
	var doc struct {
		Styles []StyleTemplate `yaml:"styles"`
	}
	if err := yaml.Unmarshal(stylesYAML, &doc); err != nil {
		return nil, fmt.Errorf("prompt: failed to parse style catalog: %w", err)
	}
	if len(doc.Styles) == 0 {
		return nil, fmt.Errorf("prompt: style catalog is empty")
	}
	return NewCatalog(doc.Styles)
}

// NewCatalog builds a catalog from an explicit style list, enforcing name
// uniqueness.
func NewCatalog(styles []StyleTemplate) (*Catalog, error) {
	byName := make(map[string]StyleTemplate, len(styles))
	for _, s := range styles {
		if s.Name == "" {
			return nil, fmt.Errorf("prompt: style with empty name in catalog")
		}
		if _, exists := byName[s.Name]; exists {
			return nil, fmt.Errorf("prompt: duplicate style name %q", s.Name)
		}
		byName[s.Name] = s
	}
	return &Catalog{styles: styles, byName: byName}, nil
}

// ByName looks up a style template by its unique name.
func (c *Catalog) ByName(name string) (StyleTemplate, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// Styles returns the catalog entries in declaration order.
func (c *Catalog) Styles() []StyleTemplate {
	out := make([]StyleTemplate, len(c.styles))
	copy(out, c.styles)
	return out
}

// Len returns the number of styles in the catalog.
func (c *Catalog) Len() int { return len(c.styles) }

// ModifierCatalog derives the secondary-style catalog: the same styles with
// the description placeholder stripped, so they act as pure modifiers. The
// "No style" entry becomes an empty template.
func (c *Catalog) ModifierCatalog() *Catalog {
	styles := make([]StyleTemplate, 0, len(c.styles))
	byName := make(map[string]StyleTemplate, len(c.styles))
	for _, s := range c.styles {
		m := s
		if s.Name == NoStyleName {
			m.PromptTemplate = ""
		} else {
			m.PromptTemplate = stripDescriptionPlaceholder(s.PromptTemplate)
		}
		styles = append(styles, m)
		byName[m.Name] = m
	}
	return &Catalog{styles: styles, byName: byName}
}

// stripDescriptionPlaceholder removes the first description placeholder,
// preferring the form followed by a comma so no dangling separator is left.
func stripDescriptionPlaceholder(template string) string {
	if idx := strings.Index(template, DescriptionPlaceholder+","); idx >= 0 {
		return template[:idx] + template[idx+len(DescriptionPlaceholder)+1:]
	}
	if idx := strings.Index(template, DescriptionPlaceholder); idx >= 0 {
		return template[:idx] + template[idx+len(DescriptionPlaceholder):]
	}
	return template
}
