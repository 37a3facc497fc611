package prompt

// colors.go holds the static modifier lookup tables. Keys are the values a
// UI color selector submits; the phrases are weighted prompt fragments.

// colorPhrases maps dominant-color keys to prompt modifier phrases.
var colorPhrases = map[string]string{
	"none":                "",
	"white":               "(white:1.5)",
	"brown":               "(brown:1.5)",
	"periwinkle":          "(periwinkle:1.5)",
	"green":               "(green:1.5)",
	"violet":              "(violet:1.5)",
	"iridescentwhite":     "(iridescent:1.5) (white:1.5)",
	"pink":                "(pink:1.5)",
	"cyan":                "(cyan:1.5)",
	"turquoise":           "(turquoise:1.5)",
	"stars":               "(stars:1.5)",
	"red":                 "(red:1.5)",
	"yellow":              "(yellow:1.5)",
	"orange":              "(orange:1.5)",
	"snow":                "(snow:1.5)",
	"magenta":             "(magenta:1.5)",
	"black":               "(black:1.5)",
	"fuschia":             "(fuschia:1.5)",
	"teal":                "(teal:1.5)",
	"silver":              "(silver:1.5)",
	"platinum":            "(platinum:1.5)",
	"aquamarine":          "(aquamarine:1.5)",
	"brass":               "(brass:1.5)",
	"mint":                "(mint green:1.5)",
	"navy blue":           "(navy blue:1.5)",
	"maroon":              "(maroon:1.5)",
	"sea foam green":      "(sea foam green:1.5)",
	"indigo":              "(indigo:1.5)",
	"ivory":               "(ivory:1.5)",
	"azure":               "(azure:1.5)",
	"blue":                "(blue:1.5)",
	"rose quartz":         "(rose quartz:1.5)",
	"sky blue":            "(sky blue:1.5)",
	"mediterranian green": "(mediterranean green:1.5)",
	"gold":                "(gold:1.5)",
	"beige":               "(beige:1.5)",
}

// extraColorPhrases maps color-grading keys to prompt modifier phrases.
// The "none" entry is a lone "." which the compositor skips during joining.
var extraColorPhrases = map[string]string{
	"none":          ".",
	"bright":        "(bright color grading:1.5)",
	"cool":          "(cool color grading:1.5)",
	"duotone":       "(duotone color grading:1.5)",
	"monochrome":    "(monochrome color grading:1.5)",
	"muted":         "muted colors",
	"neon":          "(neon color grading:1.5)",
	"oversaturated": "oversaturated colors",
	"pastel":        "(pastel color grading:1.5)",
	"sterile":       "(cool-toned sterile color grading:1.5)",
	"vibrant":       "(vibrant color grading:1.5)",
	"warm":          "(warm color grading:1.5)",
	"washed out":    "(washed out color grading:1.5)",
}

// ColorPhrase resolves a dominant-color key to its modifier phrase.
// Unknown keys resolve to the empty string.
func ColorPhrase(key string) string {
	return colorPhrases[key]
}

// ExtraColorPhrase resolves a color-grading key to its modifier phrase.
// Unknown keys resolve to the empty string.
func ExtraColorPhrase(key string) string {
	return extraColorPhrases[key]
}

// ColorKeys returns the known dominant-color keys for selector population.
func ColorKeys() []string {
	keys := make([]string, 0, len(colorPhrases))
	for k := range colorPhrases {
		keys = append(keys, k)
	}
	return keys
}
