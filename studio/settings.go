package studio

import (
	"context"
	"strconv"

	"imagestudio/core"
	"imagestudio/genimg"
	"imagestudio/prompt"
)

// Setting keys in the persisted store.
const (
	settingDescription   = "description"
	settingStyle1        = "style1"
	settingStyle2        = "style2"
	settingColorKey      = "color"
	settingExtraColorKey = "extra_color"
	settingGuidance      = "guidance"
	settingAspect        = "aspect"
)

// Settings are the user-facing generation defaults persisted across
// sessions.
type Settings struct {
	Description   string
	StyleName     string
	Style2Name    string
	ColorKey      string
	ExtraColorKey string
	GuidanceLevel int
	AspectRatio   genimg.AspectRatio
}

// DefaultSettings returns the out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		Description:   core.DefaultDescription,
		StyleName:     prompt.NoStyleName,
		Style2Name:    prompt.NoStyleName,
		ColorKey:      "none",
		ExtraColorKey: "none",
		GuidanceLevel: 7,
		AspectRatio:   genimg.AspectSquare,
	}
}

// LoadSettings reads the persisted settings, falling back to defaults for
// missing keys. Without a store it returns the defaults.
func (s *Studio) LoadSettings(ctx context.Context) (Settings, error) {
	settings := DefaultSettings()
	if s.store == nil {
		return settings, nil
	}

	var err error
	if settings.Description, err = s.store.GetSetting(ctx, settingDescription, settings.Description); err != nil {
		return settings, err
	}
	if settings.StyleName, err = s.store.GetSetting(ctx, settingStyle1, settings.StyleName); err != nil {
		return settings, err
	}
	if settings.Style2Name, err = s.store.GetSetting(ctx, settingStyle2, settings.Style2Name); err != nil {
		return settings, err
	}
	if settings.ColorKey, err = s.store.GetSetting(ctx, settingColorKey, settings.ColorKey); err != nil {
		return settings, err
	}
	if settings.ExtraColorKey, err = s.store.GetSetting(ctx, settingExtraColorKey, settings.ExtraColorKey); err != nil {
		return settings, err
	}

	guidance, err := s.store.GetSetting(ctx, settingGuidance, strconv.Itoa(settings.GuidanceLevel))
	if err != nil {
		return settings, err
	}
	if level, convErr := strconv.Atoi(guidance); convErr == nil {
		settings.GuidanceLevel = level
	}

	aspect, err := s.store.GetSetting(ctx, settingAspect, string(settings.AspectRatio))
	if err != nil {
		return settings, err
	}
	if genimg.AspectRatio(aspect).Valid() {
		settings.AspectRatio = genimg.AspectRatio(aspect)
	}

	return settings, nil
}

// SaveSettings persists the settings. Without a store it is a no-op.
func (s *Studio) SaveSettings(ctx context.Context, settings Settings) error {
	if s.store == nil {
		return nil
	}

	pairs := []struct{ key, value string }{
		{settingDescription, settings.Description},
		{settingStyle1, settings.StyleName},
		{settingStyle2, settings.Style2Name},
		{settingColorKey, settings.ColorKey},
		{settingExtraColorKey, settings.ExtraColorKey},
		{settingGuidance, strconv.Itoa(settings.GuidanceLevel)},
		{settingAspect, string(settings.AspectRatio)},
	}
	for _, p := range pairs {
		if err := s.store.SetSetting(ctx, p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}
