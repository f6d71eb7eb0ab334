package schema

import (
	"fmt"
	"strings"
)

// SettingName names a persisted boolean preference.
type SettingName string

const (
	// SettingDebug shows the step and inspector controls.
	SettingDebug SettingName = "debug"
	// SettingPlayOnBuild makes the primary action compile and start autostep.
	SettingPlayOnBuild SettingName = "playOnBuild"
)

// Settings holds the persisted user preferences. Values are immutable: every
// change produces a new Settings.
type Settings struct {
	Debug       bool `json:"debug"`
	PlayOnBuild bool `json:"playOnBuild"`
}

// DefaultSettings returns the preferences used before anything was persisted.
func DefaultSettings() Settings {
	return Settings{Debug: false, PlayOnBuild: true}
}

// Toggle returns a copy of s with the named preference flipped.
func (s Settings) Toggle(name SettingName) (Settings, error) {
	switch name {
	case SettingDebug:
		s.Debug = !s.Debug
	case SettingPlayOnBuild:
		s.PlayOnBuild = !s.PlayOnBuild
	default:
		return s, fmt.Errorf("%w: %q", ErrInvalidSetting, name)
	}
	return s, nil
}

// NormalizeSettingName returns the canonical setting name if supported.
func NormalizeSettingName(name string) (SettingName, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)
	switch normalized {
	case "debug":
		return SettingDebug, true
	case "playonbuild", "play":
		return SettingPlayOnBuild, true
	default:
		return "", false
	}
}
