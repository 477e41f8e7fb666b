package styles

import (
	"maps"
	"slices"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents a Base16 color scheme.
type Theme struct {
	Name   string
	Base00 lipgloss.Color // Background
	Base01 lipgloss.Color // Lighter background
	Base02 lipgloss.Color // Selection
	Base03 lipgloss.Color // Comments / dim
	Base04 lipgloss.Color // Light foreground
	Base05 lipgloss.Color // Foreground
	Base06 lipgloss.Color // Light foreground
	Base07 lipgloss.Color // Light background
	Base08 lipgloss.Color // Red
	Base09 lipgloss.Color // Orange
	Base0A lipgloss.Color // Yellow
	Base0B lipgloss.Color // Green
	Base0C lipgloss.Color // Cyan
	Base0D lipgloss.Color // Blue
	Base0E lipgloss.Color // Magenta
	Base0F lipgloss.Color // Brown
}

// DefaultThemeName is used when the configured theme is unknown.
const DefaultThemeName = "solarized-dark"

// DefaultTheme is the fallback theme.
var DefaultTheme = Themes[DefaultThemeName]

// GetThemeByName returns a theme by its slug, or nil if not found.
func GetThemeByName(name string) *Theme {
	t, ok := Themes[name]
	if !ok {
		return nil
	}
	return &t
}

// ResolveTheme returns the named theme, or DefaultTheme with ok false.
func ResolveTheme(name string) (theme Theme, ok bool) {
	if t, found := Themes[name]; found {
		return t, true
	}
	return DefaultTheme, false
}

// ListThemes returns sorted theme slugs.
func ListThemes() []string {
	return slices.Sorted(maps.Keys(Themes))
}
