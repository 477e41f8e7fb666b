package styles

import (
	"slices"
	"testing"
)

func TestGetThemeByName(t *testing.T) {
	theme := GetThemeByName("solarized-dark")
	if theme == nil {
		t.Fatal("GetThemeByName('solarized-dark') returned nil")
	}
	if theme.Name != "Solarized Dark" {
		t.Errorf("expected name 'Solarized Dark', got %q", theme.Name)
	}
}

func TestGetThemeByNameMissing(t *testing.T) {
	theme := GetThemeByName("nonexistent")
	if theme != nil {
		t.Error("expected nil for nonexistent theme")
	}
}

func TestListThemes(t *testing.T) {
	themes := ListThemes()
	if len(themes) < 10 {
		t.Errorf("expected at least 10 themes, got %d", len(themes))
	}
}

func TestListThemesSorted(t *testing.T) {
	themes := ListThemes()
	if !slices.IsSorted(themes) {
		t.Errorf("expected sorted slugs, got %v", themes)
	}
}

func TestResolveTheme(t *testing.T) {
	theme, ok := ResolveTheme("nord")
	if !ok || theme.Name != Themes["nord"].Name {
		t.Errorf("expected nord, got %q (ok=%v)", theme.Name, ok)
	}
	theme, ok = ResolveTheme("nonexistent")
	if ok {
		t.Error("expected ok=false for unknown theme")
	}
	if theme.Name != DefaultTheme.Name {
		t.Errorf("expected fallback %q, got %q", DefaultTheme.Name, theme.Name)
	}
}
