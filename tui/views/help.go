package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/tonhe/fieldscan/tui/keys"
	"github.com/tonhe/fieldscan/tui/styles"
)

type helpSection struct {
	title    string
	bindings []key.Binding
}

// helpSections groups the key map by where the keys apply.
func helpSections() []helpSection {
	km := keys.DefaultKeyMap
	return []helpSection{
		{"Global", []key.Binding{km.Quit, km.Help, km.Toggle, km.Health}},
		{"Dashboard", []key.Binding{km.Up, km.Down, km.Enter}},
		{"Detail / Health", []key.Binding{km.Escape, km.Clear}},
	}
}

// HelpView renders a modal overlay showing all keyboard shortcuts.
type HelpView struct {
	theme   styles.Theme
	sty     *styles.Styles
	width   int
	height  int
	visible bool
}

// NewHelpView creates a new HelpView with the given theme.
func NewHelpView(theme styles.Theme) HelpView {
	return HelpView{
		theme: theme,
		sty:   styles.NewStyles(theme),
	}
}

// Toggle flips the help overlay visibility.
func (v *HelpView) Toggle() {
	v.visible = !v.visible
}

// IsVisible returns whether the help overlay is currently shown.
func (v HelpView) IsVisible() bool {
	return v.visible
}

// SetSize updates the available dimensions for the overlay.
func (v *HelpView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// View renders the help overlay as a centered modal box.
func (v HelpView) View() string {
	modalWidth := 48
	if v.width > 60 {
		modalWidth = v.width / 2
		if modalWidth > 56 {
			modalWidth = 56
		}
	}
	if modalWidth < 38 {
		modalWidth = 38
	}

	innerWidth := modalWidth - 6 // border + padding

	sectionStyle := lipgloss.NewStyle().
		Foreground(v.theme.Base0E).
		Bold(true)
	keyStyle := lipgloss.NewStyle().
		Foreground(v.theme.Base0D).
		Bold(true)
	descStyle := lipgloss.NewStyle().
		Foreground(v.theme.Base05)
	dimStyle := lipgloss.NewStyle().
		Foreground(v.theme.Base04)

	bindingLine := func(b key.Binding) string {
		h := b.Help()
		return fmt.Sprintf("  %s  %s",
			keyStyle.Render(padRight(h.Key, 12)),
			descStyle.Render(h.Desc),
		)
	}

	var lines []string
	for _, sec := range helpSections() {
		lines = append(lines, sectionStyle.Render(sec.title))
		for _, b := range sec.bindings {
			lines = append(lines, bindingLine(b))
		}
		lines = append(lines, "")
	}

	// Footer hint
	lines = append(lines, dimStyle.Render("[?] close"))

	content := strings.Join(lines, "\n")

	// Modal box with rounded border
	modal := v.sty.ModalBorder.
		Width(innerWidth).
		Render(content)

	// Place title into the top border
	title := v.sty.ModalTitle.Render(" Keyboard Shortcuts ")
	modalLines := strings.Split(modal, "\n")
	if len(modalLines) > 0 {
		borderLine := modalLines[0]
		if len(borderLine) > 2 {
			runes := []rune(borderLine)
			titleRunes := []rune(title)
			insertPos := 2
			if insertPos+len(titleRunes) < len(runes) {
				combined := make([]rune, 0, len(runes))
				combined = append(combined, runes[:insertPos]...)
				combined = append(combined, titleRunes...)
				combined = append(combined, runes[insertPos+len(titleRunes):]...)
				modalLines[0] = string(combined)
			}
		}
		modal = strings.Join(modalLines, "\n")
	}

	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, modal)
}
