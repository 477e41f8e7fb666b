package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the application.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Escape key.Binding
	Quit   key.Binding
	Health key.Binding
	Toggle key.Binding
	Clear  key.Binding
	Help   key.Binding
}

// DefaultKeyMap provides the default set of key bindings.
var DefaultKeyMap = KeyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up/k", "previous frame")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down/j", "next frame")),
	Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "frame detail")),
	Escape: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back to dashboard")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q/ctrl+c", "quit")),
	Health: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "health view")),
	Toggle: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start / stop scanning")),
	Clear:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear heartbeat warnings")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle this help")),
}
