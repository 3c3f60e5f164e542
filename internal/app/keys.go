package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the live view.
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	Toggle      key.Binding
	ShowBlocked key.Binding
	Tooltip     key.Binding
	Status      key.Binding
	Reconnect   key.Binding
	Info        key.Binding
	Debug       key.Binding
	Help        key.Binding
	Escape      key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "previous call"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next call"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "toggle detailed view"),
		),
		ShowBlocked: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "show blocked numbers"),
		),
		Tooltip: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "show call tooltip"),
		),
		Status: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "connection details"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		Info: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "server status"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Bindings lists every binding in help order.
func (k KeyMap) Bindings() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Toggle, k.ShowBlocked, k.Tooltip, k.Status,
		k.Reconnect, k.Info, k.Debug, k.Help, k.Escape, k.Quit,
	}
}
