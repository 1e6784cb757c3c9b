package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the conversion view.
type keyMap struct {
	misses key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		misses: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "unmatched tracks")),
		quit:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.misses, k.quit}}
}
