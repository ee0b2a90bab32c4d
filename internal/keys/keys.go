package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the interactive fetch view.
type KeyMap struct {
	Quit key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q/esc", "cancel"),
		),
	}
}

// ShortHelp returns the bindings shown under the spinner.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

// FullHelp returns all keybindings grouped for the expanded help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit}}
}
