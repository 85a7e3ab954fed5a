// Package keymap defines keybindings for the TUI.
package keymap

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines all keybindings for the TUI.
type KeyMap struct {
	Quit key.Binding
	Help key.Binding

	// Back returns to the previous view.
	Back key.Binding

	Up     key.Binding
	Down   key.Binding
	Select key.Binding

	// Refresh reloads the current view from the store.
	Refresh key.Binding

	// Answers opens the answers of the selected workflow.
	Answers key.Binding

	// CancelRun requests cancellation of the selected workflow.
	CancelRun key.Binding

	// Hide closes the progress view while the workflow keeps running.
	Hide key.Binding

	// Interrupt cancels the workflow shown by the progress view.
	Interrupt key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Answers: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "answers"),
		),
		CancelRun: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cancel workflow"),
		),
		Hide: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "hide"),
		),
		Interrupt: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "cancel workflow"),
		),
	}
}

// ShortHelp returns a short list of keybindings for the help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Help}
}

// ListHelp returns keybindings for the workflow list.
func (k *KeyMap) ListHelp() []key.Binding {
	return []key.Binding{k.Select, k.Refresh, k.Help, k.Quit}
}

// DetailHelp returns keybindings for the workflow detail view.
func (k *KeyMap) DetailHelp() []key.Binding {
	return []key.Binding{k.Answers, k.CancelRun, k.Refresh, k.Back}
}

// ProgressHelp returns keybindings for the standalone progress view.
func (k *KeyMap) ProgressHelp() []key.Binding {
	return []key.Binding{k.Hide, k.Interrupt}
}

// FullHelp returns the full list of keybindings for the help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.Answers, k.CancelRun, k.Refresh},
		{k.Back, k.Help, k.Quit},
	}
}

// Matches checks if a key string matches a binding.
func Matches(keyStr string, binding key.Binding) bool {
	for _, k := range binding.Keys() {
		if k == keyStr {
			return true
		}
	}
	return false
}
