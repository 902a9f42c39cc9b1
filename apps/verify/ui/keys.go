package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left      key.Binding
	Right     key.Binding
	Submit    key.Binding
	Resend    key.Binding
	Backspace key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Left:      key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "previous cell")),
	Right:     key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "next cell")),
	Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "verify")),
	Resend:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resend")),
	Backspace: key.NewBinding(key.WithKeys("backspace"), key.WithHelp("⌫", "delete")),
	Quit:      key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
}
