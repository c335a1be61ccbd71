package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/overtype/internal/input"
)

// translate maps a terminal key event to input keys. Pasted or buffered
// runes arrive as one event and expand to one key each.
func translate(msg tea.KeyMsg) []input.Key {
	alt := msg.Alt
	switch msg.Type {
	case tea.KeyRunes:
		out := make([]input.Key, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			k := input.Char(r)
			k.Alt = alt
			out = append(out, k)
		}
		return out
	case tea.KeySpace:
		return []input.Key{{Code: input.CodeChar, Rune: ' ', Alt: alt}}
	case tea.KeyEnter:
		return []input.Key{{Code: input.CodeEnter, Alt: alt}}
	case tea.KeyTab:
		return []input.Key{{Code: input.CodeTab, Alt: alt}}
	case tea.KeyShiftTab:
		return []input.Key{{Code: input.CodeTab, Shift: true, Alt: alt}}
	case tea.KeyEsc:
		return []input.Key{{Code: input.CodeEscape, Alt: alt}}
	case tea.KeyBackspace:
		return []input.Key{{Code: input.CodeBackspace, Alt: alt}}
	case tea.KeyDelete:
		return []input.Key{{Code: input.CodeDelete, Alt: alt}}
	case tea.KeyLeft:
		return []input.Key{{Code: input.CodeArrowLeft, Alt: alt}}
	case tea.KeyRight:
		return []input.Key{{Code: input.CodeArrowRight, Alt: alt}}
	case tea.KeyUp:
		return []input.Key{{Code: input.CodeArrowUp, Alt: alt}}
	case tea.KeyDown:
		return []input.Key{{Code: input.CodeArrowDown, Alt: alt}}
	case tea.KeyHome:
		return []input.Key{{Code: input.CodeHome, Alt: alt}}
	case tea.KeyEnd:
		return []input.Key{{Code: input.CodeEnd, Alt: alt}}
	case tea.KeyPgUp:
		return []input.Key{{Code: input.CodePageUp, Alt: alt}}
	case tea.KeyPgDown:
		return []input.Key{{Code: input.CodePageDown, Alt: alt}}
	}
	if msg.Type >= tea.KeyCtrlAt && msg.Type <= tea.KeyCtrlUnderscore {
		return []input.Key{{Code: input.CodeOther, Ctrl: true, Alt: alt}}
	}
	return []input.Key{{Code: input.CodeOther, Alt: alt}}
}

type keyMap struct {
	Restart key.Binding
	Hints   key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Restart: key.NewBinding(key.WithKeys("r", "enter"), key.WithHelp("r", "practice again")),
		Hints:   key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "toggle hints")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Restart, k.Hints, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
