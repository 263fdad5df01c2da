package tui

import (
	"errors"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

// PasteMsg carries clipboard read results to the model.
type PasteMsg struct {
	Text string
	Err  error
}

// ClipboardWriteMsg carries clipboard write results to the model.
type ClipboardWriteMsg struct {
	OK  bool
	Err error
}

// Package-level so tests can swap them out.
var (
	clipboardReadAll  = clipboard.ReadAll
	clipboardWriteAll = clipboard.WriteAll
)

// ReadClipboardCmd reads the system clipboard into a PasteMsg.
func ReadClipboardCmd() tea.Cmd {
	return func() tea.Msg {
		text, err := clipboardReadAll()
		if err != nil {
			return PasteMsg{Err: err}
		}
		return PasteMsg{Text: text}
	}
}

// WriteClipboardCmd writes text to the system clipboard.
func WriteClipboardCmd(text string) tea.Cmd {
	return func() tea.Msg {
		if text == "" {
			return ClipboardWriteMsg{Err: errors.New("nothing to copy")}
		}
		if err := clipboardWriteAll(text); err != nil {
			return ClipboardWriteMsg{Err: err}
		}
		return ClipboardWriteMsg{OK: true}
	}
}
