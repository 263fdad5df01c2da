package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/batalabs/convo/internal/engine"
)

// Run shows the front-end until the user quits or ctx is cancelled. Engine
// hooks are routed into the program as messages.
func Run(ctx context.Context, eng *engine.Engine, version string) error {
	p := tea.NewProgram(New(ctx, eng, version), tea.WithAltScreen(), tea.WithContext(ctx))
	eng.OnChange(func() { p.Send(ChangedMsg{}) })
	eng.OnAlert(func(sessionID, text string) {
		p.Send(AlertMsg{SessionID: sessionID, Text: text})
	})
	defer func() {
		eng.OnChange(nil)
		eng.OnAlert(nil)
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
