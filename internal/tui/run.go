package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run blocks until the user quits or ctx is cancelled. It returns the
// transcript on screen at exit, if any.
func Run(ctx context.Context, opts Options) (string, error) {
	m := New(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if m.recorder != nil {
		_ = m.recorder.Close()
	}
	if err != nil {
		return "", fmt.Errorf("run tui: %w", err)
	}
	if fm, ok := final.(Model); ok {
		if text, present := fm.page.Transcript(); present {
			return text, nil
		}
	}
	return "", nil
}
