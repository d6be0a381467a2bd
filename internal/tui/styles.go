package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("39")
	secondaryColor = lipgloss.Color("245")
	errorColor     = lipgloss.Color("196")
	successColor   = lipgloss.Color("82")
	recordingColor = lipgloss.Color("203")
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	resultStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			MarginBottom(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	copiedStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	recordingStyle = lipgloss.NewStyle().
			Foreground(recordingColor).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Italic(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
)
