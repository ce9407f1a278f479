package tui

import "github.com/charmbracelet/lipgloss"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	muted     = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	danger    = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F87"}
	success   = lipgloss.AdaptiveColor{Light: "#2E8B57", Dark: "#73F59F"}

	infoStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle)

	senderStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(muted).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(danger)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	helpStyle      = lipgloss.NewStyle().Foreground(muted)
)
