package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#64B5F6"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9E9E9E"}
	okColor     = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"}
	errorColor  = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#E57373"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	itemStyle = lipgloss.NewStyle()

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	okStyle    = lipgloss.NewStyle().Foreground(okColor)
	errorStyle = lipgloss.NewStyle().Foreground(errorColor)

	consoleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
)
