package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorPaused = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorStop   = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorText   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var (
	panelStyle = lipgloss.NewStyle().
			Padding(1, 3).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText)

	descriptionStyle = lipgloss.NewStyle().
				Foreground(colorGray)

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginTop(1).
			MarginBottom(1)

	pausedClockStyle = clockStyle.Foreground(colorPaused)

	badgeStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			MarginTop(1)

	doneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	stoppedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorStop)
)
