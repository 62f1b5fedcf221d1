// Package report renders estimates and test history for the terminal.
package report

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	textColor      = lipgloss.Color("#F9FAFB") // Light gray
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 2)

	cardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	metricLabelStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Width(20)

	metricValueStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(textColor)

	trendUpStyle   = lipgloss.NewStyle().Foreground(secondaryColor)
	trendDownStyle = lipgloss.NewStyle().Foreground(errorColor)
	trendFlatStyle = lipgloss.NewStyle().Foreground(mutedColor)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor).
				Padding(0, 1)

	tableRowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
)

// metric renders a label/value line with an optional signed trend
func metric(label, value, trend string) string {
	style := trendFlatStyle
	if trend != "" {
		switch trend[0] {
		case '+':
			style = trendUpStyle
		case '-':
			style = trendDownStyle
		}
	}
	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		metricLabelStyle.Render(label),
		metricValueStyle.Render(value),
		style.Render(" "+trend),
	)
}

// Error renders a failure message
func Error(err error) string {
	return errorStyle.Render("Error: " + err.Error())
}
