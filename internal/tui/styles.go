package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// Styles used across the monitor views.
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorBorder)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(ColorBorder)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	DetailBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	QueuedStyle    = lipgloss.NewStyle().Foreground(ColorTextMuted)
	RunningStyle   = lipgloss.NewStyle().Foreground(ColorSecondary)
	CompletedStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	FailedStyle    = lipgloss.NewStyle().Foreground(ColorError)
	CancelledStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	TimedOutStyle  = lipgloss.NewStyle().Foreground(ColorWarning)
)

// StatusStyle returns the style for a task status.
func StatusStyle(status core.TaskStatus) lipgloss.Style {
	switch status {
	case core.TaskStatusQueued:
		return QueuedStyle
	case core.TaskStatusRunning:
		return RunningStyle
	case core.TaskStatusCompleted:
		return CompletedStyle
	case core.TaskStatusFailed:
		return FailedStyle
	case core.TaskStatusCancelled:
		return CancelledStyle
	case core.TaskStatusTimedOut:
		return TimedOutStyle
	default:
		return SubtleStyle
	}
}
