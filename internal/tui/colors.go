// Package tui renders the live task monitor. It polls the store
// read-only and never mutates server state.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for the monitor.
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // purple
	ColorSecondary = lipgloss.Color("#06B6D4") // cyan
	ColorSuccess   = lipgloss.Color("#10B981") // green
	ColorWarning   = lipgloss.Color("#F59E0B") // amber
	ColorError     = lipgloss.Color("#EF4444") // red
	ColorInfo      = lipgloss.Color("#3B82F6") // blue
	ColorText      = lipgloss.Color("#F9FAFB")
	ColorTextMuted = lipgloss.Color("#6B7280")
	ColorBorder    = lipgloss.Color("#374151")
)
