package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// statusIcon returns a single-glyph indicator for a task status.
func statusIcon(status core.TaskStatus) string {
	switch status {
	case core.TaskStatusQueued:
		return "○"
	case core.TaskStatusRunning:
		return "●"
	case core.TaskStatusCompleted:
		return "✓"
	case core.TaskStatusFailed:
		return "✗"
	case core.TaskStatusCancelled:
		return "⊘"
	case core.TaskStatusTimedOut:
		return "⧗"
	default:
		return "?"
	}
}

// formatDuration renders a duration in compact form.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

// formatBytes renders a byte count in binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// shortID truncates a UUID to its first group for display.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Truncate shortens s to fit width, appending an ellipsis.
func Truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}

// renderProgressBar renders a fixed-width bar for progress 0..100.
func renderProgressBar(progress, width int) string {
	if width < 1 {
		width = 1
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
