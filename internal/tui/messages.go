package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// snapshotMsg carries one store poll result.
type snapshotMsg struct {
	tasks      []*core.Task
	workspaces []*core.Workspace
	takenAt    time.Time
}

// snapshotErrMsg reports a failed poll. The previous snapshot stays on
// screen until a later poll succeeds.
type snapshotErrMsg struct {
	err error
}

// refreshTickMsg triggers the next store poll.
type refreshTickMsg time.Time

func refreshTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}
