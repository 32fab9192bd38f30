package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

const (
	defaultRefreshInterval = time.Second
	maxVisibleTasks        = 200
	pollTimeout            = 5 * time.Second
	detailPaneLines        = 12
)

// Reader is the read-only slice of the store the monitor polls.
type Reader interface {
	ListTasks(ctx context.Context, f core.TaskFilter) ([]*core.Task, error)
	ListWorkspaces(ctx context.Context) ([]*core.Workspace, error)
}

// Option configures the monitor model.
type Option func(*Model)

// WithRefreshInterval overrides the poll interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithStatusFilter limits the task list to the given statuses.
func WithStatusFilter(statuses ...core.TaskStatus) Option {
	return func(m *Model) {
		m.statuses = statuses
	}
}

// Model is the monitor's bubbletea model.
type Model struct {
	reader   Reader
	interval time.Duration
	statuses []core.TaskStatus

	table   table.Model
	spinner spinner.Model

	tasks       []*core.Task
	workspaces  []*core.Workspace
	lastRefresh time.Time

	width      int
	height     int
	ready      bool
	showDetail bool
	err        error
}

// New creates a monitor model polling reader.
func New(reader Reader, opts ...Option) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	m := Model{
		reader:   reader,
		interval: defaultRefreshInterval,
		spinner:  sp,
		table:    newTaskTable(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func newTaskTable() table.Model {
	columns := []table.Column{
		{Title: "ID", Width: 8},
		{Title: "OPERATION", Width: 17},
		{Title: "STATUS", Width: 12},
		{Title: "PROG", Width: 5},
		{Title: "ELAPSED", Width: 8},
		{Title: "ATT", Width: 3},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		Foreground(ColorTextMuted).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorBorder).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(ColorText).
		Background(ColorPrimary).
		Bold(false)
	t.SetStyles(s)

	return t
}

// Init starts the spinner and the poll loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refreshCmd(), refreshTick(m.interval))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeTable()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshTickMsg:
		return m, tea.Batch(m.refreshCmd(), refreshTick(m.interval))

	case snapshotMsg:
		m.tasks = msg.tasks
		m.workspaces = msg.workspaces
		m.lastRefresh = msg.takenAt
		m.err = nil
		m.table.SetRows(taskRows(m.tasks, msg.takenAt))
		return m, nil

	case snapshotErrMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.refreshCmd()
	case "enter", "d":
		m.showDetail = !m.showDetail
		m.resizeTable()
		return m, nil
	}

	// Navigation keys go to the table.
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refreshCmd polls the store once off the update loop.
func (m Model) refreshCmd() tea.Cmd {
	reader := m.reader
	statuses := m.statuses
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()

		tasks, err := reader.ListTasks(ctx, core.TaskFilter{
			Statuses: statuses,
			Limit:    maxVisibleTasks,
		})
		if err != nil {
			return snapshotErrMsg{err: err}
		}
		workspaces, err := reader.ListWorkspaces(ctx)
		if err != nil {
			return snapshotErrMsg{err: err}
		}
		return snapshotMsg{tasks: tasks, workspaces: workspaces, takenAt: time.Now()}
	}
}

func (m *Model) resizeTable() {
	if m.width > 0 {
		m.table.SetWidth(m.width)
	}
	if m.height == 0 {
		return
	}

	reserved := 6 // header block + footer block
	if m.showDetail {
		reserved += detailPaneLines
	}
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	m.table.SetHeight(h)
}

// View renders the monitor.
func (m Model) View() string {
	if !m.ready {
		return m.spinner.View() + " Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.table.View(),
	}
	if m.showDetail {
		sections = append(sections, m.renderDetail())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("gitmcp monitor"))
	b.WriteString("   ")
	b.WriteString(m.renderSummary())
	return HeaderStyle.Width(m.width).Render(b.String())
}

// renderSummary renders per-status task counts, skipping empty buckets.
func (m Model) renderSummary() string {
	counts := countStatuses(m.tasks)
	if counts.total() == 0 {
		return SubtleStyle.Render("no tasks")
	}

	var parts []string
	if counts.running > 0 {
		parts = append(parts, m.spinner.View()+" "+RunningStyle.Render(fmt.Sprintf("%d running", counts.running)))
	}
	if counts.queued > 0 {
		parts = append(parts, QueuedStyle.Render(fmt.Sprintf("%d queued", counts.queued)))
	}
	if counts.completed > 0 {
		parts = append(parts, CompletedStyle.Render(fmt.Sprintf("%d completed", counts.completed)))
	}
	if counts.failed > 0 {
		parts = append(parts, FailedStyle.Render(fmt.Sprintf("%d failed", counts.failed)))
	}
	if counts.cancelled > 0 {
		parts = append(parts, CancelledStyle.Render(fmt.Sprintf("%d cancelled", counts.cancelled)))
	}
	if counts.timedOut > 0 {
		parts = append(parts, TimedOutStyle.Render(fmt.Sprintf("%d timed out", counts.timedOut)))
	}
	return strings.Join(parts, "  ")
}

type statusTally struct {
	queued    int
	running   int
	completed int
	failed    int
	cancelled int
	timedOut  int
}

func (s statusTally) total() int {
	return s.queued + s.running + s.completed + s.failed + s.cancelled + s.timedOut
}

func countStatuses(tasks []*core.Task) statusTally {
	var c statusTally
	for _, t := range tasks {
		switch t.Status {
		case core.TaskStatusQueued:
			c.queued++
		case core.TaskStatusRunning:
			c.running++
		case core.TaskStatusCompleted:
			c.completed++
		case core.TaskStatusFailed:
			c.failed++
		case core.TaskStatusCancelled:
			c.cancelled++
		case core.TaskStatusTimedOut:
			c.timedOut++
		}
	}
	return c
}

func taskRows(tasks []*core.Task, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, table.Row{
			shortID(string(t.ID)),
			string(t.Operation),
			statusIcon(t.Status) + " " + string(t.Status),
			progressCell(t),
			elapsedCell(t, now),
			strconv.Itoa(t.Attempt),
		})
	}
	return rows
}

func progressCell(t *core.Task) string {
	switch t.Status {
	case core.TaskStatusRunning:
		return fmt.Sprintf("%d%%", t.Progress)
	case core.TaskStatusCompleted:
		return "100%"
	default:
		return ""
	}
}

func elapsedCell(t *core.Task, now time.Time) string {
	switch {
	case t.StartedAt == nil:
		return ""
	case t.CompletedAt != nil:
		return formatDuration(t.CompletedAt.Sub(*t.StartedAt))
	default:
		return formatDuration(now.Sub(*t.StartedAt))
	}
}

func (m Model) selectedTask() *core.Task {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.tasks) {
		return nil
	}
	return m.tasks[idx]
}

func (m Model) renderDetail() string {
	t := m.selectedTask()
	if t == nil {
		return DetailBoxStyle.Render(SubtleStyle.Render("no task selected"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", TitleStyle.Render(string(t.Operation)), SubtleStyle.Render(string(t.ID)))
	fmt.Fprintf(&b, "%-9s %s %s\n", "status", statusIcon(t.Status), StatusStyle(t.Status).Render(string(t.Status)))
	if t.Status == core.TaskStatusRunning {
		fmt.Fprintf(&b, "%-9s %s %d%%\n", "progress", renderProgressBar(t.Progress, 20), t.Progress)
	}
	if t.WorkspaceID != "" {
		fmt.Fprintf(&b, "%-9s %s\n", "workspace", t.WorkspaceID)
	}
	fmt.Fprintf(&b, "%-9s %d\n", "attempt", t.Attempt)
	fmt.Fprintf(&b, "%-9s %s\n", "created", t.CreatedAt.Local().Format("15:04:05"))
	if t.StartedAt != nil {
		fmt.Fprintf(&b, "%-9s %s\n", "started", t.StartedAt.Local().Format("15:04:05"))
	}
	if t.CompletedAt != nil && t.StartedAt != nil {
		fmt.Fprintf(&b, "%-9s %s (%s)\n", "finished", t.CompletedAt.Local().Format("15:04:05"), formatDuration(t.CompletedAt.Sub(*t.StartedAt)))
	}
	if t.Error != nil {
		fmt.Fprintf(&b, "%-9s %s\n", "error", ErrorStyle.Render(fmt.Sprintf("[%d] %s", t.Error.Code, Truncate(t.Error.Message, 80))))
		if t.Error.Suggestion != "" {
			fmt.Fprintf(&b, "%-9s %s\n", "hint", SubtleStyle.Render(Truncate(t.Error.Suggestion, 80)))
		}
	}

	return DetailBoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderFooter() string {
	parts := []string{m.renderWorkspaceSummary()}
	if !m.lastRefresh.IsZero() {
		parts = append(parts, SubtleStyle.Render("updated "+m.lastRefresh.Local().Format("15:04:05")))
	}
	if m.err != nil {
		parts = append(parts, ErrorStyle.Render("refresh failed: "+Truncate(m.err.Error(), 60)))
	}

	help := HelpStyle.Render("q quit · r refresh · enter details · j/k move")
	return FooterStyle.Width(m.width).Render(strings.Join(parts, "  ") + "\n" + help)
}

func (m Model) renderWorkspaceSummary() string {
	if len(m.workspaces) == 0 {
		return SubtleStyle.Render("no workspaces")
	}

	var total int64
	dirty := 0
	for _, w := range m.workspaces {
		total += w.SizeBytes
		if w.Dirty {
			dirty++
		}
	}

	s := fmt.Sprintf("%d workspaces · %s", len(m.workspaces), formatBytes(total))
	if dirty > 0 {
		s += "  " + TimedOutStyle.Render(fmt.Sprintf("%d dirty", dirty))
	}
	return s
}
