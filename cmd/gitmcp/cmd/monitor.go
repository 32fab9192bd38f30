package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live terminal view of tasks and workspaces",
	Long: `Watch the task store in a terminal UI. The monitor is read-only and
attaches to the same store the server writes, so it can run next to a
serving process.`,
	RunE: runMonitor,
}

var monitorRefresh time.Duration

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorRefresh, "refresh", 2*time.Second,
		"poll interval")
}

func runMonitor(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	model := tui.New(st, tui.WithRefreshInterval(monitorRefresh))
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
