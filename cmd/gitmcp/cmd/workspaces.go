package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/workspace"
)

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "Inspect and clean up workspaces",
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE:  runWorkspacesList,
}

var workspacesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove idle workspaces and enforce the disk quota",
	Long: `Remove workspaces idle past the retention window, reap records whose
directories were deleted externally, and evict oldest workspaces until
usage is back under the configured quota.`,
	RunE: runWorkspacesPrune,
}

var workspacesListJSON bool

func init() {
	rootCmd.AddCommand(workspacesCmd)
	workspacesCmd.AddCommand(workspacesListCmd, workspacesPruneCmd)

	workspacesListCmd.Flags().BoolVar(&workspacesListJSON, "json", false, "Output as JSON")
}

func runWorkspacesList(cobraCmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	spaces, err := st.ListWorkspaces(cobraCmd.Context())
	if err != nil {
		return err
	}

	if workspacesListJSON {
		return outputJSON(spaces)
	}
	if len(spaces) == 0 {
		fmt.Println("No workspaces")
		return nil
	}

	var total int64
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSIZE\tLAST USED\tDIRTY\tREPO")
	for _, ws := range spaces {
		dirty := "-"
		if ws.Dirty {
			dirty = "yes"
		}
		repo := ws.RepoURL
		if repo == "" {
			repo = "-"
		}
		total += ws.SizeBytes
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ws.ID, formatBytes(ws.SizeBytes),
			ws.LastUsedAt.Local().Format("2006-01-02 15:04:05"), dirty, repo)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d workspaces, %s total\n", len(spaces), formatBytes(total))
	return nil
}

func runWorkspacesPrune(cobraCmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr, err := workspace.NewManager(cfg.Workspace, st, logger)
	if err != nil {
		return err
	}

	ctx := cobraCmd.Context()
	expired, err := mgr.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up expired workspaces: %w", err)
	}
	evicted, err := mgr.EvictUntilUnderQuota(ctx)
	if err != nil {
		return fmt.Errorf("evicting over quota: %w", err)
	}

	fmt.Printf("Removed %d expired, evicted %d over quota\n", expired, evicted)
	return nil
}
