package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/clip"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and manage tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTasksList,
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksShow,
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a queued task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksCancel,
}

var (
	tasksListStatus    []string
	tasksListOperation string
	tasksListWorkspace string
	tasksListLimit     int
	tasksListJSON      bool

	tasksShowJSON bool
	tasksShowLogs bool
	tasksShowCopy bool
)

var knownStatuses = []core.TaskStatus{
	core.TaskStatusQueued, core.TaskStatusRunning, core.TaskStatusCompleted,
	core.TaskStatusFailed, core.TaskStatusCancelled, core.TaskStatusTimedOut,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksShowCmd, tasksCancelCmd)

	tasksListCmd.Flags().StringSliceVar(&tasksListStatus, "status", nil,
		"filter by status (queued, running, completed, failed, cancelled, timed_out)")
	tasksListCmd.Flags().StringVar(&tasksListOperation, "operation", "",
		"filter by operation name")
	tasksListCmd.Flags().StringVar(&tasksListWorkspace, "workspace", "",
		"filter by workspace ID")
	tasksListCmd.Flags().IntVar(&tasksListLimit, "limit", 50, "maximum rows")
	tasksListCmd.Flags().BoolVar(&tasksListJSON, "json", false, "Output as JSON")

	tasksShowCmd.Flags().BoolVar(&tasksShowJSON, "json", false, "Output as JSON")
	tasksShowCmd.Flags().BoolVar(&tasksShowLogs, "logs", false, "include the operation log")
	tasksShowCmd.Flags().BoolVar(&tasksShowCopy, "copy", false,
		"copy the commit OID (or the task ID) to the clipboard")
}

func parseStatuses(raw []string) ([]core.TaskStatus, error) {
	var out []core.TaskStatus
	for _, s := range raw {
		status := core.TaskStatus(strings.ToLower(s))
		valid := false
		for _, k := range knownStatuses {
			if status == k {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		out = append(out, status)
	}
	return out, nil
}

func runTasksList(cobraCmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	statuses, err := parseStatuses(tasksListStatus)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.ListTasks(cobraCmd.Context(), core.TaskFilter{
		Statuses:    statuses,
		Operation:   core.Operation(tasksListOperation),
		WorkspaceID: core.WorkspaceID(tasksListWorkspace),
		Limit:       tasksListLimit,
	})
	if err != nil {
		return err
	}

	if tasksListJSON {
		return outputJSON(tasks)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOPERATION\tSTATUS\tPROGRESS\tATTEMPT\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%s\n",
			t.ID, t.Operation, strings.ToUpper(string(t.Status)),
			t.Progress, t.Attempt,
			t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runTasksShow(cobraCmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cobraCmd.Context()
	task, err := st.GetTask(ctx, core.TaskID(args[0]))
	if err != nil {
		return err
	}

	if tasksShowCopy {
		text := copyText(task)
		res, err := clip.WriteAll(text)
		if err != nil {
			return fmt.Errorf("copying: %w", err)
		}
		switch res.Method {
		case clip.MethodFile:
			fmt.Fprintf(os.Stderr, "Clipboard unavailable; wrote %s\n", res.FilePath)
		default:
			fmt.Fprintf(os.Stderr, "Copied %q (%s)\n", text, res.Method)
		}
	}

	if tasksShowJSON {
		return outputJSON(task)
	}

	fmt.Printf("Task:      %s\n", task.ID)
	fmt.Printf("Operation: %s\n", task.Operation)
	fmt.Printf("Status:    %s\n", strings.ToUpper(string(task.Status)))
	fmt.Printf("Progress:  %d%%\n", task.Progress)
	fmt.Printf("Attempt:   %d\n", task.Attempt)
	if task.WorkspaceID != "" {
		fmt.Printf("Workspace: %s\n", task.WorkspaceID)
	}
	fmt.Printf("Created:   %s\n", task.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Started:   %s\n", formatTimestamp(task.StartedAt))
	fmt.Printf("Completed: %s\n", formatTimestamp(task.CompletedAt))
	if task.Error != nil {
		fmt.Printf("Error:     [%d] %s\n", task.Error.Code, task.Error.Message)
		if task.Error.Suggestion != "" {
			fmt.Printf("           %s\n", task.Error.Suggestion)
		}
	}
	if len(task.Result) > 0 {
		fmt.Println("Result:")
		var buf bytes.Buffer
		if json.Indent(&buf, task.Result, "  ", "  ") == nil {
			fmt.Printf("  %s\n", buf.String())
		} else {
			fmt.Printf("  %s\n", task.Result)
		}
	}

	if tasksShowLogs {
		logs, err := st.ListOperationLogs(ctx, core.OpLogFilter{TaskID: task.ID})
		if err != nil {
			return err
		}
		fmt.Println()
		for _, entry := range logs {
			fmt.Printf("%s [%s] %s\n",
				entry.CreatedAt.Local().Format("15:04:05"), entry.Status, entry.Detail)
		}
	}
	return nil
}

// copyText picks what --copy puts on the clipboard: the commit OID when
// the result carries one, otherwise the task ID.
func copyText(t *core.Task) string {
	if len(t.Result) > 0 {
		var payload struct {
			OID string `json:"oid"`
		}
		if json.Unmarshal(t.Result, &payload) == nil && payload.OID != "" {
			return payload.OID
		}
	}
	return string(t.ID)
}

func runTasksCancel(cobraCmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cobraCmd.Context()
	task, err := st.GetTask(ctx, core.TaskID(args[0]))
	if err != nil {
		return err
	}

	switch task.Status {
	case core.TaskStatusQueued:
		if err := task.MarkCancelled(); err != nil {
			return err
		}
		if err := st.UpdateTask(ctx, task); err != nil {
			return err
		}
		fmt.Printf("Cancelled %s\n", task.ID)
		return nil
	case core.TaskStatusRunning:
		// A running task belongs to the serving process; only it can
		// signal the adapter.
		return fmt.Errorf("task %s is running; cancel it through the git_cancel_task tool", task.ID)
	default:
		fmt.Printf("Task %s is already %s\n", task.ID, task.Status)
		return nil
	}
}
