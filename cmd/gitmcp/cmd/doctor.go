package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment",
	Long: `Verify that the host can run the service: git toolchain, credential
sources, workspace root, disk capacity and the task store.`,
	RunE: runDoctor,
}

var doctorJSON bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output as JSON")
}

func runDoctor(cobraCmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	results := diagnostics.New(*cfg).Run(cobraCmd.Context())

	if doctorJSON {
		if err := outputJSON(results); err != nil {
			return err
		}
	} else {
		fmt.Println("Checking environment...")
		fmt.Println()
		for _, r := range results {
			icon := "✓"
			switch r.Status {
			case diagnostics.StatusWarn:
				icon = "⚠"
			case diagnostics.StatusFail:
				icon = "✗"
			}
			if r.Detail != "" {
				fmt.Printf("  %s %-16s %s\n", icon, r.Name, r.Detail)
			} else {
				fmt.Printf("  %s %s\n", icon, r.Name)
			}
		}
		fmt.Println()
	}

	if !diagnostics.Healthy(results) {
		return fmt.Errorf("environment check failed")
	}
	if !doctorJSON {
		fmt.Println("Environment is ready")
	}
	return nil
}
