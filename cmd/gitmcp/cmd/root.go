package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "gitmcp",
	Short: "Git operations server for MCP clients",
	Long: `gitmcp exposes Git operations to automation clients over the Model
Context Protocol. Tool calls arrive on stdin as JSON-RPC, long-running
operations (clone, push, fetch, rebase) run as polled background tasks
in isolated workspaces, and results stream back on stdout.

Running 'gitmcp' without arguments starts the stdio server, which is
how MCP clients are expected to launch it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Default to serving when no subcommand is provided.
	RunE: runServe,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./gitmcp.yaml or ~/.config/gitmcp/gitmcp.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("log.no_color", rootCmd.PersistentFlags().Lookup("no-color"))
}
