package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/fsutil"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as JSON",
	RunE:  runConfigShow,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false,
		"overwrite an existing config file")
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = "gitmcp.yaml"
	}
	if fsutil.Exists(path) && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := fsutil.AtomicWriteFile(path, []byte(config.DefaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigValidate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		if verrs, ok := err.(config.ValidationErrors); ok {
			for _, verr := range verrs {
				fmt.Fprintf(os.Stderr, "  ✗ %s\n", verr.Error())
			}
		}
		return fmt.Errorf("configuration is invalid")
	}
	fmt.Println("Configuration is valid")
	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Credential values must never reach stdout.
	cfg.Git.Token = redactIfSet(cfg.Git.Token)
	cfg.Git.Password = redactIfSet(cfg.Git.Password)
	cfg.Git.SSHKeyPassphrase = redactIfSet(cfg.Git.SSHKeyPassphrase)
	return outputJSON(cfg)
}

func redactIfSet(s string) string {
	if s == "" {
		return ""
	}
	return "<REDACTED>"
}
