package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistration(t *testing.T) {
	want := []string{"serve", "doctor", "config", "tasks", "workspaces", "monitor", "version"}
	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "subcommand %q not registered", name)
	}
}

func TestRootPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level", "log-format", "no-color"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name),
			"persistent flag %q missing", name)
	}
}

func TestRootDefaultsToServe(t *testing.T) {
	// Bare invocation must start the server; that is how MCP clients
	// launch the binary.
	require.NotNil(t, rootCmd.RunE)
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2026-01-15")

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	versionCmd.Run(versionCmd, []string{})

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, err := buf.ReadFrom(r)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "gitmcp v1.2.3")
	assert.Contains(t, output, "abc123def")
	assert.Contains(t, output, "2026-01-15")
	assert.Equal(t, "v1.2.3", GetVersion())
}
