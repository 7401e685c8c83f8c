package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckClaudeCLI verifies that the 'claude' CLI is available in PATH.
// Returns an error with installation instructions if not found.
func CheckClaudeCLI(binary string) error {
	_, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"Hive launches Claude Code processes for every swarm instance.\n\n"+
			"Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"For more information, visit:\n"+
			"  https://docs.anthropic.com/en/docs/claude-code", binary)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Swarm orchestrator for Claude Code agents",
	Long: `Hive launches a swarm of Claude Code instances from a declarative
topology document (hive.yaml).

One instance is the main instance: it runs in the foreground on your
terminal. The others are satellites, exposed to their callers as MCP
servers and spawned on demand. Who can talk to whom is exactly the
connection topology the document declares.

Every run is recorded as a session that can be listed, inspected, and
restored later with its conversation history intact.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Fatal errors print one line and exit 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hive: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(versionCmd)
}
