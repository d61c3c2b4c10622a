package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:   "sbx",
	Short: "Shellbox CLI - Manage sandboxes from the command line",
	Long: `Shellbox CLI (sbx) is a command-line tool for driving a shellbox server.

It provides commands to create and start sandboxes, run commands in their
persistent shell sessions, inspect trajectories, and attach interactive
terminals.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault("SHELLBOX_SERVER", "http://localhost:3000"), "Shellbox server base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SHELLBOX_API_KEY"), "Shellbox API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}
