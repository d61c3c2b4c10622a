package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shellbox/shellbox/pkg/client"
)

var trajectoryCmd = &cobra.Command{
	Use:     "trajectory <sandbox-id>",
	Aliases: []string{"traj"},
	Short:   "Show the commands a sandbox has executed",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		c := client.NewClient(serverURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		traj, err := c.Trajectory(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get trajectory: %w", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(traj, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if traj.Truncated {
			fmt.Println("(older records evicted)")
		}
		for _, rec := range traj.Records {
			marker := "$"
			if rec.Standalone {
				marker = "!"
			}
			fmt.Printf("[%d] %s %s (exit %d, %s)\n",
				rec.Index, marker, rec.Command, rec.ExitCode,
				rec.EndedAt.Sub(rec.StartedAt).Round(time.Millisecond))
			if rec.Stdout != "" {
				fmt.Println(indent(rec.Stdout))
			}
			if rec.Stderr != "" {
				fmt.Println(indent(rec.Stderr))
			}
		}
		return nil
	},
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return "    " + strings.Join(lines, "\n    ")
}

func init() {
	trajectoryCmd.Flags().Bool("json", false, "print the raw trajectory as JSON")
	rootCmd.AddCommand(trajectoryCmd)
}
