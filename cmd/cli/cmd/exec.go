package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shellbox/shellbox/pkg/client"
	"github.com/shellbox/shellbox/pkg/types"
)

var execCmd = &cobra.Command{
	Use:   "exec <sandbox-id> <command> [args...]",
	Short: "Run a command in a sandbox's shell session",
	Long: `Run a command in the sandbox's persistent shell session. Working
directory, environment, and shell state carry over between invocations.
Use --standalone to run in a fresh shell outside the session instead.

Example: sbx exec abc123 ls -la /workspace`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		standalone, _ := cmd.Flags().GetBool("standalone")
		timeoutSec, _ := cmd.Flags().GetInt("timeout")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		req := types.ExecRequest{
			Command:    strings.Join(args[1:], " "),
			Standalone: standalone,
			Timeout:    timeoutSec,
		}

		c := client.NewClient(serverURL, apiKey)
		ctxTimeout := 120 * time.Second
		if timeoutSec > 0 {
			ctxTimeout = time.Duration(timeoutSec+30) * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
		defer cancel()

		result, err := c.Exec(ctx, args[0], req)
		if err != nil {
			return fmt.Errorf("failed to execute command: %w", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if result.Stdout != "" {
			fmt.Println(result.Stdout)
		}
		if result.Stderr != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), result.Stderr)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("command exited with code %d", result.ExitCode)
		}
		return nil
	},
}

func init() {
	execCmd.Flags().BoolP("standalone", "s", false, "run outside the persistent session")
	execCmd.Flags().Int("timeout", 0, "per-command timeout in seconds (server default when 0)")
	execCmd.Flags().Bool("json", false, "print the raw result as JSON")
	rootCmd.AddCommand(execCmd)
}
