package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shellbox/shellbox/pkg/client"
	"github.com/shellbox/shellbox/pkg/types"
)

var sandboxCmd = &cobra.Command{
	Use:     "sandbox",
	Aliases: []string{"sb"},
	Short:   "Manage sandboxes",
	Long:    `Create, start, list, inspect, stop, and remove sandboxes.`,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new sandbox",
	Long:  `Register a new sandbox. Use --start to also provision it immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		image, _ := cmd.Flags().GetString("image")
		setup, _ := cmd.Flags().GetStringArray("setup")
		start, _ := cmd.Flags().GetBool("start")

		cfg := types.SandboxConfig{
			Image:         image,
			SetupCommands: setup,
			Start:         start,
		}

		c := client.NewClient(serverURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		sb, err := c.CreateSandbox(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create sandbox: %w", err)
		}

		fmt.Printf("Sandbox created: %s\n", sb.ID)
		fmt.Printf("  Image: %s\n", sb.Image)
		fmt.Printf("  State: %s\n", sb.State)
		if sb.Token != "" {
			fmt.Printf("  Token: %s\n", sb.Token)
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <sandbox-id>",
	Short: "Start a created sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(serverURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		sb, err := c.StartSandbox(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to start sandbox: %w", err)
		}
		fmt.Printf("Sandbox %s is %s\n", sb.ID, sb.State)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all sandboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(serverURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sandboxes, err := c.ListSandboxes(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sandboxes: %w", err)
		}

		if len(sandboxes) == 0 {
			fmt.Println("No sandboxes found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tIMAGE\tCREATED")
		for _, sb := range sandboxes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				sb.ID, sb.State, sb.Image, sb.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var getCmd = &cobra.Command{
	Use:   "get <sandbox-id>",
	Short: "Show one sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(serverURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sb, err := c.GetSandbox(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get sandbox: %w", err)
		}

		data, _ := json.MarshalIndent(sb, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <sandbox-id>",
	Short: "Stop a running sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(serverURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		sb, err := c.StopSandbox(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to stop sandbox: %w", err)
		}
		fmt.Printf("Sandbox %s is %s\n", sb.ID, sb.State)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <sandbox-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a stopped or failed sandbox",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(serverURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.RemoveSandbox(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to remove sandbox: %w", err)
		}
		fmt.Printf("Sandbox %s removed\n", args[0])
		return nil
	},
}

func init() {
	createCmd.Flags().String("image", "", "container image (server default when empty)")
	createCmd.Flags().StringArray("setup", nil, "setup command, repeatable, run in order before the session opens")
	createCmd.Flags().Bool("start", false, "start the sandbox immediately")

	sandboxCmd.AddCommand(createCmd)
	sandboxCmd.AddCommand(startCmd)
	sandboxCmd.AddCommand(listCmd)
	sandboxCmd.AddCommand(getCmd)
	sandboxCmd.AddCommand(stopCmd)
	sandboxCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(sandboxCmd)
}
