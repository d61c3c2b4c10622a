package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shellbox/shellbox/pkg/client"
	"github.com/shellbox/shellbox/pkg/types"
)

var shellCmd = &cobra.Command{
	Use:   "shell <sandbox-id>",
	Short: "Attach an interactive terminal to a running sandbox",
	Long: `Open a PTY session in the sandbox and bridge it to this terminal.
The session is independent of the sandbox's command session and is not
recorded in the trajectory. Exit the remote shell to detach.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]
		shell, _ := cmd.Flags().GetString("shell")

		c := client.NewClient(serverURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cols, rows := 80, 24
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			if w, h, err := term.GetSize(fd); err == nil {
				cols, rows = w, h
			}
		}

		sess, err := c.CreatePTY(ctx, sandboxID, types.PTYCreateRequest{
			Shell: shell,
			Cols:  cols,
			Rows:  rows,
		})
		if err != nil {
			return fmt.Errorf("failed to open PTY session: %w", err)
		}
		defer func() {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cleanupCancel()
			_ = c.KillPTY(cleanupCtx, sandboxID, sess.SessionID)
		}()

		wsURL, err := c.PTYWebSocketURL(sandboxID, sess.SessionID)
		if err != nil {
			return err
		}
		ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return fmt.Errorf("failed to connect to PTY: %w", err)
		}
		defer ws.Close()

		var restore func()
		if term.IsTerminal(fd) {
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("failed to enter raw mode: %w", err)
			}
			restore = func() { term.Restore(fd, oldState) }
			defer restore()
		}

		done := make(chan struct{})

		// Remote -> local terminal
		go func() {
			defer close(done)
			for {
				_, msg, err := ws.ReadMessage()
				if err != nil {
					return
				}
				os.Stdout.Write(msg)
			}
		}()

		// Local keystrokes -> remote
		go func() {
			buf := make([]byte, 1024)
			for {
				n, err := os.Stdin.Read(buf)
				if n > 0 {
					if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
						return
					}
				}
				if err != nil {
					ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(time.Second))
					return
				}
			}
		}()

		sigC := make(chan os.Signal, 1)
		signal.Notify(sigC, syscall.SIGTERM)
		select {
		case <-done:
		case <-sigC:
		}

		if restore != nil {
			restore()
		}
		fmt.Println()
		return nil
	},
}

func init() {
	shellCmd.Flags().String("shell", "", "shell to run in the sandbox (default /bin/bash)")
	rootCmd.AddCommand(shellCmd)
}
