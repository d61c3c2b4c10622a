package podman

import (
	"fmt"
	"os"
	"os/exec"

	ptylib "github.com/creack/pty"
)

// ShellStream is a long-lived interactive shell running inside a container,
// exposed as a single read/write byte stream (the master side of a
// pseudo-terminal). Closing the stream kills the shell process.
type ShellStream struct {
	cmd  *exec.Cmd
	ptmx *os.File
	done chan struct{}
}

// AttachShell starts an interactive shell inside a running container under a
// pseudo-terminal and returns the combined stream. The shell survives across
// reads and writes until Close is called or the process exits.
func (c *Client) AttachShell(container, shell string) (*ShellStream, error) {
	if shell == "" {
		shell = "/bin/bash"
	}

	args := []string{
		"exec", "-it",
		"--env", "TERM=dumb",
		container,
		shell, "-i",
	}

	cmd := exec.Command(c.binaryPath, args...)
	cmd.Env = append(os.Environ(), "REGISTRY_AUTH_FILE="+c.authFile)

	ptmx, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{Rows: 24, Cols: 200})
	if err != nil {
		return nil, fmt.Errorf("failed to attach shell to %s: %w", container, err)
	}

	s := &ShellStream{
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan struct{}),
	}

	go func() {
		_ = cmd.Wait()
		close(s.done)
	}()

	return s, nil
}

// Read reads shell output from the pseudo-terminal.
func (s *ShellStream) Read(p []byte) (int, error) {
	return s.ptmx.Read(p)
}

// Write writes input to the shell.
func (s *ShellStream) Write(p []byte) (int, error) {
	return s.ptmx.Write(p)
}

// Done is closed when the shell process exits.
func (s *ShellStream) Done() <-chan struct{} {
	return s.done
}

// Close tears down the pseudo-terminal and kills the shell process.
func (s *ShellStream) Close() error {
	err := s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return err
}
