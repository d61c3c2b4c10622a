package types

import "time"

// ExecRequest is the request body for executing a command in a sandbox.
// Standalone runs the command as a fresh one-off process with no shared
// shell state; otherwise the command runs in the sandbox's persistent
// session. Timeout is in seconds; zero means the server default.
type ExecRequest struct {
	Command    string `json:"command"`
	Standalone bool   `json:"standalone,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
}

// ExecResult is the outcome of a completed command execution. Session-mode
// commands run under a single pty, so their output is combined and returned
// in Stdout with Stderr empty.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// TrajectoryRecord is one entry in a sandbox's command trajectory.
type TrajectoryRecord struct {
	Index      int       `json:"index"`
	Command    string    `json:"command"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Standalone bool      `json:"standalone"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// TrajectoryResponse is the response for a trajectory query. Truncated is
// set when the recorder's bound has evicted records from the front of the
// log, so the sequence no longer starts at index 0.
type TrajectoryResponse struct {
	SandboxID string             `json:"sandbox_id"`
	Truncated bool               `json:"truncated"`
	Records   []TrajectoryRecord `json:"records"`
}
