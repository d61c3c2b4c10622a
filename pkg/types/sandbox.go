package types

import "time"

// SandboxState represents the lifecycle state of a sandbox.
//
// States advance one-directionally:
//
//	created -> starting -> running -> stopping -> stopped
//
// with failed reachable from any non-terminal state. A stopped or failed
// sandbox never transitions again; it must be recreated.
type SandboxState string

const (
	StateCreated  SandboxState = "created"
	StateStarting SandboxState = "starting"
	StateRunning  SandboxState = "running"
	StateStopping SandboxState = "stopping"
	StateStopped  SandboxState = "stopped"
	StateFailed   SandboxState = "failed"
)

// Terminal reports whether a sandbox in this state can never transition again.
func (s SandboxState) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Sandbox is the API representation of a sandbox.
type Sandbox struct {
	ID            string       `json:"sandboxID"`
	Image         string       `json:"image"`
	SetupCommands []string     `json:"setupCommands,omitempty"`
	State         SandboxState `json:"state"`
	CreatedAt     time.Time    `json:"createdAt"`
	CommandCount  int          `json:"commandCount"`
	Token         string       `json:"token,omitempty"`
}

// SandboxConfig is the request body for creating a sandbox.
// Setup commands run once at start, joined with "&&"; a non-zero exit
// fails the start. Start chains the start step onto creation.
type SandboxConfig struct {
	Image         string   `json:"image,omitempty"`
	SetupCommands []string `json:"setup_commands,omitempty"`
	Start         bool     `json:"start,omitempty"`
}
