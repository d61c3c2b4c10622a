package types

// PTYCreateRequest is the request body for opening an interactive PTY
// session inside a sandbox.
type PTYCreateRequest struct {
	Shell string `json:"shell,omitempty"` // default /bin/bash
	Cols  int    `json:"cols,omitempty"`  // default 80
	Rows  int    `json:"rows,omitempty"`  // default 24
}

// PTYSession identifies an open PTY session.
type PTYSession struct {
	SessionID string `json:"sessionID"`
	SandboxID string `json:"sandboxID"`
}
