package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	ptylib "github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/shellbox/shellbox/internal/metrics"
	"github.com/shellbox/shellbox/pkg/types"
)

// PTYManager tracks interactive terminal sessions. A PTY session is
// independent of the sandbox's command session: it gets its own shell
// process in the container, its commands are not recorded in the
// trajectory, and losing it does not affect the sandbox's state.
type PTYManager struct {
	podmanPath string
	authFile   string
	mu         sync.RWMutex
	sessions   map[string]*PTYHandle
}

// PTYHandle is one live terminal attached to a container.
type PTYHandle struct {
	ID          string
	SandboxID   string
	ContainerID string
	Cmd         *exec.Cmd
	PTY         *os.File // master side of the pseudo-terminal
	Done        chan struct{}
}

// NewPTYManager creates an empty PTY session tracker.
func NewPTYManager(podmanPath, authFile string) *PTYManager {
	return &PTYManager{
		podmanPath: podmanPath,
		authFile:   authFile,
		sessions:   make(map[string]*PTYHandle),
	}
}

// CreateSession starts an interactive shell in the given container under a
// pseudo-terminal. The caller resolves the container from a running
// sandbox.
func (pm *PTYManager) CreateSession(sandboxID, containerID string, req types.PTYCreateRequest) (*PTYHandle, error) {
	shell := req.Shell
	if shell == "" {
		shell = sessionShell
	}
	cols := req.Cols
	if cols <= 0 {
		cols = 80
	}
	rows := req.Rows
	if rows <= 0 {
		rows = 24
	}

	args := []string{
		"exec", "-it",
		"--env", "TERM=xterm-256color",
		"--workdir", "/workspace",
		containerID,
		shell,
	}
	cmd := exec.Command(pm.podmanPath, args...)
	cmd.Env = append(os.Environ(), "REGISTRY_AUTH_FILE="+pm.authFile)

	ptmx, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY session: %w", err)
	}

	handle := &PTYHandle{
		ID:          uuid.New().String()[:8],
		SandboxID:   sandboxID,
		ContainerID: containerID,
		Cmd:         cmd,
		PTY:         ptmx,
		Done:        make(chan struct{}),
	}

	go func() {
		_ = cmd.Wait()
		close(handle.Done)
	}()

	pm.mu.Lock()
	pm.sessions[handle.ID] = handle
	pm.mu.Unlock()
	metrics.PTYSessionsActive.Inc()

	return handle, nil
}

// Resize changes the terminal dimensions of a session.
func (pm *PTYManager) Resize(sessionID string, cols, rows int) error {
	handle, err := pm.GetSession(sessionID)
	if err != nil {
		return err
	}
	return ptylib.Setsize(handle.PTY, &ptylib.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// GetSession returns a session by ID.
func (pm *PTYManager) GetSession(sessionID string) (*PTYHandle, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	handle, ok := pm.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("pty session %s: %w", sessionID, ErrNotFound)
	}
	return handle, nil
}

// KillSession terminates a session's shell process.
func (pm *PTYManager) KillSession(sessionID string) error {
	pm.mu.Lock()
	handle, ok := pm.sessions[sessionID]
	if ok {
		delete(pm.sessions, sessionID)
	}
	pm.mu.Unlock()

	if !ok {
		return fmt.Errorf("pty session %s: %w", sessionID, ErrNotFound)
	}

	handle.PTY.Close()
	if handle.Cmd.Process != nil {
		_ = handle.Cmd.Process.Kill()
	}
	metrics.PTYSessionsActive.Dec()
	return nil
}

// KillSandboxSessions terminates every session attached to a sandbox.
// Called when the sandbox stops.
func (pm *PTYManager) KillSandboxSessions(sandboxID string) {
	pm.mu.Lock()
	var doomed []*PTYHandle
	for id, handle := range pm.sessions {
		if handle.SandboxID == sandboxID {
			doomed = append(doomed, handle)
			delete(pm.sessions, id)
		}
	}
	pm.mu.Unlock()

	for _, handle := range doomed {
		handle.PTY.Close()
		if handle.Cmd.Process != nil {
			_ = handle.Cmd.Process.Kill()
		}
		metrics.PTYSessionsActive.Dec()
	}
}

// CloseAll terminates every session. Called on server shutdown.
func (pm *PTYManager) CloseAll() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, handle := range pm.sessions {
		handle.PTY.Close()
		if handle.Cmd.Process != nil {
			_ = handle.Cmd.Process.Kill()
		}
		metrics.PTYSessionsActive.Dec()
	}
	pm.sessions = make(map[string]*PTYHandle)
}
