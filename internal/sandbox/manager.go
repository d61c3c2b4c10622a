package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shellbox/shellbox/internal/metrics"
	"github.com/shellbox/shellbox/pkg/types"
)

const (
	containerPrefix = "sbx"
	sessionShell    = "/bin/bash"
)

// Options tune a Manager.
type Options struct {
	// MaxSandboxes caps the number of sandboxes holding runtime
	// resources at once.
	MaxSandboxes int
	// DefaultImage is used when a create request names no image.
	DefaultImage string
	// ExecTimeout bounds a session command when the request carries no
	// timeout of its own.
	ExecTimeout time.Duration
	// AdmissionWait is how long a start waits for a concurrency slot.
	// Zero means fail immediately when the engine is full.
	AdmissionWait time.Duration
	// TrajectoryLimit caps retained trajectory records per sandbox.
	// Zero means unbounded.
	TrajectoryLimit int
	// DataDir is where per-sandbox event logs live. Empty disables the
	// durable log.
	DataDir string
}

// Manager owns the sandbox lifecycle: admission, container provisioning,
// the persistent shell session, and the trajectory. All API operations go
// through it.
type Manager struct {
	runtime   Runtime
	registry  *Registry
	admission *AdmissionController
	opts      Options
}

// NewManager creates a manager driving the given runtime.
func NewManager(runtime Runtime, opts Options) *Manager {
	return &Manager{
		runtime:   runtime,
		registry:  NewRegistry(),
		admission: NewAdmissionController(opts.MaxSandboxes),
		opts:      opts,
	}
}

// Create registers a sandbox without allocating runtime resources. The
// sandbox stays in the created state until started, so creation always
// succeeds regardless of engine load.
func (m *Manager) Create(ctx context.Context, cfg types.SandboxConfig) (types.Sandbox, error) {
	image := cfg.Image
	if image == "" {
		image = m.opts.DefaultImage
	}

	r := m.registry.Create(image, cfg.SetupCommands, m.opts.TrajectoryLimit)

	if m.opts.DataDir != "" {
		el, err := OpenEventLog(m.opts.DataDir, r.id)
		if err != nil {
			log.Printf("shellbox: event log for %s unavailable: %v", r.id, err)
		} else {
			r.mu.Lock()
			r.eventLog = el
			r.mu.Unlock()
			m.logTransition(r, "", types.StateCreated, "")
		}
	}

	log.Printf("shellbox: created sandbox %s (image=%s)", r.id, image)
	metrics.SandboxesByState.WithLabelValues(string(types.StateCreated)).Inc()
	return r.snapshot(), nil
}

// Start provisions the container and shell session for a created sandbox.
// When no concurrency slot is free the sandbox reverts to created and the
// caller may retry; any failure after a slot is held moves the sandbox to
// failed and releases the slot.
func (m *Manager) Start(ctx context.Context, id string) (types.Sandbox, error) {
	if err := m.transition(id, types.StateCreated, types.StateStarting, ""); err != nil {
		return types.Sandbox{}, err
	}
	r, err := m.registry.Get(id)
	if err != nil {
		return types.Sandbox{}, err
	}

	ticket, err := m.acquireSlot(ctx)
	if err != nil {
		// No resources were allocated; the sandbox goes back to
		// created so a later start can try again.
		m.transition(id, types.StateStarting, types.StateCreated, "admission exhausted")
		return types.Sandbox{}, err
	}

	started := time.Now()
	if err := m.provision(ctx, r, ticket); err != nil {
		ticket.Release()
		metrics.AdmissionSlotsUsed.Dec()
		m.transition(id, types.StateStarting, types.StateFailed, err.Error())
		return types.Sandbox{}, &RuntimeError{SandboxID: id, Op: "start", Err: err}
	}

	if err := m.transition(id, types.StateStarting, types.StateRunning, ""); err != nil {
		// A concurrent stop won the race. Its own teardown ran before
		// provisioning finished, so release what provision installed.
		m.teardown(r)
		return types.Sandbox{}, err
	}
	metrics.SandboxStartDuration.Observe(time.Since(started).Seconds())
	log.Printf("shellbox: sandbox %s running (container=%s)", id, shortID(r))
	return r.snapshot(), nil
}

func (m *Manager) acquireSlot(ctx context.Context) (*Ticket, error) {
	var ticket *Ticket
	var err error
	if m.opts.AdmissionWait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, m.opts.AdmissionWait)
		defer cancel()
		ticket, err = m.admission.Acquire(waitCtx)
	} else {
		ticket, err = m.admission.TryAcquire()
	}
	if err != nil {
		return nil, err
	}
	metrics.AdmissionSlotsUsed.Inc()
	return ticket, nil
}

// provision does the runtime work of a start: image, container, setup
// commands, shell session. On error the caller handles state; this method
// cleans up whatever it allocated.
func (m *Manager) provision(ctx context.Context, r *record, ticket *Ticket) error {
	if err := m.runtime.EnsureImage(ctx, r.image); err != nil {
		return fmt.Errorf("ensure image %s: %w", r.image, err)
	}

	name := fmt.Sprintf("%s-%s", containerPrefix, r.id)
	containerID, err := m.runtime.CreateContainer(ctx, name, r.image)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	cleanup := func() {
		if rmErr := m.runtime.RemoveContainer(context.Background(), containerID); rmErr != nil {
			log.Printf("shellbox: cleanup of container %s failed: %v", containerID, rmErr)
		}
	}

	if err := m.runtime.StartContainer(ctx, containerID); err != nil {
		cleanup()
		return fmt.Errorf("start container: %w", err)
	}

	// Setup commands run as one standalone shell invocation so a failing
	// step stops the rest, before the interactive session exists.
	if len(r.setupCommands) > 0 {
		joined := strings.Join(r.setupCommands, " && ")
		stdout, stderr, code, err := m.runtime.ExecCommand(ctx, containerID, []string{sessionShell, "-lc", joined})
		if err != nil {
			cleanup()
			return fmt.Errorf("setup commands: %w", err)
		}
		if code != 0 {
			cleanup()
			return fmt.Errorf("setup commands exited %d: %s", code, strings.TrimSpace(stdout+stderr))
		}
	}

	stream, err := m.runtime.AttachShell(containerID, sessionShell)
	if err != nil {
		cleanup()
		return fmt.Errorf("attach shell: %w", err)
	}
	session := NewSession(stream)
	if err := session.Init(ctx); err != nil {
		session.Close()
		cleanup()
		return err
	}

	r.mu.Lock()
	r.containerID = containerID
	r.session = session
	r.ticket = ticket
	r.mu.Unlock()
	return nil
}

// Exec runs a command in a running sandbox and records it in the
// trajectory. Session commands share one shell and see each other's state;
// standalone commands run in a fresh shell process outside the session.
func (m *Manager) Exec(ctx context.Context, id string, req types.ExecRequest) (types.ExecResult, error) {
	r, err := m.registry.Get(id)
	if err != nil {
		return types.ExecResult{}, err
	}

	r.mu.Lock()
	state := r.state
	session := r.session
	containerID := r.containerID
	r.mu.Unlock()
	if state != types.StateRunning {
		return types.ExecResult{}, &InvalidTransitionError{
			SandboxID: id,
			Actual:    state,
			Expected:  types.StateRunning,
			Target:    types.StateRunning,
		}
	}

	timeout := m.opts.ExecTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	mode := "session"
	if req.Standalone {
		mode = "standalone"
	}

	startedAt := time.Now()
	var result types.ExecResult
	var execErr error
	if req.Standalone {
		execCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		result.Stdout, result.Stderr, result.ExitCode, execErr =
			m.runtime.ExecCommand(execCtx, containerID, []string{sessionShell, "-lc", req.Command})
	} else {
		result.Stdout, result.ExitCode, execErr = session.Run(ctx, req.Command, timeout)
	}
	endedAt := time.Now()

	if execErr != nil {
		metrics.ExecsTotal.WithLabelValues(mode, "error").Inc()
		m.handleExecFailure(id, execErr)
		return types.ExecResult{}, execErr
	}

	idx := r.trajectory.Append(req.Command, result.Stdout, result.Stderr, result.ExitCode, req.Standalone, startedAt, endedAt)
	if el := m.eventLogFor(r); el != nil {
		if err := el.LogCommand(types.TrajectoryRecord{
			Index:      idx,
			Command:    req.Command,
			Stdout:     result.Stdout,
			Stderr:     result.Stderr,
			ExitCode:   result.ExitCode,
			Standalone: req.Standalone,
			StartedAt:  startedAt,
			EndedAt:    endedAt,
		}); err != nil {
			log.Printf("shellbox: event log write for %s failed: %v", id, err)
		}
	}

	metrics.ExecsTotal.WithLabelValues(mode, "ok").Inc()
	metrics.ExecDuration.WithLabelValues(mode).Observe(endedAt.Sub(startedAt).Seconds())
	return result, nil
}

// handleExecFailure demotes a sandbox whose shell session is gone. Timeouts
// and closed streams mean the session can no longer be trusted; the
// sandbox fails and its resources are torn down. Context cancellation is
// not fatal: the session recovers on its own.
func (m *Manager) handleExecFailure(id string, execErr error) {
	switch {
	case errors.Is(execErr, ErrSessionTimeout):
		metrics.SessionFailuresTotal.WithLabelValues("timeout").Inc()
	case errors.Is(execErr, ErrSessionClosed):
		metrics.SessionFailuresTotal.WithLabelValues("closed").Inc()
	default:
		return
	}

	if _, err := m.registry.TransitionAny(id, []types.SandboxState{types.StateRunning}, types.StateFailed); err != nil {
		return
	}
	m.noteTransition(types.StateRunning, types.StateFailed)
	log.Printf("shellbox: sandbox %s failed: %v", id, execErr)

	r, err := m.registry.Get(id)
	if err != nil {
		return
	}
	m.logTransition(r, types.StateRunning, types.StateFailed, execErr.Error())
	m.teardown(r)
}

// Stop gracefully shuts down a sandbox's session and container. Stopping a
// sandbox that is still starting is allowed; whichever operation loses the
// state race backs off.
func (m *Manager) Stop(ctx context.Context, id string) (types.Sandbox, error) {
	prev, err := m.registry.TransitionAny(id,
		[]types.SandboxState{types.StateRunning, types.StateStarting}, types.StateStopping)
	if err != nil {
		return types.Sandbox{}, err
	}
	m.noteTransition(prev, types.StateStopping)

	r, err := m.registry.Get(id)
	if err != nil {
		return types.Sandbox{}, err
	}
	m.logTransition(r, prev, types.StateStopping, "")

	stopErr := m.shutdownRuntime(ctx, r)

	target := types.StateStopped
	detail := ""
	if stopErr != nil {
		target = types.StateFailed
		detail = stopErr.Error()
		log.Printf("shellbox: stop of sandbox %s: %v", id, stopErr)
	}
	m.transition(id, types.StateStopping, target, detail)

	if stopErr != nil {
		return types.Sandbox{}, &RuntimeError{SandboxID: id, Op: "stop", Err: stopErr}
	}
	log.Printf("shellbox: stopped sandbox %s", id)
	return r.snapshot(), nil
}

// shutdownRuntime closes the session and removes the container, then
// releases the admission slot. The slot is released even when the runtime
// refuses to stop cleanly, otherwise a wedged container would leak
// capacity forever.
func (m *Manager) shutdownRuntime(ctx context.Context, r *record) error {
	r.mu.Lock()
	session := r.session
	containerID := r.containerID
	ticket := r.ticket
	r.session = nil
	r.ticket = nil
	r.mu.Unlock()

	if ticket != nil {
		defer func() {
			ticket.Release()
			metrics.AdmissionSlotsUsed.Dec()
		}()
	}

	if session != nil {
		session.Close()
	}
	if containerID == "" {
		return nil
	}

	if err := m.runtime.StopContainer(ctx, containerID); err != nil {
		log.Printf("shellbox: container %s did not stop cleanly: %v", containerID, err)
	}
	if err := m.runtime.RemoveContainer(ctx, containerID); err != nil {
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// teardown is the non-graceful variant used when a sandbox fails: best
// effort, background context, errors logged only.
func (m *Manager) teardown(r *record) {
	if err := m.shutdownRuntime(context.Background(), r); err != nil {
		log.Printf("shellbox: teardown of sandbox %s: %v", r.id, err)
	}
}

// Remove erases a terminal sandbox and its on-disk state. A created
// sandbox that never started may be removed directly.
func (m *Manager) Remove(ctx context.Context, id string) error {
	// Nothing was ever allocated for a created sandbox.
	if err := m.transition(id, types.StateCreated, types.StateStopped, "never started"); err == nil {
		m.noteTransition(types.StateCreated, types.StateStopped)
	}

	r, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	if err := m.registry.Remove(id); err != nil {
		return err
	}
	metrics.SandboxesByState.WithLabelValues(string(r.currentState())).Dec()

	if el := m.eventLogFor(r); el != nil {
		el.Close()
	}
	if m.opts.DataDir != "" {
		if err := RemoveEventLogData(m.opts.DataDir, id); err != nil {
			log.Printf("shellbox: removing data for %s: %v", id, err)
		}
	}
	log.Printf("shellbox: removed sandbox %s", id)
	return nil
}

// Get returns the current view of one sandbox.
func (m *Manager) Get(id string) (types.Sandbox, error) {
	r, err := m.registry.Get(id)
	if err != nil {
		return types.Sandbox{}, err
	}
	snap := r.snapshot()
	snap.CommandCount = r.trajectory.Len()
	return snap, nil
}

// List returns all sandboxes the engine knows about.
func (m *Manager) List() []types.Sandbox {
	return m.registry.List()
}

// Trajectory returns the recorded commands for a sandbox in execution
// order. Readable in every state, including failed and stopped.
func (m *Manager) Trajectory(id string) (types.TrajectoryResponse, error) {
	r, err := m.registry.Get(id)
	if err != nil {
		return types.TrajectoryResponse{}, err
	}
	records, truncated := r.trajectory.Snapshot()
	return types.TrajectoryResponse{
		SandboxID: id,
		Truncated: truncated,
		Records:   records,
	}, nil
}

// ErrEventLogDisabled is returned when the durable log was not configured
// for this server.
var ErrEventLogDisabled = errors.New("event log not enabled")

// Events returns the durable lifecycle history and command summary for a
// sandbox. Unlike the trajectory it holds no output bodies, but it records
// state changes and their triggering errors.
func (m *Manager) Events(id string) ([]LifecycleEntry, Summary, error) {
	r, err := m.registry.Get(id)
	if err != nil {
		return nil, Summary{}, err
	}
	el := m.eventLogFor(r)
	if el == nil {
		return nil, Summary{}, ErrEventLogDisabled
	}

	entries, err := el.Lifecycle()
	if err != nil {
		return nil, Summary{}, fmt.Errorf("reading lifecycle for %s: %w", id, err)
	}
	summary, err := el.CommandSummary()
	if err != nil {
		return nil, Summary{}, fmt.Errorf("reading command summary for %s: %w", id, err)
	}
	return entries, summary, nil
}

// ContainerID returns the container backing a running sandbox, for PTY
// attachment.
func (m *Manager) ContainerID(id string) (string, error) {
	r, err := m.registry.Get(id)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != types.StateRunning {
		return "", &InvalidTransitionError{
			SandboxID: id,
			Actual:    r.state,
			Expected:  types.StateRunning,
			Target:    types.StateRunning,
		}
	}
	return r.containerID, nil
}

// Capacity reports the admission limit.
func (m *Manager) Capacity() int {
	return m.admission.Capacity()
}

// Shutdown stops every non-terminal sandbox. Failures are logged and the
// sweep continues; a sandbox that refuses to stop must not block server
// shutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, sb := range m.registry.List() {
		// Created sandboxes own no container or slot yet.
		if sb.State.Terminal() || sb.State == types.StateCreated {
			continue
		}
		if _, err := m.Stop(ctx, sb.ID); err != nil {
			log.Printf("shellbox: shutdown of sandbox %s: %v", sb.ID, err)
		}
	}
}

// transition applies a CAS state change and keeps metrics and the event
// log in step with it.
func (m *Manager) transition(id string, from, to types.SandboxState, detail string) error {
	if err := m.registry.Transition(id, from, to); err != nil {
		return err
	}
	m.noteTransition(from, to)
	if r, err := m.registry.Get(id); err == nil {
		m.logTransition(r, from, to, detail)
	}
	return nil
}

func (m *Manager) noteTransition(from, to types.SandboxState) {
	if from != "" {
		metrics.SandboxesByState.WithLabelValues(string(from)).Dec()
	}
	metrics.SandboxesByState.WithLabelValues(string(to)).Inc()
}

func (m *Manager) logTransition(r *record, from, to types.SandboxState, detail string) {
	if el := m.eventLogFor(r); el != nil {
		if err := el.LogTransition(from, to, detail); err != nil {
			log.Printf("shellbox: event log write for %s failed: %v", r.id, err)
		}
	}
}

func (m *Manager) eventLogFor(r *record) *EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventLog
}

func shortID(r *record) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.containerID) > 12 {
		return r.containerID[:12]
	}
	return r.containerID
}
