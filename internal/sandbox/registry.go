package sandbox

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shellbox/shellbox/pkg/types"
)

// record is the registry's authoritative view of one sandbox. The registry
// exclusively owns all records; callers outside this package only ever see
// snapshots. State changes go through compare-and-swap transitions guarded
// by the per-record mutex, so operations on unrelated sandboxes never
// contend.
type record struct {
	mu sync.Mutex

	id            string
	image         string
	setupCommands []string
	createdAt     time.Time

	state       types.SandboxState
	containerID string
	session     *Session
	ticket      *Ticket

	trajectory *Trajectory
	eventLog   *EventLog
}

// snapshot returns an API view of the record under its lock.
func (r *record) snapshot() types.Sandbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	return types.Sandbox{
		ID:            r.id,
		Image:         r.image,
		SetupCommands: r.setupCommands,
		State:         r.state,
		CreatedAt:     r.createdAt,
	}
}

// currentState returns the record's state under its lock.
func (r *record) currentState() types.SandboxState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Registry is a concurrent-safe store of sandbox records. The map lock
// covers only membership; per-sandbox serialization happens through each
// record's compare-and-swap state transitions.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*record)}
}

// Create allocates a new record in the created state. It does not contact
// the container runtime.
func (g *Registry) Create(image string, setupCommands []string, trajectoryLimit int) *record {
	r := &record{
		id:            uuid.New().String()[:8],
		image:         image,
		setupCommands: setupCommands,
		createdAt:     time.Now(),
		state:         types.StateCreated,
		trajectory:    NewTrajectory(trajectoryLimit),
	}

	g.mu.Lock()
	g.records[r.id] = r
	g.mu.Unlock()

	return r
}

// Get returns the record for id, or ErrNotFound.
func (g *Registry) Get(id string) (*record, error) {
	g.mu.RLock()
	r, ok := g.records[id]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// List returns snapshots of all records.
func (g *Registry) List() []types.Sandbox {
	g.mu.RLock()
	records := make([]*record, 0, len(g.records))
	for _, r := range g.records {
		records = append(records, r)
	}
	g.mu.RUnlock()

	out := make([]types.Sandbox, 0, len(records))
	for _, r := range records {
		out = append(out, r.snapshot())
	}
	return out
}

// Transition atomically moves the sandbox from expected to target. It fails
// with an InvalidTransitionError when the current state differs from
// expected. This compare-and-swap is the single synchronization primitive
// preventing concurrent start/stop races on the same sandbox.
func (g *Registry) Transition(id string, expected, target types.SandboxState) error {
	r, err := g.Get(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != expected {
		return &InvalidTransitionError{
			SandboxID: id,
			Actual:    r.state,
			Expected:  expected,
			Target:    target,
		}
	}
	r.state = target
	return nil
}

// TransitionAny moves the sandbox to target if its current state is any of
// expected, returning the state it moved from.
func (g *Registry) TransitionAny(id string, expected []types.SandboxState, target types.SandboxState) (types.SandboxState, error) {
	r, err := g.Get(id)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range expected {
		if r.state == e {
			prev := r.state
			r.state = target
			return prev, nil
		}
	}
	return "", &InvalidTransitionError{
		SandboxID: id,
		Actual:    r.state,
		Expected:  expected[0],
		Target:    target,
	}
}

// Remove erases the record. Only legal once the sandbox is in a terminal
// state (stopped or failed).
func (g *Registry) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.records[id]
	if !ok {
		return ErrNotFound
	}

	r.mu.Lock()
	state := r.state
	r.mu.Unlock()
	if !state.Terminal() {
		return &InvalidTransitionError{
			SandboxID: id,
			Actual:    state,
			Expected:  types.StateStopped,
			Target:    "",
		}
	}

	delete(g.records, id)
	return nil
}
