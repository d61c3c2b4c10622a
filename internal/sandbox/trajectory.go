package sandbox

import (
	"sync"
	"time"

	"github.com/shellbox/shellbox/pkg/types"
)

// Trajectory is the ordered record of every command executed in a sandbox,
// successful or not. When a limit is set the oldest records are evicted
// first; indices keep counting from the start of the sandbox's life so a
// reader can tell that eviction happened.
type Trajectory struct {
	mu        sync.Mutex
	limit     int
	next      int
	truncated bool
	records   []types.TrajectoryRecord
}

// NewTrajectory creates a trajectory retaining at most limit records.
// limit <= 0 means unbounded.
func NewTrajectory(limit int) *Trajectory {
	return &Trajectory{limit: limit}
}

// Append records one executed command and returns its index.
func (t *Trajectory) Append(command, stdout, stderr string, exitCode int, standalone bool, startedAt, endedAt time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := types.TrajectoryRecord{
		Index:      t.next,
		Command:    command,
		Stdout:     stdout,
		Stderr:     stderr,
		ExitCode:   exitCode,
		Standalone: standalone,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
	}
	t.next++
	t.records = append(t.records, rec)

	if t.limit > 0 && len(t.records) > t.limit {
		over := len(t.records) - t.limit
		t.records = append(t.records[:0:0], t.records[over:]...)
		t.truncated = true
	}
	return rec.Index
}

// Snapshot returns a copy of the retained records and whether older ones
// were evicted. The copy is safe to serialize while commands keep running.
func (t *Trajectory) Snapshot() ([]types.TrajectoryRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.TrajectoryRecord, len(t.records))
	copy(out, t.records)
	return out, t.truncated
}

// Len returns the number of commands recorded over the sandbox's lifetime,
// including evicted ones.
func (t *Trajectory) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}
