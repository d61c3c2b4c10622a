package sandbox

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// AdmissionController bounds the number of concurrently starting/running
// sandboxes. Waiters are served first-come-first-served; Acquire honors
// context cancellation without leaking capacity.
type AdmissionController struct {
	sem *semaphore.Weighted
	max int
}

// NewAdmissionController creates a controller with the given capacity.
func NewAdmissionController(max int) *AdmissionController {
	return &AdmissionController{
		sem: semaphore.NewWeighted(int64(max)),
		max: max,
	}
}

// Capacity returns the configured maximum.
func (a *AdmissionController) Capacity() int {
	return a.max
}

// Acquire blocks until a capacity unit is available or ctx is done. On
// cancellation it returns ErrAdmissionExhausted and no capacity is held.
func (a *AdmissionController) Acquire(ctx context.Context) (*Ticket, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, ErrAdmissionExhausted
	}
	return &Ticket{controller: a}, nil
}

// TryAcquire returns a ticket immediately if capacity is available.
func (a *AdmissionController) TryAcquire() (*Ticket, error) {
	if !a.sem.TryAcquire(1) {
		return nil, ErrAdmissionExhausted
	}
	return &Ticket{controller: a}, nil
}

// Ticket is one capacity unit. It is held for the lifetime of a running
// sandbox and must be released exactly once; Release is safe to call more
// than once but only the first call returns capacity.
type Ticket struct {
	controller *AdmissionController
	once       sync.Once
}

// Release returns the capacity unit to the pool.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.controller.sem.Release(1)
	})
}
