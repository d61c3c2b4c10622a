package sandbox

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Session health. A session starts healthy, degrades to unknown when a
// command is abandoned mid-flight (context cancellation), and becomes
// corrupt when the underlying stream times out or closes. Unknown sessions
// are probed before the next command; corrupt sessions are unusable.
const (
	healthHealthy int32 = iota
	healthUnknown
	healthCorrupt
)

// shellInit is written to the shell before the first command. It disables
// echo and prompts so that only command output reaches the stream, and
// neuters exit so an agent typing "exit" cannot tear down the session.
const shellInit = "stty -echo 2>/dev/null; " +
	"bind 'set enable-bracketed-paste off' 2>/dev/null; " +
	"PS1=''; PS2=''; PROMPT_COMMAND=''; " +
	"exit() { return 0; }; " +
	"mkdir -p /workspace && cd /workspace"

const probeTimeout = 5 * time.Second

// Session is a persistent shell attached to a sandbox container. Commands
// run sequentially: each writes the command plus a sentinel echo, then
// drains the stream until the sentinel and exit status come back. State
// (cwd, environment, shell variables) persists across commands because
// they all execute in the same shell process.
type Session struct {
	stream io.ReadWriteCloser

	// execLock serializes commands; waiters are served in FIFO order so
	// concurrent exec requests against one sandbox run in arrival order.
	execLock *semaphore.Weighted

	data      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	health atomic.Int32

	// pending holds stream bytes that arrived after the previous
	// command's sentinel. Accessed only while holding execLock.
	pending []byte
}

// NewSession wraps a shell stream and starts pumping its output. Call Init
// before running commands.
func NewSession(stream io.ReadWriteCloser) *Session {
	s := &Session{
		stream:   stream,
		execLock: semaphore.NewWeighted(1),
		data:     make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump reads the shell stream into the data channel until the stream
// errors out (shell exited, container stopped).
func (s *Session) pump() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.stream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.data <- chunk:
			case <-s.closed:
				return
			}
		}
		if err != nil {
			s.closeOnce.Do(func() { close(s.closed) })
			return
		}
	}
}

// Init configures the shell and synchronizes on a probe command so that any
// startup banner is drained before the first real command runs.
func (s *Session) Init(ctx context.Context) error {
	if _, _, err := s.Run(ctx, shellInit, probeTimeout); err != nil {
		return fmt.Errorf("shell init: %w", err)
	}
	return nil
}

// Run executes command in the session shell and returns its combined
// output and exit status. Returns ErrSessionTimeout when the sentinel does
// not come back within timeout, and ErrSessionClosed when the shell has
// gone away; both leave the session corrupt. Context cancellation leaves
// the session in an unknown state probed on the next call.
func (s *Session) Run(ctx context.Context, command string, timeout time.Duration) (string, int, error) {
	if err := s.execLock.Acquire(ctx, 1); err != nil {
		return "", 0, err
	}
	defer s.execLock.Release(1)

	switch s.health.Load() {
	case healthCorrupt:
		return "", 0, ErrSessionClosed
	case healthUnknown:
		if err := s.probe(); err != nil {
			return "", 0, err
		}
	}

	return s.roundTrip(ctx, command, timeout)
}

// probe runs a no-op through the shell to check whether an abandoned
// command has finished and the stream is in sync again.
func (s *Session) probe() error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	if _, _, err := s.roundTrip(ctx, "true", probeTimeout); err != nil {
		log.Printf("shellbox: session probe failed: %v", err)
		return err
	}
	s.health.Store(healthHealthy)
	return nil
}

// roundTrip does one sentinel-delimited command exchange. Caller holds
// execLock.
func (s *Session) roundTrip(ctx context.Context, command string, timeout time.Duration) (string, int, error) {
	select {
	case <-s.closed:
		s.health.Store(healthCorrupt)
		return "", 0, ErrSessionClosed
	default:
	}

	sentinel := newSentinel()
	if _, err := io.WriteString(s.stream, command+"\n"+sentinelLine(sentinel)); err != nil {
		s.health.Store(healthCorrupt)
		return "", 0, fmt.Errorf("session write: %w", ErrSessionClosed)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	buf := s.pending
	s.pending = nil
	for {
		if out, code, rest, found := scanSentinel(buf, sentinel); found {
			s.pending = rest
			return out, code, nil
		}

		select {
		case chunk := <-s.data:
			buf = append(buf, chunk...)
		case <-timer.C:
			s.health.Store(healthCorrupt)
			return "", 0, ErrSessionTimeout
		case <-s.closed:
			s.health.Store(healthCorrupt)
			return "", 0, ErrSessionClosed
		case <-ctx.Done():
			// The command keeps running in the shell; its output and
			// sentinel will surface as stale bytes. Mark the session
			// unknown so the next command probes before trusting it.
			s.health.Store(healthUnknown)
			return "", 0, ctx.Err()
		}
	}
}

// Close tears down the shell stream. Safe to call more than once.
func (s *Session) Close() error {
	s.health.Store(healthCorrupt)
	s.closeOnce.Do(func() { close(s.closed) })
	return s.stream.Close()
}
