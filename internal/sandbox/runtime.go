package sandbox

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/shellbox/shellbox/internal/podman"
)

// Runtime is the container backend the engine drives. The production
// implementation shells out to podman; tests substitute a fake.
type Runtime interface {
	// EnsureImage makes image available locally, pulling it if missing.
	EnsureImage(ctx context.Context, image string) error
	// CreateContainer creates a stopped container and returns its ID.
	CreateContainer(ctx context.Context, name, image string) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	// AttachShell starts an interactive shell inside the container and
	// returns its bidirectional stream.
	AttachShell(containerID, shell string) (io.ReadWriteCloser, error)
	// ExecCommand runs a one-shot command in the container, outside the
	// persistent session.
	ExecCommand(ctx context.Context, containerID string, command []string) (stdout, stderr string, exitCode int, err error)
	StopContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error
}

const stopGraceSeconds = 5

// retryOnce runs fn and repeats it a single time on failure. Podman
// transiently fails when a container is mid-transition, and a second
// attempt usually lands; a cancelled context is never retried.
func retryOnce(ctx context.Context, op, containerID string, fn func() error) error {
	err := fn()
	if err == nil || ctx.Err() != nil {
		return err
	}
	log.Printf("shellbox: retrying %s of %s: %v", op, containerID, err)
	return fn()
}

// podmanRuntime adapts the podman CLI client to the Runtime interface.
// Start, stop, and remove get the bounded retry.
type podmanRuntime struct {
	client *podman.Client
}

// NewPodmanRuntime wraps a podman client.
func NewPodmanRuntime(client *podman.Client) Runtime {
	return &podmanRuntime{client: client}
}

func (p *podmanRuntime) EnsureImage(ctx context.Context, image string) error {
	exists, err := p.client.ImageExists(ctx, image)
	if err != nil {
		return fmt.Errorf("image check: %w", err)
	}
	if exists {
		return nil
	}
	log.Printf("shellbox: pulling image %s", image)
	return p.client.PullImage(ctx, image)
}

func (p *podmanRuntime) CreateContainer(ctx context.Context, name, image string) (string, error) {
	return p.client.CreateContainer(ctx, podman.DefaultContainerConfig(name, image))
}

func (p *podmanRuntime) StartContainer(ctx context.Context, containerID string) error {
	return retryOnce(ctx, "start", containerID, func() error {
		return p.client.StartContainer(ctx, containerID)
	})
}

func (p *podmanRuntime) AttachShell(containerID, shell string) (io.ReadWriteCloser, error) {
	return p.client.AttachShell(containerID, shell)
}

func (p *podmanRuntime) ExecCommand(ctx context.Context, containerID string, command []string) (string, string, int, error) {
	res, err := p.client.ExecInContainer(ctx, podman.ExecConfig{
		Container: containerID,
		Command:   command,
	})
	if err != nil {
		return "", "", 0, err
	}
	return res.Stdout, res.Stderr, res.ExitCode, nil
}

func (p *podmanRuntime) StopContainer(ctx context.Context, containerID string) error {
	return retryOnce(ctx, "stop", containerID, func() error {
		return p.client.StopContainer(ctx, containerID, stopGraceSeconds)
	})
}

func (p *podmanRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	return retryOnce(ctx, "remove", containerID, func() error {
		return p.client.RemoveContainer(ctx, containerID, true)
	})
}
