// Package runtime defines the container runtime port (interface).
package runtime

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the named container does not exist. A missing
// sandbox is a normal condition (it triggers lazy creation), so callers
// must be able to distinguish it from a runtime fault.
var ErrNotFound = errors.New("container not found")

// Container describes the observed state of one container.
type Container struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Running bool              `json:"running"`
	Status  string            `json:"status"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// CreateSpec holds everything needed to create a sandbox container.
type CreateSpec struct {
	Name    string
	Image   string
	Env     []string // KEY=VALUE
	Binds   []string // host:container[:ro]
	Network string
	Labels  map[string]string
	Command []string
}

// ExecSpec holds an exec-style command to run inside a container.
type ExecSpec struct {
	Command []string
	Env     []string // KEY=VALUE, added to the exec environment
}

// Stats holds point-in-time resource usage for a container.
type Stats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Runtime is the port interface for the host's container-management API.
type Runtime interface {
	// Ping probes connectivity to the container runtime.
	Ping(ctx context.Context) error

	// Inspect returns the state of the named container, or ErrNotFound.
	Inspect(ctx context.Context, name string) (*Container, error)

	// Create creates a container and returns its runtime-assigned ID.
	Create(ctx context.Context, spec CreateSpec) (string, error)

	// Start starts the named container.
	Start(ctx context.Context, name string) error

	// Stop stops the named container, allowing grace for shutdown.
	Stop(ctx context.Context, name string, grace time.Duration) error

	// Remove force-removes the named container. Removing a container that
	// does not exist is not an error.
	Remove(ctx context.Context, name string) error

	// Exec runs a command inside the named container and returns the
	// combined output. The context bounds the wall-clock time.
	Exec(ctx context.Context, name string, spec ExecSpec) ([]byte, error)

	// List returns all containers carrying the given label.
	List(ctx context.Context, label string) ([]Container, error)

	// Stats returns resource usage for the named container.
	Stats(ctx context.Context, name string) (*Stats, error)
}
