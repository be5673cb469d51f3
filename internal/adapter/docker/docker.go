// Package docker implements the container runtime port by driving the
// docker CLI. AgentFleet manages one container per agent; all invocations
// go through a circuit breaker so a flapping daemon fails fast instead of
// piling up blocked CLI processes.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/AgentFleet/internal/port/runtime"
	"github.com/Strob0t/AgentFleet/internal/resilience"
)

// Client drives the docker CLI.
type Client struct {
	bin     string
	breaker *resilience.Breaker
}

// NewClient creates a Client guarded by the given circuit breaker.
func NewClient(breaker *resilience.Breaker) *Client {
	return &Client{bin: "docker", breaker: breaker}
}

// run executes a docker command and returns stdout. A "no such container"
// failure maps to runtime.ErrNotFound and does not count against the
// breaker; missing containers are a normal condition here.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	var runErr error

	err := c.breaker.Execute(func() error {
		cmd := exec.CommandContext(ctx, c.bin, args...) //nolint:gosec // G204: args are constructed internally, not from user input
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr = cmd.Run()
		if runErr != nil && !isNotFound(stderr.String()) {
			return fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), runErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if runErr != nil {
		return "", runtime.ErrNotFound
	}
	return stdout.String(), nil
}

func isNotFound(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no such container") || strings.Contains(s, "no such object")
}

// Ping probes connectivity to the docker daemon.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.run(ctx, "version", "--format", "{{.Server.Version}}"); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

// inspectDoc is the subset of `docker inspect` output we read.
type inspectDoc struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Running bool   `json:"Running"`
		Status  string `json:"Status"`
	} `json:"State"`
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
}

// Inspect returns the state of the named container, or runtime.ErrNotFound.
func (c *Client) Inspect(ctx context.Context, name string) (*runtime.Container, error) {
	out, err := c.run(ctx, "inspect", "--type", "container", "--format", "{{json .}}", name)
	if err != nil {
		return nil, err
	}

	var doc inspectDoc
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &doc); err != nil {
		return nil, fmt.Errorf("docker inspect %s: parse: %w", name, err)
	}

	return &runtime.Container{
		ID:      doc.ID,
		Name:    strings.TrimPrefix(doc.Name, "/"),
		Running: doc.State.Running,
		Status:  doc.State.Status,
		Labels:  doc.Config.Labels,
	}, nil
}

// createArgs builds the docker create argument list. The image must come
// after all flags and before the container command.
func createArgs(spec runtime.CreateSpec) []string {
	args := []string{"create", "--name", spec.Name}

	labels := make([]string, 0, len(spec.Labels))
	for k, v := range spec.Labels {
		labels = append(labels, k+"="+v)
	}
	sort.Strings(labels)
	for _, l := range labels {
		args = append(args, "--label", l)
	}

	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	for _, e := range spec.Env {
		args = append(args, "-e", e)
	}
	for _, b := range spec.Binds {
		args = append(args, "-v", b)
	}

	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

// Create creates a container from the spec and returns its ID.
func (c *Client) Create(ctx context.Context, spec runtime.CreateSpec) (string, error) {
	out, err := c.run(ctx, createArgs(spec)...)
	if err != nil {
		return "", fmt.Errorf("docker create %s: %w", spec.Name, err)
	}
	return strings.TrimSpace(out), nil
}

// Start starts the named container.
func (c *Client) Start(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "start", name); err != nil {
		return fmt.Errorf("docker start %s: %w", name, err)
	}
	return nil
}

// Stop stops the named container with the given grace period.
func (c *Client) Stop(ctx context.Context, name string, grace time.Duration) error {
	secs := int(grace.Seconds())
	if secs < 1 {
		secs = 1
	}
	if _, err := c.run(ctx, "stop", "-t", strconv.Itoa(secs), name); err != nil {
		return fmt.Errorf("docker stop %s: %w", name, err)
	}
	return nil
}

// Remove force-removes the named container. A missing container is not an error.
func (c *Client) Remove(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "rm", "-f", name); err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("docker rm %s: %w", name, err)
	}
	return nil
}

// Exec runs a command inside the named container and returns combined
// output. Cancelling the context kills the CLI process, which terminates
// the exec session.
func (c *Client) Exec(ctx context.Context, name string, spec runtime.ExecSpec) ([]byte, error) {
	args := []string{"exec"}
	for _, e := range spec.Env {
		args = append(args, "-e", e)
	}
	args = append(args, name)
	args = append(args, spec.Command...)

	var out bytes.Buffer
	var runErr error

	err := c.breaker.Execute(func() error {
		cmd := exec.CommandContext(ctx, c.bin, args...) //nolint:gosec // G204: args are constructed internally, not from user input
		cmd.Stdout = &out
		cmd.Stderr = &out
		cmd.WaitDelay = 5 * time.Second

		runErr = cmd.Run()
		if runErr != nil && ctx.Err() == nil && out.Len() == 0 {
			return fmt.Errorf("docker exec %s: %w", name, runErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return out.Bytes(), ctx.Err()
	}
	if runErr != nil && out.Len() == 0 {
		return nil, fmt.Errorf("docker exec %s: %w", name, runErr)
	}
	return out.Bytes(), nil
}

// List returns all containers carrying the given label, running or not.
func (c *Client) List(ctx context.Context, label string) ([]runtime.Container, error) {
	out, err := c.run(ctx, "ps", "-a",
		"--filter", "label="+label,
		"--format", "{{.ID}}\t{{.Names}}\t{{.State}}")
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w", err)
	}

	var containers []runtime.Container
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		containers = append(containers, runtime.Container{
			ID:      fields[0],
			Name:    fields[1],
			Running: fields[2] == "running",
			Status:  fields[2],
		})
	}
	return containers, nil
}

// Stats returns point-in-time CPU and memory usage for the named container.
func (c *Client) Stats(ctx context.Context, name string) (*runtime.Stats, error) {
	out, err := c.run(ctx, "stats", "--no-stream",
		"--format", "{{.CPUPerc}}\t{{.MemPerc}}", name)
	if err != nil {
		return nil, fmt.Errorf("docker stats %s: %w", name, err)
	}

	fields := strings.Split(strings.TrimSpace(out), "\t")
	if len(fields) != 2 {
		return nil, fmt.Errorf("docker stats %s: unexpected output %q", name, out)
	}

	return &runtime.Stats{
		CPUPercent:    parsePercent(fields[0]),
		MemoryPercent: parsePercent(fields[1]),
	}, nil
}

// parsePercent converts a docker "12.34%" field to a float. Malformed
// values read as zero; stats are advisory.
func parsePercent(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0
	}
	return f
}
