package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/runtime"
)

// ExecutionMode records whether container execution is available for this
// process. Once containers are disabled they stay disabled for the process
// lifetime; all dispatch then uses the direct-execution fallback.
type ExecutionMode struct {
	disabled atomic.Bool
}

// ContainersEnabled reports whether sandbox execution is available.
func (m *ExecutionMode) ContainersEnabled() bool {
	return !m.disabled.Load()
}

// DisableContainers permanently downgrades the process to direct execution.
func (m *ExecutionMode) DisableContainers() {
	m.disabled.Store(true)
}

// Reconciler drives observed sandbox state to match each agent's desired
// status. It runs once at process start and again on operator demand.
type Reconciler struct {
	rt        runtime.Runtime
	lifecycle *LifecycleService
	store     database.Store
	mode      *ExecutionMode
	log       *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(rt runtime.Runtime, lifecycle *LifecycleService, store database.Store, mode *ExecutionMode, log *slog.Logger) *Reconciler {
	return &Reconciler{
		rt:        rt,
		lifecycle: lifecycle,
		store:     store,
		mode:      mode,
		log:       log,
	}
}

// Probe checks container runtime connectivity. On failure the process
// permanently downgrades to direct execution; this is logged once and the
// runtime is not retried.
func (r *Reconciler) Probe(ctx context.Context) {
	if err := r.rt.Ping(ctx); err != nil {
		r.mode.DisableContainers()
		r.log.Warn("container runtime unreachable, falling back to direct execution for this process", "error", err)
	}
}

// Reconcile diffs desired agent state against actual sandbox state and
// converges them. Sandboxes of stopped or paused agents are stopped but
// left allocated to avoid churn; sandboxes claimed by no known agent are
// orphans and are removed. Per-agent failures are logged and skipped so
// one bad agent cannot stall the rest of the fleet.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if !r.mode.ContainersEnabled() {
		return nil
	}

	containers, err := r.rt.List(ctx, ManagedLabel)
	if err != nil {
		return fmt.Errorf("list managed containers: %w", err)
	}

	byName := make(map[string]runtime.Container, len(containers))
	for _, c := range containers {
		byName[c.Name] = c
	}

	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	for i := range agents {
		ag := &agents[i]
		name := ContainerName(ag.Name)
		c, exists := byName[name]
		delete(byName, name)

		if err := r.converge(ctx, ag, c, exists); err != nil {
			r.log.Error("reconcile agent failed", "agent", ag.Name, "error", err)
		}
	}

	// Anything left in the map is an orphan: a remnant of a deleted or
	// renamed agent. Sweep it on every pass.
	for name, c := range byName {
		if c.Running {
			if err := r.rt.Stop(ctx, name, r.lifecycle.cfg.StopGrace); err != nil {
				r.log.Warn("orphan stop failed", "container", name, "error", err)
			}
		}
		if err := r.rt.Remove(ctx, name); err != nil {
			r.log.Error("orphan remove failed", "container", name, "error", err)
			continue
		}
		r.log.Info("orphan sandbox removed", "container", name)
	}

	return nil
}

func (r *Reconciler) converge(ctx context.Context, ag *agent.Agent, c runtime.Container, exists bool) error {
	switch ag.Status {
	case agent.StatusRunning:
		if !exists {
			_, err := r.lifecycle.EnsureCreated(ctx, ag)
			return err
		}
		if !c.Running {
			return r.lifecycle.Start(ctx, ag.Name)
		}
		return nil

	case agent.StatusStopped, agent.StatusPaused:
		if exists && c.Running {
			return r.lifecycle.Stop(ctx, ag.Name, r.lifecycle.cfg.StopGrace)
		}
		return nil

	default:
		// error/deploying: leave the sandbox as observed.
		return nil
	}
}
