package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/AgentFleet/internal/config"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	cacheport "github.com/Strob0t/AgentFleet/internal/port/cache"
	"github.com/Strob0t/AgentFleet/internal/port/runtime"
)

// ManagedLabel marks containers owned by this system. The reconciler lists
// by this label; anything carrying it that no known agent claims is an orphan.
const ManagedLabel = "agentfleet.managed"

// AgentLabel carries the owning agent's name on the container.
const AgentLabel = "agentfleet.agent"

const containerPrefix = "agentfleet-"

// ContainerName derives the deterministic sandbox name for an agent.
// At most one sandbox exists per agent name at any time.
func ContainerName(agentName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(agentName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return containerPrefix + strings.Trim(b.String(), "-")
}

// LifecycleService creates, starts, stops, and removes the sandbox for an
// agent. All operations are idempotent and serialized per agent name
// through the LockRegistry, so a start racing a remove cannot leave an
// inconsistent handle.
type LifecycleService struct {
	rt    runtime.Runtime
	locks *LockRegistry
	cache cacheport.Cache
	cfg   config.Sandbox
	ttl   time.Duration
	log   *slog.Logger
}

// NewLifecycleService creates a LifecycleService. cache may be nil, in
// which case Status always hits the runtime.
func NewLifecycleService(rt runtime.Runtime, locks *LockRegistry, cache cacheport.Cache, cfg config.Sandbox, inspectTTL time.Duration, log *slog.Logger) *LifecycleService {
	return &LifecycleService{
		rt:    rt,
		locks: locks,
		cache: cache,
		cfg:   cfg,
		ttl:   inspectTTL,
		log:   log,
	}
}

// EnsureCreated makes sure the agent's sandbox exists and is running, and
// returns the runtime-assigned container ID. Safe to call when the sandbox
// already matches the goal state.
func (s *LifecycleService) EnsureCreated(ctx context.Context, ag *agent.Agent) (string, error) {
	name := ContainerName(ag.Name)

	var id string
	err := s.locks.Do(name, func() error {
		info, err := s.rt.Inspect(ctx, name)
		switch {
		case errors.Is(err, runtime.ErrNotFound):
			id, err = s.create(ctx, name, ag)
			if err != nil {
				return err
			}
			if err := s.rt.Start(ctx, name); err != nil {
				return fmt.Errorf("start %s: %w", name, err)
			}
			s.settle(ctx)
			s.log.Info("sandbox created", "agent", ag.Name, "container", name)
			return nil

		case err != nil:
			return fmt.Errorf("inspect %s: %w", name, err)

		case !info.Running:
			if err := s.rt.Start(ctx, name); err != nil {
				return fmt.Errorf("start %s: %w", name, err)
			}
			s.settle(ctx)
			id = info.ID
			s.log.Info("sandbox restarted", "agent", ag.Name, "container", name)
			return nil

		default:
			id = info.ID
			return nil
		}
	})
	if err != nil {
		return "", err
	}
	s.invalidate(ctx, name)
	return id, nil
}

func (s *LifecycleService) create(ctx context.Context, name string, ag *agent.Agent) (string, error) {
	spec := runtime.CreateSpec{
		Name:    name,
		Image:   s.cfg.Image,
		Network: s.cfg.Network,
		Env: []string{
			"AGENT_ID=" + ag.ID,
			"AGENT_NAME=" + ag.Name,
			"AGENT_MODEL=" + ag.Params.Model,
			"AGENT_SYSTEM_PROMPT=" + ag.Params.SystemPrompt,
			"AGENT_THINKING=" + ag.Params.ThinkingLevel,
			"AGENT_TEMPERATURE=" + strconv.FormatFloat(ag.Params.Temperature, 'f', -1, 64),
			"AGENT_TOKEN_BUDGET=" + strconv.Itoa(ag.Params.TokenBudget),
		},
		Binds: []string{
			s.cfg.ConfigDir + ":/etc/agentfleet:ro",
			filepath.Join(s.cfg.WorkspaceRoot, ContainerName(ag.Name)) + ":/workspace",
		},
		Labels: map[string]string{
			ManagedLabel: "true",
			AgentLabel:   ag.Name,
		},
		// The entrypoint idles so work arrives via exec.
		Command: []string{"sleep", "infinity"},
	}

	id, err := s.rt.Create(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return id, nil
}

// settle waits a short interval for the container entrypoint to initialize.
func (s *LifecycleService) settle(ctx context.Context) {
	if s.cfg.SettleInterval <= 0 {
		return
	}
	select {
	case <-time.After(s.cfg.SettleInterval):
	case <-ctx.Done():
	}
}

// Start starts the agent's sandbox. No-op if it is already running.
func (s *LifecycleService) Start(ctx context.Context, agentName string) error {
	name := ContainerName(agentName)
	defer s.invalidate(ctx, name)

	return s.locks.Do(name, func() error {
		info, err := s.rt.Inspect(ctx, name)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", name, err)
		}
		if info.Running {
			return nil
		}
		if err := s.rt.Start(ctx, name); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		return nil
	})
}

// Stop stops the agent's sandbox with the given grace period. No-op if the
// sandbox is absent or already stopped; the container stays allocated.
func (s *LifecycleService) Stop(ctx context.Context, agentName string, grace time.Duration) error {
	name := ContainerName(agentName)
	defer s.invalidate(ctx, name)

	return s.locks.Do(name, func() error {
		info, err := s.rt.Inspect(ctx, name)
		if errors.Is(err, runtime.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("inspect %s: %w", name, err)
		}
		if !info.Running {
			return nil
		}
		if err := s.rt.Stop(ctx, name, grace); err != nil {
			return fmt.Errorf("stop %s: %w", name, err)
		}
		return nil
	})
}

// Remove stops (ignoring already-stopped) and force-removes the agent's
// sandbox. No-op if the sandbox does not exist.
func (s *LifecycleService) Remove(ctx context.Context, agentName string) error {
	name := ContainerName(agentName)
	defer s.invalidate(ctx, name)

	return s.locks.Do(name, func() error {
		info, err := s.rt.Inspect(ctx, name)
		if errors.Is(err, runtime.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("inspect %s: %w", name, err)
		}
		if info.Running {
			if err := s.rt.Stop(ctx, name, s.cfg.StopGrace); err != nil {
				s.log.Warn("stop before remove failed", "container", name, "error", err)
			}
		}
		if err := s.rt.Remove(ctx, name); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
		s.log.Info("sandbox removed", "agent", agentName, "container", name)
		return nil
	})
}

// Status returns the observed sandbox state for the agent, cached briefly
// so the broadcast and HTTP read paths do not hammer the runtime.
func (s *LifecycleService) Status(ctx context.Context, agentName string) (*runtime.Container, error) {
	name := ContainerName(agentName)

	if s.cache != nil {
		if data, ok, _ := s.cache.Get(ctx, "inspect:"+name); ok {
			var c runtime.Container
			if err := json.Unmarshal(data, &c); err == nil {
				return &c, nil
			}
		}
	}

	info, err := s.rt.Inspect(ctx, name)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(info); err == nil {
			_ = s.cache.Set(ctx, "inspect:"+name, data, s.ttl)
		}
	}
	return info, nil
}

// Stats returns resource usage for the agent's sandbox.
func (s *LifecycleService) Stats(ctx context.Context, agentName string) (*runtime.Stats, error) {
	return s.rt.Stats(ctx, ContainerName(agentName))
}

func (s *LifecycleService) invalidate(ctx context.Context, name string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "inspect:"+name)
	}
}
