package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
	"github.com/Strob0t/AgentFleet/internal/port/runtime"
)

// AgentService is the operator-facing agent registry. Status changes are
// persisted first, announced on the queue, then driven into the sandbox;
// a lifecycle failure marks the agent errored rather than rolling back.
type AgentService struct {
	store     database.Store
	lifecycle *LifecycleService
	mode      *ExecutionMode
	queue     messagequeue.Queue
	log       *slog.Logger
}

// NewAgentService creates an AgentService. queue may be nil.
func NewAgentService(store database.Store, lifecycle *LifecycleService, mode *ExecutionMode, queue messagequeue.Queue, log *slog.Logger) *AgentService {
	return &AgentService{
		store:     store,
		lifecycle: lifecycle,
		mode:      mode,
		queue:     queue,
		log:       log,
	}
}

// List returns all registered agents.
func (s *AgentService) List(ctx context.Context) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx)
}

// Get returns one agent by ID.
func (s *AgentService) Get(ctx context.Context, id string) (*agent.Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// Resolve looks an agent up by ID first, then by name.
func (s *AgentService) Resolve(ctx context.Context, ref string) (*agent.Agent, error) {
	ag, err := s.store.GetAgent(ctx, ref)
	if err == nil {
		return ag, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.store.GetAgentByName(ctx, ref)
}

// Director returns the fleet's director agent, if one is registered.
func (s *AgentService) Director(ctx context.Context) (*agent.Agent, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if agents[i].Director {
			return &agents[i], nil
		}
	}
	return nil, fmt.Errorf("no director agent: %w", domain.ErrNotFound)
}

// Create registers a new agent. Agents created in running state get their
// sandbox provisioned immediately.
func (s *AgentService) Create(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error) {
	if req.Status == "" {
		req.Status = agent.StatusStopped
	}
	ag, err := s.store.CreateAgent(ctx, req)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, ag)

	if ag.Status == agent.StatusRunning && s.mode.ContainersEnabled() {
		if _, err := s.lifecycle.EnsureCreated(ctx, ag); err != nil {
			s.degrade(ctx, ag, err)
		}
	}
	return ag, nil
}

// UpdateStatus changes an agent's desired status and converges its sandbox
// to match. The status write is authoritative; sandbox failures surface as
// status error, never as a rejected update.
func (s *AgentService) UpdateStatus(ctx context.Context, id string, status agent.Status) (*agent.Agent, error) {
	ag, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateAgentStatus(ctx, id, status); err != nil {
		return nil, err
	}
	ag.Status = status
	s.announce(ctx, ag)

	if !s.mode.ContainersEnabled() {
		return ag, nil
	}

	switch status {
	case agent.StatusRunning:
		if _, err := s.lifecycle.EnsureCreated(ctx, ag); err != nil {
			s.degrade(ctx, ag, err)
		}
	case agent.StatusStopped, agent.StatusPaused:
		if err := s.lifecycle.Stop(ctx, ag.Name, s.lifecycle.cfg.StopGrace); err != nil {
			s.log.Warn("stop sandbox failed", "agent", ag.Name, "error", err)
		}
	}
	return ag, nil
}

// Delete removes an agent and its sandbox. The director agent is
// protected and cannot be deleted.
func (s *AgentService) Delete(ctx context.Context, id string) error {
	ag, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return err
	}
	if ag.Director {
		return domain.ErrDirector
	}

	if s.mode.ContainersEnabled() {
		if err := s.lifecycle.Remove(ctx, ag.Name); err != nil {
			s.log.Warn("remove sandbox failed, deleting agent anyway", "agent", ag.Name, "error", err)
		}
	}
	if err := s.store.DeleteAgent(ctx, id); err != nil {
		return err
	}
	s.announce(ctx, ag)
	return nil
}

// SandboxStatus returns the observed container state for an agent, or nil
// when no sandbox exists.
func (s *AgentService) SandboxStatus(ctx context.Context, ag *agent.Agent) *runtime.Container {
	if !s.mode.ContainersEnabled() {
		return nil
	}
	c, err := s.lifecycle.Status(ctx, ag.Name)
	if err != nil {
		if !errors.Is(err, runtime.ErrNotFound) {
			s.log.Warn("sandbox status failed", "agent", ag.Name, "error", err)
		}
		return nil
	}
	return c
}

// degrade marks an agent errored after a sandbox operation failed.
func (s *AgentService) degrade(ctx context.Context, ag *agent.Agent, cause error) {
	s.log.Error("sandbox provisioning failed", "agent", ag.Name, "error", cause)
	if err := s.store.UpdateAgentStatus(ctx, ag.ID, agent.StatusError); err != nil {
		s.log.Error("mark agent errored failed", "agent", ag.Name, "error", err)
		return
	}
	ag.Status = agent.StatusError
	s.announce(ctx, ag)
}

func (s *AgentService) announce(ctx context.Context, ag *agent.Agent) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(struct {
		ID     string       `json:"id"`
		Name   string       `json:"name"`
		Status agent.Status `json:"status"`
	}{ID: ag.ID, Name: ag.Name, Status: ag.Status})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectAgentStatus, data); err != nil {
		s.log.Warn("publish agent status failed", "agent", ag.Name, "error", err)
	}
}
