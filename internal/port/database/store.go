// Package database defines the persistence port (interface).
package database

import (
	"context"

	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// Store is the port interface for the agent registry and the persisted
// task tail. The orchestrator reads agent desired state; status writes are
// operator-driven through the control-plane API.
type Store interface {
	// --- Agent registry ---

	ListAgents(ctx context.Context) ([]agent.Agent, error)
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*agent.Agent, error)
	CreateAgent(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, status agent.Status) error
	UpdateAgentMetrics(ctx context.Context, id string, m agent.Metrics) error
	DeleteAgent(ctx context.Context, id string) error

	// --- Persisted task tail ---

	// AppendTaskTail upserts a terminal task into the bounded tail and
	// trims entries beyond the limit.
	AppendTaskTail(ctx context.Context, t task.Task, limit int) error

	// ListTaskTail returns up to limit terminal tasks, newest first.
	ListTaskTail(ctx context.Context, limit int) ([]task.Task, error)
}
