package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/AgentFleet/internal/config"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/port/broadcast"
	"github.com/Strob0t/AgentFleet/internal/port/database"
)

// FleetSummary is the aggregate block of a snapshot frame.
type FleetSummary struct {
	Agents         int     `json:"agents"`
	AgentsRunning  int     `json:"agents_running"`
	TasksQueued    int     `json:"tasks_queued"`
	TasksRunning   int     `json:"tasks_running"`
	TasksParked    int     `json:"tasks_parked"`
	TasksCompleted int     `json:"tasks_completed"`
	TokensUsed     int64   `json:"tokens_used"`
	TotalCost      float64 `json:"total_cost_usd"`
}

// Snapshot is one full-state frame pushed to live observers.
type Snapshot struct {
	Agents    []agent.Agent `json:"agents"`
	Tasks     []task.Task   `json:"tasks"`
	Summary   FleetSummary  `json:"summary"`
	Timestamp time.Time     `json:"timestamp"`
}

// SnapshotService periodically pushes full fleet snapshots and keepalive
// frames to all live observers. Frames are skipped entirely when nobody is
// observing.
type SnapshotService struct {
	store database.Store
	tasks *TaskStore
	hub   broadcast.Broadcaster
	cfg   config.Broadcast
	log   *slog.Logger
}

// NewSnapshotService creates a SnapshotService.
func NewSnapshotService(store database.Store, tasks *TaskStore, hub broadcast.Broadcaster, cfg config.Broadcast, log *slog.Logger) *SnapshotService {
	return &SnapshotService{
		store: store,
		tasks: tasks,
		hub:   hub,
		cfg:   cfg,
		log:   log,
	}
}

// Run pushes snapshot and keepalive frames until the context is cancelled.
func (s *SnapshotService) Run(ctx context.Context) {
	snap := time.NewTicker(s.cfg.SnapshotInterval)
	defer snap.Stop()
	keep := time.NewTicker(s.cfg.KeepaliveInterval)
	defer keep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snap.C:
			if s.hub.ObserverCount() == 0 {
				continue
			}
			s.hub.BroadcastEvent(ctx, "fleet.snapshot", s.Build(ctx))
		case <-keep.C:
			if s.hub.ObserverCount() == 0 {
				continue
			}
			s.hub.BroadcastEvent(ctx, "keepalive", map[string]any{
				"timestamp": time.Now().UTC(),
			})
		}
	}
}

// Build assembles one snapshot frame. The task list is capped to the most
// recent entries so a long tail never bloats the frame.
func (s *SnapshotService) Build(ctx context.Context) Snapshot {
	snap := Snapshot{Timestamp: time.Now().UTC()}

	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		s.log.Warn("snapshot: list agents failed", "error", err)
	} else {
		snap.Agents = agents
	}

	all := s.tasks.List(TaskFilter{})
	if len(all) > s.cfg.TaskCap {
		all = all[:s.cfg.TaskCap]
	}
	snap.Tasks = all

	snap.Summary = s.summarize(snap.Agents, all)
	return snap
}

func (s *SnapshotService) summarize(agents []agent.Agent, tasks []task.Task) FleetSummary {
	sum := FleetSummary{Agents: len(agents)}
	for _, ag := range agents {
		if ag.Status == agent.StatusRunning {
			sum.AgentsRunning++
		}
		sum.TasksCompleted += ag.Metrics.TasksCompleted
		sum.TokensUsed += ag.Metrics.TokensUsed
		sum.TotalCost += ag.Metrics.TotalCost
	}
	for _, t := range tasks {
		switch t.Status {
		case task.StatusQueued:
			sum.TasksQueued++
		case task.StatusRunning:
			sum.TasksRunning++
		case task.StatusParked:
			sum.TasksParked++
		}
	}
	return sum
}
