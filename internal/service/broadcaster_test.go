package service

import (
	"context"
	"testing"

	"github.com/Strob0t/AgentFleet/internal/config"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

func TestSnapshotBuild(t *testing.T) {
	store := newFakeStore()
	tasks := newTestTaskStore(store, nil)
	cfg := config.Defaults().Broadcast
	svc := NewSnapshotService(store, tasks, &fakeHub{}, cfg, testLogger())
	ctx := context.Background()

	running := store.addAgent(agent.Agent{Name: "alpha", Status: agent.StatusRunning})
	running.Metrics.TasksCompleted = 7
	running.Metrics.TokensUsed = 4200
	store.addAgent(agent.Agent{Name: "beta", Status: agent.StatusStopped})

	_, _ = tasks.Create(ctx, task.CreateRequest{AgentID: running.ID, Input: "1"})
	_, _ = tasks.Create(ctx, task.CreateRequest{AgentID: running.ID, Input: "2", Parked: true})

	snap := svc.Build(ctx)
	if len(snap.Agents) != 2 {
		t.Errorf("agents = %d, want 2", len(snap.Agents))
	}
	if len(snap.Tasks) != 2 {
		t.Errorf("tasks = %d, want 2", len(snap.Tasks))
	}
	s := snap.Summary
	if s.Agents != 2 || s.AgentsRunning != 1 {
		t.Errorf("summary agents = %+v", s)
	}
	if s.TasksQueued != 1 || s.TasksParked != 1 {
		t.Errorf("summary tasks = %+v", s)
	}
	if s.TasksCompleted != 7 || s.TokensUsed != 4200 {
		t.Errorf("summary rollups = %+v", s)
	}
	if snap.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestSnapshotTaskCap(t *testing.T) {
	store := newFakeStore()
	tasks := newTestTaskStore(store, nil)
	cfg := config.Defaults().Broadcast
	cfg.TaskCap = 3
	svc := NewSnapshotService(store, tasks, &fakeHub{}, cfg, testLogger())
	ctx := context.Background()

	for range 10 {
		_, _ = tasks.Create(ctx, task.CreateRequest{AgentID: "a", Input: "x"})
	}

	snap := svc.Build(ctx)
	if len(snap.Tasks) != 3 {
		t.Errorf("tasks = %d, want capped at 3", len(snap.Tasks))
	}
}
