package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/AgentFleet/internal/config"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
)

func testSandboxConfig() config.Sandbox {
	cfg := config.Defaults().Sandbox
	cfg.SettleInterval = 0
	return cfg
}

func newTestLifecycle(rt *fakeRuntime) *LifecycleService {
	return NewLifecycleService(rt, NewLockRegistry(), nil, testSandboxConfig(), time.Second, testLogger())
}

func testAgent(name string) *agent.Agent {
	return &agent.Agent{
		ID:     "id-" + name,
		Name:   name,
		Status: agent.StatusRunning,
		Params: agent.ExecParams{Model: "claude-sonnet-4"},
	}
}

func TestContainerName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Researcher", "agentfleet-researcher"},
		{"data wrangler", "agentfleet-data-wrangler"},
		{"Émile_9", "agentfleet-mile-9"},
	}
	for _, tt := range tests {
		if got := ContainerName(tt.in); got != tt.want {
			t.Errorf("ContainerName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnsureCreatedIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	lc := newTestLifecycle(rt)
	ag := testAgent("alpha")
	ctx := context.Background()

	id1, err := lc.EnsureCreated(ctx, ag)
	if err != nil {
		t.Fatalf("first EnsureCreated: %v", err)
	}
	id2, err := lc.EnsureCreated(ctx, ag)
	if err != nil {
		t.Fatalf("second EnsureCreated: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %q vs %q", id1, id2)
	}
	if rt.creates != 1 {
		t.Errorf("creates = %d, want 1", rt.creates)
	}
	c, ok := rt.get(ContainerName("alpha"))
	if !ok || !c.Running {
		t.Errorf("sandbox not running after EnsureCreated: %+v", c)
	}
}

func TestEnsureCreatedRestartsStopped(t *testing.T) {
	rt := newFakeRuntime()
	lc := newTestLifecycle(rt)
	ag := testAgent("beta")
	ctx := context.Background()

	if _, err := lc.EnsureCreated(ctx, ag); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	if err := lc.Stop(ctx, ag.Name, time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := lc.EnsureCreated(ctx, ag); err != nil {
		t.Fatalf("EnsureCreated after stop: %v", err)
	}
	if rt.creates != 1 {
		t.Errorf("creates = %d, want 1 (restart, not recreate)", rt.creates)
	}
	c, _ := rt.get(ContainerName("beta"))
	if !c.Running {
		t.Error("sandbox not running after restart")
	}
}

func TestStopAndRemoveIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	lc := newTestLifecycle(rt)
	ctx := context.Background()

	// All no-ops against an absent sandbox.
	if err := lc.Stop(ctx, "ghost", time.Second); err != nil {
		t.Errorf("Stop absent: %v", err)
	}
	if err := lc.Remove(ctx, "ghost"); err != nil {
		t.Errorf("Remove absent: %v", err)
	}

	ag := testAgent("gamma")
	if _, err := lc.EnsureCreated(ctx, ag); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	if err := lc.Remove(ctx, ag.Name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := lc.Remove(ctx, ag.Name); err != nil {
		t.Errorf("second Remove: %v", err)
	}
	if _, ok := rt.get(ContainerName("gamma")); ok {
		t.Error("sandbox still present after Remove")
	}
}

func TestConcurrentStartRemoveSerialized(t *testing.T) {
	rt := newFakeRuntime()
	lc := newTestLifecycle(rt)
	ag := testAgent("delta")
	ctx := context.Background()

	if _, err := lc.EnsureCreated(ctx, ag); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lc.Start(ctx, ag.Name)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lc.Remove(ctx, ag.Name)
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the final state is consistent:
	// either absent, or present with a coherent running flag.
	if c, ok := rt.get(ContainerName("delta")); ok {
		if c.Status == "" {
			t.Errorf("inconsistent container state: %+v", c)
		}
	}
}
