package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
	"github.com/Strob0t/AgentFleet/internal/port/runtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRuntime is an in-memory runtime.Runtime. Exec output can be canned
// per test; calls are recorded for assertions.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]*runtime.Container
	pingErr    error
	execOut    []byte
	execErr    error
	execDelay  time.Duration
	creates    int
	calls      []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]*runtime.Container)}
}

func (f *fakeRuntime) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeRuntime) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeRuntime) Inspect(_ context.Context, name string) (*runtime.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect " + name)
	c, ok := f.containers[name]
	if !ok {
		return nil, runtime.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRuntime) Create(_ context.Context, spec runtime.CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create " + spec.Name)
	f.creates++
	f.containers[spec.Name] = &runtime.Container{
		ID:     "cid-" + spec.Name,
		Name:   spec.Name,
		Labels: spec.Labels,
		Status: "created",
	}
	return "cid-" + spec.Name, nil
}

func (f *fakeRuntime) Start(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start " + name)
	c, ok := f.containers[name]
	if !ok {
		return runtime.ErrNotFound
	}
	c.Running = true
	c.Status = "running"
	return nil
}

func (f *fakeRuntime) Stop(_ context.Context, name string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop " + name)
	c, ok := f.containers[name]
	if !ok {
		return runtime.ErrNotFound
	}
	c.Running = false
	c.Status = "exited"
	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove " + name)
	delete(f.containers, name)
	return nil
}

func (f *fakeRuntime) Exec(ctx context.Context, name string, _ runtime.ExecSpec) ([]byte, error) {
	f.mu.Lock()
	f.record("exec " + name)
	out, err, delay := f.execOut, f.execErr, f.execDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, err
}

func (f *fakeRuntime) List(_ context.Context, label string) ([]runtime.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []runtime.Container
	for _, c := range f.containers {
		if _, ok := c.Labels[label]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeRuntime) Stats(context.Context, string) (*runtime.Stats, error) {
	return &runtime.Stats{CPUPercent: 1.5, MemoryPercent: 3.0}, nil
}

func (f *fakeRuntime) get(name string) (runtime.Container, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return runtime.Container{}, false
	}
	return *c, true
}

func (f *fakeRuntime) put(c runtime.Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[c.Name] = &c
}

// fakeStore is an in-memory database.Store.
type fakeStore struct {
	mu     sync.Mutex
	agents map[string]*agent.Agent
	tail   []task.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{agents: make(map[string]*agent.Agent)}
}

func (f *fakeStore) addAgent(ag agent.Agent) *agent.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ag.ID == "" {
		ag.ID = uuid.NewString()
	}
	f.agents[ag.ID] = &ag
	return &ag
}

func (f *fakeStore) ListAgents(context.Context) ([]agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agent.Agent, 0, len(f.agents))
	for _, ag := range f.agents {
		out = append(out, *ag)
	}
	return out, nil
}

func (f *fakeStore) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ag, ok := f.agents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *ag
	return &cp, nil
}

func (f *fakeStore) GetAgentByName(_ context.Context, name string) (*agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ag := range f.agents {
		if ag.Name == name {
			cp := *ag
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) CreateAgent(_ context.Context, req agent.CreateRequest) (*agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ag := &agent.Agent{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Status:    req.Status,
		Director:  req.Director,
		Params:    req.Params,
		CreatedAt: time.Now().UTC(),
	}
	f.agents[ag.ID] = ag
	cp := *ag
	return &cp, nil
}

func (f *fakeStore) UpdateAgentStatus(_ context.Context, id string, status agent.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ag, ok := f.agents[id]
	if !ok {
		return domain.ErrNotFound
	}
	ag.Status = status
	return nil
}

func (f *fakeStore) UpdateAgentMetrics(_ context.Context, id string, m agent.Metrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ag, ok := f.agents[id]
	if !ok {
		return domain.ErrNotFound
	}
	ag.Metrics = m
	return nil
}

func (f *fakeStore) DeleteAgent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.agents, id)
	return nil
}

func (f *fakeStore) AppendTaskTail(_ context.Context, t task.Task, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tail {
		if f.tail[i].ID == t.ID {
			f.tail[i] = t
			return nil
		}
	}
	f.tail = append([]task.Task{t}, f.tail...)
	if len(f.tail) > limit {
		f.tail = f.tail[:limit]
	}
	return nil
}

func (f *fakeStore) ListTaskTail(_ context.Context, limit int) ([]task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.tail
	if len(out) > limit {
		out = out[:limit]
	}
	cp := make([]task.Task, len(out))
	copy(cp, out)
	return cp, nil
}

// fakeQueue delivers published messages synchronously to subscribers.
type fakeQueue struct {
	mu        sync.Mutex
	handlers  map[string][]messagequeue.Handler
	published map[string][][]byte
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		handlers:  make(map[string][]messagequeue.Handler),
		published: make(map[string][][]byte),
	}
}

func (f *fakeQueue) Publish(ctx context.Context, subject string, data []byte) error {
	f.mu.Lock()
	f.published[subject] = append(f.published[subject], data)
	handlers := append([]messagequeue.Handler(nil), f.handlers[subject]...)
	f.mu.Unlock()
	for _, h := range handlers {
		_ = h(ctx, subject, data)
	}
	return nil
}

func (f *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subject] = append(f.handlers[subject], h)
	return func() {}, nil
}

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) count(subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[subject])
}

// fakeHub records broadcast events.
type fakeHub struct {
	mu        sync.Mutex
	events    []string
	observers int
}

func (f *fakeHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeHub) ObserverCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observers
}
