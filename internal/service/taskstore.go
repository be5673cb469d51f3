package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/cost"
	"github.com/Strob0t/AgentFleet/internal/domain/dispatch"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// TerminalHook runs after a task reaches a final state. Hooks run outside
// the store lock with a copy of the task.
type TerminalHook func(ctx context.Context, t task.Task)

// TaskFilter narrows List results. Zero values match everything.
type TaskFilter struct {
	AgentID string
	Status  task.Status
}

// TaskStore is the authoritative in-memory task registry. Queued and
// running tasks live only here; parked and final tasks are additionally
// written to the bounded persisted tail so they survive a restart.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
	order []string // insertion order, oldest first

	db        database.Store
	queue     messagequeue.Queue
	tailLimit int
	hooks     []TerminalHook
	log       *slog.Logger
}

// NewTaskStore creates a TaskStore. queue may be nil.
func NewTaskStore(db database.Store, queue messagequeue.Queue, tailLimit int, log *slog.Logger) *TaskStore {
	return &TaskStore{
		tasks:     make(map[string]*task.Task),
		db:        db,
		queue:     queue,
		tailLimit: tailLimit,
		log:       log,
	}
}

// OnTerminal registers a hook invoked when a task reaches a final state.
// Must be called before the store is in use.
func (s *TaskStore) OnTerminal(h TerminalHook) {
	s.hooks = append(s.hooks, h)
}

// LoadTail restores the persisted tail into the store at startup. Restored
// tasks keep their stored status; parked tasks become resumable again.
func (s *TaskStore) LoadTail(ctx context.Context) error {
	tail, err := s.db.ListTaskTail(ctx, s.tailLimit)
	if err != nil {
		return fmt.Errorf("load task tail: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Tail is newest first; insert oldest first to keep order natural.
	for i := len(tail) - 1; i >= 0; i-- {
		t := tail[i]
		if _, ok := s.tasks[t.ID]; ok {
			continue
		}
		s.tasks[t.ID] = &t
		s.order = append(s.order, t.ID)
	}
	s.log.Info("task tail restored", "tasks", len(tail))
	return nil
}

// Create registers a new task. The task starts queued, or parked when the
// request says the target agent cannot accept work right now.
func (s *TaskStore) Create(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	status := task.StatusQueued
	if req.Parked {
		status = task.StatusParked
	}
	priority := req.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}

	t := &task.Task{
		ID:        uuid.NewString(),
		AgentID:   req.AgentID,
		AgentName: req.AgentName,
		Type:      req.Type,
		Status:    status,
		Priority:  priority,
		Input:     req.Input,
		Metadata:  req.Metadata,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	cp := *t
	s.mu.Unlock()

	if status.Persistent() {
		if err := s.db.AppendTaskTail(ctx, cp, s.tailLimit); err != nil {
			s.log.Error("persist parked task failed", "task", cp.ID, "error", err)
		}
	}
	s.publish(ctx, messagequeue.SubjectTaskCreated, cp)
	return &cp, nil
}

// Get returns a copy of the task, or domain.ErrNotFound.
func (s *TaskStore) Get(id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// List returns copies of tasks matching the filter, newest first.
func (s *TaskStore) List(f TaskFilter) []task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]task.Task, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.tasks[s.order[i]]
		if f.AgentID != "" && t.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// PendingCount returns the number of non-final tasks for an agent.
func (s *TaskStore) PendingCount(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tasks {
		if t.AgentID == agentID && !t.Status.Final() {
			n++
		}
	}
	return n
}

// Transition moves a task to the next status after validating the state
// machine. mutate, if non-nil, edits the task inside the lock before
// timestamps are stamped. Illegal transitions return domain.ErrConflict;
// in particular a result arriving for an already-final task is discarded
// this way.
func (s *TaskStore) Transition(ctx context.Context, id string, next task.Status, mutate func(*task.Task)) (*task.Task, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	if !t.Status.CanTransition(next) {
		cur := t.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("%s -> %s: %w", cur, next, domain.ErrConflict)
	}

	if mutate != nil {
		mutate(t)
	}
	t.Status = next
	now := time.Now().UTC()
	switch next {
	case task.StatusRunning:
		t.StartedAt = &now
	case task.StatusCompleted, task.StatusFailed, task.StatusCancelled:
		t.CompletedAt = &now
		if t.DurationMS == 0 && t.StartedAt != nil {
			t.DurationMS = now.Sub(*t.StartedAt).Milliseconds()
		}
	}
	cp := *t
	s.mu.Unlock()

	if next.Persistent() {
		if err := s.db.AppendTaskTail(ctx, cp, s.tailLimit); err != nil {
			s.log.Error("persist task failed", "task", cp.ID, "status", cp.Status, "error", err)
		}
	}
	if next.Final() {
		for _, h := range s.hooks {
			h(ctx, cp)
		}
		s.publish(ctx, messagequeue.SubjectTaskCompleted, cp)
	}
	return &cp, nil
}

// Complete records a successful result on a running task.
func (s *TaskStore) Complete(ctx context.Context, id string, res dispatch.Result) (*task.Task, error) {
	return s.Transition(ctx, id, task.StatusCompleted, func(t *task.Task) {
		t.Output = res.Reply
		t.TokensUsed = res.TokensUsed
		t.CostUSD = cost.TaskCost(res.Model, res.TokensUsed)
		t.DurationMS = res.Duration.Milliseconds()
	})
}

// Fail records a failed result on a running task. Failed attempts still
// consumed tokens, so cost is stamped the same way.
func (s *TaskStore) Fail(ctx context.Context, id string, res dispatch.Result) (*task.Task, error) {
	return s.Transition(ctx, id, task.StatusFailed, func(t *task.Task) {
		t.Output = res.Reply
		t.Error = res.Error
		t.TokensUsed = res.TokensUsed
		t.CostUSD = cost.TaskCost(res.Model, res.TokensUsed)
		t.DurationMS = res.Duration.Milliseconds()
	})
}

// Cancel moves any non-final task to cancelled.
func (s *TaskStore) Cancel(ctx context.Context, id string) (*task.Task, error) {
	return s.Transition(ctx, id, task.StatusCancelled, nil)
}

// Resume re-queues a parked task.
func (s *TaskStore) Resume(ctx context.Context, id string) (*task.Task, error) {
	return s.Transition(ctx, id, task.StatusQueued, nil)
}

func (s *TaskStore) publish(ctx context.Context, subject string, t task.Task) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		s.log.Error("marshal task event failed", "task", t.ID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.log.Error("publish task event failed", "subject", subject, "task", t.ID, "error", err)
	}
}
