package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/dispatch"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

func newTestTaskStore(db *fakeStore, q *fakeQueue) *TaskStore {
	if q == nil {
		return NewTaskStore(db, nil, 500, testLogger())
	}
	return NewTaskStore(db, q, 500, testLogger())
}

func TestTaskLifecycleToCompleted(t *testing.T) {
	db := newFakeStore()
	ts := newTestTaskStore(db, nil)
	ctx := context.Background()

	created, err := ts.Create(ctx, task.CreateRequest{AgentID: "a", AgentName: "alpha", Input: "work"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != task.StatusQueued {
		t.Fatalf("Status = %s, want queued", created.Status)
	}

	if _, err := ts.Transition(ctx, created.ID, task.StatusRunning, nil); err != nil {
		t.Fatalf("to running: %v", err)
	}
	done, err := ts.Complete(ctx, created.ID, dispatch.Result{
		Success: true, Reply: "ok", TokensUsed: 50, Duration: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != task.StatusCompleted || done.Output != "ok" {
		t.Errorf("task = %+v", done)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps not stamped")
	}
	if done.DurationMS != 2000 {
		t.Errorf("DurationMS = %d, want 2000", done.DurationMS)
	}

	// Terminal task landed in the persisted tail.
	tail, _ := db.ListTaskTail(ctx, 10)
	if len(tail) != 1 || tail[0].ID != created.ID {
		t.Errorf("tail = %+v", tail)
	}
}

func TestLateResultDiscardedAfterCancel(t *testing.T) {
	ts := newTestTaskStore(newFakeStore(), nil)
	ctx := context.Background()

	created, _ := ts.Create(ctx, task.CreateRequest{AgentID: "a", Input: "work"})
	if _, err := ts.Transition(ctx, created.ID, task.StatusRunning, nil); err != nil {
		t.Fatalf("to running: %v", err)
	}
	if _, err := ts.Cancel(ctx, created.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err := ts.Complete(ctx, created.ID, dispatch.Result{Success: true, Reply: "late"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("late Complete err = %v, want ErrConflict", err)
	}
	got, _ := ts.Get(created.ID)
	if got.Status != task.StatusCancelled || got.Output != "" {
		t.Errorf("final task overwritten: %+v", got)
	}
}

func TestParkedTaskPersistsAndResumes(t *testing.T) {
	db := newFakeStore()
	ts := newTestTaskStore(db, nil)
	ctx := context.Background()

	created, _ := ts.Create(ctx, task.CreateRequest{AgentID: "a", Input: "later", Parked: true})
	if created.Status != task.StatusParked {
		t.Fatalf("Status = %s, want parked", created.Status)
	}
	tail, _ := db.ListTaskTail(ctx, 10)
	if len(tail) != 1 {
		t.Fatalf("parked task not persisted, tail = %+v", tail)
	}

	resumed, err := ts.Resume(ctx, created.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != task.StatusQueued {
		t.Errorf("Status = %s, want queued", resumed.Status)
	}
}

func TestTerminalHookAndEvent(t *testing.T) {
	q := newFakeQueue()
	ts := newTestTaskStore(newFakeStore(), q)
	ctx := context.Background()

	var hooked []string
	ts.OnTerminal(func(_ context.Context, tk task.Task) {
		hooked = append(hooked, tk.ID)
	})

	created, _ := ts.Create(ctx, task.CreateRequest{AgentID: "a", Input: "work"})
	_, _ = ts.Transition(ctx, created.ID, task.StatusRunning, nil)
	_, _ = ts.Fail(ctx, created.ID, dispatch.Failure("boom"))

	if len(hooked) != 1 || hooked[0] != created.ID {
		t.Errorf("hooked = %v", hooked)
	}
	if q.count("tasks.completed") != 1 {
		t.Errorf("tasks.completed events = %d, want 1", q.count("tasks.completed"))
	}
	if q.count("tasks.created") != 1 {
		t.Errorf("tasks.created events = %d, want 1", q.count("tasks.created"))
	}
}

func TestPendingCountExcludesFinal(t *testing.T) {
	ts := newTestTaskStore(newFakeStore(), nil)
	ctx := context.Background()

	t1, _ := ts.Create(ctx, task.CreateRequest{AgentID: "a", Input: "1"})
	_, _ = ts.Create(ctx, task.CreateRequest{AgentID: "a", Input: "2", Parked: true})
	_, _ = ts.Create(ctx, task.CreateRequest{AgentID: "b", Input: "3"})

	_, _ = ts.Transition(ctx, t1.ID, task.StatusRunning, nil)
	_, _ = ts.Complete(ctx, t1.ID, dispatch.Result{Success: true})

	if got := ts.PendingCount("a"); got != 1 {
		t.Errorf("PendingCount(a) = %d, want 1", got)
	}
	if got := ts.PendingCount("b"); got != 1 {
		t.Errorf("PendingCount(b) = %d, want 1", got)
	}
}

func TestLoadTailRestores(t *testing.T) {
	db := newFakeStore()
	ctx := context.Background()

	first := newTestTaskStore(db, nil)
	parked, _ := first.Create(ctx, task.CreateRequest{AgentID: "a", Input: "held", Parked: true})

	second := newTestTaskStore(db, nil)
	if err := second.LoadTail(ctx); err != nil {
		t.Fatalf("LoadTail: %v", err)
	}
	got, err := second.Get(parked.ID)
	if err != nil {
		t.Fatalf("restored task missing: %v", err)
	}
	if got.Status != task.StatusParked {
		t.Errorf("Status = %s, want parked", got.Status)
	}
}
