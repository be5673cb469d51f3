package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/dispatch"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
)

// Orchestrator owns task intake and the dispatch loop. Tasks for agents
// that cannot accept work are parked instead of rejected; everything else
// flows queued -> running -> completed/failed through the queue.
type Orchestrator struct {
	store      database.Store
	tasks      *TaskStore
	dispatcher *Dispatcher
	metrics    *MetricsService
	queue      messagequeue.Queue
	log        *slog.Logger
}

// NewOrchestrator creates an Orchestrator. queue may be nil, in which case
// Submit executes tasks inline instead of through the dispatch subject.
func NewOrchestrator(store database.Store, tasks *TaskStore, dispatcher *Dispatcher, metrics *MetricsService, queue messagequeue.Queue, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		tasks:      tasks,
		dispatcher: dispatcher,
		metrics:    metrics,
		queue:      queue,
		log:        log,
	}
}

// Submit accepts a new task. The target agent is resolved by ID or name;
// if it is not runnable the task is parked for later resume, otherwise it
// is queued and handed to the dispatch loop.
func (o *Orchestrator) Submit(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	ag, err := o.resolveAgent(ctx, req.AgentID, req.AgentName)
	if err != nil {
		return nil, err
	}
	req.AgentID = ag.ID
	req.AgentName = ag.Name
	req.Parked = !ag.IsRunnable()

	t, err := o.tasks.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if t.Status == task.StatusParked {
		o.log.Info("task parked", "task", t.ID, "agent", ag.Name, "agent_status", ag.Status)
		return t, nil
	}

	o.requestDispatch(ctx, t.ID)
	return t, nil
}

// Resume re-queues a parked task and hands it to the dispatch loop.
func (o *Orchestrator) Resume(ctx context.Context, id string) (*task.Task, error) {
	t, err := o.tasks.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	o.requestDispatch(ctx, t.ID)
	return t, nil
}

// Cancel moves any non-final task to cancelled. A dispatch result that
// arrives later for the cancelled task is discarded by the state machine.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*task.Task, error) {
	return o.tasks.Cancel(ctx, id)
}

// StartDispatchSubscriber wires the dispatch loop to the queue. The
// returned cancel function detaches it.
func (o *Orchestrator) StartDispatchSubscriber(ctx context.Context) (func(), error) {
	if o.queue == nil {
		return func() {}, nil
	}
	return o.queue.Subscribe(ctx, messagequeue.SubjectTaskDispatch, func(ctx context.Context, _ string, data []byte) error {
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &ref); err != nil {
			return fmt.Errorf("decode dispatch request: %w", err)
		}
		o.execute(ctx, ref.ID)
		return nil
	})
}

// ExecuteSync runs one input against an agent end to end and returns the
// result. The exchange is recorded as a regular task so it shows up in
// history and metrics like any other work.
func (o *Orchestrator) ExecuteSync(ctx context.Context, ag *agent.Agent, input string, meta map[string]string) (*task.Task, dispatch.Result, error) {
	t, err := o.tasks.Create(ctx, task.CreateRequest{
		AgentID:   ag.ID,
		AgentName: ag.Name,
		Type:      "chat",
		Priority:  task.PriorityHigh,
		Input:     input,
		Metadata:  meta,
		Parked:    !ag.IsRunnable(),
	})
	if err != nil {
		return nil, dispatch.Result{}, err
	}
	if t.Status == task.StatusParked {
		return t, dispatch.Failure("agent is not running"), nil
	}

	res := o.run(ctx, ag, t)
	done, err := o.tasks.Get(t.ID)
	if err != nil {
		done = t
	}
	return done, res, nil
}

// requestDispatch publishes the task id on the dispatch subject, falling
// back to inline execution when no queue is configured.
func (o *Orchestrator) requestDispatch(ctx context.Context, id string) {
	if o.queue == nil {
		o.execute(ctx, id)
		return
	}
	data, _ := json.Marshal(struct {
		ID string `json:"id"`
	}{ID: id})
	if err := o.queue.Publish(ctx, messagequeue.SubjectTaskDispatch, data); err != nil {
		o.log.Error("publish dispatch request failed, executing inline", "task", id, "error", err)
		o.execute(ctx, id)
	}
}

// execute runs one queued task. The agent's status is re-checked at
// execution time: it may have been paused or stopped since submission, in
// which case the task parks instead of running.
func (o *Orchestrator) execute(ctx context.Context, id string) {
	t, err := o.tasks.Get(id)
	if err != nil {
		o.log.Error("dispatch: task not found", "task", id)
		return
	}
	if t.Status != task.StatusQueued {
		return
	}

	ag, err := o.store.GetAgent(ctx, t.AgentID)
	if err != nil {
		if _, ferr := o.tasks.Fail(ctx, id, dispatch.Failure("agent no longer exists")); ferr != nil {
			o.log.Warn("fail orphaned task", "task", id, "error", ferr)
		}
		return
	}
	if !ag.IsRunnable() {
		if _, perr := o.tasks.Transition(ctx, id, task.StatusParked, nil); perr != nil {
			o.log.Warn("park task", "task", id, "error", perr)
		}
		return
	}

	o.run(ctx, ag, t)
}

// run drives a queued task through running to its terminal state and
// absorbs the result into the agent's metrics. Results for tasks that went
// final in the meantime (cancellation races) are discarded and never reach
// the metrics.
func (o *Orchestrator) run(ctx context.Context, ag *agent.Agent, t *task.Task) dispatch.Result {
	if _, err := o.tasks.Transition(ctx, t.ID, task.StatusRunning, nil); err != nil {
		o.log.Warn("task not runnable", "task", t.ID, "error", err)
		return dispatch.Failure("task not runnable")
	}

	res := o.dispatcher.Dispatch(ctx, ag, t, t.Input)
	// Cost accounting needs a model; fall back to the agent's configured
	// one when the command output does not name it.
	if res.Model == "" {
		res.Model = ag.Params.Model
	}

	var terr error
	if res.Success {
		_, terr = o.tasks.Complete(ctx, t.ID, res)
	} else {
		_, terr = o.tasks.Fail(ctx, t.ID, res)
	}
	if terr != nil {
		if errors.Is(terr, domain.ErrConflict) {
			o.log.Info("result discarded, task already final", "task", t.ID)
		} else {
			o.log.Error("record task result failed", "task", t.ID, "error", terr)
		}
		return res
	}

	// Metrics fold in after the terminal transition so queue depth and the
	// rollup see the task in its final state.
	o.metrics.Apply(ctx, ag, res)
	return res
}

func (o *Orchestrator) resolveAgent(ctx context.Context, id, name string) (*agent.Agent, error) {
	if id != "" {
		return o.store.GetAgent(ctx, id)
	}
	if name != "" {
		return o.store.GetAgentByName(ctx, name)
	}
	return nil, fmt.Errorf("task has no target agent: %w", domain.ErrNotFound)
}
