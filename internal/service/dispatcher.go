package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/AgentFleet/internal/adapter/otel"
	"github.com/Strob0t/AgentFleet/internal/config"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/dispatch"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/port/runtime"
	"github.com/Strob0t/AgentFleet/internal/secrets"
)

// Dispatcher executes task input against an agent, preferring the agent's
// sandbox and falling back to a direct child process when no container
// runtime is available. Dispatch never propagates an error: every failure
// resolves to a Result with Success=false.
type Dispatcher struct {
	lifecycle *LifecycleService
	rt        runtime.Runtime
	mode      *ExecutionMode
	vault     *secrets.Vault
	pool      *semaphore.Weighted
	inst      *otel.Metrics
	cfg       config.Dispatch
	log       *slog.Logger
}

// NewDispatcher creates a Dispatcher. vault and inst may be nil.
func NewDispatcher(lifecycle *LifecycleService, rt runtime.Runtime, mode *ExecutionMode, vault *secrets.Vault, inst *otel.Metrics, cfg config.Dispatch, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		lifecycle: lifecycle,
		rt:        rt,
		mode:      mode,
		vault:     vault,
		pool:      semaphore.NewWeighted(cfg.MaxConcurrent),
		inst:      inst,
		cfg:       cfg,
		log:       log,
	}
}

// Dispatch runs the input for the task on the given agent and returns the
// normalized result. Timing covers dispatch start to result, including
// sandbox provisioning.
func (d *Dispatcher) Dispatch(ctx context.Context, ag *agent.Agent, t *task.Task, input string) dispatch.Result {
	start := time.Now()

	if err := d.pool.Acquire(ctx, 1); err != nil {
		return d.finish(ctx, ag, start, dispatch.Failure("execution pool: "+err.Error()))
	}
	defer d.pool.Release(1)

	var res dispatch.Result
	if d.mode.ContainersEnabled() {
		res = d.execInSandbox(ctx, ag, t, input)
	} else {
		res = d.directExecute(ctx, ag, t, input)
	}
	return d.finish(ctx, ag, start, res)
}

func (d *Dispatcher) finish(ctx context.Context, ag *agent.Agent, start time.Time, res dispatch.Result) dispatch.Result {
	res.Duration = time.Since(start)
	if d.inst != nil {
		d.inst.RecordDispatch(ctx, ag.Name, res.Success, res.Duration)
	}
	return res
}

// commandArgs builds the fixed argument shape of the external execution
// command: agent selector, session id, thinking effort, structured output
// flag, then the message payload.
func (d *Dispatcher) commandArgs(ag *agent.Agent, t *task.Task, input string) []string {
	session := t.ID
	if s, ok := t.Metadata["session_id"]; ok && s != "" {
		session = s
	}

	thinking := ag.Params.ThinkingLevel
	if thinking == "" {
		thinking = "medium"
	}

	return []string{
		"run",
		"--agent", ag.Name,
		"--session", session,
		"--thinking", thinking,
		"--output-format", "json",
		"--message", input,
	}
}

// credEnv is the fixed environment-injection point for per-task credentials.
func (d *Dispatcher) credEnv() []string {
	if d.vault == nil {
		return nil
	}
	return d.vault.Environ()
}

// execInSandbox ensures the agent's sandbox is running, then executes the
// command inside it. A missing sandbox is lazily recreated, not an error.
func (d *Dispatcher) execInSandbox(ctx context.Context, ag *agent.Agent, t *task.Task, input string) dispatch.Result {
	if _, err := d.lifecycle.EnsureCreated(ctx, ag); err != nil {
		return dispatch.Failure("sandbox unavailable: " + err.Error())
	}

	cctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	out, err := d.rt.Exec(cctx, ContainerName(ag.Name), runtime.ExecSpec{
		Command: append([]string{d.cfg.Command}, d.commandArgs(ag, t, input)...),
		Env:     d.credEnv(),
	})
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return dispatch.Failure(fmt.Sprintf("execution timed out after %s", d.cfg.Timeout))
	}
	if err != nil {
		return dispatch.Failure(err.Error())
	}

	return dispatch.Parse(d.truncate(out))
}

// directExecute spawns the external command as a child of the control
// plane itself. Used only when no container runtime is available. The
// context deadline kills the child on expiry so nothing is leaked.
func (d *Dispatcher) directExecute(ctx context.Context, ag *agent.Agent, t *task.Task, input string) dispatch.Result {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, d.cfg.Command, d.commandArgs(ag, t, input)...) //nolint:gosec // G204: args are constructed internally
	cmd.Env = append(os.Environ(), d.credEnv()...)
	cmd.WaitDelay = 5 * time.Second

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, max: d.cfg.OutputLimit}
	cmd.Stdout = lw
	cmd.Stderr = lw

	err := cmd.Run()
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return dispatch.Failure(fmt.Sprintf("execution timed out after %s", d.cfg.Timeout))
	}
	if err != nil && buf.Len() == 0 {
		return dispatch.Failure(err.Error())
	}

	return dispatch.Parse(buf.Bytes())
}

func (d *Dispatcher) truncate(out []byte) []byte {
	if d.cfg.OutputLimit > 0 && len(out) > d.cfg.OutputLimit {
		return out[:d.cfg.OutputLimit]
	}
	return out
}

// limitWriter caps the bytes retained from a child process. Overflow is
// discarded but still reported as written so the child never blocks.
type limitWriter struct {
	w   *bytes.Buffer
	max int
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.max <= 0 || l.w.Len() >= l.max {
		return len(p), nil
	}
	room := l.max - l.w.Len()
	if room > len(p) {
		room = len(p)
	}
	l.w.Write(p[:room])
	return len(p), nil
}
