package http

import (
	"net/http"

	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
	"github.com/Strob0t/AgentFleet/internal/service"
)

// Handlers bundles the services the operator API exposes.
type Handlers struct {
	Agents     *service.AgentService
	Orch       *service.Orchestrator
	Tasks      *service.TaskStore
	Metrics    *service.MetricsService
	Snapshot   *service.SnapshotService
	Chat       *service.ChatService
	Reconciler *service.Reconciler
	Mode       *service.ExecutionMode
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"containers": h.Mode.ContainersEnabled(),
	})
}

// --- Agents ---

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Agents.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "agents not found")
		return
	}
	if agents == nil {
		agents = []agent.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	ag, err := h.Agents.Resolve(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.CreateRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Name, "name") {
		return
	}
	ag, err := h.Agents.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, ag)
}

func (h *Handlers) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Status agent.Status `json:"status"`
	}](w, r)
	if !ok {
		return
	}
	switch req.Status {
	case agent.StatusRunning, agent.StatusPaused, agent.StatusStopped:
	default:
		writeError(w, http.StatusBadRequest, "status must be running, paused, or stopped")
		return
	}

	ag, err := h.Agents.UpdateStatus(r.Context(), urlParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.Agents.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AgentSandbox(w http.ResponseWriter, r *http.Request) {
	ag, err := h.Agents.Resolve(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	c := h.Agents.SandboxStatus(r.Context(), ag)
	if c == nil {
		writeJSON(w, http.StatusOK, map[string]any{"present": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"present": true, "container": c})
}

// --- Tasks ---

func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	if req.AgentID == "" && req.AgentName == "" {
		writeError(w, http.StatusBadRequest, "agent_id or agent_name is required")
		return
	}
	if !requireField(w, req.Input, "input") {
		return
	}

	t, err := h.Orch.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := service.TaskFilter{
		AgentID: r.URL.Query().Get("agent_id"),
		Status:  task.Status(r.URL.Query().Get("status")),
	}
	writeJSON(w, http.StatusOK, h.Tasks.List(filter))
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Orch.Cancel(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) ResumeTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Orch.Resume(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- Metrics & analytics ---

func (h *Handlers) MetricsSummary(w http.ResponseWriter, r *http.Request) {
	snap := h.Snapshot.Build(r.Context())
	writeJSON(w, http.StatusOK, snap.Summary)
}

func (h *Handlers) AnalyticsDaily(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Metrics.Rollup())
}

// --- Chat ingest ---

func (h *Handlers) ChatEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := readJSON[service.ChatEvent](w, r)
	if !ok {
		return
	}
	reply, err := h.Chat.HandleEvent(r.Context(), ev)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// --- Reconcile ---

func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.Reconciler.Reconcile(r.Context()); err != nil {
		writeDomainError(w, err, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}
