// Package agent defines the Agent domain entity.
package agent

import "time"

// Status represents the desired lifecycle state of an agent.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
	StatusDeploying Status = "deploying"
)

// ExecParams holds the execution parameters injected into an agent's sandbox.
type ExecParams struct {
	Model          string  `json:"model"`
	SystemPrompt   string  `json:"system_prompt,omitempty"`
	ThinkingLevel  string  `json:"thinking_level,omitempty"`
	Temperature    float64 `json:"temperature"`
	TokenBudget    int     `json:"token_budget"`
	MaxConcurrency int     `json:"max_concurrency"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries"`
}

// Metrics is the rolling per-agent metrics snapshot. All fields are
// updated incrementally so a task completion stays O(1).
type Metrics struct {
	UptimeSeconds   float64   `json:"uptime_seconds"`
	CPUPercent      float64   `json:"cpu_percent"`
	MemoryPercent   float64   `json:"memory_percent"`
	TasksCompleted  int       `json:"tasks_completed"`
	TasksQueued     int       `json:"tasks_queued"`
	AvgResponseTime float64   `json:"avg_response_time"` // seconds
	ErrorRate       float64   `json:"error_rate"`        // 0..100
	TokensUsed      int64     `json:"tokens_used"`
	TotalCost       float64   `json:"total_cost_usd"`
	LastActive      time.Time `json:"last_active"`
}

// Agent represents one configured AI agent in the fleet. An agent owns
// zero or one sandbox container at any time.
type Agent struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	Director  bool       `json:"director,omitempty"`
	Params    ExecParams `json:"params"`
	Metrics   Metrics    `json:"metrics"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsRunnable reports whether tasks may be dispatched to the agent.
func (a *Agent) IsRunnable() bool {
	return a.Status == StatusRunning
}

// CreateRequest holds the fields needed to register a new agent.
type CreateRequest struct {
	Name     string     `json:"name"`
	Status   Status     `json:"status,omitempty"`
	Director bool       `json:"director,omitempty"`
	Params   ExecParams `json:"params"`
}
