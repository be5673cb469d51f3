// Package task defines the Task domain entity and its state machine.
package task

import "time"

// Status represents the current state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusParked    Status = "parked"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Priority orders tasks for operator display. It does not affect dispatch.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Final reports whether the status is a final state. Final states are
// never overwritten; a late dispatch result for a final task is discarded.
func (s Status) Final() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Persistent reports whether tasks in this status are written to the
// bounded persisted tail. Parked tasks are persisted even though they can
// still be resumed; queued and running tasks never survive a restart.
func (s Status) Persistent() bool {
	return s.Final() || s == StatusParked
}

// CanTransition reports whether moving from s to next is a legal
// state-machine transition.
func (s Status) CanTransition(next Status) bool {
	if s.Final() {
		return false
	}
	switch next {
	case StatusRunning:
		return s == StatusQueued
	case StatusCompleted, StatusFailed:
		return s == StatusRunning
	case StatusParked:
		return s == StatusQueued
	case StatusQueued:
		return s == StatusParked
	case StatusCancelled:
		return true
	}
	return false
}

// Task represents a unit of work assigned to an agent.
type Task struct {
	ID          string            `json:"id"`
	AgentID     string            `json:"agent_id"`
	AgentName   string            `json:"agent_name"`
	Type        string            `json:"type"`
	Status      Status            `json:"status"`
	Priority    Priority          `json:"priority"`
	Input       string            `json:"input"`
	Output      string            `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	TokensUsed  int64             `json:"tokens_used"`
	CostUSD     float64           `json:"cost_usd"`
	DurationMS  int64             `json:"duration_ms"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	AgentID   string            `json:"agent_id,omitempty"`
	AgentName string            `json:"agent_name,omitempty"`
	Type      string            `json:"type,omitempty"`
	Priority  Priority          `json:"priority,omitempty"`
	Input     string            `json:"input"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Parked creates the task held without dispatch, used when the target
	// agent is not running at assignment time.
	Parked bool `json:"-"`
}
