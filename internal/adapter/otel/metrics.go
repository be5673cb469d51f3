package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentfleet"

// Metrics holds all AgentFleet metric instruments.
type Metrics struct {
	TasksDispatched  metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	DispatchDuration metric.Float64Histogram
	TaskCost         metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksDispatched, err = meter.Int64Counter("agentfleet.tasks.dispatched",
		metric.WithDescription("Number of task executions attempted"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("agentfleet.tasks.completed",
		metric.WithDescription("Number of task executions that succeeded"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("agentfleet.tasks.failed",
		metric.WithDescription("Number of task executions that failed"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("agentfleet.dispatch.duration_seconds",
		metric.WithDescription("Dispatch duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TaskCost, err = meter.Float64Histogram("agentfleet.task.cost_usd",
		metric.WithDescription("Task cost in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordDispatch records one execution attempt.
func (m *Metrics) RecordDispatch(ctx context.Context, agentName string, success bool, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("agent", agentName))
	m.TasksDispatched.Add(ctx, 1, attrs)
	if success {
		m.TasksCompleted.Add(ctx, 1, attrs)
	} else {
		m.TasksFailed.Add(ctx, 1, attrs)
	}
	m.DispatchDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordCost records the USD cost of one completed task.
func (m *Metrics) RecordCost(ctx context.Context, agentName string, costUSD float64) {
	m.TaskCost.Record(ctx, costUSD, metric.WithAttributes(attribute.String("agent", agentName)))
}
