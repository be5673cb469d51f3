package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// AppendTaskTail upserts a parked or terminal task into the bounded tail
// and trims entries beyond the limit, oldest first. A task that parks and
// later finishes updates its existing row instead of duplicating it.
func (s *Store) AppendTaskTail(ctx context.Context, t task.Task, limit int) error {
	metadataJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal task metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO task_tail (id, agent_id, agent_name, type, status, priority,
		                        input, output, error, tokens_used, cost_usd, duration_ms,
		                        metadata, created_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   output = EXCLUDED.output,
		   error = EXCLUDED.error,
		   tokens_used = EXCLUDED.tokens_used,
		   cost_usd = EXCLUDED.cost_usd,
		   duration_ms = EXCLUDED.duration_ms,
		   started_at = EXCLUDED.started_at,
		   completed_at = EXCLUDED.completed_at,
		   recorded_at = now()`,
		t.ID, nullIfEmpty(t.AgentID), t.AgentName, t.Type, t.Status, t.Priority,
		t.Input, t.Output, t.Error, t.TokensUsed, t.CostUSD, t.DurationMS,
		metadataJSON, t.CreatedAt, t.StartedAt, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("append task tail %s: %w", t.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`DELETE FROM task_tail WHERE id IN (
		   SELECT id FROM task_tail ORDER BY recorded_at DESC OFFSET $1
		 )`, limit)
	if err != nil {
		return fmt.Errorf("trim task tail: %w", err)
	}
	return nil
}

// ListTaskTail returns up to limit tail entries, newest first.
func (s *Store) ListTaskTail(ctx context.Context, limit int) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, agent_name, type, status, priority,
		        input, output, error, tokens_used, cost_usd, duration_ms,
		        metadata, created_at, started_at, completed_at
		 FROM task_tail ORDER BY recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list task tail: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var (
			t            task.Task
			agentID      *string
			metadataJSON []byte
		)
		err := rows.Scan(&t.ID, &agentID, &t.AgentName, &t.Type, &t.Status, &t.Priority,
			&t.Input, &t.Output, &t.Error, &t.TokensUsed, &t.CostUSD, &t.DurationMS,
			&metadataJSON, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("list task tail: %w", err)
		}
		if agentID != nil {
			t.AgentID = *agentID
		}
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode task metadata: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// nullIfEmpty returns nil for empty strings (for nullable UUID columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
