package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

const agentColumns = `id, name, status, director, params, metrics, version, created_at, updated_at`

func scanAgent(row scannable) (agent.Agent, error) {
	var (
		ag          agent.Agent
		paramsJSON  []byte
		metricsJSON []byte
	)
	err := row.Scan(&ag.ID, &ag.Name, &ag.Status, &ag.Director,
		&paramsJSON, &metricsJSON, &ag.Version, &ag.CreatedAt, &ag.UpdatedAt)
	if err != nil {
		return agent.Agent{}, err
	}
	if err := json.Unmarshal(paramsJSON, &ag.Params); err != nil {
		return agent.Agent{}, fmt.Errorf("decode agent params: %w", err)
	}
	if err := json.Unmarshal(metricsJSON, &ag.Metrics); err != nil {
		return agent.Agent{}, fmt.Errorf("decode agent metrics: %w", err)
	}
	return ag, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		ag, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		agents = append(agents, ag)
	}
	return agents, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	ag, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get agent %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &ag, nil
}

func (s *Store) GetAgentByName(ctx context.Context, name string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE name = $1`, name)
	ag, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get agent %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %q: %w", name, err)
	}
	return &ag, nil
}

func (s *Store) CreateAgent(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error) {
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal agent params: %w", err)
	}
	status := req.Status
	if status == "" {
		status = agent.StatusStopped
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO agents (name, status, director, params)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+agentColumns, req.Name, status, req.Director, paramsJSON)

	ag, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("create agent %q: %w", req.Name, err)
	}
	return &ag, nil
}

func (s *Store) UpdateAgentStatus(ctx context.Context, id string, status agent.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET status = $2, version = version + 1, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("update agent status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update agent status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateAgentMetrics(ctx context.Context, id string, m agent.Metrics) error {
	metricsJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal agent metrics: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET metrics = $2, updated_at = now() WHERE id = $1`,
		id, metricsJSON)
	if err != nil {
		return fmt.Errorf("update agent metrics %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update agent metrics %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete agent %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
