package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Agent statuses.
const (
	AgentSpawning         = "spawning"
	AgentIdle             = "idle"
	AgentWorking          = "working"
	AgentCompleted        = "completed"
	AgentRetired          = "retired"
	AgentAwaitingApproval = "awaiting_approval"
)

// AgentNode is one node of the agent tree.
type AgentNode struct {
	ID              string
	Name            string
	AgentType       string
	Status          string
	ParentID        string
	SeedID          string
	TaskDescription string
	Capability      string // JSON capability config
	Context         string // JSON working memory
	Result          string
	Error           string
	CreatedAt       float64
	StartedAt       *float64
	CompletedAt     *float64
	RetiredAt       *float64
}

const agentColumns = `id, name, agent_type, status, parent_id, seed_id,
	task_description, capability, context, result, error, created_at,
	started_at, completed_at, retired_at`

// CreateAgent inserts an agent node.
func (s *Store) CreateAgent(ctx context.Context, a *AgentNode) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.Status == "" {
		a.Status = AgentSpawning
	}
	if a.Capability == "" {
		a.Capability = "{}"
	}
	if a.Context == "" {
		a.Context = "{}"
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = Now()
	}

	var parent, seed any
	if a.ParentID != "" {
		parent = a.ParentID
	}
	if a.SeedID != "" {
		seed = a.SeedID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_nodes (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.AgentType, a.Status, parent, seed,
		a.TaskDescription, a.Capability, a.Context, a.Result, a.Error,
		a.CreatedAt, nullFloat(a.StartedAt), nullFloat(a.CompletedAt),
		nullFloat(a.RetiredAt),
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// UpdateAgent writes the mutable agent fields.
func (s *Store) UpdateAgent(ctx context.Context, a *AgentNode) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_nodes SET status = ?, context = ?, result = ?, error = ?,
			started_at = ?, completed_at = ?, retired_at = ?
		WHERE id = ?`,
		a.Status, a.Context, a.Result, a.Error, nullFloat(a.StartedAt),
		nullFloat(a.CompletedAt), nullFloat(a.RetiredAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent fetches one agent.
func (s *Store) GetAgent(ctx context.Context, id string) (*AgentNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agent_nodes WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// AgentsByStatus returns agents with the given status, oldest first.
func (s *Store) AgentsByStatus(ctx context.Context, status string) ([]*AgentNode, error) {
	return s.queryAgents(ctx, `
		SELECT `+agentColumns+` FROM agent_nodes
		WHERE status = ? ORDER BY created_at`, status)
}

// ActiveAgents returns all non-retired agents, newest first.
func (s *Store) ActiveAgents(ctx context.Context) ([]*AgentNode, error) {
	return s.queryAgents(ctx, `
		SELECT `+agentColumns+` FROM agent_nodes
		WHERE status != 'retired' ORDER BY created_at DESC`)
}

// AllAgents returns every agent, newest first.
func (s *Store) AllAgents(ctx context.Context) ([]*AgentNode, error) {
	return s.queryAgents(ctx, `
		SELECT `+agentColumns+` FROM agent_nodes ORDER BY created_at DESC`)
}

// AgentsForSeed returns agents attached to a seed, oldest first.
func (s *Store) AgentsForSeed(ctx context.Context, seedID string) ([]*AgentNode, error) {
	return s.queryAgents(ctx, `
		SELECT `+agentColumns+` FROM agent_nodes
		WHERE seed_id = ? ORDER BY created_at`, seedID)
}

// CountActiveAgents counts non-retired agents.
func (s *Store) CountActiveAgents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_nodes WHERE status != 'retired'`).Scan(&n)
	return n, err
}

// CountBusyAgents counts agents still occupying capacity: anything not
// yet completed or retired.
func (s *Store) CountBusyAgents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_nodes
		WHERE status NOT IN ('retired', 'completed')`).Scan(&n)
	return n, err
}

// CountAgentsByType counts all agents of a type, retired included. Used for
// sequential naming.
func (s *Store) CountAgentsByType(ctx context.Context, agentType string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_nodes WHERE agent_type = ?`, agentType).Scan(&n)
	return n, err
}

func (s *Store) queryAgents(ctx context.Context, query string, args ...any) ([]*AgentNode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var agents []*AgentNode
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanAgent(row rowScanner) (*AgentNode, error) {
	var a AgentNode
	var parentID, seedID sql.NullString
	var startedAt, completedAt, retiredAt sql.NullFloat64
	err := row.Scan(&a.ID, &a.Name, &a.AgentType, &a.Status, &parentID,
		&seedID, &a.TaskDescription, &a.Capability, &a.Context, &a.Result,
		&a.Error, &a.CreatedAt, &startedAt, &completedAt, &retiredAt)
	if err != nil {
		return nil, err
	}
	a.ParentID = parentID.String
	a.SeedID = seedID.String
	a.StartedAt = scanNullFloat(startedAt)
	a.CompletedAt = scanNullFloat(completedAt)
	a.RetiredAt = scanNullFloat(retiredAt)
	return &a, nil
}
