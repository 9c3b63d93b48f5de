package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EthicalMemory is an antibody: a remembered harmful pattern.
type EthicalMemory struct {
	ID                 string
	PatternHash        string
	Dimension          string
	Resolution         string
	Strength           float64
	FalsePositiveCount int
	CreatedAt          float64
}

const ethicalColumns = `id, pattern_hash, dimension, resolution, strength,
	false_positive_count, created_at`

// GetAntibody fetches an antibody by pattern hash.
func (s *Store) GetAntibody(ctx context.Context, patternHash string) (*EthicalMemory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ethicalColumns+` FROM ethical_memories WHERE pattern_hash = ?`,
		patternHash)
	m, err := scanEthical(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// SaveAntibody inserts or fully updates an antibody keyed by pattern hash.
func (s *Store) SaveAntibody(ctx context.Context, m *EthicalMemory) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ethical_memories (`+ethicalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_hash) DO UPDATE SET
			dimension = excluded.dimension,
			resolution = excluded.resolution,
			strength = excluded.strength,
			false_positive_count = excluded.false_positive_count`,
		m.ID, m.PatternHash, m.Dimension, m.Resolution, m.Strength,
		m.FalsePositiveCount, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save antibody: %w", err)
	}
	return nil
}

// Antibodies returns all antibodies, strongest first.
func (s *Store) Antibodies(ctx context.Context) ([]*EthicalMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ethicalColumns+` FROM ethical_memories ORDER BY strength DESC`)
	if err != nil {
		return nil, fmt.Errorf("query antibodies: %w", err)
	}
	defer rows.Close()

	var out []*EthicalMemory
	for rows.Next() {
		m, err := scanEthical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanEthical(row rowScanner) (*EthicalMemory, error) {
	var m EthicalMemory
	err := row.Scan(&m.ID, &m.PatternHash, &m.Dimension, &m.Resolution,
		&m.Strength, &m.FalsePositiveCount, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
