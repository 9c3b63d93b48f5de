package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Dream is a nocturnal recombination of composted seeds.
type Dream struct {
	ID              string
	SourceSeedIDs   []string
	Insight         string
	ArchetypeVector []float64
	Temperature     float64
	Perplexity      float64
	Planted         bool
	CreatedAt       float64
}

const dreamColumns = `id, source_seed_ids, insight, archetype_vector,
	temperature, perplexity, planted, created_at`

// CreateDream inserts a dream.
func (s *Store) CreateDream(ctx context.Context, d *Dream) error {
	if d.ID == "" {
		d.ID = NewID()
	}
	if d.CreatedAt == 0 {
		d.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dreams (`+dreamColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, encodeJSON(d.SourceSeedIDs), d.Insight,
		encodeJSON(d.ArchetypeVector), d.Temperature, d.Perplexity,
		d.Planted, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create dream: %w", err)
	}
	return nil
}

// MarkDreamPlanted sets the planted flag.
func (s *Store) MarkDreamPlanted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dreams SET planted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark dream planted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDream fetches one dream.
func (s *Store) GetDream(ctx context.Context, id string) (*Dream, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dreamColumns+` FROM dreams WHERE id = ?`, id)
	d, err := scanDream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// RecentDreams returns dreams newest first.
func (s *Store) RecentDreams(ctx context.Context, limit int) ([]*Dream, error) {
	return s.queryDreams(ctx, `
		SELECT `+dreamColumns+` FROM dreams
		ORDER BY created_at DESC LIMIT ?`, limit)
}

// UnplantedDreams returns unplanted dreams newest first.
func (s *Store) UnplantedDreams(ctx context.Context, limit int) ([]*Dream, error) {
	return s.queryDreams(ctx, `
		SELECT `+dreamColumns+` FROM dreams
		WHERE planted = 0 ORDER BY created_at DESC LIMIT ?`, limit)
}

// CountDreams returns totals: all dreams and planted dreams.
func (s *Store) CountDreams(ctx context.Context) (total, planted int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(planted), 0) FROM dreams`).Scan(&total, &planted)
	return total, planted, err
}

func (s *Store) queryDreams(ctx context.Context, query string, args ...any) ([]*Dream, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dreams: %w", err)
	}
	defer rows.Close()

	var dreams []*Dream
	for rows.Next() {
		d, err := scanDream(rows)
		if err != nil {
			return nil, err
		}
		dreams = append(dreams, d)
	}
	return dreams, rows.Err()
}

func scanDream(row rowScanner) (*Dream, error) {
	var d Dream
	var sourceIDs, vector string
	err := row.Scan(&d.ID, &sourceIDs, &d.Insight, &vector, &d.Temperature,
		&d.Perplexity, &d.Planted, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.SourceSeedIDs = decodeStrings(sourceIDs)
	d.ArchetypeVector = decodeFloats(vector)
	return &d, nil
}
