package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Sprout statuses.
const (
	SproutBudding   = "budding"
	SproutGrowing   = "growing"
	SproutBlooming  = "blooming"
	SproutWilting   = "wilting"
	SproutComposted = "composted"
)

// Sprout is one node of a seed's fractal tree.
type Sprout struct {
	ID           string
	SeedID       string
	ParentID     string
	Depth        int
	Label        string
	Description  string
	Energy       float64
	EthicalScore float64
	Pressure     float64
	Resonance    float64
	Warmth       float64
	Version      int
	Lineage      string
	Status       string
	IsComposted  bool
	CreatedAt    float64
	ApoptosisAt  *float64
}

const sproutColumns = `id, seed_id, parent_id, depth, label, description,
	energy, ethical_score, pressure, resonance, warmth, version, lineage,
	status, is_composted, created_at, apoptosis_at`

// CreateSprout inserts a sprout, filling ID, defaults and timestamp.
func (s *Store) CreateSprout(ctx context.Context, sp *Sprout) error {
	if sp.ID == "" {
		sp.ID = NewID()
	}
	if sp.Status == "" {
		sp.Status = SproutBudding
	}
	if sp.Version == 0 {
		sp.Version = 1
	}
	if sp.Lineage == "" {
		sp.Lineage = "[]"
	}
	if sp.CreatedAt == 0 {
		sp.CreatedAt = Now()
	}

	var parent any
	if sp.ParentID != "" {
		parent = sp.ParentID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sprouts (`+sproutColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.SeedID, parent, sp.Depth, sp.Label, sp.Description,
		sp.Energy, sp.EthicalScore, sp.Pressure, sp.Resonance, sp.Warmth,
		sp.Version, sp.Lineage, sp.Status, sp.IsComposted, sp.CreatedAt,
		nullFloat(sp.ApoptosisAt),
	)
	if err != nil {
		return fmt.Errorf("create sprout: %w", err)
	}
	return nil
}

// UpdateSprout writes all mutable sprout fields.
func (s *Store) UpdateSprout(ctx context.Context, sp *Sprout) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sprouts SET description = ?, energy = ?, ethical_score = ?,
			pressure = ?, resonance = ?, warmth = ?, version = ?, lineage = ?,
			status = ?, is_composted = ?, apoptosis_at = ?
		WHERE id = ?`,
		sp.Description, sp.Energy, sp.EthicalScore, sp.Pressure, sp.Resonance,
		sp.Warmth, sp.Version, sp.Lineage, sp.Status, sp.IsComposted,
		nullFloat(sp.ApoptosisAt), sp.ID,
	)
	if err != nil {
		return fmt.Errorf("update sprout %s: %w", sp.ID, err)
	}
	return nil
}

// GetSprout fetches one sprout.
func (s *Store) GetSprout(ctx context.Context, id string) (*Sprout, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sproutColumns+` FROM sprouts WHERE id = ?`, id)
	sp, err := scanSprout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sp, err
}

// SproutsForSeed returns all sprouts of a seed ordered by depth then age.
func (s *Store) SproutsForSeed(ctx context.Context, seedID string) ([]*Sprout, error) {
	return s.querySprouts(ctx, `
		SELECT `+sproutColumns+` FROM sprouts
		WHERE seed_id = ? ORDER BY depth, created_at`, seedID)
}

// LivingSproutsForSeed returns non-composted sprouts of a seed ordered by depth.
func (s *Store) LivingSproutsForSeed(ctx context.Context, seedID string) ([]*Sprout, error) {
	return s.querySprouts(ctx, `
		SELECT `+sproutColumns+` FROM sprouts
		WHERE seed_id = ? AND is_composted = 0 ORDER BY depth, created_at`, seedID)
}

// LivingSprouts returns every non-composted sprout across all seeds.
func (s *Store) LivingSprouts(ctx context.Context) ([]*Sprout, error) {
	return s.querySprouts(ctx, `
		SELECT `+sproutColumns+` FROM sprouts
		WHERE is_composted = 0 ORDER BY depth, created_at`)
}

// SproutChildren returns the direct children of a sprout.
func (s *Store) SproutChildren(ctx context.Context, sproutID string) ([]*Sprout, error) {
	return s.querySprouts(ctx, `
		SELECT `+sproutColumns+` FROM sprouts
		WHERE parent_id = ? ORDER BY created_at`, sproutID)
}

// CountSprouts returns the total sprout count.
func (s *Store) CountSprouts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sprouts`).Scan(&n)
	return n, err
}

func (s *Store) querySprouts(ctx context.Context, query string, args ...any) ([]*Sprout, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sprouts: %w", err)
	}
	defer rows.Close()

	var sprouts []*Sprout
	for rows.Next() {
		sp, err := scanSprout(rows)
		if err != nil {
			return nil, err
		}
		sprouts = append(sprouts, sp)
	}
	return sprouts, rows.Err()
}

func scanSprout(row rowScanner) (*Sprout, error) {
	var sp Sprout
	var parentID sql.NullString
	var apoptosisAt sql.NullFloat64
	err := row.Scan(
		&sp.ID, &sp.SeedID, &parentID, &sp.Depth, &sp.Label, &sp.Description,
		&sp.Energy, &sp.EthicalScore, &sp.Pressure, &sp.Resonance, &sp.Warmth,
		&sp.Version, &sp.Lineage, &sp.Status, &sp.IsComposted, &sp.CreatedAt,
		&apoptosisAt,
	)
	if err != nil {
		return nil, err
	}
	sp.ParentID = parentID.String
	sp.ApoptosisAt = scanNullFloat(apoptosisAt)
	return &sp, nil
}
