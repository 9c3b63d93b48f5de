package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Gardener is a human tending the garden.
type Gardener struct {
	ID               string
	Name             string
	PreferenceVector []float64
	RhythmProfile    string // JSON {hour: count}
	PheromoneTrails  string // JSON {theme: count}
	InteractionCount int
	CreatedAt        float64
}

const gardenerColumns = `id, name, preference_vector, rhythm_profile,
	pheromone_trails, interaction_count, created_at`

// CreateGardener inserts a gardener profile.
func (s *Store) CreateGardener(ctx context.Context, g *Gardener) error {
	if g.ID == "" {
		g.ID = NewID()
	}
	if g.Name == "" {
		g.Name = "Anonymous Gardener"
	}
	if g.RhythmProfile == "" {
		g.RhythmProfile = "{}"
	}
	if g.PheromoneTrails == "" {
		g.PheromoneTrails = "{}"
	}
	if g.CreatedAt == 0 {
		g.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gardeners (`+gardenerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, encodeJSON(g.PreferenceVector), g.RhythmProfile,
		g.PheromoneTrails, g.InteractionCount, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create gardener: %w", err)
	}
	return nil
}

// UpdateGardener writes the mutable gardener fields.
func (s *Store) UpdateGardener(ctx context.Context, g *Gardener) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE gardeners SET name = ?, preference_vector = ?,
			rhythm_profile = ?, pheromone_trails = ?, interaction_count = ?
		WHERE id = ?`,
		g.Name, encodeJSON(g.PreferenceVector), g.RhythmProfile,
		g.PheromoneTrails, g.InteractionCount, g.ID,
	)
	if err != nil {
		return fmt.Errorf("update gardener %s: %w", g.ID, err)
	}
	return nil
}

// GetGardener fetches one gardener.
func (s *Store) GetGardener(ctx context.Context, id string) (*Gardener, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+gardenerColumns+` FROM gardeners WHERE id = ?`, id)

	var g Gardener
	var prefs string
	err := row.Scan(&g.ID, &g.Name, &prefs, &g.RhythmProfile,
		&g.PheromoneTrails, &g.InteractionCount, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get gardener: %w", err)
	}
	g.PreferenceVector = decodeFloats(prefs)
	return &g, nil
}
