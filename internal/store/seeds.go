package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Seed statuses.
const (
	SeedPlanted   = "planted"
	SeedGrowing   = "growing"
	SeedHarvested = "harvested"
	SeedComposted = "composted"
)

// Seed is a planted wish and its distilled qualities.
type Seed struct {
	ID           string
	GardenerID   string
	RawText      string
	Essence      string
	Embedding    []float64
	Themes       []string
	ToneValence  float64
	ToneArousal  float64
	Resonance    float64
	Energy       float64
	EthicalScore float64
	Vitality     float64
	SeasonBorn   string
	Version      int
	Lineage      string // JSON list of version snapshots
	Status       string
	IsComposted  bool
	CreatedAt    float64
}

// Age returns the seed's age in seconds.
func (s *Seed) Age(now float64) float64 {
	return now - s.CreatedAt
}

// DisplayEssence returns the essence, falling back to the raw wish.
func (s *Seed) DisplayEssence() string {
	if s.Essence != "" {
		return s.Essence
	}
	return s.RawText
}

const seedColumns = `id, gardener_id, raw_text, essence, embedding, themes,
	tone_valence, tone_arousal, resonance, energy, ethical_score, vitality,
	season_born, version, lineage, status, is_composted, created_at`

// CreateSeed inserts a seed, filling ID, defaults and timestamp.
func (s *Store) CreateSeed(ctx context.Context, seed *Seed) error {
	if seed.ID == "" {
		seed.ID = NewID()
	}
	if seed.Status == "" {
		seed.Status = SeedPlanted
	}
	if seed.Version == 0 {
		seed.Version = 1
	}
	if seed.Lineage == "" {
		seed.Lineage = "[]"
	}
	if seed.CreatedAt == 0 {
		seed.CreatedAt = Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seeds (`+seedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seed.ID, seed.GardenerID, seed.RawText, seed.Essence,
		encodeJSON(seed.Embedding), encodeJSON(seed.Themes),
		seed.ToneValence, seed.ToneArousal, seed.Resonance, seed.Energy,
		seed.EthicalScore, seed.Vitality, seed.SeasonBorn, seed.Version,
		seed.Lineage, seed.Status, seed.IsComposted, seed.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create seed: %w", err)
	}
	return nil
}

// UpdateSeed writes all mutable seed fields.
func (s *Store) UpdateSeed(ctx context.Context, seed *Seed) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE seeds SET essence = ?, embedding = ?, themes = ?,
			tone_valence = ?, tone_arousal = ?, resonance = ?, energy = ?,
			ethical_score = ?, vitality = ?, season_born = ?, version = ?,
			lineage = ?, status = ?, is_composted = ?
		WHERE id = ?`,
		seed.Essence, encodeJSON(seed.Embedding), encodeJSON(seed.Themes),
		seed.ToneValence, seed.ToneArousal, seed.Resonance, seed.Energy,
		seed.EthicalScore, seed.Vitality, seed.SeasonBorn, seed.Version,
		seed.Lineage, seed.Status, seed.IsComposted, seed.ID,
	)
	if err != nil {
		return fmt.Errorf("update seed %s: %w", seed.ID, err)
	}
	return nil
}

// GetSeed fetches one seed.
func (s *Store) GetSeed(ctx context.Context, id string) (*Seed, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+seedColumns+` FROM seeds WHERE id = ?`, id)
	seed, err := scanSeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return seed, err
}

// LivingSeeds returns non-composted seeds in planted or growing status.
func (s *Store) LivingSeeds(ctx context.Context) ([]*Seed, error) {
	return s.querySeeds(ctx, `
		SELECT `+seedColumns+` FROM seeds
		WHERE is_composted = 0 AND status IN ('planted', 'growing')
		ORDER BY created_at`)
}

// ActiveSeeds returns all non-composted seeds, newest first.
func (s *Store) ActiveSeeds(ctx context.Context) ([]*Seed, error) {
	return s.querySeeds(ctx, `
		SELECT `+seedColumns+` FROM seeds
		WHERE is_composted = 0 ORDER BY created_at DESC`)
}

// SeedsByStatus returns non-composted seeds with the given status.
func (s *Store) SeedsByStatus(ctx context.Context, status string) ([]*Seed, error) {
	return s.querySeeds(ctx, `
		SELECT `+seedColumns+` FROM seeds
		WHERE is_composted = 0 AND status = ? ORDER BY created_at`, status)
}

// CompostedSeeds returns composted seeds, newest first.
func (s *Store) CompostedSeeds(ctx context.Context, limit int) ([]*Seed, error) {
	return s.querySeeds(ctx, `
		SELECT `+seedColumns+` FROM seeds
		WHERE is_composted = 1 ORDER BY created_at DESC LIMIT ?`, limit)
}

// CompletedSeeds returns harvested and composted seeds, oldest first.
// They are the raw material of dreams.
func (s *Store) CompletedSeeds(ctx context.Context) ([]*Seed, error) {
	return s.querySeeds(ctx, `
		SELECT `+seedColumns+` FROM seeds
		WHERE status IN ('harvested', 'composted') ORDER BY created_at`)
}

// AllSeeds returns every seed, composted or not.
func (s *Store) AllSeeds(ctx context.Context) ([]*Seed, error) {
	return s.querySeeds(ctx, `SELECT `+seedColumns+` FROM seeds ORDER BY created_at`)
}

// CountSeeds returns counts keyed by status plus a "total" entry.
func (s *Store) CountSeeds(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM seeds GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count seeds: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	total := 0
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
		total += n
	}
	counts["total"] = total
	return counts, rows.Err()
}

func (s *Store) querySeeds(ctx context.Context, query string, args ...any) ([]*Seed, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seeds: %w", err)
	}
	defer rows.Close()

	var seeds []*Seed
	for rows.Next() {
		seed, err := scanSeed(rows)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
	}
	return seeds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeed(row rowScanner) (*Seed, error) {
	var seed Seed
	var gardenerID sql.NullString
	var embedding, themes string
	err := row.Scan(
		&seed.ID, &gardenerID, &seed.RawText, &seed.Essence, &embedding,
		&themes, &seed.ToneValence, &seed.ToneArousal, &seed.Resonance,
		&seed.Energy, &seed.EthicalScore, &seed.Vitality, &seed.SeasonBorn,
		&seed.Version, &seed.Lineage, &seed.Status, &seed.IsComposted,
		&seed.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	seed.GardenerID = gardenerID.String
	seed.Embedding = decodeFloats(embedding)
	seed.Themes = decodeStrings(themes)
	return &seed, nil
}
