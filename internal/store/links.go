package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Symbiotic relationship types.
const (
	RelMutualism    = "mutualism"
	RelCommensalism = "commensalism"
	RelParasitism   = "parasitism"
)

// SymbioticLink connects two seeds underground. The column names keep the
// historical sprout_*_id spelling but carry seed IDs.
type SymbioticLink struct {
	ID                string
	SeedAID           string
	SeedBID           string
	RelationshipType  string
	SynergyScore      float64
	NutrientFlow      float64
	PollenTransferred bool
	CreatedAt         float64
}

const linkColumns = `id, sprout_a_id, sprout_b_id, relationship_type,
	synergy_score, nutrient_flow, pollen_transferred, created_at`

// CreateLink inserts a symbiotic link. Links are undirected, so the
// endpoints are canonicalised into lexicographic order before writing.
func (s *Store) CreateLink(ctx context.Context, l *SymbioticLink) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	if l.SeedAID > l.SeedBID {
		l.SeedAID, l.SeedBID = l.SeedBID, l.SeedAID
	}
	if l.RelationshipType == "" {
		l.RelationshipType = RelMutualism
	}
	if l.CreatedAt == 0 {
		l.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO symbiotic_links (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SeedAID, l.SeedBID, l.RelationshipType, l.SynergyScore,
		l.NutrientFlow, l.PollenTransferred, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// UpdateLink writes the mutable link fields.
func (s *Store) UpdateLink(ctx context.Context, l *SymbioticLink) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE symbiotic_links SET relationship_type = ?, synergy_score = ?,
			nutrient_flow = ?, pollen_transferred = ?
		WHERE id = ?`,
		l.RelationshipType, l.SynergyScore, l.NutrientFlow,
		l.PollenTransferred, l.ID,
	)
	if err != nil {
		return fmt.Errorf("update link %s: %w", l.ID, err)
	}
	return nil
}

// LinkBetween fetches the link between two seeds in either direction.
func (s *Store) LinkBetween(ctx context.Context, seedA, seedB string) (*SymbioticLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM symbiotic_links
		WHERE (sprout_a_id = ? AND sprout_b_id = ?)
		   OR (sprout_a_id = ? AND sprout_b_id = ?)
		LIMIT 1`, seedA, seedB, seedB, seedA)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// Links returns all symbiotic links, newest first.
func (s *Store) Links(ctx context.Context) ([]*SymbioticLink, error) {
	return s.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM symbiotic_links ORDER BY created_at DESC`)
}

// LinksForSeed returns the links touching a seed.
func (s *Store) LinksForSeed(ctx context.Context, seedID string) ([]*SymbioticLink, error) {
	return s.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM symbiotic_links
		WHERE sprout_a_id = ? OR sprout_b_id = ?
		ORDER BY created_at DESC`, seedID, seedID)
}

// CountLinks returns the total link count.
func (s *Store) CountLinks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbiotic_links`).Scan(&n)
	return n, err
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]*SymbioticLink, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var links []*SymbioticLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func scanLink(row rowScanner) (*SymbioticLink, error) {
	var l SymbioticLink
	err := row.Scan(&l.ID, &l.SeedAID, &l.SeedBID, &l.RelationshipType,
		&l.SynergyScore, &l.NutrientFlow, &l.PollenTransferred, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
