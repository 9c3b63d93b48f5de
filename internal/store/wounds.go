package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Wound severities.
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// WoundRecord is a triaged injury and the scar it left.
type WoundRecord struct {
	ID                  string
	WoundType           string
	Severity            string
	SourceHormone       string
	AffectedIDs         []string
	HealingAction       string
	ScarLesson          string
	AntifragilityGained float64
	CreatedAt           float64
	HealedAt            *float64
}

const woundColumns = `id, wound_type, severity, source_hormone, affected_ids,
	healing_action, scar_lesson, antifragility_gained, created_at, healed_at`

// CreateWound inserts a wound record.
func (s *Store) CreateWound(ctx context.Context, w *WoundRecord) error {
	if w.ID == "" {
		w.ID = NewID()
	}
	if w.Severity == "" {
		w.Severity = SeverityMinor
	}
	if w.CreatedAt == 0 {
		w.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wound_records (`+woundColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.WoundType, w.Severity, w.SourceHormone,
		encodeJSON(w.AffectedIDs), w.HealingAction, w.ScarLesson,
		w.AntifragilityGained, w.CreatedAt, nullFloat(w.HealedAt),
	)
	if err != nil {
		return fmt.Errorf("create wound: %w", err)
	}
	return nil
}

// RecentWounds returns wounds newest first.
func (s *Store) RecentWounds(ctx context.Context, limit int) ([]*WoundRecord, error) {
	return s.queryWounds(ctx, `
		SELECT `+woundColumns+` FROM wound_records
		ORDER BY created_at DESC LIMIT ?`, limit)
}

// HealedWounds returns healed wounds newest first.
func (s *Store) HealedWounds(ctx context.Context, limit int) ([]*WoundRecord, error) {
	return s.queryWounds(ctx, `
		SELECT `+woundColumns+` FROM wound_records
		WHERE healed_at IS NOT NULL ORDER BY healed_at DESC LIMIT ?`, limit)
}

// CountHealedWounds returns how many wounds have a healed_at timestamp.
func (s *Store) CountHealedWounds(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wound_records WHERE healed_at IS NOT NULL`).Scan(&n)
	return n, err
}

// CountWounds returns total and severe wound counts.
func (s *Store) CountWounds(ctx context.Context) (total, severe int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN severity = 'severe' THEN 1 ELSE 0 END), 0)
		FROM wound_records`).Scan(&total, &severe)
	return total, severe, err
}

func (s *Store) queryWounds(ctx context.Context, query string, args ...any) ([]*WoundRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query wounds: %w", err)
	}
	defer rows.Close()

	var wounds []*WoundRecord
	for rows.Next() {
		var w WoundRecord
		var affected string
		var healedAt sql.NullFloat64
		err := rows.Scan(&w.ID, &w.WoundType, &w.Severity, &w.SourceHormone,
			&affected, &w.HealingAction, &w.ScarLesson,
			&w.AntifragilityGained, &w.CreatedAt, &healedAt)
		if err != nil {
			return nil, err
		}
		w.AffectedIDs = decodeStrings(affected)
		w.HealedAt = scanNullFloat(healedAt)
		wounds = append(wounds, &w)
	}
	return wounds, rows.Err()
}
