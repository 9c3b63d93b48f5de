package store

import (
	"context"
	"fmt"
)

// PulseReport is one heartbeat summary of the whole garden.
type PulseReport struct {
	ID                string
	Cycle             int
	Summary           string
	Thriving          []string
	Struggling        []string
	Healing           []string
	Dreaming          []string
	Emergent          []string
	PheromoneSnapshot string // JSON dict
	CreatedAt         float64
}

const pulseColumns = `id, cycle, summary, thriving, struggling, healing,
	dreaming, emergent, pheromone_snapshot, created_at`

// CreatePulseReport inserts a pulse report.
func (s *Store) CreatePulseReport(ctx context.Context, p *PulseReport) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.PheromoneSnapshot == "" {
		p.PheromoneSnapshot = "{}"
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pulse_reports (`+pulseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Cycle, p.Summary, encodeJSON(p.Thriving),
		encodeJSON(p.Struggling), encodeJSON(p.Healing),
		encodeJSON(p.Dreaming), encodeJSON(p.Emergent),
		p.PheromoneSnapshot, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create pulse report: %w", err)
	}
	return nil
}

// RecentPulseReports returns reports newest first.
func (s *Store) RecentPulseReports(ctx context.Context, limit int) ([]*PulseReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pulseColumns+` FROM pulse_reports
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pulse reports: %w", err)
	}
	defer rows.Close()

	var reports []*PulseReport
	for rows.Next() {
		var p PulseReport
		var thriving, struggling, healing, dreaming, emergent string
		err := rows.Scan(&p.ID, &p.Cycle, &p.Summary, &thriving, &struggling,
			&healing, &dreaming, &emergent, &p.PheromoneSnapshot, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		p.Thriving = decodeStrings(thriving)
		p.Struggling = decodeStrings(struggling)
		p.Healing = decodeStrings(healing)
		p.Dreaming = decodeStrings(dreaming)
		p.Emergent = decodeStrings(emergent)
		reports = append(reports, &p)
	}
	return reports, rows.Err()
}

// LatestPulseReport returns the newest report or ErrNotFound.
func (s *Store) LatestPulseReport(ctx context.Context) (*PulseReport, error) {
	reports, err := s.RecentPulseReports(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ErrNotFound
	}
	return reports[0], nil
}
