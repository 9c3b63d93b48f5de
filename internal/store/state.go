package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GardenState is the singleton whole-garden row.
type GardenState struct {
	ID                 string
	TotalEnergy        float64
	Vitality           float64
	Season             string
	TidalPhase         float64
	CycleCount         int
	WisdomScore        float64
	AntifragilityScore float64
	DreamCount         int
	SoilRichness       float64
	LastPulse          float64
}

const gardenStateID = "garden"

func (s *Store) ensureGardenState() error {
	_, err := s.db.Exec(`
		INSERT INTO garden_state (id, total_energy, vitality, season, last_pulse)
		SELECT ?, 100.0, 1.0, 'spring', ?
		WHERE NOT EXISTS (SELECT 1 FROM garden_state WHERE id = ?)`,
		gardenStateID, Now(), gardenStateID)
	if err != nil {
		return fmt.Errorf("ensure garden state: %w", err)
	}
	return nil
}

// GardenState fetches the singleton garden row.
func (s *Store) GardenState(ctx context.Context) (*GardenState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, total_energy, vitality, season, tidal_phase, cycle_count,
			wisdom_score, antifragility_score, dream_count, soil_richness,
			last_pulse
		FROM garden_state WHERE id = ?`, gardenStateID)

	var gs GardenState
	err := row.Scan(&gs.ID, &gs.TotalEnergy, &gs.Vitality, &gs.Season,
		&gs.TidalPhase, &gs.CycleCount, &gs.WisdomScore,
		&gs.AntifragilityScore, &gs.DreamCount, &gs.SoilRichness, &gs.LastPulse)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("garden state: %w", err)
	}
	return &gs, nil
}

// UpdateGardenState writes the singleton garden row.
func (s *Store) UpdateGardenState(ctx context.Context, gs *GardenState) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE garden_state SET total_energy = ?, vitality = ?, season = ?,
			tidal_phase = ?, cycle_count = ?, wisdom_score = ?,
			antifragility_score = ?, dream_count = ?, soil_richness = ?,
			last_pulse = ?
		WHERE id = ?`,
		gs.TotalEnergy, gs.Vitality, gs.Season, gs.TidalPhase, gs.CycleCount,
		gs.WisdomScore, gs.AntifragilityScore, gs.DreamCount, gs.SoilRichness,
		gs.LastPulse, gardenStateID,
	)
	if err != nil {
		return fmt.Errorf("update garden state: %w", err)
	}
	return nil
}
