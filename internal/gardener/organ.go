// Package gardener lets the organism learn its tender: interaction
// rhythms, preferred themes, and the pheromone trails that bias how
// future wishes are read.
package gardener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// Preference vector EMA smoothing factor.
const prefAlpha = 0.3

// Organ manages gardener identity, preferences, and rhythm detection.
type Organ struct {
	store *store.Store
	log   *logging.Logger
	now   func() time.Time
}

func NewOrgan(st *store.Store) *Organ {
	return &Organ{
		store: st,
		log:   logging.Get(logging.CategoryIntent),
		now:   time.Now,
	}
}

// GetOrCreate retrieves an existing gardener or births a new one.
func (o *Organ) GetOrCreate(ctx context.Context, gardenerID string) (*store.Gardener, error) {
	if gardenerID != "" {
		g, err := o.store.GetGardener(ctx, gardenerID)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	g := &store.Gardener{}
	if err := o.store.CreateGardener(ctx, g); err != nil {
		return nil, err
	}
	o.log.Info("new gardener born: %s", g.ID)
	return g, nil
}

// RecordInteraction notes one touch of the garden: it bumps the
// interaction count, strengthens pheromone trails for the wish's
// themes, and marks the hour in the rhythm profile.
func (o *Organ) RecordInteraction(ctx context.Context, g *store.Gardener, themes []string) error {
	g.InteractionCount++

	trails := decodeCounts(g.PheromoneTrails)
	for _, theme := range themes {
		trails[theme]++
	}
	g.PheromoneTrails = encodeCounts(trails)

	rhythm := decodeCounts(g.RhythmProfile)
	hour := fmt.Sprintf("%d", o.now().Hour())
	rhythm[hour]++
	g.RhythmProfile = encodeCounts(rhythm)

	return o.store.UpdateGardener(ctx, g)
}

// PheromoneBias returns normalized theme weights from pheromone
// trails. Stronger trails bias future wish parsing toward those themes.
func PheromoneBias(g *store.Gardener) map[string]float64 {
	return normalize(decodeCounts(g.PheromoneTrails))
}

// RhythmProfile returns the normalized hour-of-day activity distribution.
func RhythmProfile(g *store.Gardener) map[string]float64 {
	return normalize(decodeCounts(g.RhythmProfile))
}

// UpdatePreferenceVector folds a new wish embedding into the
// gardener's rolling preference vector.
func (o *Organ) UpdatePreferenceVector(ctx context.Context, g *store.Gardener, embedding []float64) error {
	if len(g.PreferenceVector) == 0 {
		g.PreferenceVector = embedding
	} else {
		n := min(len(g.PreferenceVector), len(embedding))
		updated := make([]float64, n)
		for i := 0; i < n; i++ {
			updated[i] = prefAlpha*embedding[i] + (1-prefAlpha)*g.PreferenceVector[i]
		}
		g.PreferenceVector = updated
	}
	return o.store.UpdateGardener(ctx, g)
}

func decodeCounts(raw string) map[string]int {
	counts := map[string]int{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &counts)
	}
	return counts
}

func encodeCounts(counts map[string]int) string {
	data, _ := json.Marshal(counts)
	return string(data)
}

func normalize(counts map[string]int) map[string]float64 {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(counts))
	for k, n := range counts {
		out[k] = float64(n) / float64(total)
	}
	return out
}
