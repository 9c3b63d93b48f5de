package psyche

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// MaxActivePredictions caps how many unresolved predictions accumulate.
const MaxActivePredictions = 20

// ResolvedPrediction pairs a settled prediction with its surprise.
type ResolvedPrediction struct {
	PredictionID string
	Type         string
	Predicted    string
	Actual       string
	Surprise     float64
	Correct      bool
}

// PredictionEngine is the expectation machine: it predicts what the
// garden will do next, then measures the gap between expectation and
// reality. That gap is surprise, the driver of learning.
type PredictionEngine struct {
	store *store.Store
	bus   *hormones.Bus
	log   *logging.Logger
	now   func() time.Time

	mu                 sync.Mutex
	cumulativeSurprise float64
	predictionCount    int
	correctCount       int
}

func NewPredictionEngine(st *store.Store, bus *hormones.Bus) *PredictionEngine {
	return &PredictionEngine{
		store: st,
		bus:   bus,
		log:   logging.Get(logging.CategoryPsyche),
		now:   time.Now,
	}
}

// Accuracy is the lifetime fraction of correct predictions.
func (p *PredictionEngine) Accuracy() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accuracyLocked()
}

func (p *PredictionEngine) accuracyLocked() float64 {
	if p.predictionCount == 0 {
		return 0.5
	}
	return float64(p.correctCount) / float64(p.predictionCount)
}

// AverageSurprise is the lifetime mean surprise score.
func (p *PredictionEngine) AverageSurprise() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.predictionCount == 0 {
		return 0.5
	}
	return p.cumulativeSurprise / float64(p.predictionCount)
}

// Stats reports the engine's lifetime numbers.
func (p *PredictionEngine) Stats() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	avg := 0.5
	if p.predictionCount > 0 {
		avg = p.cumulativeSurprise / float64(p.predictionCount)
	}
	return map[string]any{
		"total_predictions": p.predictionCount,
		"accuracy":          round4(p.accuracyLocked()),
		"average_surprise":  round4(avg),
		"correct_count":     p.correctCount,
	}
}

// MakePredictions surveys the garden and predicts next-tick outcomes.
func (p *PredictionEngine) MakePredictions(ctx context.Context) ([]*store.Prediction, error) {
	active, err := p.store.CountUnresolvedPredictions(ctx)
	if err != nil {
		return nil, err
	}
	if active >= MaxActivePredictions {
		return nil, nil
	}

	var predictions []*store.Prediction

	seedPreds, err := p.predictSeedOutcomes(ctx)
	if err != nil {
		return nil, err
	}
	predictions = append(predictions, seedPreds...)

	energyPred, err := p.predictEnergyTrend(ctx)
	if err != nil {
		return nil, err
	}
	if energyPred != nil {
		predictions = append(predictions, energyPred)
	}

	for _, pred := range predictions {
		if err := p.store.CreatePrediction(ctx, pred); err != nil {
			return nil, err
		}
	}
	if len(predictions) > 0 {
		p.log.Info("made %d predictions", len(predictions))
	}
	return predictions, nil
}

// ResolvePredictions checks unresolved predictions against reality and
// emits surprise hormones when expectations were badly wrong or
// precisely right.
func (p *PredictionEngine) ResolvePredictions(ctx context.Context) ([]ResolvedPrediction, error) {
	unresolved, err := p.store.UnresolvedPredictions(ctx)
	if err != nil {
		return nil, err
	}

	var resolved []ResolvedPrediction
	var totalSurprise float64

	for _, pred := range unresolved {
		actual, surprise, correct, ok, err := p.checkOutcome(ctx, pred)
		if err != nil {
			return resolved, err
		}
		if !ok {
			continue
		}

		pred.ActualOutcome = actual
		pred.SurpriseScore = surprise
		pred.Resolved = true
		now := store.Now()
		pred.ResolvedAt = &now
		if err := p.store.UpdatePrediction(ctx, pred); err != nil {
			return resolved, err
		}

		p.mu.Lock()
		p.predictionCount++
		p.cumulativeSurprise += surprise
		if correct {
			p.correctCount++
		}
		p.mu.Unlock()

		totalSurprise += surprise
		resolved = append(resolved, ResolvedPrediction{
			PredictionID: pred.ID,
			Type:         pred.PredictionType,
			Predicted:    pred.PredictedOutcome,
			Actual:       actual,
			Surprise:     surprise,
			Correct:      correct,
		})
	}

	if len(resolved) > 0 && totalSurprise > 0 {
		avg := totalSurprise / float64(len(resolved))
		if avg > 0.5 {
			p.bus.Signal(ctx, "high_surprise", map[string]any{
				"average_surprise": round4(avg),
				"resolved_count":   len(resolved),
				"accuracy":         round4(p.Accuracy()),
			}, "prediction")
			p.log.Info("high surprise! avg=%.2f across %d predictions", avg, len(resolved))
		} else if avg < 0.2 {
			p.bus.Signal(ctx, "low_surprise", map[string]any{
				"average_surprise": round4(avg),
				"accuracy":         round4(p.Accuracy()),
			}, "prediction")
		}
	}

	if len(resolved) > 0 {
		p.log.Info("resolved %d predictions (accuracy=%.1f%%, avg_surprise=%.2f)",
			len(resolved), p.Accuracy()*100, p.AverageSurprise())
	}
	return resolved, nil
}

func (p *PredictionEngine) predictSeedOutcomes(ctx context.Context) ([]*store.Prediction, error) {
	seeds, err := p.store.LivingSeeds(ctx)
	if err != nil {
		return nil, err
	}

	nowSec := float64(p.now().UnixNano()) / 1e9
	var predictions []*store.Prediction
	for _, seed := range seeds {
		if len(predictions) == 3 {
			break
		}
		exists, err := p.store.UnresolvedPredictionFor(ctx, "seed_outcome", seed.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		age := seed.Age(nowSec)
		var predicted string
		var confidence float64
		switch {
		case seed.Energy > 15 && age > 120:
			predicted = "harvest"
			confidence = math.Min(0.5+seed.Energy/50, 0.9)
		case seed.Energy < 2 && age > 200:
			predicted = "compost"
			confidence = math.Min(0.4+(300-age)/500, 0.8)
		case seed.Status == store.SeedPlanted && age < 60:
			predicted = "growing"
			confidence = 0.7
		default:
			predicted = "continue"
			confidence = 0.5
		}

		predictions = append(predictions, &store.Prediction{
			PredictionType:   "seed_outcome",
			SubjectID:        seed.ID,
			PredictedOutcome: predicted,
			Confidence:       round4(confidence),
		})
	}
	return predictions, nil
}

func (p *PredictionEngine) predictEnergyTrend(ctx context.Context) (*store.Prediction, error) {
	state, err := p.store.GardenState(ctx)
	if err != nil {
		return nil, err
	}
	exists, err := p.store.UnresolvedPredictionFor(ctx, "energy_trend", "garden")
	if err != nil || exists {
		return nil, err
	}

	living, err := p.store.LivingSeeds(ctx)
	if err != nil {
		return nil, err
	}

	var predicted string
	var confidence float64
	switch {
	case (state.Season == "spring" || state.Season == "summer") && len(living) > 2:
		predicted = "increase"
		confidence = 0.6
	case state.Season == "winter" || len(living) == 0:
		predicted = "decrease"
		confidence = 0.7
	default:
		predicted = "stable"
		confidence = 0.4
	}

	return &store.Prediction{
		PredictionType:   "energy_trend",
		SubjectID:        "garden",
		PredictedOutcome: fmt.Sprintf("%s|%.1f", predicted, state.TotalEnergy),
		Confidence:       round4(confidence),
	}, nil
}

func (p *PredictionEngine) checkOutcome(ctx context.Context, pred *store.Prediction) (actual string, surprise float64, correct, ok bool, err error) {
	switch pred.PredictionType {
	case "seed_outcome":
		return p.checkSeedOutcome(ctx, pred)
	case "energy_trend":
		return p.checkEnergyTrend(ctx, pred)
	}
	return "", 0, false, false, nil
}

func (p *PredictionEngine) checkSeedOutcome(ctx context.Context, pred *store.Prediction) (string, float64, bool, bool, error) {
	nowSec := float64(p.now().UnixNano()) / 1e9

	seed, err := p.store.GetSeed(ctx, pred.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "disappeared", 0.8, false, true, nil
		}
		return "", 0, false, false, err
	}

	// Wait at least one tick before judging.
	if nowSec-pred.CreatedAt < 60 {
		return "", 0, false, false, nil
	}

	if seed.Status == pred.PredictedOutcome {
		surprise := math.Max(0, 0.2-pred.Confidence*0.2)
		return seed.Status, round4(surprise), true, true, nil
	}
	surprise := math.Min(pred.Confidence*0.8+0.2, 1.0)
	return seed.Status, round4(surprise), false, true, nil
}

func (p *PredictionEngine) checkEnergyTrend(ctx context.Context, pred *store.Prediction) (string, float64, bool, bool, error) {
	nowSec := float64(p.now().UnixNano()) / 1e9
	if nowSec-pred.CreatedAt < 60 {
		return "", 0, false, false, nil
	}

	state, err := p.store.GardenState(ctx)
	if err != nil {
		return "", 0, false, false, err
	}

	direction, oldEnergy := splitTrend(pred.PredictedOutcome)
	delta := state.TotalEnergy - oldEnergy

	var actual string
	switch {
	case delta > 2:
		actual = "increase"
	case delta < -2:
		actual = "decrease"
	default:
		actual = "stable"
	}

	correct := actual == direction
	var surprise float64
	if correct {
		surprise = math.Max(0, 0.15-pred.Confidence*0.15)
	} else {
		surprise = math.Min(pred.Confidence*0.7+0.3, 1.0)
	}
	return fmt.Sprintf("%s|%.1f", actual, state.TotalEnergy), round4(surprise), correct, true, nil
}

func splitTrend(outcome string) (direction string, energy float64) {
	direction, rest, found := strings.Cut(outcome, "|")
	energy = 100.0
	if found {
		if v, err := strconv.ParseFloat(rest, 64); err == nil {
			energy = v
		}
	}
	return direction, energy
}
