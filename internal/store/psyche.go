package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EmotionalState is one persisted snapshot of the six emotion channels.
type EmotionalState struct {
	ID              string
	Joy             float64
	Curiosity       float64
	Anxiety         float64
	Pride           float64
	Grief           float64
	Wonder          float64
	DominantEmotion string
	Intensity       float64
	TriggerEvent    string
	CreatedAt       float64
}

const emotionColumns = `id, joy, curiosity, anxiety, pride, grief, wonder,
	dominant_emotion, intensity, trigger_event, created_at`

// CreateEmotionalState inserts an emotional snapshot.
func (s *Store) CreateEmotionalState(ctx context.Context, e *EmotionalState) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emotional_states (`+emotionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Joy, e.Curiosity, e.Anxiety, e.Pride, e.Grief, e.Wonder,
		e.DominantEmotion, e.Intensity, e.TriggerEvent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create emotional state: %w", err)
	}
	return nil
}

// RecentEmotionalStates returns snapshots newest first.
func (s *Store) RecentEmotionalStates(ctx context.Context, limit int) ([]*EmotionalState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+emotionColumns+` FROM emotional_states
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query emotional states: %w", err)
	}
	defer rows.Close()

	var states []*EmotionalState
	for rows.Next() {
		var e EmotionalState
		err := rows.Scan(&e.ID, &e.Joy, &e.Curiosity, &e.Anxiety, &e.Pride,
			&e.Grief, &e.Wonder, &e.DominantEmotion, &e.Intensity,
			&e.TriggerEvent, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		states = append(states, &e)
	}
	return states, rows.Err()
}

// LatestEmotionalState returns the newest snapshot or ErrNotFound.
func (s *Store) LatestEmotionalState(ctx context.Context) (*EmotionalState, error) {
	states, err := s.RecentEmotionalStates(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, ErrNotFound
	}
	return states[0], nil
}

// InnerThought is one line of the organism's monologue.
type InnerThought struct {
	ID               string
	ThoughtType      string
	Content          string
	EmotionalContext string // JSON snapshot
	Trigger          string
	Depth            int
	Salience         float64
	CreatedAt        float64
}

const thoughtColumns = `id, thought_type, content, emotional_context,
	trigger_event, depth, salience, created_at`

// CreateInnerThought inserts a thought.
func (s *Store) CreateInnerThought(ctx context.Context, t *InnerThought) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.EmotionalContext == "" {
		t.EmotionalContext = "{}"
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inner_thoughts (`+thoughtColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ThoughtType, t.Content, t.EmotionalContext, t.Trigger,
		t.Depth, t.Salience, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create inner thought: %w", err)
	}
	return nil
}

// RecentInnerThoughts returns thoughts newest first.
func (s *Store) RecentInnerThoughts(ctx context.Context, limit int) ([]*InnerThought, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+thoughtColumns+` FROM inner_thoughts
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query inner thoughts: %w", err)
	}
	defer rows.Close()

	var thoughts []*InnerThought
	for rows.Next() {
		var t InnerThought
		err := rows.Scan(&t.ID, &t.ThoughtType, &t.Content,
			&t.EmotionalContext, &t.Trigger, &t.Depth, &t.Salience,
			&t.CreatedAt)
		if err != nil {
			return nil, err
		}
		thoughts = append(thoughts, &t)
	}
	return thoughts, rows.Err()
}

// EpisodicMemory is one autobiographical memory.
type EpisodicMemory struct {
	ID                 string
	Narrative          string
	EventType          string
	EmotionalValence   float64
	EmotionalIntensity float64
	Themes             []string
	RelatedSeedIDs     []string
	IsCoreMemory       bool
	RecallCount        int
	LastRecalled       *float64
	CreatedAt          float64
}

const memoryColumns = `id, narrative, event_type, emotional_valence,
	emotional_intensity, themes, related_seed_ids, is_core_memory,
	recall_count, last_recalled, created_at`

// CreateEpisodicMemory inserts a memory.
func (s *Store) CreateEpisodicMemory(ctx context.Context, m *EpisodicMemory) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodic_memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Narrative, m.EventType, m.EmotionalValence,
		m.EmotionalIntensity, encodeJSON(m.Themes),
		encodeJSON(m.RelatedSeedIDs), m.IsCoreMemory, m.RecallCount,
		nullFloat(m.LastRecalled), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create episodic memory: %w", err)
	}
	return nil
}

// UpdateEpisodicMemory writes the mutable memory fields.
func (s *Store) UpdateEpisodicMemory(ctx context.Context, m *EpisodicMemory) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodic_memories SET is_core_memory = ?, recall_count = ?,
			last_recalled = ?
		WHERE id = ?`,
		m.IsCoreMemory, m.RecallCount, nullFloat(m.LastRecalled), m.ID,
	)
	if err != nil {
		return fmt.Errorf("update episodic memory %s: %w", m.ID, err)
	}
	return nil
}

// DeleteEpisodicMemory removes a pruned memory.
func (s *Store) DeleteEpisodicMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM episodic_memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete episodic memory %s: %w", id, err)
	}
	return nil
}

// RecentEpisodicMemories returns memories newest first.
func (s *Store) RecentEpisodicMemories(ctx context.Context, limit int) ([]*EpisodicMemory, error) {
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM episodic_memories
		ORDER BY created_at DESC LIMIT ?`, limit)
}

// IntenseEpisodicMemories returns memories most intense first.
func (s *Store) IntenseEpisodicMemories(ctx context.Context, limit int) ([]*EpisodicMemory, error) {
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM episodic_memories
		ORDER BY emotional_intensity DESC LIMIT ?`, limit)
}

// CoreMemories returns all core memories, newest first.
func (s *Store) CoreMemories(ctx context.Context) ([]*EpisodicMemory, error) {
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM episodic_memories
		WHERE is_core_memory = 1 ORDER BY created_at DESC`)
}

// PrunableMemories returns non-core, rarely recalled, low-intensity
// memories oldest first, for consolidation.
func (s *Store) PrunableMemories(ctx context.Context, limit int) ([]*EpisodicMemory, error) {
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM episodic_memories
		WHERE is_core_memory = 0 AND recall_count < 2
			AND emotional_intensity < 0.4
		ORDER BY created_at LIMIT ?`, limit)
}

// CountEpisodicMemories returns total and core memory counts.
func (s *Store) CountEpisodicMemories(ctx context.Context) (total, core int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_core_memory), 0) FROM episodic_memories`).
		Scan(&total, &core)
	return total, core, err
}

func (s *Store) queryMemories(ctx context.Context, query string, args ...any) ([]*EpisodicMemory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodic memories: %w", err)
	}
	defer rows.Close()

	var memories []*EpisodicMemory
	for rows.Next() {
		var m EpisodicMemory
		var themes, seedIDs string
		var lastRecalled sql.NullFloat64
		err := rows.Scan(&m.ID, &m.Narrative, &m.EventType,
			&m.EmotionalValence, &m.EmotionalIntensity, &themes, &seedIDs,
			&m.IsCoreMemory, &m.RecallCount, &lastRecalled, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		m.Themes = decodeStrings(themes)
		m.RelatedSeedIDs = decodeStrings(seedIDs)
		m.LastRecalled = scanNullFloat(lastRecalled)
		memories = append(memories, &m)
	}
	return memories, rows.Err()
}

// Prediction is one expectation about the garden's near future.
type Prediction struct {
	ID               string
	PredictionType   string
	SubjectID        string
	PredictedOutcome string
	ActualOutcome    string
	Confidence       float64
	SurpriseScore    float64
	Resolved         bool
	ResolvedAt       *float64
	CreatedAt        float64
}

const predictionColumns = `id, prediction_type, subject_id, predicted_outcome,
	actual_outcome, confidence, surprise_score, resolved, resolved_at,
	created_at`

// CreatePrediction inserts a prediction.
func (s *Store) CreatePrediction(ctx context.Context, p *Prediction) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions (`+predictionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PredictionType, p.SubjectID, p.PredictedOutcome,
		p.ActualOutcome, p.Confidence, p.SurpriseScore, p.Resolved,
		nullFloat(p.ResolvedAt), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create prediction: %w", err)
	}
	return nil
}

// UpdatePrediction writes resolution fields.
func (s *Store) UpdatePrediction(ctx context.Context, p *Prediction) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE predictions SET actual_outcome = ?, surprise_score = ?,
			resolved = ?, resolved_at = ?
		WHERE id = ?`,
		p.ActualOutcome, p.SurpriseScore, p.Resolved,
		nullFloat(p.ResolvedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update prediction %s: %w", p.ID, err)
	}
	return nil
}

// UnresolvedPredictions returns open predictions, newest first.
func (s *Store) UnresolvedPredictions(ctx context.Context) ([]*Prediction, error) {
	return s.queryPredictions(ctx, `
		SELECT `+predictionColumns+` FROM predictions
		WHERE resolved = 0 ORDER BY created_at DESC`)
}

// ResolvedPredictions returns resolved predictions, latest resolution first.
func (s *Store) ResolvedPredictions(ctx context.Context, limit int) ([]*Prediction, error) {
	return s.queryPredictions(ctx, `
		SELECT `+predictionColumns+` FROM predictions
		WHERE resolved = 1 ORDER BY resolved_at DESC LIMIT ?`, limit)
}

// UnresolvedPredictionFor reports whether an open prediction of the given
// type exists for a subject.
func (s *Store) UnresolvedPredictionFor(ctx context.Context, predType, subjectID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM predictions
		WHERE resolved = 0 AND prediction_type = ? AND subject_id = ?`,
		predType, subjectID).Scan(&n)
	return n > 0, err
}

// CountUnresolvedPredictions counts open predictions.
func (s *Store) CountUnresolvedPredictions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions WHERE resolved = 0`).Scan(&n)
	return n, err
}

func (s *Store) queryPredictions(ctx context.Context, query string, args ...any) ([]*Prediction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var predictions []*Prediction
	for rows.Next() {
		var p Prediction
		var resolvedAt sql.NullFloat64
		err := rows.Scan(&p.ID, &p.PredictionType, &p.SubjectID,
			&p.PredictedOutcome, &p.ActualOutcome, &p.Confidence,
			&p.SurpriseScore, &p.Resolved, &resolvedAt, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		p.ResolvedAt = scanNullFloat(resolvedAt)
		predictions = append(predictions, &p)
	}
	return predictions, rows.Err()
}

// SelfModelSnapshot is one introspection result.
type SelfModelSnapshot struct {
	ID                string
	HarvestRate       float64
	CompostRate       float64
	DreamAccuracy     float64
	ThemeAffinities   string // JSON {theme: success_rate}
	DecisionAccuracy  string // JSON {decision_type: accuracy}
	PersonalityTraits string // JSON {trait: strength}
	BiasWarnings      []string
	IdentityNarrative string
	CreatedAt         float64
}

const selfModelColumns = `id, harvest_rate, compost_rate, dream_accuracy,
	theme_affinities, decision_accuracy, personality_traits, bias_warnings,
	identity_narrative, created_at`

// CreateSelfModelSnapshot inserts a snapshot.
func (s *Store) CreateSelfModelSnapshot(ctx context.Context, sm *SelfModelSnapshot) error {
	if sm.ID == "" {
		sm.ID = NewID()
	}
	if sm.ThemeAffinities == "" {
		sm.ThemeAffinities = "{}"
	}
	if sm.DecisionAccuracy == "" {
		sm.DecisionAccuracy = "{}"
	}
	if sm.PersonalityTraits == "" {
		sm.PersonalityTraits = "{}"
	}
	if sm.CreatedAt == 0 {
		sm.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO self_model_snapshots (`+selfModelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sm.ID, sm.HarvestRate, sm.CompostRate, sm.DreamAccuracy,
		sm.ThemeAffinities, sm.DecisionAccuracy, sm.PersonalityTraits,
		encodeJSON(sm.BiasWarnings), sm.IdentityNarrative, sm.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create self model snapshot: %w", err)
	}
	return nil
}

// LatestSelfModelSnapshot returns the newest snapshot or ErrNotFound.
func (s *Store) LatestSelfModelSnapshot(ctx context.Context) (*SelfModelSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selfModelColumns+` FROM self_model_snapshots
		ORDER BY created_at DESC LIMIT 1`)

	var sm SelfModelSnapshot
	var warnings string
	err := row.Scan(&sm.ID, &sm.HarvestRate, &sm.CompostRate,
		&sm.DreamAccuracy, &sm.ThemeAffinities, &sm.DecisionAccuracy,
		&sm.PersonalityTraits, &warnings, &sm.IdentityNarrative, &sm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest self model: %w", err)
	}
	sm.BiasWarnings = decodeStrings(warnings)
	return &sm, nil
}
