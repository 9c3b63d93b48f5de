// Package store is the Memory Soil: SQLite persistence for every cell
// structure of the organism. Nothing is truly deleted, only composted.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"w0rd/internal/logging"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	path string
	log  *logging.Logger
}

// Open opens (or creates) the garden database and runs the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer. Serializing through a single connection
	// avoids SQLITE_BUSY under the tick loop's concurrent organs.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, log: logging.Get(logging.CategorySoil)}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Info("soil opened at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma failed (%s): %w", p, err)
		}
	}
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return s.ensureGardenState()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Stats returns row counts per table, for the ecosystem view.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	tables := []string{
		"gardeners", "seeds", "sprouts", "symbiotic_links", "dreams",
		"pulse_reports", "wound_records", "agent_nodes", "ethical_memories",
		"emotional_states", "inner_thoughts", "episodic_memories",
		"predictions", "self_model_snapshots", "hormone_logs",
	}
	stats := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

// NewID returns a 16-hex-char row identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// Now returns the current time as unix seconds with fraction.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func encodeJSON(v any) string {
	if v == nil {
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	var out []string
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func decodeFloats(raw string) []float64 {
	var out []float64
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func scanNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS gardeners (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT 'Anonymous Gardener',
	preference_vector TEXT NOT NULL DEFAULT '[]',
	rhythm_profile TEXT NOT NULL DEFAULT '{}',
	pheromone_trails TEXT NOT NULL DEFAULT '{}',
	interaction_count INTEGER NOT NULL DEFAULT 0,
	created_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS seeds (
	id TEXT PRIMARY KEY,
	gardener_id TEXT,
	raw_text TEXT NOT NULL,
	essence TEXT NOT NULL DEFAULT '',
	embedding TEXT NOT NULL DEFAULT '[]',
	themes TEXT NOT NULL DEFAULT '[]',
	tone_valence REAL NOT NULL DEFAULT 0,
	tone_arousal REAL NOT NULL DEFAULT 0.5,
	resonance REAL NOT NULL DEFAULT 0,
	energy REAL NOT NULL DEFAULT 10,
	ethical_score REAL NOT NULL DEFAULT 1,
	vitality REAL NOT NULL DEFAULT 1,
	season_born TEXT NOT NULL DEFAULT 'spring',
	version INTEGER NOT NULL DEFAULT 1,
	lineage TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'planted',
	is_composted INTEGER NOT NULL DEFAULT 0,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_seeds_status ON seeds(status);
CREATE INDEX IF NOT EXISTS ix_seeds_is_composted ON seeds(is_composted);
CREATE INDEX IF NOT EXISTS ix_seeds_status_composted ON seeds(status, is_composted);
CREATE INDEX IF NOT EXISTS ix_seeds_gardener_id ON seeds(gardener_id);

CREATE TABLE IF NOT EXISTS sprouts (
	id TEXT PRIMARY KEY,
	seed_id TEXT NOT NULL,
	parent_id TEXT,
	depth INTEGER NOT NULL DEFAULT 0,
	label TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	energy REAL NOT NULL DEFAULT 1,
	ethical_score REAL NOT NULL DEFAULT 1,
	pressure REAL NOT NULL DEFAULT 0.5,
	resonance REAL NOT NULL DEFAULT 0,
	warmth REAL NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1,
	lineage TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'budding',
	is_composted INTEGER NOT NULL DEFAULT 0,
	created_at REAL NOT NULL,
	apoptosis_at REAL
);
CREATE INDEX IF NOT EXISTS ix_sprouts_seed_id ON sprouts(seed_id);
CREATE INDEX IF NOT EXISTS ix_sprouts_is_composted ON sprouts(is_composted);

CREATE TABLE IF NOT EXISTS symbiotic_links (
	id TEXT PRIMARY KEY,
	sprout_a_id TEXT NOT NULL,
	sprout_b_id TEXT NOT NULL,
	relationship_type TEXT NOT NULL DEFAULT 'mutualism',
	synergy_score REAL NOT NULL DEFAULT 0,
	nutrient_flow REAL NOT NULL DEFAULT 0,
	pollen_transferred INTEGER NOT NULL DEFAULT 0,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_symlinks_sprout_a ON symbiotic_links(sprout_a_id);
CREATE INDEX IF NOT EXISTS ix_symlinks_sprout_b ON symbiotic_links(sprout_b_id);
CREATE INDEX IF NOT EXISTS ix_symlinks_pair ON symbiotic_links(sprout_a_id, sprout_b_id);

CREATE TABLE IF NOT EXISTS garden_state (
	id TEXT PRIMARY KEY,
	total_energy REAL NOT NULL DEFAULT 100,
	vitality REAL NOT NULL DEFAULT 1,
	season TEXT NOT NULL DEFAULT 'spring',
	tidal_phase REAL NOT NULL DEFAULT 0,
	cycle_count INTEGER NOT NULL DEFAULT 0,
	wisdom_score REAL NOT NULL DEFAULT 0,
	antifragility_score REAL NOT NULL DEFAULT 0,
	dream_count INTEGER NOT NULL DEFAULT 0,
	soil_richness REAL NOT NULL DEFAULT 0,
	last_pulse REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS ethical_memories (
	id TEXT PRIMARY KEY,
	pattern_hash TEXT NOT NULL,
	dimension TEXT NOT NULL,
	resolution TEXT NOT NULL DEFAULT '',
	strength REAL NOT NULL DEFAULT 1,
	false_positive_count INTEGER NOT NULL DEFAULT 0,
	created_at REAL NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_ethical_pattern ON ethical_memories(pattern_hash);

CREATE TABLE IF NOT EXISTS dreams (
	id TEXT PRIMARY KEY,
	source_seed_ids TEXT NOT NULL DEFAULT '[]',
	insight TEXT NOT NULL DEFAULT '',
	archetype_vector TEXT NOT NULL DEFAULT '[]',
	temperature REAL NOT NULL DEFAULT 0.7,
	perplexity REAL NOT NULL DEFAULT 0,
	planted INTEGER NOT NULL DEFAULT 0,
	created_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS pulse_reports (
	id TEXT PRIMARY KEY,
	cycle INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	thriving TEXT NOT NULL DEFAULT '[]',
	struggling TEXT NOT NULL DEFAULT '[]',
	healing TEXT NOT NULL DEFAULT '[]',
	dreaming TEXT NOT NULL DEFAULT '[]',
	emergent TEXT NOT NULL DEFAULT '[]',
	pheromone_snapshot TEXT NOT NULL DEFAULT '{}',
	created_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS wound_records (
	id TEXT PRIMARY KEY,
	wound_type TEXT NOT NULL,
	severity TEXT NOT NULL DEFAULT 'minor',
	source_hormone TEXT NOT NULL DEFAULT '',
	affected_ids TEXT NOT NULL DEFAULT '[]',
	healing_action TEXT NOT NULL DEFAULT '',
	scar_lesson TEXT NOT NULL DEFAULT '',
	antifragility_gained REAL NOT NULL DEFAULT 0,
	created_at REAL NOT NULL,
	healed_at REAL
);

CREATE TABLE IF NOT EXISTS agent_nodes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	agent_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'spawning',
	parent_id TEXT,
	seed_id TEXT,
	task_description TEXT NOT NULL DEFAULT '',
	capability TEXT NOT NULL DEFAULT '{}',
	context TEXT NOT NULL DEFAULT '{}',
	result TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at REAL NOT NULL,
	started_at REAL,
	completed_at REAL,
	retired_at REAL
);
CREATE INDEX IF NOT EXISTS ix_agents_status ON agent_nodes(status);
CREATE INDEX IF NOT EXISTS ix_agents_seed_id ON agent_nodes(seed_id);
CREATE INDEX IF NOT EXISTS ix_agents_type ON agent_nodes(agent_type);

CREATE TABLE IF NOT EXISTS emotional_states (
	id TEXT PRIMARY KEY,
	joy REAL NOT NULL DEFAULT 0.5,
	curiosity REAL NOT NULL DEFAULT 0.5,
	anxiety REAL NOT NULL DEFAULT 0.1,
	pride REAL NOT NULL DEFAULT 0.3,
	grief REAL NOT NULL DEFAULT 0,
	wonder REAL NOT NULL DEFAULT 0.4,
	dominant_emotion TEXT NOT NULL DEFAULT 'curiosity',
	intensity REAL NOT NULL DEFAULT 0.5,
	trigger_event TEXT NOT NULL DEFAULT '',
	created_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS inner_thoughts (
	id TEXT PRIMARY KEY,
	thought_type TEXT NOT NULL DEFAULT 'reflection',
	content TEXT NOT NULL,
	emotional_context TEXT NOT NULL DEFAULT '{}',
	trigger_event TEXT NOT NULL DEFAULT '',
	depth INTEGER NOT NULL DEFAULT 0,
	salience REAL NOT NULL DEFAULT 0.5,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_thoughts_type ON inner_thoughts(thought_type);
CREATE INDEX IF NOT EXISTS ix_thoughts_salience ON inner_thoughts(salience);

CREATE TABLE IF NOT EXISTS episodic_memories (
	id TEXT PRIMARY KEY,
	narrative TEXT NOT NULL,
	event_type TEXT NOT NULL,
	emotional_valence REAL NOT NULL DEFAULT 0,
	emotional_intensity REAL NOT NULL DEFAULT 0.5,
	themes TEXT NOT NULL DEFAULT '[]',
	related_seed_ids TEXT NOT NULL DEFAULT '[]',
	is_core_memory INTEGER NOT NULL DEFAULT 0,
	recall_count INTEGER NOT NULL DEFAULT 0,
	last_recalled REAL,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_memories_event_type ON episodic_memories(event_type);
CREATE INDEX IF NOT EXISTS ix_memories_core ON episodic_memories(is_core_memory);
CREATE INDEX IF NOT EXISTS ix_memories_valence ON episodic_memories(emotional_valence);

CREATE TABLE IF NOT EXISTS predictions (
	id TEXT PRIMARY KEY,
	prediction_type TEXT NOT NULL,
	subject_id TEXT NOT NULL DEFAULT '',
	predicted_outcome TEXT NOT NULL,
	actual_outcome TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0.5,
	surprise_score REAL NOT NULL DEFAULT 0,
	resolved INTEGER NOT NULL DEFAULT 0,
	resolved_at REAL,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_predictions_type ON predictions(prediction_type);
CREATE INDEX IF NOT EXISTS ix_predictions_resolved ON predictions(resolved);
CREATE INDEX IF NOT EXISTS ix_predictions_surprise ON predictions(surprise_score);

CREATE TABLE IF NOT EXISTS self_model_snapshots (
	id TEXT PRIMARY KEY,
	harvest_rate REAL NOT NULL DEFAULT 0,
	compost_rate REAL NOT NULL DEFAULT 0,
	dream_accuracy REAL NOT NULL DEFAULT 0,
	theme_affinities TEXT NOT NULL DEFAULT '{}',
	decision_accuracy TEXT NOT NULL DEFAULT '{}',
	personality_traits TEXT NOT NULL DEFAULT '{}',
	bias_warnings TEXT NOT NULL DEFAULT '[]',
	identity_narrative TEXT NOT NULL DEFAULT '',
	created_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS hormone_logs (
	id TEXT PRIMARY KEY,
	hormone_name TEXT NOT NULL,
	emitter_organ TEXT NOT NULL DEFAULT 'unknown',
	payload TEXT NOT NULL DEFAULT '{}',
	cascade_depth INTEGER NOT NULL DEFAULT 0,
	processed INTEGER NOT NULL DEFAULT 0,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_hormone_logs_name ON hormone_logs(hormone_name);
`
