package store

import (
	"context"
	"fmt"

	"w0rd/internal/hormones"
)

// HormoneLog is one persisted bus signal.
type HormoneLog struct {
	ID           string
	HormoneName  string
	EmitterOrgan string
	Payload      string // JSON dict
	CascadeDepth int
	Processed    bool
	CreatedAt    float64
}

const hormoneLogColumns = `id, hormone_name, emitter_organ, payload,
	cascade_depth, processed, created_at`

// RecordHormone persists a delivered hormone. It satisfies
// hormones.Recorder.
func (s *Store) RecordHormone(ctx context.Context, h hormones.Hormone) error {
	emitter := h.Emitter
	if emitter == "" {
		emitter = "unknown"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hormone_logs (`+hormoneLogColumns+`)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		h.ID, h.Name, emitter, encodeJSON(h.Payload), h.CascadeDepth,
		float64(h.Timestamp.UnixNano())/1e9,
	)
	if err != nil {
		return fmt.Errorf("record hormone %s: %w", h.Name, err)
	}
	return nil
}

// RecentHormoneLogs returns persisted hormones newest first.
func (s *Store) RecentHormoneLogs(ctx context.Context, limit int) ([]*HormoneLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+hormoneLogColumns+` FROM hormone_logs
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query hormone logs: %w", err)
	}
	defer rows.Close()

	var logs []*HormoneLog
	for rows.Next() {
		var l HormoneLog
		err := rows.Scan(&l.ID, &l.HormoneName, &l.EmitterOrgan, &l.Payload,
			&l.CascadeDepth, &l.Processed, &l.CreatedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
