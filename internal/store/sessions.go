package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
)

// GroupRecord is one channel group of a stored session.
type GroupRecord struct {
	Name    string
	DepthUM *float64 // nil when the recording has no depth
	Units   map[int]*mat.Dense
}

// SessionRecord is a session as written to the store.
type SessionRecord struct {
	ID         string
	RecordedAt time.Time
	Subject    string
	Groups     []GroupRecord
}

// SessionSummary is a row of ListSessions.
type SessionSummary struct {
	ID            string    `json:"id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Subject       string    `json:"subject"`
	ChannelGroups int       `json:"channel_groups"`
	Units         int       `json:"units"`
	ImportedAt    time.Time `json:"imported_at"`
}

// PutSession writes s, replacing any session stored under the same id.
func (db *DB) PutSession(ctx context.Context, s SessionRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := db.putSession(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", s.ID, err)
	}
	return nil
}

func (db *DB) putSession(ctx context.Context, tx *sql.Tx, s SessionRecord) error {
	if s.ID == "" {
		return fmt.Errorf("session id must not be empty")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to replace session %s: %w", s.ID, err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, recorded_at_unix_nanos, subject, imported_at_unix_nanos)
		VALUES (?, ?, ?, ?)`,
		s.ID, s.RecordedAt.UnixNano(), s.Subject, db.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}

	for _, g := range s.Groups {
		if g.Name == "" {
			return fmt.Errorf("session %s: channel group name must not be empty", s.ID)
		}
		var depth sql.NullFloat64
		if g.DepthUM != nil {
			depth = sql.NullFloat64{Float64: *g.DepthUM, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channel_groups (session_id, channel_group, depth_um) VALUES (?, ?, ?)`,
			s.ID, g.Name, depth); err != nil {
			return fmt.Errorf("failed to insert group %q of session %s: %w", g.Name, s.ID, err)
		}

		units := make([]int, 0, len(g.Units))
		for u := range g.Units {
			units = append(units, u)
		}
		slices.Sort(units)
		for _, u := range units {
			if u < 0 {
				return fmt.Errorf("session %s group %q: unit label %d must not be negative", s.ID, g.Name, u)
			}
			t := g.Units[u]
			if t == nil || t.IsEmpty() {
				return fmt.Errorf("session %s group %q unit %d: empty template", s.ID, g.Name, u)
			}
			blob, err := t.MarshalBinary()
			if err != nil {
				return fmt.Errorf("failed to encode template %s/%s/%d: %w", s.ID, g.Name, u, err)
			}
			channels, samples := t.Dims()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO unit_templates (session_id, channel_group, unit, n_samples, n_channels, template)
				VALUES (?, ?, ?, ?, ?, ?)`,
				s.ID, g.Name, u, samples, channels, blob); err != nil {
				return fmt.Errorf("failed to insert template %s/%s/%d: %w", s.ID, g.Name, u, err)
			}
		}
	}
	return nil
}

// DeleteSession removes a session with its groups and templates.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// ListSessions returns every stored session ordered by recording time.
func (db *DB) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.session_id, s.recorded_at_unix_nanos, s.subject, s.imported_at_unix_nanos,
			(SELECT COUNT(*) FROM channel_groups g WHERE g.session_id = s.session_id),
			(SELECT COUNT(*) FROM unit_templates t WHERE t.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.recorded_at_unix_nanos, s.session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var recorded, imported int64
		if err := rows.Scan(&s.ID, &recorded, &s.Subject, &imported, &s.ChannelGroups, &s.Units); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.RecordedAt = time.Unix(0, recorded).UTC()
		s.ImportedAt = time.Unix(0, imported).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
