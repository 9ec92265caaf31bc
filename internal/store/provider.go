package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/unitmatch/internal/tracking"
	"gonum.org/v1/gonum/mat"
)

// Provider serves stored sessions to the tracker. Depths are in micrometres.
type Provider struct {
	db *DB
}

var _ tracking.SessionProvider = (*Provider)(nil)

// Provider returns a SessionProvider backed by db.
func (db *DB) Provider() *Provider {
	return &Provider{db: db}
}

func (p *Provider) sessionExists(ctx context.Context, id string) error {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up session %s: %w", id, err)
	}
	return nil
}

// groupDepth returns the depth column of a group; a missing group is an
// ErrChannelGroupMismatch.
func (p *Provider) groupDepth(ctx context.Context, id, group string) (sql.NullFloat64, error) {
	var depth sql.NullFloat64
	err := p.db.QueryRowContext(ctx, `
		SELECT depth_um FROM channel_groups WHERE session_id = ? AND channel_group = ?`,
		id, group).Scan(&depth)
	if errors.Is(err, sql.ErrNoRows) {
		if err := p.sessionExists(ctx, id); err != nil {
			return depth, err
		}
		return depth, fmt.Errorf("%w: session %s has no group %q", tracking.ErrChannelGroupMismatch, id, group)
	}
	if err != nil {
		return depth, fmt.Errorf("failed to read group %q of session %s: %w", group, id, err)
	}
	return depth, nil
}

// ChannelGroups implements tracking.SessionProvider.
func (p *Provider) ChannelGroups(ctx context.Context, id string) ([]string, error) {
	if err := p.sessionExists(ctx, id); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT channel_group FROM channel_groups WHERE session_id = ? ORDER BY channel_group`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups of session %s: %w", id, err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Timestamp implements tracking.SessionProvider.
func (p *Provider) Timestamp(ctx context.Context, id string) (time.Time, error) {
	var nanos int64
	err := p.db.QueryRowContext(ctx, `
		SELECT recorded_at_unix_nanos FROM sessions WHERE session_id = ?`, id).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read timestamp of session %s: %w", id, err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

// Depth implements tracking.SessionProvider.
func (p *Provider) Depth(ctx context.Context, id, group string) (float64, error) {
	depth, err := p.groupDepth(ctx, id, group)
	if err != nil {
		return 0, err
	}
	if !depth.Valid {
		return 0, fmt.Errorf("%w: session %s group %q", tracking.ErrDepthUnavailable, id, group)
	}
	return depth.Float64, nil
}

// Units implements tracking.SessionProvider.
func (p *Provider) Units(ctx context.Context, id, group string) ([]int, error) {
	if _, err := p.groupDepth(ctx, id, group); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT unit FROM unit_templates WHERE session_id = ? AND channel_group = ? ORDER BY unit`,
		id, group)
	if err != nil {
		return nil, fmt.Errorf("failed to list units of %s/%s: %w", id, group, err)
	}
	defer rows.Close()

	units := []int{}
	for rows.Next() {
		var u int
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// Template implements tracking.SessionProvider.
func (p *Provider) Template(ctx context.Context, id, group string, unit int) (*mat.Dense, error) {
	var blob []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT template FROM unit_templates WHERE session_id = ? AND channel_group = ? AND unit = ?`,
		id, group, unit).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s group %q has no unit %d", id, group, unit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s/%s/%d: %w", id, group, unit, err)
	}

	var t mat.Dense
	if err := t.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("failed to decode template %s/%s/%d: %w", id, group, unit, err)
	}
	return &t, nil
}
