package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/tracking"
	"github.com/google/uuid"
)

// Run is a stored tracking run.
type Run struct {
	ID          uuid.UUID       `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Duration    time.Duration   `json:"duration_nanos"`
	Sessions    []string        `json:"sessions"`
	Config      json.RawMessage `json:"config"`
	Diagnostics []string        `json:"diagnostics"`
}

// RunInput is everything SaveRun persists.
type RunInput struct {
	StartedAt  time.Time
	Config     any // marshalled to JSON as the run's config snapshot
	Result     *tracking.Result
	Identities map[string][]tracking.IdentifiedUnit

	// Candidates holds the graphs as built, before pruning. Edges missing
	// from Result are stored as pruned. Optional.
	Candidates map[string]*tracking.Graph
}

// SaveRun stores a run's graphs and identities in one transaction.
func (db *DB) SaveRun(ctx context.Context, in RunInput) (*Run, error) {
	if in.Result == nil {
		return nil, fmt.Errorf("run has no result")
	}

	cfg, err := json.Marshal(in.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	diags := make([]string, len(in.Result.Diagnostics))
	for i, d := range in.Result.Diagnostics {
		diags[i] = d.Error()
	}
	run := &Run{
		ID:          uuid.New(),
		CreatedAt:   db.clock.Now().UTC(),
		Sessions:    in.Result.Sessions,
		Config:      cfg,
		Diagnostics: diags,
	}
	if !in.StartedAt.IsZero() {
		run.Duration = db.clock.Since(in.StartedAt)
	}

	sessionsJSON, err := json.Marshal(run.Sessions)
	if err != nil {
		return nil, err
	}
	diagsJSON, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tracking_runs (run_id, created_at_unix_nanos, duration_nanos, sessions_json, config_json, diagnostics_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.CreatedAt.UnixNano(), int64(run.Duration),
		string(sessionsJSON), string(cfg), string(diagsJSON)); err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	for _, group := range in.Result.ChannelGroups() {
		if err := saveGraph(ctx, tx, run.ID, in.Result.Graphs[group], in.Candidates[group]); err != nil {
			return nil, err
		}
	}
	for group, ids := range in.Identities {
		for i, id := range ids {
			if err := saveIdentity(ctx, tx, run.ID, group, i, id); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}
	monitoring.Logf("[store] saved run %s (%d sessions, %d diagnostics)", run.ID, len(run.Sessions), len(diags))
	return run, nil
}

// saveGraph writes g's nodes and edges. Edges of candidates that g no longer
// has are written with pruned set.
func saveGraph(ctx context.Context, tx *sql.Tx, runID uuid.UUID, g, candidates *tracking.Graph) error {
	for i, k := range g.Nodes() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_nodes (run_id, channel_group, ordinal, session_id, unit) VALUES (?, ?, ?, ?, ?)`,
			runID.String(), g.ChannelGroup, i, k.Session, k.Unit); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", k, err)
		}
	}

	edges := g.Edges()
	if candidates != nil {
		edges = candidates.Edges()
	}
	for _, e := range edges {
		_, kept := g.Edge(e.From, e.To)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_edges (run_id, channel_group, from_session, from_unit, to_session, to_unit,
				weight, time_delta_nanos, depth_delta, pruned)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID.String(), g.ChannelGroup, e.From.Session, e.From.Unit, e.To.Session, e.To.Unit,
			e.Weight, int64(e.TimeDelta), e.DepthDelta, !kept); err != nil {
			return fmt.Errorf("failed to insert edge %s-%s: %w", e.From, e.To, err)
		}
	}
	return nil
}

func saveIdentity(ctx context.Context, tx *sql.Tx, runID uuid.UUID, group string, ordinal int, id tracking.IdentifiedUnit) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO identities (identity_id, run_id, channel_group, ordinal, average_dissimilarity)
		VALUES (?, ?, ?, ?, ?)`,
		id.ID.String(), runID.String(), group, ordinal, id.AverageDissimilarity); err != nil {
		return fmt.Errorf("failed to insert identity %s: %w", id.ID, err)
	}
	for _, s := range id.Sessions() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO identity_units (identity_id, session_id, unit) VALUES (?, ?, ?)`,
			id.ID.String(), s, id.Units[s]); err != nil {
			return fmt.Errorf("failed to insert identity unit %s/%s: %w", id.ID, s, err)
		}
	}
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		id                         string
		created, duration          int64
		sessions, config, diagJSON string
	)
	if err := row.Scan(&id, &created, &duration, &sessions, &config, &diagJSON); err != nil {
		return nil, err
	}
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt run id %q: %w", id, err)
	}
	run := &Run{
		ID:        runID,
		CreatedAt: time.Unix(0, created).UTC(),
		Duration:  time.Duration(duration),
		Config:    json.RawMessage(config),
	}
	if err := json.Unmarshal([]byte(sessions), &run.Sessions); err != nil {
		return nil, fmt.Errorf("corrupt sessions of run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(diagJSON), &run.Diagnostics); err != nil {
		return nil, fmt.Errorf("corrupt diagnostics of run %s: %w", id, err)
	}
	return run, nil
}

const runColumns = `run_id, created_at_unix_nanos, duration_nanos, sessions_json, config_json, diagnostics_json`

// GetRun returns one run.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM tracking_runs WHERE run_id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// LatestRun returns the most recently created run.
func (db *DB) LatestRun(ctx context.Context) (*Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM tracking_runs ORDER BY created_at_unix_nanos DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns every run, newest first.
func (db *DB) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM tracking_runs ORDER BY created_at_unix_nanos DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// LoadGraphs rebuilds a run's per-group graphs with nodes in their original
// arena order. Pruned edges are left out.
func (db *DB) LoadGraphs(ctx context.Context, runID uuid.UUID) (map[string]*tracking.Graph, error) {
	return db.loadGraphs(ctx, runID, false)
}

// LoadCandidateGraphs is LoadGraphs with the pruned edges put back: the graphs
// as they were before pruning.
func (db *DB) LoadCandidateGraphs(ctx context.Context, runID uuid.UUID) (map[string]*tracking.Graph, error) {
	return db.loadGraphs(ctx, runID, true)
}

func (db *DB) loadGraphs(ctx context.Context, runID uuid.UUID, withPruned bool) (map[string]*tracking.Graph, error) {
	if _, err := db.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	graphs := make(map[string]*tracking.Graph)
	graph := func(group string) *tracking.Graph {
		g, ok := graphs[group]
		if !ok {
			g = tracking.NewGraph(group)
			graphs[group] = g
		}
		return g
	}

	nodes, err := db.QueryContext(ctx, `
		SELECT channel_group, session_id, unit FROM run_nodes
		WHERE run_id = ? ORDER BY channel_group, ordinal`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes of run %s: %w", runID, err)
	}
	defer nodes.Close()
	for nodes.Next() {
		var group string
		var k tracking.UnitKey
		if err := nodes.Scan(&group, &k.Session, &k.Unit); err != nil {
			return nil, err
		}
		graph(group).AddNode(k)
	}
	if err := nodes.Err(); err != nil {
		return nil, err
	}

	edges, err := db.QueryContext(ctx, `
		SELECT channel_group, from_session, from_unit, to_session, to_unit, weight, time_delta_nanos, depth_delta
		FROM run_edges WHERE run_id = ? AND (pruned = 0 OR ?)`, runID.String(), withPruned)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges of run %s: %w", runID, err)
	}
	defer edges.Close()
	for edges.Next() {
		var group string
		var e tracking.Edge
		var delta int64
		if err := edges.Scan(&group, &e.From.Session, &e.From.Unit, &e.To.Session, &e.To.Unit,
			&e.Weight, &delta, &e.DepthDelta); err != nil {
			return nil, err
		}
		e.TimeDelta = time.Duration(delta)
		if err := graph(group).AddEdge(e); err != nil {
			return nil, fmt.Errorf("corrupt edge in run %s: %w", runID, err)
		}
	}
	return graphs, edges.Err()
}

// ListIdentities returns a run's identities ordered by channel group, then
// the order they were extracted in. A nil runID selects the latest run.
func (db *DB) ListIdentities(ctx context.Context, runID uuid.UUID) ([]tracking.IdentifiedUnit, error) {
	if runID == uuid.Nil {
		run, err := db.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		runID = run.ID
	} else if _, err := db.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT i.identity_id, i.channel_group, i.average_dissimilarity, u.session_id, u.unit
		FROM identities i
		JOIN identity_units u ON u.identity_id = i.identity_id
		WHERE i.run_id = ?
		ORDER BY i.channel_group, i.ordinal, u.session_id`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load identities of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []tracking.IdentifiedUnit
	for rows.Next() {
		var (
			id, group, session string
			avg                float64
			unit               int
		)
		if err := rows.Scan(&id, &group, &avg, &session, &unit); err != nil {
			return nil, err
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("corrupt identity id %q: %w", id, err)
		}
		if n := len(out); n == 0 || out[n-1].ID != uid {
			out = append(out, tracking.IdentifiedUnit{
				ID:                   uid,
				ChannelGroup:         group,
				Units:                make(map[string]int),
				AverageDissimilarity: avg,
			})
		}
		out[len(out)-1].Units[session] = unit
	}
	return out, rows.Err()
}
