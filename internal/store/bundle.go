package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/units"
	"gonum.org/v1/gonum/mat"
)

// Bundle is the JSON interchange format for sessions:
//
//	{"sessions": [{"id": "m1-d1", "recorded_at": "2024-01-01T10:00:00Z",
//	  "channel_groups": [{"name": "shank0", "depth": 1.2, "depth_unit": "mm",
//	    "units": [{"unit": 3, "template": [[0.1, 0.2], [0.3, 0.4]]}]}]}]}
//
// Templates are channels x samples: one row per channel.
type Bundle struct {
	Sessions []BundleSession `json:"sessions"`
}

type BundleSession struct {
	ID            string        `json:"id"`
	RecordedAt    time.Time     `json:"recorded_at"`
	Subject       string        `json:"subject,omitempty"`
	ChannelGroups []BundleGroup `json:"channel_groups"`
}

type BundleGroup struct {
	Name      string       `json:"name"`
	Depth     *float64     `json:"depth,omitempty"`
	DepthUnit string       `json:"depth_unit,omitempty"` // um (default), mm or m
	Units     []BundleUnit `json:"units"`
}

type BundleUnit struct {
	Unit     int         `json:"unit"`
	Template [][]float64 `json:"template"`
}

// ParseBundle decodes a bundle, rejecting unknown fields.
func ParseBundle(r io.Reader) (*Bundle, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	return &b, nil
}

// Records converts the bundle to store records, normalising depths to
// micrometres.
func (b *Bundle) Records() ([]SessionRecord, error) {
	out := make([]SessionRecord, 0, len(b.Sessions))
	seen := make(map[string]bool, len(b.Sessions))
	for _, s := range b.Sessions {
		if s.ID == "" {
			return nil, fmt.Errorf("bundle session without id")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("bundle lists session %s twice", s.ID)
		}
		seen[s.ID] = true

		rec := SessionRecord{ID: s.ID, RecordedAt: s.RecordedAt, Subject: s.Subject}
		for _, g := range s.ChannelGroups {
			gr := GroupRecord{Name: g.Name, Units: make(map[int]*mat.Dense, len(g.Units))}
			if g.Depth != nil {
				um, err := units.ToMicrometres(*g.Depth, g.DepthUnit)
				if err != nil {
					return nil, fmt.Errorf("session %s group %q: %w", s.ID, g.Name, err)
				}
				gr.DepthUM = &um
			}
			for _, u := range g.Units {
				if u.Unit < 0 {
					return nil, fmt.Errorf("session %s group %q: unit label %d must not be negative", s.ID, g.Name, u.Unit)
				}
				if _, dup := gr.Units[u.Unit]; dup {
					return nil, fmt.Errorf("session %s group %q lists unit %d twice", s.ID, g.Name, u.Unit)
				}
				t, err := denseFromRows(u.Template)
				if err != nil {
					return nil, fmt.Errorf("session %s group %q unit %d: %w", s.ID, g.Name, u.Unit, err)
				}
				gr.Units[u.Unit] = t
			}
			rec.Groups = append(rec.Groups, gr)
		}
		out = append(out, rec)
	}
	return out, nil
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty template")
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("template channel %d has %d samples, want %d", i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data), nil
}

// ImportBundle reads a bundle from r and stores every session in one
// transaction. Returns the number of sessions written.
func (db *DB) ImportBundle(ctx context.Context, r io.Reader) (int, error) {
	b, err := ParseBundle(r)
	if err != nil {
		return 0, err
	}
	records, err := b.Records()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := db.putSession(ctx, tx, rec); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bundle: %w", err)
	}
	monitoring.Logf("[store] imported %d sessions", len(records))
	return len(records), nil
}
