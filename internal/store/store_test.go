package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/timeutil"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var day0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	db, err := OpenAndMigrate(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetClock(timeutil.NewMockClock(day0.Add(90 * 24 * time.Hour)))
	t.Cleanup(func() { db.Close() })
	return db
}

// waveform is a two-channel template with a negative peak at sample peak.
func waveform(peak int, amp float64) *mat.Dense {
	const samples = 16
	data := make([]float64, 2*samples)
	for s := 0; s < samples; s++ {
		dist := float64(s - peak)
		v := -amp / (1 + dist*dist)
		data[s] = v
		data[samples+s] = 0.5 * v
	}
	return mat.NewDense(2, samples, data)
}

func depth(um float64) *float64 { return &um }

func record(id string, day int, d *float64, t0, t1 *mat.Dense) SessionRecord {
	return SessionRecord{
		ID:         id,
		RecordedAt: day0.AddDate(0, 0, day),
		Subject:    "m1",
		Groups: []GroupRecord{{
			Name:    "0",
			DepthUM: d,
			Units:   map[int]*mat.Dense{0: t0, 1: t1},
		}},
	}
}

// seed stores sessions a, b and c; a/0, b/1 and c/0 share a waveform.
func seed(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range []SessionRecord{
		record("a", 0, depth(1200), waveform(4, 100), waveform(12, 80)),
		record("b", 1, depth(1225), waveform(8, 60), waveform(4, 99)),
		record("c", 2, depth(1250), waveform(4, 101), waveform(14, 70)),
	} {
		require.NoError(t, db.PutSession(ctx, rec))
	}
}
