package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// waveform is a two-channel template with a negative peak at sample peak.
func waveform(peak int, amp float64) [][]float64 {
	const samples = 16
	rows := [][]float64{make([]float64, samples), make([]float64, samples)}
	for s := 0; s < samples; s++ {
		dist := float64(s - peak)
		v := -amp / (1 + dist*dist)
		rows[0][s] = v
		rows[1][s] = 0.5 * v
	}
	return rows
}

func bundleSession(id string, day int, depth float64, t0, t1 [][]float64) store.BundleSession {
	return store.BundleSession{
		ID:         id,
		RecordedAt: day0.AddDate(0, 0, day),
		Subject:    "m1",
		ChannelGroups: []store.BundleGroup{{
			Name:      "0",
			Depth:     &depth,
			DepthUnit: "mm",
			Units: []store.BundleUnit{
				{Unit: 0, Template: t0},
				{Unit: 1, Template: t1},
			},
		}},
	}
}

// writeBundle writes sessions a, b and c; a/0, b/1 and c/0 share a waveform.
func writeBundle(t *testing.T, dir string) string {
	t.Helper()
	b := store.Bundle{Sessions: []store.BundleSession{
		bundleSession("a", 0, 1.2, waveform(4, 100), waveform(12, 80)),
		bundleSession("b", 1, 1.225, waveform(8, 60), waveform(4, 99)),
		bundleSession("c", 2, 1.25, waveform(4, 101), waveform(14, 70)),
	}}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	path := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// run executes the CLI against dbPath and returns its stdout.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", dbPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	out, err := run(t, dbPath, args...)
	require.NoError(t, err, "unitmatch %s", strings.Join(args, " "))
	return out
}

func TestImportAndTrack(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "unitmatch.db")
	bundle := writeBundle(t, dir)

	out := mustRun(t, dbPath, "import", bundle)
	assert.Contains(t, out, "imported 3 sessions")

	out = mustRun(t, dbPath, "sessions")
	for _, id := range []string{"a", "b", "c", "m1"} {
		assert.Contains(t, out, id)
	}

	cfgPath := filepath.Join(dir, "run.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"prune_dissimilarity": 0.1, "max_depth_delta": 100}`), 0o644))
	reports := filepath.Join(dir, "reports")

	out = mustRun(t, dbPath, "track", "--all", "--config", cfgPath, "--report", reports)
	assert.Contains(t, out, "3 sessions, 0 diagnostics")
	assert.Contains(t, out, "a:0 b:1 c:0")

	entries, err := os.ReadDir(reports)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Len(t, names, 2)
	assert.True(t, strings.HasPrefix(names[0], "identities-") && strings.HasSuffix(names[0], ".html"))
	assert.True(t, strings.HasPrefix(names[1], "weights-") && strings.HasSuffix(names[1], ".png"))

	out = mustRun(t, dbPath, "runs")
	assert.Contains(t, out, "3")

	out = mustRun(t, dbPath, "identities")
	assert.Contains(t, out, "a:0 b:1 c:0")
}

func TestCompare(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "unitmatch.db")
	mustRun(t, dbPath, "import", writeBundle(t, dir))

	out := mustRun(t, dbPath, "compare", "a", "c")
	assert.Contains(t, out, "Dissimilarity")

	// A ceiling below every score leaves all units unassigned.
	out = mustRun(t, dbPath, "compare", "--ceiling", "1e-9", "a", "c")
	assert.Contains(t, out, "-")

	_, err := run(t, dbPath, "compare", "a", "missing")
	assert.Error(t, err)
}

func TestTrackNeedsTwoSessions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "unitmatch.db")
	_, err := run(t, dbPath, "track", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two sessions")
}

func TestIdentitiesInvalidRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "unitmatch.db")
	_, err := run(t, dbPath, "identities", "--run", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run id")
}

func TestMigrateStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "unitmatch.db")
	mustRun(t, dbPath, "migrate", "up")
	out := mustRun(t, dbPath, "migrate", "status")
	assert.Contains(t, out, "schema version 3 (dirty: false)")
}

func TestVersion(t *testing.T) {
	out := mustRun(t, filepath.Join(t.TempDir(), "unitmatch.db"), "version")
	assert.True(t, strings.HasPrefix(out, "unitmatch dev"))
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "loud", "version"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
