package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyTrackingConfigDefaults(t *testing.T) {
	cfg := EmptyTrackingConfig()

	assert.Equal(t, 0.0, cfg.GetMaxDissimilarity())
	assert.Equal(t, 0.05, cfg.GetPruneDissimilarity())
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.GetWorkers())
	assert.True(t, cfg.GetResolveDuplicates())
	assert.Nil(t, cfg.GetChannelGroups())

	_, ok := cfg.GetMaxTimeDelta()
	assert.False(t, ok)
	_, ok = cfg.GetMaxDepthDelta()
	assert.False(t, ok)
}

func TestLoadTrackingConfig(t *testing.T) {
	path := writeConfig(t, "run.json", `{
  "max_dissimilarity": 0.4,
  "prune_dissimilarity": 0.1,
  "max_time_delta": "72h",
  "max_depth_delta": 50,
  "channel_groups": ["0", "2"],
  "workers": 3,
  "resolve_duplicates": false
}`)

	cfg, err := LoadTrackingConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.4, cfg.GetMaxDissimilarity())
	assert.Equal(t, 0.1, cfg.GetPruneDissimilarity())
	assert.Equal(t, 3, cfg.GetWorkers())
	assert.False(t, cfg.GetResolveDuplicates())
	assert.Equal(t, []string{"0", "2"}, cfg.GetChannelGroups())

	d, ok := cfg.GetMaxTimeDelta()
	require.True(t, ok)
	assert.Equal(t, 72*time.Hour, d)

	depth, ok := cfg.GetMaxDepthDelta()
	require.True(t, ok)
	assert.Equal(t, 50.0, depth)
}

func TestLoadTrackingConfig_Partial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{"max_dissimilarity": 0.3}`)

	cfg, err := LoadTrackingConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.GetMaxDissimilarity())
	assert.Equal(t, 0.05, cfg.GetPruneDissimilarity())
}

func TestLoadTrackingConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "cfg.json", `{`, "failed to parse"},
		{"negative ceiling", "cfg.json", `{"max_dissimilarity": -1}`, "max_dissimilarity"},
		{"negative prune", "cfg.json", `{"prune_dissimilarity": -0.1}`, "prune_dissimilarity"},
		{"bad duration", "cfg.json", `{"max_time_delta": "soon"}`, "max_time_delta"},
		{"negative duration", "cfg.json", `{"max_time_delta": "-1h"}`, "max_time_delta"},
		{"negative depth", "cfg.json", `{"max_depth_delta": -5}`, "max_depth_delta"},
		{"negative workers", "cfg.json", `{"workers": -2}`, "workers"},
		{"duplicate group", "cfg.json", `{"channel_groups": ["0", "0"]}`, "twice"},
		{"empty group", "cfg.json", `{"channel_groups": [""]}`, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadTrackingConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTrackingConfig_Missing(t *testing.T) {
	_, err := LoadTrackingConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "failed to stat")
}

func TestLoadTrackingConfig_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	require.NoError(t, os.WriteFile(path, big, 0644))

	_, err := LoadTrackingConfig(path)
	assert.ErrorContains(t, err, "too large")
}

func TestDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	assert.Equal(t, 0.0, cfg.GetMaxDissimilarity())
	assert.Equal(t, 0.05, cfg.GetPruneDissimilarity())
	assert.True(t, cfg.GetResolveDuplicates())
}
