package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// TrackingConfig holds the parameters of a tracking run. Omitted fields fall
// back to the defaults returned by the Get* accessors.
type TrackingConfig struct {
	// Pairwise matching
	MaxDissimilarity *float64 `json:"max_dissimilarity,omitempty"` // 0 or absent means unbounded
	ChannelGroups    []string `json:"channel_groups,omitempty"`
	Workers          *int     `json:"workers,omitempty"`

	// Pruning
	PruneDissimilarity *float64 `json:"prune_dissimilarity,omitempty"`
	MaxTimeDelta       *string  `json:"max_time_delta,omitempty"` // duration string like "72h"
	MaxDepthDelta      *float64 `json:"max_depth_delta,omitempty"`
	ResolveDuplicates  *bool    `json:"resolve_duplicates,omitempty"`
}

// EmptyTrackingConfig returns a TrackingConfig with all fields unset.
func EmptyTrackingConfig() *TrackingConfig {
	return &TrackingConfig{}
}

// LoadTrackingConfig loads a TrackingConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func nonNegative(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < 0 {
		return fmt.Errorf("%s must be non-negative, got %f", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TrackingConfig) Validate() error {
	if err := nonNegative("max_dissimilarity", c.MaxDissimilarity); err != nil {
		return err
	}
	if err := nonNegative("prune_dissimilarity", c.PruneDissimilarity); err != nil {
		return err
	}
	if err := nonNegative("max_depth_delta", c.MaxDepthDelta); err != nil {
		return err
	}

	if c.MaxTimeDelta != nil && *c.MaxTimeDelta != "" {
		d, err := time.ParseDuration(*c.MaxTimeDelta)
		if err != nil {
			return fmt.Errorf("invalid max_time_delta '%s': %w", *c.MaxTimeDelta, err)
		}
		if d < 0 {
			return fmt.Errorf("max_time_delta must be non-negative, got %s", d)
		}
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	seen := make(map[string]bool, len(c.ChannelGroups))
	for _, g := range c.ChannelGroups {
		if g == "" {
			return fmt.Errorf("channel_groups must not contain empty names")
		}
		if seen[g] {
			return fmt.Errorf("channel_groups contains %q twice", g)
		}
		seen[g] = true
	}

	return nil
}

// GetMaxDissimilarity returns the matching ceiling. Zero means unbounded.
func (c *TrackingConfig) GetMaxDissimilarity() float64 {
	if c.MaxDissimilarity == nil {
		return 0
	}
	return *c.MaxDissimilarity
}

// GetPruneDissimilarity returns the edge-weight pruning threshold.
func (c *TrackingConfig) GetPruneDissimilarity() float64 {
	if c.PruneDissimilarity == nil {
		return 0.05
	}
	return *c.PruneDissimilarity
}

// GetMaxTimeDelta returns the time-delta pruning threshold and whether one
// is configured.
func (c *TrackingConfig) GetMaxTimeDelta() (time.Duration, bool) {
	if c.MaxTimeDelta == nil || *c.MaxTimeDelta == "" {
		return 0, false
	}
	d, err := time.ParseDuration(*c.MaxTimeDelta)
	if err != nil {
		return 0, false
	}
	return d, true
}

// GetMaxDepthDelta returns the depth-delta pruning threshold in micrometres
// and whether one is configured.
func (c *TrackingConfig) GetMaxDepthDelta() (float64, bool) {
	if c.MaxDepthDelta == nil {
		return 0, false
	}
	return *c.MaxDepthDelta, true
}

// GetWorkers returns the pairwise worker count. Zero or unset means
// GOMAXPROCS.
func (c *TrackingConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

// GetResolveDuplicates reports whether duplicate sessions within a component
// are resolved before identities are extracted.
func (c *TrackingConfig) GetResolveDuplicates() bool {
	if c.ResolveDuplicates == nil {
		return true
	}
	return *c.ResolveDuplicates
}

// GetChannelGroups returns the configured channel groups; nil means all
// groups of the first session.
func (c *TrackingConfig) GetChannelGroups() []string {
	return c.ChannelGroups
}
