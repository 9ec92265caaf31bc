package tracking

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMatchGroup(t *testing.T) {
	// rows: units 10, 11, 12 of A; cols: units 20, 21 of B
	d := mat.NewDense(3, 2, []float64{
		0.05, 0.30,
		0.40, 0.02,
		0.05, 0.90,
	})
	gm := MatchGroup("0", []int{10, 11, 12}, []int{20, 21}, d, 0.1)

	t.Run("possible matches are symmetric", func(t *testing.T) {
		assert.Equal(t, []int{20}, gm.PossibleAB[10])
		assert.Equal(t, []int{21}, gm.PossibleAB[11])
		assert.Equal(t, []int{20}, gm.PossibleAB[12])
		assert.Equal(t, []int{10, 12}, gm.PossibleBA[20])
		assert.Equal(t, []int{11}, gm.PossibleBA[21])

		for a, bs := range gm.PossibleAB {
			for _, b := range bs {
				assert.Contains(t, gm.PossibleBA[b], a)
			}
		}
	})

	t.Run("best matches break ties on first index", func(t *testing.T) {
		assert.Equal(t, 20, gm.BestAB[10])
		assert.Equal(t, 21, gm.BestAB[11])
		assert.Equal(t, 20, gm.BestAB[12])
		// Column 20 ties between rows 10 and 12; row 10 comes first.
		assert.Equal(t, 10, gm.BestBA[20])
		assert.Equal(t, 11, gm.BestBA[21])
	})

	t.Run("hungarian is one to one", func(t *testing.T) {
		assert.Equal(t, 21, gm.HungarianAB[11])
		assert.Equal(t, 11, gm.HungarianBA[21])

		matchedRows := 0
		for a, b := range gm.HungarianAB {
			if b == NoMatch {
				continue
			}
			matchedRows++
			assert.Equal(t, a, gm.HungarianBA[b])
			assert.Contains(t, gm.PossibleAB[a], b, "hungarian pair must be a possible match")
		}
		assert.Equal(t, 2, matchedRows)
	})
}

func TestMatchGroup_CeilingRejects(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{
		0.5, 0.9,
		0.9, 0.1,
	})
	gm := MatchGroup("0", []int{0, 1}, []int{0, 1}, d, 0.1)

	assert.Equal(t, NoMatch, gm.BestAB[0])
	assert.Equal(t, 1, gm.BestAB[1], "score equal to the ceiling is a best match")
	assert.Equal(t, NoMatch, gm.HungarianAB[0])
	assert.Equal(t, NoMatch, gm.HungarianAB[1], "score equal to the ceiling is rejected by the assignment")
	assert.Empty(t, gm.PossibleAB[0])
	assert.Equal(t, []int{1}, gm.PossibleAB[1])
}

func TestMatchGroup_Unbounded(t *testing.T) {
	d := mat.NewDense(2, 3, []float64{
		5, 1, 9,
		2, 8, 7,
	})
	gm := MatchGroup("0", []int{0, 1}, []int{0, 1, 2}, d, math.Inf(1))

	assert.Equal(t, 1, gm.HungarianAB[0])
	assert.Equal(t, 0, gm.HungarianAB[1])
	assert.Equal(t, NoMatch, gm.HungarianBA[2])
	assert.Len(t, gm.PossibleAB[0], 3)
}

func TestMatchGroup_Empty(t *testing.T) {
	gm := MatchGroup("0", nil, nil, nil, 0.1)
	assert.Empty(t, gm.PossibleAB)
	assert.Empty(t, gm.HungarianAB)
	assert.Nil(t, gm.Dissimilarity)
}

func TestGroupMatch_Score(t *testing.T) {
	d := mat.NewDense(1, 2, []float64{0.3, 0.4})
	gm := MatchGroup("0", []int{7}, []int{3, 4}, d, 1)

	s, ok := gm.Score(7, 4)
	require.True(t, ok)
	assert.Equal(t, 0.4, s)

	_, ok = gm.Score(8, 4)
	assert.False(t, ok)
}

func TestCompareSessions(t *testing.T) {
	tr := NewTracker(threeSessionProvider(), TrackerConfig{Workers: 1})

	pm, err := tr.CompareSessions(context.Background(), "a", "b", CompareOptions{Ceiling: 0.1})
	require.NoError(t, err)
	require.Empty(t, pm.Diagnostics)
	require.Contains(t, pm.Groups, "0")

	gm := pm.Groups["0"]
	assert.Equal(t, []int{0, 1}, gm.UnitsA)
	assert.Equal(t, 1, gm.HungarianAB[0])
	assert.Equal(t, NoMatch, gm.HungarianAB[1])

	score, ok := gm.Score(0, 1)
	require.True(t, ok)
	assert.InDelta(t, 0.0025, score, 1e-9)
}

func TestCompareSessions_ChannelGroupMismatch(t *testing.T) {
	p := &fakeProvider{sessions: map[string]fakeSession{
		"a": {ts: day0, groups: map[string]fakeGroup{"shank0": {templates: map[int]*mat.Dense{0: row(1, 0)}}}},
		"b": {ts: day0, groups: map[string]fakeGroup{"0": {templates: map[int]*mat.Dense{0: row(1, 0)}}}},
	}}
	tr := NewTracker(p, DefaultTrackerConfig())

	pm, err := tr.CompareSessions(context.Background(), "a", "b", CompareOptions{})
	require.NoError(t, err)
	assert.Empty(t, pm.Groups)
	require.Len(t, pm.Diagnostics, 1)
	assert.ErrorIs(t, pm.Diagnostics[0], ErrChannelGroupMismatch)

	// An explicit group list is checked against both sessions.
	pm, err = tr.CompareSessions(context.Background(), "b", "a", CompareOptions{ChannelGroups: []string{"0"}})
	require.NoError(t, err)
	assert.Empty(t, pm.Groups)
	assert.ErrorIs(t, pm.Diagnostics[0], ErrChannelGroupMismatch)
}

func TestCompareSessions_EmptySide(t *testing.T) {
	p := &fakeProvider{sessions: map[string]fakeSession{
		"a": {ts: day0, groups: map[string]fakeGroup{"0": {templates: map[int]*mat.Dense{0: row(1, 0)}}}},
		"b": {ts: day0, groups: map[string]fakeGroup{"0": {templates: map[int]*mat.Dense{}}}},
		"c": {ts: day0, groups: map[string]fakeGroup{"0": {templates: map[int]*mat.Dense{}}}},
	}}
	tr := NewTracker(p, DefaultTrackerConfig())

	pm, err := tr.CompareSessions(context.Background(), "a", "b", CompareOptions{})
	require.NoError(t, err)
	assert.Empty(t, pm.Groups)
	require.Len(t, pm.Diagnostics, 1)
	assert.True(t, errors.Is(pm.Diagnostics[0], ErrEmptyInput))

	// Both sides empty: empty outputs, no diagnostic.
	pm, err = tr.CompareSessions(context.Background(), "b", "c", CompareOptions{})
	require.NoError(t, err)
	assert.Empty(t, pm.Diagnostics)
	require.Contains(t, pm.Groups, "0")
	assert.Nil(t, pm.Groups["0"].Dissimilarity)
}

func TestCompareSessions_ShapeMismatch(t *testing.T) {
	p := &fakeProvider{sessions: map[string]fakeSession{
		"a": {ts: day0, groups: map[string]fakeGroup{"0": {templates: map[int]*mat.Dense{0: row(1, 0, 0)}}}},
		"b": {ts: day0, groups: map[string]fakeGroup{"0": {templates: map[int]*mat.Dense{0: row(1, 0)}}}},
	}}
	tr := NewTracker(p, DefaultTrackerConfig())

	_, err := tr.CompareSessions(context.Background(), "a", "b", CompareOptions{})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCompareSessions_NegativeUnitLabel(t *testing.T) {
	p := &fakeProvider{sessions: map[string]fakeSession{
		"a": {ts: day0, groups: map[string]fakeGroup{
			"0": {templates: map[int]*mat.Dense{0: row(1, 0)}},
			"1": {templates: map[int]*mat.Dense{0: row(1, 0)}},
		}},
		"b": {ts: day0, groups: map[string]fakeGroup{
			"0": {templates: map[int]*mat.Dense{-1: row(0.99, 0)}},
			"1": {templates: map[int]*mat.Dense{2: row(0.99, 0)}},
		}},
	}}
	tr := NewTracker(p, DefaultTrackerConfig())

	pm, err := tr.CompareSessions(context.Background(), "a", "b", CompareOptions{Ceiling: 0.1})
	require.NoError(t, err)
	require.Len(t, pm.Diagnostics, 1)
	assert.ErrorIs(t, pm.Diagnostics[0], ErrInvalidUnitLabel)
	assert.NotContains(t, pm.Groups, "0")
	require.Contains(t, pm.Groups, "1")
	assert.Equal(t, 2, pm.Groups["1"].HungarianAB[0])
}
