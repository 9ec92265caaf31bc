package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/unitmatch/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var _ tracking.SessionProvider = (*MemoryProvider)(nil)
var _ tracking.SessionProvider = (*CachedProvider)(nil)

func testSession() *Session {
	d := 850.0
	return &Session{
		ID:        "s1",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Groups: map[string]*Group{
			"1": {Templates: map[int]*mat.Dense{4: mat.NewDense(1, 2, []float64{1, 2})}},
			"0": {Depth: &d, Templates: map[int]*mat.Dense{
				3: mat.NewDense(1, 2, []float64{0, 1}),
				1: mat.NewDense(1, 2, []float64{1, 0}),
			}},
		},
	}
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(testSession())

	groups, err := p.ChannelGroups(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, groups)

	ts, err := p.Timestamp(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.Year())

	units, err := p.Units(ctx, "s1", "0")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, units)

	d, err := p.Depth(ctx, "s1", "0")
	require.NoError(t, err)
	assert.Equal(t, 850.0, d)

	_, err = p.Depth(ctx, "s1", "1")
	assert.ErrorIs(t, err, tracking.ErrDepthUnavailable)

	tpl, err := p.Template(ctx, "s1", "1", 4)
	require.NoError(t, err)
	assert.Equal(t, 2.0, tpl.At(0, 1))

	_, err = p.Template(ctx, "s1", "1", 9)
	assert.Error(t, err)
}

func TestMemoryProvider_Unknown(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_, err := p.ChannelGroups(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownSession)

	p.Add(testSession())
	_, err = p.Units(ctx, "s1", "7")
	assert.ErrorIs(t, err, tracking.ErrChannelGroupMismatch)
}
