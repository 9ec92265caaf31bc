package sessions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// slowProvider counts and delays template loads.
type slowProvider struct {
	*MemoryProvider
	loads atomic.Int64
	fail  atomic.Bool
}

func (p *slowProvider) Template(ctx context.Context, session, group string, unit int) (*mat.Dense, error) {
	p.loads.Add(1)
	time.Sleep(10 * time.Millisecond)
	if p.fail.Load() {
		return nil, errors.New("disk unavailable")
	}
	return p.MemoryProvider.Template(ctx, session, group, unit)
}

func TestCachedProvider_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := &slowProvider{MemoryProvider: NewMemoryProvider(testSession())}
	c := NewCachedProvider(inner)

	first, err := c.Template(ctx, "s1", "0", 1)
	require.NoError(t, err)
	second, err := c.Template(ctx, "s1", "0", 1)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), inner.loads.Load())
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	// Other provider methods pass through.
	units, err := c.Units(ctx, "s1", "0")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, units)
}

func TestCachedProvider_ConcurrentLoadsCollapse(t *testing.T) {
	ctx := context.Background()
	inner := &slowProvider{MemoryProvider: NewMemoryProvider(testSession())}
	c := NewCachedProvider(inner)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Template(ctx, "s1", "0", 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), inner.loads.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &slowProvider{MemoryProvider: NewMemoryProvider(testSession())}
	inner.fail.Store(true)
	c := NewCachedProvider(inner)

	_, err := c.Template(ctx, "s1", "0", 1)
	require.Error(t, err)
	assert.Zero(t, c.Len())

	inner.fail.Store(false)
	_, err = c.Template(ctx, "s1", "0", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.loads.Load())
}
