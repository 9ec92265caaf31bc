package tracking

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"golang.org/x/sync/errgroup"
)

// TrackerConfig holds configuration for the multi-session tracker.
type TrackerConfig struct {
	Workers int // Concurrent pairwise comparisons; <= 0 uses GOMAXPROCS
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Workers: runtime.GOMAXPROCS(0),
	}
}

// Tracker compares sessions read from a SessionProvider.
type Tracker struct {
	provider SessionProvider
	config   TrackerConfig
}

// NewTracker creates a tracker over provider.
func NewTracker(provider SessionProvider, config TrackerConfig) *Tracker {
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	return &Tracker{provider: provider, config: config}
}

// TrackOptions controls a multi-session tracking run.
type TrackOptions struct {
	// ChannelGroups restricts tracking; empty means every group of the first
	// session of each pair.
	ChannelGroups []string

	// Ceiling rejects Hungarian assignments at or above this dissimilarity.
	// Zero, negative or NaN means unbounded, deferring rejection to Prune.
	Ceiling float64
}

// Result is the outcome of Track: one graph per channel group.
type Result struct {
	Sessions    []string
	Graphs      map[string]*Graph
	Diagnostics []error
}

func (r *Result) diagnose(err error) {
	monitoring.Logf("[tracking] %v", err)
	r.Diagnostics = append(r.Diagnostics, err)
}

// Clone returns a copy whose graphs can be pruned without touching r.
func (r *Result) Clone() *Result {
	c := &Result{
		Sessions:    slices.Clone(r.Sessions),
		Graphs:      make(map[string]*Graph, len(r.Graphs)),
		Diagnostics: slices.Clone(r.Diagnostics),
	}
	for group, g := range r.Graphs {
		c.Graphs[group] = g.Clone()
	}
	return c
}

// ChannelGroups returns the graph keys in sorted order.
func (r *Result) ChannelGroups() []string {
	groups := make([]string, 0, len(r.Graphs))
	for g := range r.Graphs {
		groups = append(groups, g)
	}
	slices.Sort(groups)
	return groups
}

type sessionPair struct{ a, b string }

// sessionPairs returns every unordered pair. Each pair is oriented so the
// lexically smaller session is compared as A, which makes the result
// independent of the caller's ordering.
func sessionPairs(sessions []string) []sessionPair {
	pairs := make([]sessionPair, 0, len(sessions)*(len(sessions)-1)/2)
	for i := 0; i < len(sessions); i++ {
		for j := i + 1; j < len(sessions); j++ {
			a, b := sessions[i], sessions[j]
			if b < a {
				a, b = b, a
			}
			pairs = append(pairs, sessionPair{a: a, b: b})
		}
	}
	return pairs
}

// Track compares every pair of sessions and merges the Hungarian matches into
// one graph per channel group, annotated with time and depth deltas.
//
// Failed pairs and edges missing metadata are skipped and reported in
// Result.Diagnostics. Only context cancellation aborts the run.
func (t *Tracker) Track(ctx context.Context, sessions []string, opts TrackOptions) (*Result, error) {
	res := &Result{Graphs: make(map[string]*Graph)}

	for _, s := range sessions {
		if slices.Contains(res.Sessions, s) {
			monitoring.Logf("[tracking] ignoring repeated session %s", s)
			continue
		}
		res.Sessions = append(res.Sessions, s)
	}
	if len(res.Sessions) < 2 {
		res.diagnose(fmt.Errorf("%w: %d distinct sessions, nothing to compare", ErrEmptyInput, len(res.Sessions)))
		return res, nil
	}

	pairs := sessionPairs(res.Sessions)
	matches := make([]*PairMatch, len(pairs))
	failures := make([]error, len(pairs))
	copts := CompareOptions{ChannelGroups: opts.ChannelGroups, Ceiling: opts.Ceiling}

	start := time.Now()
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(t.config.Workers)
	for k, p := range pairs {
		eg.Go(func() error {
			pm, err := t.CompareSessions(egctx, p.a, p.b, copts)
			if err != nil {
				if ctxErr := egctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[k] = fmt.Errorf("compare %s/%s: %w", p.a, p.b, err)
				return nil
			}
			matches[k] = pm
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	monitoring.Logf("[tracking] compared %d session pairs in %s", len(pairs), time.Since(start).Round(time.Millisecond))

	for k := range pairs {
		if failures[k] != nil {
			res.diagnose(failures[k])
			continue
		}
		res.Diagnostics = append(res.Diagnostics, matches[k].Diagnostics...)
		mergePair(res.Graphs, matches[k])
	}

	if err := t.annotate(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// mergePair adds the nodes and Hungarian edges of one comparison to graphs.
func mergePair(graphs map[string]*Graph, pm *PairMatch) {
	groups := make([]string, 0, len(pm.Groups))
	for g := range pm.Groups {
		groups = append(groups, g)
	}
	slices.Sort(groups)

	for _, group := range groups {
		gm := pm.Groups[group]
		if len(gm.UnitsA) == 0 || len(gm.UnitsB) == 0 {
			continue
		}
		g, ok := graphs[group]
		if !ok {
			g = NewGraph(group)
			graphs[group] = g
		}
		for _, u := range gm.UnitsA {
			g.AddNode(UnitKey{Session: pm.SessionA, Unit: u})
		}
		for _, u := range gm.UnitsB {
			g.AddNode(UnitKey{Session: pm.SessionB, Unit: u})
		}
		for i, ua := range gm.UnitsA {
			ub := gm.HungarianAB[ua]
			if ub == NoMatch {
				continue
			}
			j := slices.Index(gm.UnitsB, ub)
			// Keys differ by session, so AddEdge cannot fail here.
			_ = g.AddEdge(Edge{
				From:   UnitKey{Session: pm.SessionA, Unit: ua},
				To:     UnitKey{Session: pm.SessionB, Unit: ub},
				Weight: gm.Dissimilarity.At(i, j),
			})
		}
	}
}

type depthKey struct{ session, group string }

type depthReading struct {
	value float64
	err   error
}

type timestampReading struct {
	ts  time.Time
	err error
}

// annotate attaches time and depth deltas to every edge, dropping edges whose
// endpoints lack metadata.
func (t *Tracker) annotate(ctx context.Context, res *Result) error {
	timestamps := make(map[string]timestampReading)
	depths := make(map[depthKey]depthReading)

	timestamp := func(session string) (time.Time, error) {
		r, ok := timestamps[session]
		if !ok {
			ts, err := t.provider.Timestamp(ctx, session)
			r = timestampReading{ts: ts, err: err}
			timestamps[session] = r
		}
		return r.ts, r.err
	}
	depth := func(session, group string) (float64, error) {
		k := depthKey{session: session, group: group}
		r, ok := depths[k]
		if !ok {
			v, err := t.provider.Depth(ctx, session, group)
			r = depthReading{value: v, err: err}
			depths[k] = r
		}
		return r.value, r.err
	}

	for _, group := range res.ChannelGroups() {
		g := res.Graphs[group]
		for _, id := range g.edgeIDs() {
			if err := ctx.Err(); err != nil {
				return err
			}
			ka, kb := g.Key(id.lo), g.Key(id.hi)

			tsA, errA := timestamp(ka.Session)
			tsB, errB := timestamp(kb.Session)
			if err := errors.Join(errA, errB); err != nil {
				g.removeEdge(id.lo, id.hi)
				res.diagnose(fmt.Errorf("edge %s-%s in group %q dropped: %w", ka, kb, group, err))
				continue
			}

			dA, errA := depth(ka.Session, group)
			dB, errB := depth(kb.Session, group)
			if err := errors.Join(errA, errB); err != nil {
				g.removeEdge(id.lo, id.hi)
				res.diagnose(fmt.Errorf("%w: edge %s-%s in group %q dropped: %w", ErrMissingDepthMetadata, ka, kb, group, err))
				continue
			}

			dt := tsA.Sub(tsB)
			if dt < 0 {
				dt = -dt
			}
			dd := dA - dB
			if dd < 0 {
				dd = -dd
			}
			g.setAttributes(id.lo, id.hi, EdgeAttributes{TimeDelta: dt, DepthDelta: dd})
		}
	}
	return nil
}
