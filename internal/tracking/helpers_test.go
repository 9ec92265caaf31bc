package tracking

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
)

type fakeGroup struct {
	depth     *float64
	templates map[int]*mat.Dense
}

type fakeSession struct {
	ts     time.Time
	groups map[string]fakeGroup
}

// fakeProvider is a minimal in-package SessionProvider for tests.
type fakeProvider struct {
	sessions      map[string]fakeSession
	templateCalls atomic.Int64
}

func (p *fakeProvider) ChannelGroups(_ context.Context, id string) ([]string, error) {
	s, ok := p.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no session %s", id)
	}
	var out []string
	for g := range s.groups {
		out = append(out, g)
	}
	slices.Sort(out)
	return out, nil
}

func (p *fakeProvider) Timestamp(_ context.Context, id string) (time.Time, error) {
	s, ok := p.sessions[id]
	if !ok {
		return time.Time{}, fmt.Errorf("no session %s", id)
	}
	return s.ts, nil
}

func (p *fakeProvider) Depth(_ context.Context, id, group string) (float64, error) {
	g := p.sessions[id].groups[group]
	if g.depth == nil {
		return 0, fmt.Errorf("%w: %s/%s", ErrDepthUnavailable, id, group)
	}
	return *g.depth, nil
}

func (p *fakeProvider) Units(_ context.Context, id, group string) ([]int, error) {
	var out []int
	for u := range p.sessions[id].groups[group].templates {
		out = append(out, u)
	}
	slices.Sort(out)
	return out, nil
}

func (p *fakeProvider) Template(_ context.Context, id, group string, unit int) (*mat.Dense, error) {
	p.templateCalls.Add(1)
	t, ok := p.sessions[id].groups[group].templates[unit]
	if !ok {
		return nil, fmt.Errorf("no unit %s/%s/%d", id, group, unit)
	}
	return t, nil
}

func ptr(v float64) *float64 { return &v }

// row builds a single-channel template.
func row(values ...float64) *mat.Dense {
	return mat.NewDense(1, len(values), values)
}

var day0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// threeSessionProvider returns sessions a, b and c with two units each on
// group "0". a/0, b/1 and c/0 share a waveform; every other unit is distinct.
func threeSessionProvider() *fakeProvider {
	group := func(depth float64, t0, t1 *mat.Dense) map[string]fakeGroup {
		return map[string]fakeGroup{"0": {depth: ptr(depth), templates: map[int]*mat.Dense{0: t0, 1: t1}}}
	}
	return &fakeProvider{sessions: map[string]fakeSession{
		"a": {ts: day0, groups: group(100, row(1, 0, 0, 0), row(0, 1, 0, 0))},
		"b": {ts: day0.Add(24 * time.Hour), groups: group(125, row(0, 0, 1, 0), row(0.99, 0, 0, 0))},
		"c": {ts: day0.Add(48 * time.Hour), groups: group(150, row(0.98, 0, 0, 0), row(0, 0, 0, 1))},
	}}
}
