package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"gonum.org/v1/gonum/mat"
)

// NoMatch marks a unit without an accepted partner on the other side.
const NoMatch = -1

// CompareOptions controls a single pairwise comparison.
type CompareOptions struct {
	// ChannelGroups restricts the comparison. Empty means every group of
	// the first session.
	ChannelGroups []string

	// Ceiling is the largest dissimilarity accepted as a match. Zero,
	// negative or NaN values mean unbounded.
	Ceiling float64
}

func (o CompareOptions) ceiling() float64 {
	return normalizeCeiling(o.Ceiling)
}

func normalizeCeiling(c float64) float64 {
	if math.IsNaN(c) || c <= 0 {
		return math.Inf(1)
	}
	return c
}

// GroupMatch holds the comparison of one channel group between two sessions.
// Rows of Dissimilarity follow UnitsA and columns follow UnitsB.
type GroupMatch struct {
	ChannelGroup string
	UnitsA       []int
	UnitsB       []int

	// Dissimilarity is nil when either side has no units.
	Dissimilarity *mat.Dense

	// PossibleAB maps each unit of A to every unit of B within the ceiling.
	PossibleAB map[int][]int
	PossibleBA map[int][]int

	// BestAB maps each unit of A to its lowest-scoring unit of B, or NoMatch.
	BestAB map[int]int
	BestBA map[int]int

	// HungarianAB is the optimal one-to-one assignment, NoMatch when rejected.
	HungarianAB map[int]int
	HungarianBA map[int]int
}

// Score returns the dissimilarity between unitA of session A and unitB of session B.
func (gm *GroupMatch) Score(unitA, unitB int) (float64, bool) {
	if gm.Dissimilarity == nil {
		return 0, false
	}
	i := slices.Index(gm.UnitsA, unitA)
	j := slices.Index(gm.UnitsB, unitB)
	if i < 0 || j < 0 {
		return 0, false
	}
	return gm.Dissimilarity.At(i, j), true
}

// PairMatch is the result of comparing two sessions.
type PairMatch struct {
	SessionA string
	SessionB string
	Groups   map[string]*GroupMatch

	// Diagnostics lists groups that were skipped and why.
	Diagnostics []error
}

func (pm *PairMatch) diagnose(err error) {
	monitoring.Logf("[tracking] %s/%s: %v", pm.SessionA, pm.SessionB, err)
	pm.Diagnostics = append(pm.Diagnostics, err)
}

// CompareSessions computes the dissimilarity matrix and the possible, best and
// Hungarian matches for every channel group shared by sessions a and b.
//
// Groups missing from either session are skipped with an
// ErrChannelGroupMismatch diagnostic; groups where exactly one side has no
// units are skipped with an ErrEmptyInput diagnostic; groups with a negative unit label
// are skipped with an ErrInvalidUnitLabel diagnostic. A template shape
// mismatch fails the whole comparison.
func (t *Tracker) CompareSessions(ctx context.Context, a, b string, opts CompareOptions) (*PairMatch, error) {
	pm := &PairMatch{
		SessionA: a,
		SessionB: b,
		Groups:   make(map[string]*GroupMatch),
	}
	ceiling := opts.ceiling()

	groupsA, err := t.provider.ChannelGroups(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("channel groups of session %s: %w", a, err)
	}
	groupsB, err := t.provider.ChannelGroups(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("channel groups of session %s: %w", b, err)
	}

	groups := opts.ChannelGroups
	if len(groups) == 0 {
		groups = groupsA
	}

	for _, group := range groups {
		if !slices.Contains(groupsA, group) || !slices.Contains(groupsB, group) {
			pm.diagnose(fmt.Errorf("%w: group %q not recorded in both %s and %s", ErrChannelGroupMismatch, group, a, b))
			continue
		}

		gm, err := t.compareGroup(ctx, a, b, group, ceiling)
		if errors.Is(err, ErrInvalidUnitLabel) {
			pm.diagnose(err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if gm == nil {
			pm.diagnose(fmt.Errorf("%w: group %q has no units on one side", ErrEmptyInput, group))
			continue
		}
		pm.Groups[group] = gm
	}

	return pm, nil
}

// compareGroup returns nil when exactly one side has no units.
func (t *Tracker) compareGroup(ctx context.Context, a, b, group string, ceiling float64) (*GroupMatch, error) {
	unitsA, err := t.provider.Units(ctx, a, group)
	if err != nil {
		return nil, fmt.Errorf("units of %s group %q: %w", a, group, err)
	}
	unitsB, err := t.provider.Units(ctx, b, group)
	if err != nil {
		return nil, fmt.Errorf("units of %s group %q: %w", b, group, err)
	}

	if err := checkLabels(a, group, unitsA); err != nil {
		return nil, err
	}
	if err := checkLabels(b, group, unitsB); err != nil {
		return nil, err
	}

	if len(unitsA) == 0 && len(unitsB) == 0 {
		return MatchGroup(group, nil, nil, nil, ceiling), nil
	}
	if len(unitsA) == 0 || len(unitsB) == 0 {
		return nil, nil
	}

	templatesA, err := t.loadTemplates(ctx, a, group, unitsA)
	if err != nil {
		return nil, err
	}
	templatesB, err := t.loadTemplates(ctx, b, group, unitsB)
	if err != nil {
		return nil, err
	}

	d := mat.NewDense(len(unitsA), len(unitsB), nil)
	for i, ta := range templatesA {
		for j, tb := range templatesB {
			score, err := Dissimilarity(ta, tb)
			if err != nil {
				return nil, fmt.Errorf("%s/%d vs %s/%d in group %q: %w", a, unitsA[i], b, unitsB[j], group, err)
			}
			d.Set(i, j, score)
		}
	}

	return MatchGroup(group, unitsA, unitsB, d, ceiling), nil
}

// checkLabels rejects negative unit labels; NoMatch is -1.
func checkLabels(session, group string, units []int) error {
	for _, u := range units {
		if u < 0 {
			return fmt.Errorf("%w: %s group %q has unit %d", ErrInvalidUnitLabel, session, group, u)
		}
	}
	return nil
}

func (t *Tracker) loadTemplates(ctx context.Context, session, group string, units []int) ([]*mat.Dense, error) {
	templates := make([]*mat.Dense, len(units))
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tpl, err := t.provider.Template(ctx, session, group, unit)
		if err != nil {
			return nil, fmt.Errorf("template %s/%d in group %q: %w", session, unit, group, err)
		}
		templates[i] = tpl
	}
	return templates, nil
}

// MatchGroup derives the three matchings from a dissimilarity matrix whose rows
// follow unitsA and columns follow unitsB. d may be nil when both sides are empty.
func MatchGroup(group string, unitsA, unitsB []int, d *mat.Dense, ceiling float64) *GroupMatch {
	ceiling = normalizeCeiling(ceiling)
	gm := &GroupMatch{
		ChannelGroup:  group,
		UnitsA:        unitsA,
		UnitsB:        unitsB,
		Dissimilarity: d,
		PossibleAB:    make(map[int][]int, len(unitsA)),
		PossibleBA:    make(map[int][]int, len(unitsB)),
		BestAB:        make(map[int]int, len(unitsA)),
		BestBA:        make(map[int]int, len(unitsB)),
		HungarianAB:   make(map[int]int, len(unitsA)),
		HungarianBA:   make(map[int]int, len(unitsB)),
	}
	if d == nil || len(unitsA) == 0 || len(unitsB) == 0 {
		return gm
	}

	for _, ua := range unitsA {
		gm.PossibleAB[ua] = []int{}
		gm.BestAB[ua] = NoMatch
		gm.HungarianAB[ua] = NoMatch
	}
	for _, ub := range unitsB {
		gm.PossibleBA[ub] = []int{}
		gm.BestBA[ub] = NoMatch
		gm.HungarianBA[ub] = NoMatch
	}

	// Possible matches.
	for i, ua := range unitsA {
		for j, ub := range unitsB {
			if d.At(i, j) <= ceiling {
				gm.PossibleAB[ua] = append(gm.PossibleAB[ua], ub)
				gm.PossibleBA[ub] = append(gm.PossibleBA[ub], ua)
			}
		}
	}

	// Best unilateral matches, first index wins ties.
	for i, ua := range unitsA {
		best := 0
		for j := 1; j < len(unitsB); j++ {
			if d.At(i, j) < d.At(i, best) {
				best = j
			}
		}
		if d.At(i, best) <= ceiling {
			gm.BestAB[ua] = unitsB[best]
		}
	}
	for j, ub := range unitsB {
		best := 0
		for i := 1; i < len(unitsA); i++ {
			if d.At(i, j) < d.At(best, j) {
				best = i
			}
		}
		if d.At(best, j) <= ceiling {
			gm.BestBA[ub] = unitsA[best]
		}
	}

	// Optimal assignment; the solver assigns every row of the padded square
	// matrix, so scores at or above the ceiling are dropped here.
	for i, j := range HungarianAssign(d, hungarianPad(d, ceiling)) {
		if j == NoMatch || d.At(i, j) >= ceiling {
			continue
		}
		gm.HungarianAB[unitsA[i]] = unitsB[j]
		gm.HungarianBA[unitsB[j]] = unitsA[i]
	}

	return gm
}
