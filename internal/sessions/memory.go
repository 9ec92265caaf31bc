// Package sessions provides SessionProvider implementations that sit outside
// the tracking core: an in-memory provider and a read-through template cache.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/banshee-data/unitmatch/internal/tracking"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownSession is returned for sessions never added to a provider.
var ErrUnknownSession = errors.New("unknown session")

// Group is one channel group of a session.
type Group struct {
	Depth     *float64           // micrometres; nil when not recorded
	Templates map[int]*mat.Dense // unit label -> template
}

// Session is a recorded session held in memory.
type Session struct {
	ID        string
	Timestamp time.Time
	Groups    map[string]*Group
}

// MemoryProvider serves sessions from memory.
type MemoryProvider struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryProvider creates a provider holding the given sessions.
func NewMemoryProvider(sessions ...*Session) *MemoryProvider {
	p := &MemoryProvider{sessions: make(map[string]*Session)}
	for _, s := range sessions {
		p.Add(s)
	}
	return p
}

// Add registers or replaces a session.
func (p *MemoryProvider) Add(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.ID] = s
}

func (p *MemoryProvider) session(id string) (*Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

func (p *MemoryProvider) group(id, group string) (*Group, error) {
	s, err := p.session(id)
	if err != nil {
		return nil, err
	}
	g, ok := s.Groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: session %s has no group %q", tracking.ErrChannelGroupMismatch, id, group)
	}
	return g, nil
}

// ChannelGroups implements tracking.SessionProvider.
func (p *MemoryProvider) ChannelGroups(_ context.Context, id string) ([]string, error) {
	s, err := p.session(id)
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(s.Groups))
	for g := range s.Groups {
		groups = append(groups, g)
	}
	slices.Sort(groups)
	return groups, nil
}

// Timestamp implements tracking.SessionProvider.
func (p *MemoryProvider) Timestamp(_ context.Context, id string) (time.Time, error) {
	s, err := p.session(id)
	if err != nil {
		return time.Time{}, err
	}
	return s.Timestamp, nil
}

// Depth implements tracking.SessionProvider.
func (p *MemoryProvider) Depth(_ context.Context, id, group string) (float64, error) {
	g, err := p.group(id, group)
	if err != nil {
		return 0, err
	}
	if g.Depth == nil {
		return 0, fmt.Errorf("%w: session %s group %q", tracking.ErrDepthUnavailable, id, group)
	}
	return *g.Depth, nil
}

// Units implements tracking.SessionProvider.
func (p *MemoryProvider) Units(_ context.Context, id, group string) ([]int, error) {
	g, err := p.group(id, group)
	if err != nil {
		return nil, err
	}
	units := make([]int, 0, len(g.Templates))
	for u := range g.Templates {
		units = append(units, u)
	}
	slices.Sort(units)
	return units, nil
}

// Template implements tracking.SessionProvider.
func (p *MemoryProvider) Template(_ context.Context, id, group string, unit int) (*mat.Dense, error) {
	g, err := p.group(id, group)
	if err != nil {
		return nil, err
	}
	t, ok := g.Templates[unit]
	if !ok {
		return nil, fmt.Errorf("session %s group %q has no unit %d", id, group, unit)
	}
	return t, nil
}
