package directory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/DoyleJ11/hackathon-judging/internal/planner"
)

// Memory is an in-process Directory, used when no database is configured
// and in tests.
type Memory struct {
	mu     sync.RWMutex
	teams  map[string]*Team
	locked atomic.Bool
}

func NewMemory(teams ...Team) *Memory {
	m := &Memory{teams: make(map[string]*Team)}
	for _, t := range teams {
		t.Tracks = dedupe(t.Tracks)
		t.Members = dedupe(t.Members)
		m.teams[t.Name] = &t
	}
	return m
}

func (m *Memory) CreateTeam(_ context.Context, t Team) error {
	if err := validateTeam(t); err != nil {
		return err
	}
	if len(t.Tracks) > 0 && m.locked.Load() {
		return ErrTracksLocked
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrTeamExists, t.Name)
	}
	t.Members = dedupe(t.Members)
	for _, member := range t.Members {
		if owner := m.ownerOf(member); owner != "" {
			return fmt.Errorf("%w: %s is on %s", ErrMemberTaken, member, owner)
		}
	}
	t.Tracks = dedupe(t.Tracks)
	m.teams[t.Name] = &t
	return nil
}

func (m *Memory) AddMember(_ context.Context, team, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[team]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTeamNotFound, team)
	}
	if owner := m.ownerOf(member); owner != "" {
		return fmt.Errorf("%w: %s is on %s", ErrMemberTaken, member, owner)
	}
	t.Members = append(t.Members, member)
	return nil
}

func (m *Memory) RemoveMember(_ context.Context, team, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[team]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTeamNotFound, team)
	}
	i := slices.Index(t.Members, member)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, member)
	}
	t.Members = slices.Delete(t.Members, i, i+1)
	return nil
}

func (m *Memory) SetTracks(_ context.Context, team string, tracks []string) error {
	if m.locked.Load() {
		return ErrTracksLocked
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[team]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTeamNotFound, team)
	}
	t.Tracks = dedupe(tracks)
	return nil
}

func (m *Memory) LockTracks() { m.locked.Store(true) }

func (m *Memory) TeamExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.teams[name]
	return ok, nil
}

func (m *Memory) ListTeamsWithTracks(_ context.Context) ([]planner.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]planner.Entry, 0, len(m.teams))
	for _, name := range m.names() {
		t := m.teams[name]
		out = append(out, planner.Entry{Team: t.Name, Tracks: slices.Clone(t.Tracks), Medium: t.MediumPref})
	}
	return out, nil
}

func (m *Memory) Resolve(_ context.Context, name string) (Artifacts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[name]
	if !ok {
		return Artifacts{}, fmt.Errorf("%w: no team %s", ErrNotFound, name)
	}
	return artifactsOf(*t)
}

func (m *Memory) Teams(_ context.Context) ([]Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Team, 0, len(m.teams))
	for _, name := range m.names() {
		t := *m.teams[name]
		t.Tracks = slices.Clone(t.Tracks)
		t.Members = slices.Clone(t.Members)
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) names() []string {
	names := make([]string, 0, len(m.teams))
	for n := range m.teams {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Memory) ownerOf(member string) string {
	for name, t := range m.teams {
		if slices.Contains(t.Members, member) {
			return name
		}
	}
	return ""
}
