// Package planner partitions registered teams into judging rooms. Plan is a
// pure function of its inputs: teams are considered in name order, so the
// same set of entries always gives the same result.
package planner

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/engine"
)

var ErrUnknownAlgorithm = errors.New("unknown planning algorithm")

const (
	FirstMatch       = "first-match"
	FirstMatchMedium = "first-match-medium"
)

func Algorithms() []string { return []string{FirstMatch, FirstMatchMedium} }

// Entry is one team as the directory reports it.
type Entry struct {
	Team   string
	Tracks []string
	Medium config.Medium // preference, "" for none
}

// Placement explains where a team went and why.
type Placement struct {
	Team  string
	Room  string
	Track string // "" when placed in a catch-all room
	Note  string
}

type Result struct {
	Rooms      map[string][]string
	Order      []string // room ids in configuration order
	Unchosen   []string // no declared tracks, did not sign up for judging
	Unassigned []string // declared tracks but no room would take them
	Placements []Placement
}

// Queue turns the result into a plan with every room not started.
func (r Result) Queue() engine.Plan {
	p := make(engine.Plan, len(r.Rooms))
	for id, teams := range r.Rooms {
		p[id] = engine.PlanRoom{Teams: slices.Clone(teams), Current: -1}
	}
	return p
}

func Plan(algorithm string, entries []Entry, tracks []config.Track, rooms []config.Room) (Result, error) {
	var eligible func(Entry, config.Room) bool
	switch algorithm {
	case FirstMatch:
		eligible = func(Entry, config.Room) bool { return true }
	case FirstMatchMedium:
		eligible = mediumMatches
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}

	res := Result{Rooms: make(map[string][]string, len(rooms))}
	for _, r := range rooms {
		res.Rooms[r.ID] = []string{}
		res.Order = append(res.Order, r.ID)
	}

	sorted := slices.Clone(entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Team < sorted[j].Team })

	for _, e := range sorted {
		declared, unknown := declaredTracks(e.Tracks, tracks)
		if len(declared) == 0 && unknown == 0 {
			res.Unchosen = append(res.Unchosen, e.Team)
			res.Placements = append(res.Placements, Placement{Team: e.Team, Note: "no declared tracks, skipped"})
			continue
		}

		placed := false
	tracksLoop:
		for _, t := range declared {
			for _, r := range rooms {
				if accepts(r, t) && eligible(e, r) {
					res.Rooms[r.ID] = append(res.Rooms[r.ID], e.Team)
					res.Placements = append(res.Placements, Placement{Team: e.Team, Room: r.ID, Track: t.ID})
					placed = true
					break tracksLoop
				}
			}
		}
		if placed {
			continue
		}

		for _, r := range rooms {
			if r.IsDefault() && eligible(e, r) {
				res.Rooms[r.ID] = append(res.Rooms[r.ID], e.Team)
				res.Placements = append(res.Placements, Placement{Team: e.Team, Room: r.ID, Note: "no track room matched, placed in default room"})
				placed = true
				break
			}
		}
		if !placed {
			res.Unassigned = append(res.Unassigned, e.Team)
			res.Placements = append(res.Placements, Placement{Team: e.Team, Note: "no room accepts this team, place manually"})
		}
	}
	return res, nil
}

// declaredTracks resolves a team's track ids against the configuration,
// dropping the baseline, and sorts them by priority. Ids the configuration
// does not know are counted but can never match a track room.
func declaredTracks(ids []string, tracks []config.Track) (out []config.Track, unknown int) {
	for _, id := range ids {
		i := slices.IndexFunc(tracks, func(t config.Track) bool { return t.ID == id })
		if i < 0 {
			unknown++
			continue
		}
		if tracks[i].Baseline {
			continue
		}
		if slices.ContainsFunc(out, func(t config.Track) bool { return t.ID == id }) {
			continue
		}
		out = append(out, tracks[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, unknown
}

func accepts(r config.Room, t config.Track) bool {
	return slices.Contains(r.Tracks, t.ID) || slices.Contains(t.Rooms, r.ID)
}

func mediumMatches(e Entry, r config.Room) bool {
	return e.Medium == "" || r.Medium == config.MediumHybrid || r.Medium == e.Medium
}
