package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
)

// PlanRoom is one room in the interchange document. Current uses the same
// -1 / index / len(teams) convention as Cursor.
type PlanRoom struct {
	Teams   []string `json:"teams"`
	Current int      `json:"current"`
}

// Plan is the JSON document operators download, edit and load:
//
//	{ "<room_id>": { "teams": ["alpha", ...], "current": -1 } }
type Plan map[string]PlanRoom

// ValidationError lists every problem found in a plan. Load is all or
// nothing, so one error carries them all.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid plan: " + strings.Join(e.Problems, "; ")
}

type rawPlanRoom struct {
	Teams   []string `json:"teams"`
	Current *int     `json:"current"`
}

func DecodePlan(r io.Reader) (Plan, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw map[string]rawPlanRoom
	if err := dec.Decode(&raw); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("malformed json: %v", err)}}
	}

	var problems []string
	p := make(Plan, len(raw))
	for _, id := range sortedKeys(raw) {
		rr := raw[id]
		if rr.Current == nil {
			problems = append(problems, fmt.Sprintf("room %s: missing current", id))
			continue
		}
		teams := rr.Teams
		if teams == nil {
			teams = []string{}
		}
		p[id] = PlanRoom{Teams: teams, Current: *rr.Current}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return p, nil
}

func (p Plan) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(p)
}

// Validate checks p against the configured rooms and the team directory and
// builds the queue it describes.
func Validate(p Plan, rooms []config.Room, teamExists func(string) bool) (Queue, error) {
	known := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		known[r.ID] = true
	}

	var problems []string
	q := make(Queue, len(p))
	for _, id := range sortedKeys(p) {
		pr := p[id]
		if !known[id] {
			problems = append(problems, fmt.Sprintf("room id %s not in config", id))
			continue
		}

		cur, err := CursorAt(pr.Current, len(pr.Teams))
		if err != nil {
			problems = append(problems, fmt.Sprintf("room %s: %v", id, err))
		}

		seen := map[string]bool{}
		for _, name := range pr.Teams {
			if seen[name] {
				problems = append(problems, fmt.Sprintf("room %s: team %s listed more than once", id, name))
			}
			seen[name] = true
			if !teamExists(name) {
				problems = append(problems, fmt.Sprintf("team name %s in room id %s does not exist", name, id))
			}
		}

		q[id] = &RoomQueue{Teams: slices.Clone(pr.Teams), Cursor: cur, Skipped: map[string]int{}}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return q, nil
}

// Plan exports q in the interchange shape.
func (q Queue) Plan() Plan {
	p := make(Plan, len(q))
	for id, rq := range q {
		teams := slices.Clone(rq.Teams)
		if teams == nil {
			teams = []string{}
		}
		p[id] = PlanRoom{Teams: teams, Current: rq.Current()}
	}
	return p
}

// PrettyRoom is the indented JSON snapshot of one room.
func PrettyRoom(q Queue, room string) string {
	rq, ok := q[room]
	if !ok {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	_ = enc.Encode(map[string]PlanRoom{room: {Teams: rq.Teams, Current: rq.Current()}})
	return strings.TrimSpace(buf.String())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
