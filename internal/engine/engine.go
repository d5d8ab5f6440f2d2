// Package engine is the judging queue state machine. Apply is pure: it
// returns a new Queue and never modifies the one it was given.
package engine

import (
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownRoom = errors.New("room does not exist or has no participants being judged in it")
var ErrRoomDone = errors.New("there are no more participants to judge in this room")
var ErrFinalTeamPresenting = errors.New("the current team being judged is the final team in the queue")
var ErrNoNextTeam = errors.New("there is no team queued in this room")
var ErrSkipLast = errors.New("the next team is the final team in the queue; skipping would put them back in the same position")
var ErrTeamNotInRoom = errors.New("team is not in this room's queue")
var ErrTeamAlreadyCalled = errors.New("team has already been judged or is presenting")
var ErrAlreadyNext = errors.New("team is already next in the queue")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Op string

const (
	OpLoad    Op = "load"
	OpAdvance Op = "advance"
	OpSkip    Op = "skip"
	OpSetNext Op = "set_next"
	OpPing    Op = "ping"
)

// PreconditionError rejects an operation requested in an illegal state.
type PreconditionError struct {
	Room string
	Err  error
}

func (e *PreconditionError) Error() string { return fmt.Sprintf("room %s: %v", e.Room, e.Err) }

func (e *PreconditionError) Unwrap() error { return e.Err }

func precondition(room string, err error) error {
	return &PreconditionError{Room: room, Err: err}
}

type RoomQueue struct {
	Teams   []string
	Cursor  Cursor
	Skipped map[string]int // operator-only annotation, not part of the plan document
}

// Queue maps room id to that room's queue. Rooms are shared between
// successive queues, so a *RoomQueue is never modified once published.
type Queue map[string]*RoomQueue

type Command struct {
	Op   Op
	Room string
	Team string // OpSetNext only
}

type Event struct {
	Op         Op
	Room       string
	Team       string // team the operation was about
	Before     Cursor
	After      Cursor
	BeforeTeam string // team presenting before, "" if none
	AfterTeam  string
	Finished   bool
	Summary    string
}

func (rq *RoomQueue) Phase() Phase { return rq.Cursor.Phase() }

func (rq *RoomQueue) Current() int { return rq.Cursor.Int(len(rq.Teams)) }

// CurrentTeam is the team presenting, "" when nobody is.
func (rq *RoomQueue) CurrentTeam() string {
	if i, ok := rq.Cursor.Index(); ok {
		return rq.Teams[i]
	}
	return ""
}

// NextIndex is the index of the team that would be pinged next.
func (rq *RoomQueue) NextIndex() (int, error) {
	switch rq.Cursor.Phase() {
	case PhaseDone:
		return 0, ErrRoomDone
	case PhaseNotStarted:
		if len(rq.Teams) == 0 {
			return 0, ErrNoNextTeam
		}
		return 0, nil
	}
	i, _ := rq.Cursor.Index()
	if i == len(rq.Teams)-1 {
		return 0, ErrFinalTeamPresenting
	}
	return i + 1, nil
}

func (rq *RoomQueue) clone() *RoomQueue {
	c := &RoomQueue{
		Teams:   slices.Clone(rq.Teams),
		Cursor:  rq.Cursor,
		Skipped: make(map[string]int, len(rq.Skipped)),
	}
	for k, v := range rq.Skipped {
		c.Skipped[k] = v
	}
	return c
}

// NextTeam returns the team a ping for room would notify.
func NextTeam(q Queue, room string) (string, error) {
	rq, ok := q[room]
	if !ok {
		return "", precondition(room, ErrUnknownRoom)
	}
	j, err := rq.NextIndex()
	if err != nil {
		return "", precondition(room, err)
	}
	return rq.Teams[j], nil
}

func Apply(q Queue, cmd Command) (Event, Queue, error) {
	rq, ok := q[cmd.Room]
	if !ok {
		return Event{}, q, precondition(cmd.Room, ErrUnknownRoom)
	}

	next := rq.clone()
	ev := Event{
		Op:         cmd.Op,
		Room:       cmd.Room,
		Before:     rq.Cursor,
		BeforeTeam: rq.CurrentTeam(),
	}

	switch cmd.Op {
	case OpAdvance:
		if rq.Phase() == PhaseDone {
			return Event{}, q, precondition(cmd.Room, ErrRoomDone)
		}
		next.Cursor = rq.Cursor.advance(len(rq.Teams))
		ev.Team = next.CurrentTeam()
		ev.Summary = advanceSummary(cmd.Room, rq, next)

	case OpSkip:
		j, err := rq.NextIndex()
		if err != nil {
			return Event{}, q, precondition(cmd.Room, err)
		}
		if j == len(rq.Teams)-1 {
			return Event{}, q, precondition(cmd.Room, ErrSkipLast)
		}
		team := rq.Teams[j]
		next.Teams = append(slices.Delete(next.Teams, j, j+1), team)
		next.Skipped[team]++
		ev.Team = team
		ev.Summary = fmt.Sprintf("Skipped team `%s` in room `%s` and appended them to the end of the queue; `%s` is now next.",
			team, cmd.Room, next.Teams[j])

	case OpSetNext:
		j, err := rq.NextIndex()
		if err != nil {
			return Event{}, q, precondition(cmd.Room, err)
		}
		k := slices.Index(rq.Teams, cmd.Team)
		switch {
		case k < 0:
			return Event{}, q, precondition(cmd.Room, ErrTeamNotInRoom)
		case k < j:
			return Event{}, q, precondition(cmd.Room, ErrTeamAlreadyCalled)
		case k == j:
			return Event{}, q, precondition(cmd.Room, ErrAlreadyNext)
		}
		next.Teams = slices.Insert(slices.Delete(next.Teams, k, k+1), j, cmd.Team)
		ev.Team = cmd.Team
		ev.Summary = fmt.Sprintf("Moved team `%s` to next in line for room `%s` (was `%s`).", cmd.Team, cmd.Room, rq.Teams[j])

	default:
		return Event{}, q, ErrUnsupportedCommand
	}

	ev.After = next.Cursor
	ev.AfterTeam = next.CurrentTeam()
	ev.Finished = rq.Phase() != PhaseDone && next.Phase() == PhaseDone

	out := make(Queue, len(q))
	for id, r := range q {
		out[id] = r
	}
	out[cmd.Room] = next
	return ev, out, nil
}

func advanceSummary(room string, before, after *RoomQueue) string {
	switch {
	case after.Phase() == PhaseDone && before.Phase() == PhaseNotStarted:
		return fmt.Sprintf("Room `%s` has no teams to judge and is now marked done.", room)
	case after.Phase() == PhaseDone:
		return fmt.Sprintf("`%s` has finished being judged. All teams have now been judged for room `%s`.", before.CurrentTeam(), room)
	case before.Phase() == PhaseNotStarted:
		return fmt.Sprintf("No team has been judged yet in room `%s`, and `%s` is currently being judged.", room, after.CurrentTeam())
	}
	return fmt.Sprintf("`%s` has finished being judged in room `%s`, and `%s` is currently being judged.",
		before.CurrentTeam(), room, after.CurrentTeam())
}
