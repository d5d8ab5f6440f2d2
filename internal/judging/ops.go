package judging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hackathon-judging/internal/audit"
	"github.com/DoyleJ11/hackathon-judging/internal/engine"
	"github.com/DoyleJ11/hackathon-judging/internal/notify"
)

const confirmHint = "Confirm to go ahead, or cancel."

// Load validates p against the configured rooms and the directory, asks
// for confirmation and installs it as the live queue.
func (s *Service) Load(ctx context.Context, operator string, p engine.Plan) (res Result) {
	defer s.recoverInto(&res, engine.OpLoad)
	const prefix = "Judging was not started"

	s.opMu.Lock()
	defer s.opMu.Unlock()

	live := s.current()
	next, err := engine.Validate(p, s.ev.Rooms, func(team string) bool {
		ok, err := s.dir.TeamExists(ctx, team)
		if err != nil {
			s.log.Warn("team lookup failed during load", zap.String("team", team), zap.Error(err))
		}
		return ok && err == nil
	})
	if err != nil {
		return failed(prefix, err, live)
	}

	msg := "This is the judging scheme that you are about to switch to. Verify it is correct.\n\n" +
		engine.RenderStatus(next, s.ev.Rooms, "", false) + "\n" + confirmHint
	if r, ok := s.awaitConfirmation(ctx, engine.OpLoad, operator, msg, prefix, live); !ok {
		return r
	}

	rec := audit.Record{
		Time:     time.Now().UTC(),
		Operator: operator,
		Op:       engine.OpLoad,
		Summary:  "Judging started.",
		Queue:    next.Plan(),
	}
	note := s.commit(ctx, next, rec)
	s.dir.LockTracks()
	s.log.Info("queue loaded", zap.String("operator", operator), zap.Int("rooms", len(next)))
	return Result{OK: true, Reason: "Judging started! ✨" + note, Snapshot: next.Plan()}
}

// Advance marks the presenting team judged and calls the next one in.
func (s *Service) Advance(ctx context.Context, req Request) Result {
	return s.mutate(ctx, req, engine.Command{Op: engine.OpAdvance, Room: req.Room})
}

// Skip moves the next team to the end of the room's queue and tells them.
func (s *Service) Skip(ctx context.Context, req Request) Result {
	return s.mutate(ctx, req, engine.Command{Op: engine.OpSkip, Room: req.Room})
}

// SetNext moves req.Team up to be the next team called in the room.
func (s *Service) SetNext(ctx context.Context, req Request) Result {
	return s.mutate(ctx, req, engine.Command{Op: engine.OpSetNext, Room: req.Room, Team: req.Team})
}

func (s *Service) mutate(ctx context.Context, req Request, cmd engine.Command) (res Result) {
	defer s.recoverInto(&res, cmd.Op)
	prefix := notDone(cmd.Op)
	log := s.log.With(zap.String("op", string(cmd.Op)), zap.String("room", req.Room), zap.String("operator", req.Operator))

	s.opMu.Lock()
	defer s.opMu.Unlock()

	q := s.current()
	if q == nil {
		return failed(prefix, ErrNotStarted, q)
	}
	if err := checkContext(req); err != nil {
		log.Info("rejected", zap.Error(err))
		return failed(prefix, err, q)
	}

	ev, next, err := engine.Apply(q, cmd)
	if err != nil {
		log.Info("rejected", zap.Error(err))
		return failed(prefix, err, q)
	}

	if r, ok := s.awaitConfirmation(ctx, cmd.Op, req.Operator, describe(ev, next), prefix, q); !ok {
		return r
	}

	note := s.commit(ctx, next, audit.FromEvent(ev, req.Operator, next))
	log.Info("committed", zap.String("summary", ev.Summary))
	res = Result{OK: true, Reason: ev.Summary + note, Snapshot: next.Plan()}

	if cmd.Op == engine.OpSkip {
		res.Reason += s.notifySkipped(ctx, ev.Team)
	}
	return res
}

func (s *Service) notifySkipped(ctx context.Context, team string) string {
	ctx = context.WithoutCancel(ctx)
	a, err := s.dir.Resolve(ctx, team)
	if err == nil {
		err = s.notifier.Notify(ctx, a, notify.SkippedText(a))
	}
	if err != nil {
		s.log.Error("could not notify skipped team", zap.String("team", team), zap.Error(err))
		return " There was an issue reaching this team; you will need to handle them manually. **They have still been skipped and added to the end of the queue.** Be careful."
	}
	return " The team has been notified."
}

// Ping calls a team to report for judging: req.Team when set, otherwise
// the room's next team. The queue is not changed.
func (s *Service) Ping(ctx context.Context, req Request) (res Result) {
	defer s.recoverInto(&res, engine.OpPing)
	const prefix = "Team was not pinged"
	log := s.log.With(zap.String("op", string(engine.OpPing)), zap.String("room", req.Room), zap.String("operator", req.Operator))

	s.opMu.Lock()
	defer s.opMu.Unlock()

	q := s.current()
	if q == nil {
		return failed(prefix, ErrNotStarted, q)
	}
	if err := checkContext(req); err != nil {
		return failed(prefix, err, q)
	}
	if _, ok := q[req.Room]; !ok {
		return failed(prefix, &engine.PreconditionError{Room: req.Room, Err: engine.ErrUnknownRoom}, q)
	}

	team := req.Team
	var explain string
	if team == "" {
		var err error
		if team, err = engine.NextTeam(q, req.Room); err != nil {
			return failed(prefix, err, q)
		}
		explain = fmt.Sprintf("Team `%s` is next in line for room `%s` and will be pinged.", team, req.Room)
	} else {
		ok, err := s.dir.TeamExists(ctx, team)
		if err != nil || !ok {
			return failed(prefix, fmt.Errorf("team `%s` does not exist", team), q)
		}
		explain = fmt.Sprintf("Team `%s` will be pinged.", team)
	}

	if r, ok := s.awaitConfirmation(ctx, engine.OpPing, req.Operator, explain+" "+confirmHint, prefix, q); !ok {
		return r
	}

	a, err := s.dir.Resolve(ctx, team)
	if err != nil {
		log.Error("could not resolve team artifacts", zap.String("team", team), zap.Error(err))
		return Result{OK: false, Reason: "There was an issue getting the channels or role for this team; you will need to handle them manually.", Snapshot: q.Plan()}
	}
	room, _ := s.ev.Room(req.Room)
	p, err := notify.PingText(team, a, room)
	if err != nil {
		return Result{OK: false, Reason: err.Error(), Snapshot: q.Plan()}
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), a, p.Team); err != nil {
		log.Error("ping delivery failed", zap.String("team", team), zap.Error(err))
		return Result{OK: false, Reason: "The ping could not be delivered; you will need to contact the team manually.", Snapshot: q.Plan()}
	}
	log.Info("team pinged", zap.String("team", team))
	return Result{OK: true, Reason: p.Volunteer, Snapshot: q.Plan()}
}

func notDone(op engine.Op) string {
	switch op {
	case engine.OpSkip:
		return "Team was not skipped"
	case engine.OpSetNext:
		return "Queue was not changed"
	}
	return "Queue was not moved"
}

// describe tells the operator what confirming will do.
func describe(ev engine.Event, next engine.Queue) string {
	var b strings.Builder
	switch ev.Op {
	case engine.OpAdvance:
		fmt.Fprintf(&b, "The queue for room `%s` will be moved. %s", ev.Room, ev.Summary)
	case engine.OpSkip:
		fmt.Fprintf(&b, "Team `%s` will be skipped and appended to the end of the queue. The team will be notified that they have been skipped. The new queue will look like this:\n", ev.Team)
		b.WriteString(queueLines(next[ev.Room]))
	case engine.OpSetNext:
		fmt.Fprintf(&b, "Team `%s` will be moved up to be next in room `%s`. The new queue will look like this:\n", ev.Team, ev.Room)
		b.WriteString(queueLines(next[ev.Room]))
	default:
		b.WriteString(ev.Summary)
	}
	b.WriteString("\n" + confirmHint)
	return b.String()
}

func queueLines(rq *engine.RoomQueue) string {
	var b strings.Builder
	cur := rq.Current()
	for i, team := range rq.Teams {
		marker := " "
		if i == cur {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %d. `%s`\n", marker, i+1, team)
	}
	return b.String()
}

