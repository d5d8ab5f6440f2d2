// Package audit keeps the append-only record of every committed change to
// the judging queue and mirrors it to the broadcast topics.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/engine"
	"github.com/DoyleJ11/hackathon-judging/internal/hub"
)

type Record struct {
	Time         time.Time   `json:"time"`
	Operator     string      `json:"operator"`
	Op           engine.Op   `json:"op"`
	Room         string      `json:"room,omitempty"`
	Team         string      `json:"team,omitempty"`
	BeforeCursor int         `json:"before_cursor"`
	AfterCursor  int         `json:"after_cursor"`
	BeforeTeam   string      `json:"before_team,omitempty"`
	AfterTeam    string      `json:"after_team,omitempty"`
	Summary      string      `json:"summary"`
	RoomSnapshot string      `json:"room_snapshot,omitempty"`
	Queue        engine.Plan `json:"queue"`
}

// FromEvent builds the record for ev, committed by operator, with q the
// queue after the change.
func FromEvent(ev engine.Event, operator string, q engine.Queue) Record {
	n := 0
	if rq, ok := q[ev.Room]; ok {
		n = len(rq.Teams)
	}
	return Record{
		Time:         time.Now().UTC(),
		Operator:     operator,
		Op:           ev.Op,
		Room:         ev.Room,
		Team:         ev.Team,
		BeforeCursor: ev.Before.Int(n),
		AfterCursor:  ev.After.Int(n),
		BeforeTeam:   ev.BeforeTeam,
		AfterTeam:    ev.AfterTeam,
		Summary:      ev.Summary,
		RoomSnapshot: engine.PrettyRoom(q, ev.Room),
		Queue:        q.Plan(),
	}
}

type Writer interface {
	Write(ctx context.Context, rec Record) error
}

// Multi writes every record to each destination and reports all failures.
type Multi []Writer

func (m Multi) Write(ctx context.Context, rec Record) error {
	var err error
	for _, w := range m {
		err = multierr.Append(err, w.Write(ctx, rec))
	}
	return err
}

type Publisher interface {
	Publish(ctx context.Context, m hub.Message) error
}

type Sink struct {
	w   Writer
	pub Publisher
	ev  *config.Event
	log *zap.Logger
}

func NewSink(w Writer, pub Publisher, ev *config.Event, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{w: w, pub: pub, ev: ev, log: log}
}

// Commit stores rec, mirrors it to the private topic and, when rec.Op is
// configured for broadcast, publishes publicStatus to the public topic.
func (s *Sink) Commit(ctx context.Context, rec Record, publicStatus string) error {
	log := s.log.With(zap.String("op", string(rec.Op)), zap.String("room", rec.Room))

	var err error
	if werr := s.w.Write(ctx, rec); werr != nil {
		log.Error("audit write failed", zap.Error(werr))
		err = multierr.Append(err, fmt.Errorf("audit: write: %w", werr))
	}

	private := hub.Message{
		Topic: s.ev.PrivateTopic,
		Kind:  hub.KindAudit,
		Body:  privateSummary(rec),
		Data:  rec,
		Time:  rec.Time,
	}
	if perr := s.pub.Publish(ctx, private); perr != nil {
		log.Warn("private mirror failed", zap.Error(perr))
		err = multierr.Append(err, fmt.Errorf("audit: private mirror: %w", perr))
	}

	if s.ev.Broadcasts(string(rec.Op)) {
		public := hub.Message{Topic: s.ev.PublicTopic, Kind: hub.KindStatus, Body: publicStatus, Time: rec.Time}
		if perr := s.pub.Publish(ctx, public); perr != nil {
			log.Warn("public broadcast failed", zap.Error(perr))
			err = multierr.Append(err, fmt.Errorf("audit: public broadcast: %w", perr))
		}
	}
	return err
}

func privateSummary(rec Record) string {
	s := fmt.Sprintf("[%s] %s by %s: %s", rec.Time.Format(time.RFC3339), rec.Op, rec.Operator, rec.Summary)
	if rec.Room != "" {
		s += fmt.Sprintf("\ncursor %d -> %d", rec.BeforeCursor, rec.AfterCursor)
		s += "\n```json\n" + rec.RoomSnapshot + "\n```"
	}
	return s
}
