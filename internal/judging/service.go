// Package judging owns the live judging queue. Every mutating operation
// runs under one lock from the dry run through confirmation to the commit,
// so a queue that was confirmed is exactly the queue that gets committed.
package judging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hackathon-judging/internal/audit"
	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/confirm"
	"github.com/DoyleJ11/hackathon-judging/internal/directory"
	"github.com/DoyleJ11/hackathon-judging/internal/engine"
)

var ErrNotStarted = errors.New("judging has not started; load a queue first")
var ErrWrongChannel = errors.New("room does not match the channel this command was run in; run it in the text channel associated with the room")

type Confirmer interface {
	Confirm(ctx context.Context, operator, message string) (confirm.Outcome, error)
}

type Notifier interface {
	Notify(ctx context.Context, a directory.Artifacts, text string) error
}

type Committer interface {
	Commit(ctx context.Context, rec audit.Record, publicStatus string) error
}

// Request identifies who asked for an operation and where. Context is the
// room the command was issued from; empty skips the check.
type Request struct {
	Operator string `json:"operator"`
	Room     string `json:"room"`
	Context  string `json:"context,omitempty"`
	Team     string `json:"team,omitempty"`
}

type Result struct {
	OK       bool        `json:"ok"`
	Reason   string      `json:"reason"`
	Snapshot engine.Plan `json:"snapshot"`
}

type Service struct {
	ev        *config.Event
	dir       directory.Directory
	confirmer Confirmer
	sink      Committer
	notifier  Notifier
	log       *zap.Logger

	// held from dry run to commit; serializes every operation
	opMu sync.Mutex

	mu    sync.RWMutex
	queue engine.Queue // nil until the first load
}

func NewService(ev *config.Event, dir directory.Directory, c Confirmer, sink Committer, n Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{ev: ev, dir: dir, confirmer: c, sink: sink, notifier: n, log: log}
}

func (s *Service) current() engine.Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue
}

func (s *Service) swap(q engine.Queue) {
	s.mu.Lock()
	s.queue = q
	s.mu.Unlock()
}

// Export is the live queue in plan form, nil before the first load.
func (s *Service) Export() engine.Plan {
	q := s.current()
	if q == nil {
		return nil
	}
	return q.Plan()
}

// Status renders the queue, or one room of it when room is set.
func (s *Service) Status(room string, public bool) (string, error) {
	q := s.current()
	if q == nil {
		return "", ErrNotStarted
	}
	if room != "" {
		if _, ok := q[room]; !ok {
			return "", &engine.PreconditionError{Room: room, Err: engine.ErrUnknownRoom}
		}
	}
	return engine.RenderStatus(q, s.ev.Rooms, room, public), nil
}

func (s *Service) publicStatus(q engine.Queue) string {
	return engine.RenderStatus(q, s.ev.Rooms, "", true)
}

// recoverInto turns a panic inside an operation into a failed result. The
// live queue is only ever replaced whole, so nothing is half applied.
func (s *Service) recoverInto(res *Result, op engine.Op) {
	r := recover()
	if r == nil {
		return
	}
	s.log.Error("operation panicked", zap.String("op", string(op)), zap.Any("panic", r), zap.Stack("stack"))
	*res = Result{OK: false, Reason: "internal error", Snapshot: s.Export()}
}

func checkContext(req Request) error {
	if req.Context != "" && req.Context != req.Room {
		return &engine.PreconditionError{Room: req.Room, Err: ErrWrongChannel}
	}
	return nil
}

func failed(prefix string, err error, q engine.Queue) Result {
	reason := prefix + "."
	if err != nil {
		reason = fmt.Sprintf("%s; %s.", prefix, reasonOf(err))
	}
	return Result{OK: false, Reason: reason, Snapshot: planOf(q)}
}

func reasonOf(err error) string {
	var pe *engine.PreconditionError
	if errors.As(err, &pe) {
		return fmt.Sprintf("room `%s`: %v", pe.Room, pe.Err)
	}
	return err.Error()
}

func planOf(q engine.Queue) engine.Plan {
	if q == nil {
		return nil
	}
	return q.Plan()
}

// awaitConfirmation asks the operator and reports whether to go ahead. On
// false the returned Result is the one to hand back.
func (s *Service) awaitConfirmation(ctx context.Context, op engine.Op, operator, message, prefix string, q engine.Queue) (Result, bool) {
	log := s.log.With(zap.String("op", string(op)), zap.String("operator", operator))
	outcome, err := s.confirmer.Confirm(ctx, operator, message)
	if err != nil {
		log.Warn("confirmation failed", zap.Error(err))
		return failed(prefix, fmt.Errorf("could not ask for confirmation: %w", err), q), false
	}
	switch outcome {
	case confirm.Confirmed:
		return Result{}, true
	case confirm.TimedOut:
		log.Info("confirmation timed out")
		return failed(prefix, errors.New("timed out waiting for confirmation"), q), false
	default:
		log.Info("operation cancelled")
		return failed(prefix, nil, q), false
	}
}

// commit swaps q in and records rec. Audit failures are reported in the
// returned note; the commit itself stands.
func (s *Service) commit(ctx context.Context, q engine.Queue, rec audit.Record) string {
	s.swap(q)
	if err := s.sink.Commit(context.WithoutCancel(ctx), rec, s.publicStatus(q)); err != nil {
		s.log.Error("audit after commit failed", zap.String("op", string(rec.Op)), zap.Error(err))
		return fmt.Sprintf(" Warning: the change was applied but the audit record failed: %v", err)
	}
	return ""
}
